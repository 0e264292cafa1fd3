package services

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

const datePattern = `(\d{4}-\d{2}(?:-\d{2})?)`

var (
	reRelativeN   = regexp.MustCompile(`(?i)\b(?:in\s+|over\s+|during\s+)?(?:the\s+)?(?:last|past|previous|trailing)\s+(\d+)\s+(day|week|month|quarter|year)s?\b`)
	reRelative1   = regexp.MustCompile(`(?i)\b(?:in\s+|over\s+|during\s+)?(?:the\s+)?(?:last|past|previous)\s+(day|week|month|quarter|year)\b`)
	reThisPeriod  = regexp.MustCompile(`(?i)\b(?:in\s+|during\s+)?(?:this|the\s+current|current)\s+(month|quarter|year)\b`)
	reYTD         = regexp.MustCompile(`(?i)\b(?:ytd|year[\s-]to[\s-]date)\b`)
	reBetween     = regexp.MustCompile(`(?i)\b(?:between|from)\s+` + datePattern + `\s+(?:and|to|until)\s+` + datePattern)
	reSince       = regexp.MustCompile(`(?i)\bsince\s+` + datePattern)
	reSinceYear   = regexp.MustCompile(`(?i)\bsince\s+((?:19|20)\d{2})\b`)
	reQuarterYear = regexp.MustCompile(`(?i)\b(?:in\s+|during\s+)?q([1-4])\s+((?:19|20)\d{2})\b`)
	reMonthYear   = regexp.MustCompile(`(?i)\b(?:in\s+|during\s+)?(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)\s+((?:19|20)\d{2})\b`)
	reYear        = regexp.MustCompile(`(?i)\b(?:in\s+|during\s+|for\s+)?((?:19|20)\d{2})\b`)
)

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func startOfQuarter(t time.Time) time.Time {
	q := (int(t.Month()) - 1) / 3
	return time.Date(t.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
}

func startOfYear(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
}

// parseBoundary parses YYYY-MM or YYYY-MM-DD. The returned end is the
// exclusive upper bound of the period the value names.
func parseBoundary(s string) (start, end time.Time, ok bool) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, t.AddDate(0, 0, 1), true
	}
	if t, err := time.Parse("2006-01", s); err == nil {
		return t, t.AddDate(0, 1, 0), true
	}
	return time.Time{}, time.Time{}, false
}

// trailing returns [end - n units, end) where end is the start of the current
// unit, so "last 12 months" means the 12 complete months before this one.
func trailing(now time.Time, n int, unit string) (time.Time, time.Time) {
	switch unit {
	case "day":
		end := startOfDay(now)
		return end.AddDate(0, 0, -n), end
	case "week":
		end := startOfDay(now)
		return end.AddDate(0, 0, -7*n), end
	case "quarter":
		end := startOfQuarter(now)
		return end.AddDate(0, -3*n, 0), end
	case "year":
		end := startOfYear(now)
		return end.AddDate(-n, 0, 0), end
	default:
		end := startOfMonth(now)
		return end.AddDate(0, -n, 0), end
	}
}

func currentPeriod(now time.Time, unit string) (time.Time, time.Time) {
	tomorrow := startOfDay(now).AddDate(0, 0, 1)
	switch unit {
	case "quarter":
		return startOfQuarter(now), tomorrow
	case "year":
		return startOfYear(now), tomorrow
	default:
		return startOfMonth(now), tomorrow
	}
}

// cut removes text[start:end] and collapses the whitespace left behind.
func cut(text string, start, end int) string {
	return strings.Join(strings.Fields(text[:start]+" "+text[end:]), " ")
}

func bounded(phrase string, start, end time.Time) models.TimeScope {
	return models.TimeScope{
		Phrase: strings.TrimSpace(phrase),
		Start:  &start,
		End:    &end,
		Status: models.FieldStatusResolved,
	}
}

// ParseTimeScope finds a time expression in text and resolves it against now.
// It returns the scope and the text with the expression removed. When no
// expression is found the scope is unset and text is returned unchanged.
func ParseTimeScope(text string, now time.Time) (models.TimeScope, string) {
	now = now.UTC()
	remove := func(loc []int) string {
		return cut(text, loc[0], loc[1])
	}

	if m := reBetween.FindStringSubmatchIndex(text); m != nil {
		from, _, ok1 := parseBoundary(text[m[2]:m[3]])
		_, to, ok2 := parseBoundary(text[m[4]:m[5]])
		if ok1 && ok2 && to.After(from) {
			return bounded(text[m[0]:m[1]], from, to), remove(m)
		}
	}
	if m := reSince.FindStringSubmatchIndex(text); m != nil {
		if from, _, ok := parseBoundary(text[m[2]:m[3]]); ok {
			return bounded(text[m[0]:m[1]], from, startOfDay(now).AddDate(0, 0, 1)), remove(m)
		}
	}
	if m := reSinceYear.FindStringSubmatchIndex(text); m != nil {
		year, _ := strconv.Atoi(text[m[2]:m[3]])
		from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return bounded(text[m[0]:m[1]], from, startOfDay(now).AddDate(0, 0, 1)), remove(m)
	}
	if m := reRelativeN.FindStringSubmatchIndex(text); m != nil {
		n, err := strconv.Atoi(text[m[2]:m[3]])
		if err == nil && n > 0 {
			start, end := trailing(now, n, strings.ToLower(text[m[4]:m[5]]))
			return bounded(text[m[0]:m[1]], start, end), remove(m)
		}
	}
	if m := reRelative1.FindStringSubmatchIndex(text); m != nil {
		start, end := trailing(now, 1, strings.ToLower(text[m[2]:m[3]]))
		return bounded(text[m[0]:m[1]], start, end), remove(m)
	}
	if m := reThisPeriod.FindStringSubmatchIndex(text); m != nil {
		start, end := currentPeriod(now, strings.ToLower(text[m[2]:m[3]]))
		return bounded(text[m[0]:m[1]], start, end), remove(m)
	}
	if m := reYTD.FindStringIndex(text); m != nil {
		start, end := currentPeriod(now, "year")
		return bounded(text[m[0]:m[1]], start, end), remove(m)
	}
	if m := reQuarterYear.FindStringSubmatchIndex(text); m != nil {
		q, _ := strconv.Atoi(text[m[2]:m[3]])
		year, _ := strconv.Atoi(text[m[4]:m[5]])
		start := time.Date(year, time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
		return bounded(text[m[0]:m[1]], start, start.AddDate(0, 3, 0)), remove(m)
	}
	if m := reMonthYear.FindStringSubmatchIndex(text); m != nil {
		month := monthNames[strings.ToLower(text[m[2]:m[3]])]
		year, _ := strconv.Atoi(text[m[4]:m[5]])
		start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		return bounded(text[m[0]:m[1]], start, start.AddDate(0, 1, 0)), remove(m)
	}
	if m := reYear.FindStringSubmatchIndex(text); m != nil {
		year, _ := strconv.Atoi(text[m[2]:m[3]])
		start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return bounded(text[m[0]:m[1]], start, start.AddDate(1, 0, 0)), remove(m)
	}

	return models.TimeScope{Status: models.FieldStatusUnset}, text
}
