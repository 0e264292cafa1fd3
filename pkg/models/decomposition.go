package models

import (
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// Field Status
// ============================================================================

// FieldStatus tracks whether a decomposition field has been settled.
type FieldStatus string

const (
	FieldStatusUnset    FieldStatus = "unset"
	FieldStatusResolved FieldStatus = "resolved"
	FieldStatusDeferred FieldStatus = "deferred"
)

// ValidFieldStatuses contains all valid field status values.
var ValidFieldStatuses = []FieldStatus{
	FieldStatusUnset,
	FieldStatusResolved,
	FieldStatusDeferred,
}

// IsValidFieldStatus checks if the given status is valid.
func IsValidFieldStatus(s FieldStatus) bool {
	for _, v := range ValidFieldStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ============================================================================
// Decomposition
// ============================================================================

// Aggregation is the statistic applied to the metric.
type Aggregation string

const (
	AggregationUnspecified Aggregation = ""
	AggregationSum         Aggregation = "sum"
	AggregationCount       Aggregation = "count"
	AggregationCountDist   Aggregation = "count_distinct"
	AggregationAverage     Aggregation = "average"
	AggregationMedian      Aggregation = "median"
	AggregationMin         Aggregation = "min"
	AggregationMax         Aggregation = "max"
)

// Metric is the quantity the question asks about.
type Metric struct {
	Name        string      `json:"name"`
	Aggregation Aggregation `json:"aggregation,omitempty"`
	Entity      string      `json:"entity,omitempty"` // counted entity when Aggregation is count
	Status      FieldStatus `json:"status"`

	// AggregationAssumed is set when the statistic came from the metric's
	// usual aggregation rather than from the question.
	AggregationAssumed bool `json:"aggregation_assumed,omitempty"`
}

// IsEntityCount returns true when the metric counts rows of an entity
// rather than aggregating a measure column.
func (m Metric) IsEntityCount() bool {
	return m.Entity != "" && (m.Aggregation == AggregationCount || m.Aggregation == AggregationCountDist)
}

// GrainOverall marks a question answered by a single aggregate row.
const GrainOverall = "overall"

// Grain is the entity one result row describes (e.g. one row per customer).
type Grain struct {
	Entity string      `json:"entity"`
	Period string      `json:"period,omitempty"` // day, week, month, quarter, year
	Status FieldStatus `json:"status"`
}

// IsOverall returns true when the answer is a single aggregate row.
func (g Grain) IsOverall() bool {
	return g.Entity == GrainOverall
}

// String renders the grain for reports.
func (g Grain) String() string {
	switch {
	case g.Entity == "" && g.Period == "":
		return "<unset>"
	case g.IsOverall() && g.Period == "":
		return "single overall total"
	case g.IsOverall() || g.Entity == "":
		return "one row per " + g.Period
	case g.Period == "":
		return "one row per " + g.Entity
	default:
		return fmt.Sprintf("one row per %s per %s", g.Entity, g.Period)
	}
}

// Dimension is an attribute results are broken down by.
type Dimension struct {
	Name   string      `json:"name"`
	Status FieldStatus `json:"status"`
}

// TimeScope bounds the period the question covers. Start is inclusive and End
// is exclusive. Phrase keeps the requester's wording for the report.
type TimeScope struct {
	Phrase string      `json:"phrase,omitempty"`
	Start  *time.Time  `json:"start,omitempty"`
	End    *time.Time  `json:"end,omitempty"`
	Status FieldStatus `json:"status"`
}

// IsBounded returns true if both ends of the scope are known.
func (t TimeScope) IsBounded() bool {
	return t.Start != nil && t.End != nil
}

// Months returns the number of calendar months the scope spans.
func (t TimeScope) Months() int {
	if !t.IsBounded() {
		return 0
	}
	return MonthsBetween(*t.Start, *t.End)
}

// String renders the scope for reports.
func (t TimeScope) String() string {
	if t.IsBounded() {
		return fmt.Sprintf("%s to %s", t.Start.Format("2006-01-02"), t.End.Format("2006-01-02"))
	}
	if t.Phrase != "" {
		return t.Phrase
	}
	return "all available history"
}

// MonthsBetween counts calendar months touched by [start, end).
func MonthsBetween(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	last := end.Add(-time.Nanosecond)
	return (last.Year()-start.Year())*12 + int(last.Month()) - int(start.Month()) + 1
}

// Filter restricts the population the question covers.
type Filter struct {
	Phrase string      `json:"phrase"`
	Status FieldStatus `json:"status"`
}

// Decomposition is the structured form of a business question.
type Decomposition struct {
	Question   string      `json:"question"`
	Requester  string      `json:"requester,omitempty"` // role or context supplied by the asker
	Metric     Metric      `json:"metric"`
	Grain      Grain       `json:"grain"`
	Dimensions []Dimension `json:"dimensions"`
	TimeScope  TimeScope   `json:"time_scope"`
	Filters    []Filter    `json:"filters"`
	TopN       int         `json:"top_n,omitempty"`

	// Clarifications records every answer the requester gave, in order.
	Clarifications []Clarification `json:"clarifications,omitempty"`
}

// Clarification is one requester answer to a gap.
type Clarification struct {
	GapID  string `json:"gap_id"`
	Answer string `json:"answer"`
}

// Clarified returns the latest answer recorded for a gap.
func (d *Decomposition) Clarified(gapID string) (string, bool) {
	for i := len(d.Clarifications) - 1; i >= 0; i-- {
		if d.Clarifications[i].GapID == gapID {
			return d.Clarifications[i].Answer, true
		}
	}
	return "", false
}

// DimensionNames returns the dimension names in order.
func (d *Decomposition) DimensionNames() []string {
	names := make([]string, 0, len(d.Dimensions))
	for _, dim := range d.Dimensions {
		names = append(names, dim.Name)
	}
	return names
}

// Summary renders a one-line description of the decomposition.
func (d *Decomposition) Summary() string {
	parts := []string{fmt.Sprintf("metric=%s", orUnset(d.Metric.Name))}
	parts = append(parts, fmt.Sprintf("grain=%s", d.Grain.String()))
	if len(d.Dimensions) > 0 {
		parts = append(parts, fmt.Sprintf("dimensions=%s", strings.Join(d.DimensionNames(), ",")))
	}
	parts = append(parts, fmt.Sprintf("time=%s", d.TimeScope.String()))
	return strings.Join(parts, " ")
}

func orUnset(s string) string {
	if s == "" {
		return "<unset>"
	}
	return s
}

// ============================================================================
// Gaps
// ============================================================================

// GapSeverity classifies whether a gap blocks progress.
type GapSeverity string

const (
	GapSeverityCritical   GapSeverity = "critical"
	GapSeverityDeferrable GapSeverity = "deferrable"
)

// GapField names the decomposition aspect a gap is about.
type GapField string

const (
	GapFieldEntity      GapField = "entity_identity"
	GapFieldMetric      GapField = "metric_definition"
	GapFieldGrain       GapField = "grain"
	GapFieldColumn      GapField = "column_choice"
	GapFieldFilter      GapField = "filter_boundary"
	GapFieldAggregation GapField = "aggregation_statistic"
	GapFieldTimeScope   GapField = "time_scope"
)

// SeverityFor returns the rule-based severity of a gap field.
// Entity identity, metric definition and grain block progress; everything else
// can be settled later by looking at the data.
func SeverityFor(field GapField) GapSeverity {
	switch field {
	case GapFieldEntity, GapFieldMetric, GapFieldGrain:
		return GapSeverityCritical
	default:
		return GapSeverityDeferrable
	}
}

// Gap is a missing or ambiguous decomposition field.
type Gap struct {
	ID         string      `json:"id"`
	Field      GapField    `json:"field"`
	Severity   GapSeverity `json:"severity"`
	Question   string      `json:"question"`
	Options    []string    `json:"options,omitempty"`
	Status     FieldStatus `json:"status"`
	Resolution string      `json:"resolution,omitempty"`
}

// IsBlocking returns true for critical gaps that are not yet resolved.
func (g Gap) IsBlocking() bool {
	return g.Severity == GapSeverityCritical && g.Status != FieldStatusResolved
}

// BlockingGaps returns the critical gaps still awaiting resolution.
func BlockingGaps(gaps []Gap) []Gap {
	var blocking []Gap
	for _, g := range gaps {
		if g.IsBlocking() {
			blocking = append(blocking, g)
		}
	}
	return blocking
}
