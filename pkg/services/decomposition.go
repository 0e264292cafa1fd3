package services

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/lexicon"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

// Answer keys accepted by Clarify in addition to gap IDs.
const (
	AnswerQuestion = "question" // replaces the question and re-decomposes it
	AnswerRole     = "role"     // supplies the requester's role or context
)

// Decomposer turns a free-text business question into a structured
// Decomposition and classifies what is missing.
type Decomposer interface {
	// Decompose extracts metric, grain, dimensions, time scope and filters.
	// An empty or non-committal question from a requester with no role
	// returns an ErrInsufficientContext blocker; with a role, the returned
	// gaps carry starter questions to choose from.
	Decompose(question, requester string) (*models.Decomposition, []models.Gap, error)

	// Clarify applies requester answers keyed by gap ID and re-classifies.
	// The input decomposition is not modified.
	Clarify(d *models.Decomposition, answers map[string]string) (*models.Decomposition, []models.Gap, error)

	// Classify derives the gaps of a decomposition.
	Classify(d *models.Decomposition) []models.Gap

	// Starters returns coaching questions for a requester role.
	Starters(role string) []string
}

type decomposer struct {
	lex    *lexicon.Lexicon
	now    func() time.Time
	logger *zap.Logger
}

// NewDecomposer creates a rule-based decomposer. now is used to resolve
// relative time expressions; nil means time.Now.
func NewDecomposer(lex *lexicon.Lexicon, now func() time.Time, logger *zap.Logger) Decomposer {
	if now == nil {
		now = time.Now
	}
	return &decomposer{
		lex:    lex,
		now:    now,
		logger: logger.Named("decomposer"),
	}
}

var _ Decomposer = (*decomposer)(nil)

// ============================================================================
// Phrase patterns
// ============================================================================

var (
	reTopN      = regexp.MustCompile(`(?i)\btop\s+(\d+)\b`)
	reRanking   = regexp.MustCompile(`(?i)\b(?:top|which|who|most|best|worst|biggest|largest|highest|lowest|rank|ranking)\b`)
	rePeriodAdj = regexp.MustCompile(`(?i)\b(daily|weekly|monthly|quarterly|yearly|annually)\b`)
	rePeriodBy  = regexp.MustCompile(`(?i)\b(?:by|per|each|every)\s+(day|week|month|quarter|year)\b`)
	reSplit     = regexp.MustCompile(`(?i)\s+(?:broken\s+down\s+by|grouped\s+by|split\s+by|for\s+each|by|per|across)\s+`)
	reAnd       = regexp.MustCompile(`(?i)\s*(?:,|\band\b)\s*`)
	reFilter    = regexp.MustCompile(`(?i)\s+((?:where|excluding|except|only|among|who|that)\s+.+?)(?:\s+(?:by|per)\s+|$)`)
	reOverall   = regexp.MustCompile(`(?i)\b(?:overall|single|one number|in total|grand total|no breakdown)\b`)
	reAllTime   = regexp.MustCompile(`(?i)\b(?:all|full|entire|whole)\s+(?:available\s+)?(?:history|time|data)\b|\beverything\b`)
)

var periodAdjectives = map[string]string{
	"daily": "day", "weekly": "week", "monthly": "month",
	"quarterly": "quarter", "yearly": "year", "annually": "year",
}

// aggregationPatterns are checked in order; the first match wins.
var aggregationPatterns = []struct {
	re  *regexp.Regexp
	agg models.Aggregation
}{
	{regexp.MustCompile(`(?i)\b(?:number\s+of\s+(?:distinct|unique)|count\s+of\s+(?:distinct|unique)|how\s+many\s+(?:distinct|unique)|distinct|unique)\b`), models.AggregationCountDist},
	{regexp.MustCompile(`(?i)\b(?:number\s+of|how\s+many|count\s+of|count)\b`), models.AggregationCount},
	{regexp.MustCompile(`(?i)\b(?:average|avg|mean)\b`), models.AggregationAverage},
	{regexp.MustCompile(`(?i)\bmedian\b`), models.AggregationMedian},
	{regexp.MustCompile(`(?i)\b(?:sum\s+of|total|sum)\b`), models.AggregationSum},
	{regexp.MustCompile(`(?i)\b(?:maximum|max|peak)\b`), models.AggregationMax},
	{regexp.MustCompile(`(?i)\b(?:minimum|min)\b`), models.AggregationMin},
}

var stopwords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`a an the our my your their we us me i you they it its
		show list give tell find get got what which who whom whose where when why how
		is are was were be been do does did have has had can could would should will
		most more less least best worst biggest largest highest lowest top rank ranking
		of in on at to for from into over under with without about than and or not
		each every all any some much many per by
		make made generate generated bring brought receive received place placed
		sell sold spend spent buy bought earn earned produce produced
		value number amount total overall`) {
		stopwords[lexicon.Singular(w)] = true
	}
}

func cleanQuestion(q string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(q), "?.!"))
}

// contentWords returns the tokens of text that are not stopwords.
func contentWords(text string) []string {
	var words []string
	for _, t := range lexicon.Tokenize(text) {
		if !stopwords[t] {
			words = append(words, t)
		}
	}
	return words
}

func extractAggregation(text string) (models.Aggregation, string) {
	for _, p := range aggregationPatterns {
		if loc := p.re.FindStringIndex(text); loc != nil {
			return p.agg, cut(text, loc[0], loc[1])
		}
	}
	return models.AggregationUnspecified, text
}

func extractPeriod(text string) (string, string) {
	if m := rePeriodBy.FindStringSubmatchIndex(text); m != nil {
		return strings.ToLower(text[m[2]:m[3]]), cut(text, m[0], m[1])
	}
	if m := rePeriodAdj.FindStringSubmatchIndex(text); m != nil {
		return periodAdjectives[strings.ToLower(text[m[2]:m[3]])], cut(text, m[0], m[1])
	}
	return "", text
}

// ============================================================================
// Decompose
// ============================================================================

func (d *decomposer) Decompose(question, requester string) (*models.Decomposition, []models.Gap, error) {
	dec := &models.Decomposition{
		Question:   strings.TrimSpace(question),
		Requester:  strings.TrimSpace(requester),
		Dimensions: []models.Dimension{},
		Filters:    []models.Filter{},
	}

	if d.lex.IsNonCommittal(cleanQuestion(question)) {
		if dec.Requester == "" {
			d.logger.Info("question has no usable intent and no requester context")
			return dec, nil, apperrors.NewBlocker(apperrors.ErrInsufficientContext,
				"the question does not say what should be measured").
				WithRemediation(
					"Describe the decision the answer should support.",
					"Share your role or team so starter questions can be suggested.",
				)
		}
		return dec, d.Classify(dec), nil
	}

	d.parse(dec, cleanQuestion(question))
	gaps := d.Classify(dec)

	d.logger.Debug("decomposed question",
		zap.String("summary", dec.Summary()),
		zap.Int("gaps", len(gaps)),
		zap.Int("blocking", len(models.BlockingGaps(gaps))))
	return dec, gaps, nil
}

func (d *decomposer) parse(dec *models.Decomposition, q string) {
	// The ranking size goes first so "top 2000" is not read as a year.
	ranking := reRanking.MatchString(q)
	rest := q
	if m := reTopN.FindStringSubmatchIndex(rest); m != nil {
		dec.TopN, _ = strconv.Atoi(rest[m[2]:m[3]])
		rest = cut(rest, m[0], m[1])
	}

	scope, rest := ParseTimeScope(rest, d.now())
	dec.TimeScope = scope

	period, rest := extractPeriod(rest)
	dec.Grain.Period = period

	for {
		m := reFilter.FindStringSubmatchIndex(rest)
		if m == nil {
			break
		}
		phrase := strings.TrimSpace(rest[m[2]:m[3]])
		dec.Filters = append(dec.Filters, d.filterFor(phrase))
		rest = cut(rest, m[2], m[3])
	}

	agg, rest := extractAggregation(rest)

	var sides []string
	for i, part := range reSplit.Split(rest, -1) {
		if i == 0 {
			sides = append(sides, part)
			continue
		}
		sides = append(sides, reAnd.Split(part, -1)...)
	}

	metricSide := d.resolveMetric(dec, sides, agg, q)
	if dec.Metric.IsEntityCount() && metricSide >= 0 {
		if qualifier, ok := d.lex.VagueQualifier(sides[metricSide]); ok {
			dec.Filters = append(dec.Filters, models.Filter{
				Phrase: qualifier + " " + dec.Metric.Entity,
				Status: models.FieldStatusDeferred,
			})
		}
	}
	d.resolveGrain(dec, sides, metricSide, ranking)
}

// residual returns what is left of the metric's side of the question once
// the metric's own words are removed ("customers ... revenue" -> "customer").
func (d *decomposer) residual(dec *models.Decomposition, side string) string {
	term := dec.Metric.Name
	if dec.Metric.IsEntityCount() {
		term = dec.Metric.Entity
	}
	drop := map[string]bool{}
	for _, t := range d.lex.Terms(term) {
		for _, tok := range strings.Split(t, "_") {
			drop[tok] = true
		}
	}
	var kept []string
	for _, w := range contentWords(side) {
		if !drop[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

func (d *decomposer) filterFor(phrase string) models.Filter {
	if _, vague := d.lex.VagueQualifier(phrase); vague {
		return models.Filter{Phrase: phrase, Status: models.FieldStatusDeferred}
	}
	return models.Filter{Phrase: phrase, Status: models.FieldStatusResolved}
}

// resolveMetric sets dec.Metric and returns the index of the side that
// holds it, or -1.
func (d *decomposer) resolveMetric(dec *models.Decomposition, sides []string, agg models.Aggregation, q string) int {
	counting := agg == models.AggregationCount || agg == models.AggregationCountDist

	if counting && len(sides) > 0 {
		if entity, ok := d.lex.EntityFor(sides[0]); ok {
			dec.Metric = countMetric(entity, agg)
			return 0
		}
	}

	for i, side := range sides {
		if name, term, ok := d.lex.MetricFor(side); ok {
			dec.Metric = models.Metric{Name: name, Aggregation: agg, Status: models.FieldStatusResolved}
			if agg == models.AggregationUnspecified && term.Aggregation != "" {
				dec.Metric.Aggregation = term.Aggregation
				dec.Metric.AggregationAssumed = true
			}
			return i
		}
	}

	if vague, ok := d.lex.VagueMetric(q); ok {
		dec.Metric = models.Metric{Name: vague, Aggregation: agg, Status: models.FieldStatusUnset}
		return -1
	}

	if len(sides) > 0 {
		words := contentWords(sides[0])
		if counting && len(words) > 0 {
			dec.Metric = countMetric(strings.Join(words, "_"), agg)
			return 0
		}
		// An explicit statistic over an unknown measure ("average basket size").
		if agg != models.AggregationUnspecified && len(words) > 0 && !d.isEntityWord(words) {
			dec.Metric = models.Metric{Name: strings.Join(words, "_"), Aggregation: agg, Status: models.FieldStatusResolved}
			return 0
		}
	}

	dec.Metric = models.Metric{Aggregation: agg, Status: models.FieldStatusUnset}
	return -1
}

func countMetric(entity string, agg models.Aggregation) models.Metric {
	return models.Metric{
		Name:        entity + "_count",
		Aggregation: agg,
		Entity:      entity,
		Status:      models.FieldStatusResolved,
	}
}

func (d *decomposer) isEntityWord(words []string) bool {
	phrase := strings.Join(words, " ")
	_, entity := d.lex.EntityFor(phrase)
	_, dim := d.lex.DimensionFor(phrase)
	return entity || dim
}

// breakdownName names what a side of the question groups by.
// ambiguous is true when the word has several competing meanings.
func (d *decomposer) breakdownName(text string) (name string, ambiguous bool, qualifier string) {
	if q, ok := d.lex.VagueQualifier(text); ok {
		qualifier = q
		text = strings.TrimSpace(strings.Replace(strings.ToLower(text), strings.ToLower(q), " ", 1))
	}
	for _, w := range contentWords(text) {
		if d.lex.AmbiguousMeanings(w) != nil {
			return w, true, qualifier
		}
	}
	if dim, ok := d.lex.DimensionFor(text); ok {
		return dim, false, qualifier
	}
	if entity, ok := d.lex.EntityFor(text); ok {
		return entity, false, qualifier
	}
	words := contentWords(text)
	if len(words) == 0 {
		return "", false, qualifier
	}
	return strings.Join(words, "_"), false, qualifier
}

func (d *decomposer) resolveGrain(dec *models.Decomposition, sides []string, metricSide int, ranking bool) {
	var names []string
	ambiguousGrain := false
	for i, side := range sides {
		if i == metricSide {
			continue
		}
		name, ambiguous, qualifier := d.breakdownName(side)
		if name == "" {
			continue
		}
		if qualifier != "" {
			dec.Filters = append(dec.Filters, models.Filter{
				Phrase: qualifier + " " + name,
				Status: models.FieldStatusDeferred,
			})
		}
		if len(names) == 0 && ambiguous {
			ambiguousGrain = true
		}
		if dec.Metric.IsEntityCount() && name == dec.Metric.Entity {
			continue
		}
		names = append(names, name)
	}

	if len(names) == 0 && metricSide >= 0 && dec.Metric.Status == models.FieldStatusResolved {
		if rest := d.residual(dec, sides[metricSide]); rest != "" {
			if name, ambiguous, _ := d.breakdownName(rest); name != "" {
				dec.Grain.Entity = name
				dec.Grain.Status = models.FieldStatusResolved
				if ambiguous {
					dec.Grain.Status = models.FieldStatusUnset
				}
				return
			}
		}
	}

	switch {
	case len(names) > 0:
		dec.Grain.Entity = names[0]
		dec.Grain.Status = models.FieldStatusResolved
		if ambiguousGrain {
			dec.Grain.Status = models.FieldStatusUnset
		}
		start := 1
		if metricSide == 0 {
			// Breakdowns after "by" are all dimensions, including the grain.
			start = 0
		}
		for _, n := range names[start:] {
			dec.Dimensions = append(dec.Dimensions, models.Dimension{Name: n, Status: models.FieldStatusResolved})
		}
	case dec.Grain.Period != "":
		dec.Grain.Entity = models.GrainOverall
		dec.Grain.Status = models.FieldStatusResolved
	case !ranking && dec.Metric.Status == models.FieldStatusResolved:
		dec.Grain.Entity = models.GrainOverall
		dec.Grain.Status = models.FieldStatusResolved
	default:
		dec.Grain.Status = models.FieldStatusUnset
	}
}

// ============================================================================
// Gap classification
// ============================================================================

func filterGapID(i int) string {
	return fmt.Sprintf("%s:%d", models.GapFieldFilter, i)
}

func (d *decomposer) metricOptions() []string {
	names := make([]string, 0, len(d.lex.Metrics))
	for name := range d.lex.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *decomposer) Starters(role string) []string {
	return d.lex.Starters(role)
}

func (d *decomposer) Classify(dec *models.Decomposition) []models.Gap {
	if d.lex.IsNonCommittal(cleanQuestion(dec.Question)) {
		return []models.Gap{{
			ID:       AnswerQuestion,
			Field:    models.GapFieldMetric,
			Severity: models.GapSeverityCritical,
			Question: "Which of these questions is closest to what you need to know? You can also write your own.",
			Options:  d.lex.Starters(dec.Requester),
			Status:   models.FieldStatusUnset,
		}}
	}

	var gaps []models.Gap
	add := func(g models.Gap, open bool) {
		g.Severity = models.SeverityFor(g.Field)
		if answer, ok := dec.Clarified(g.ID); ok && !open {
			g.Status = models.FieldStatusResolved
			g.Resolution = answer
			gaps = append(gaps, g)
			return
		}
		if open {
			if g.Status == "" {
				g.Status = models.FieldStatusUnset
			}
			gaps = append(gaps, g)
		}
	}

	metric := models.Gap{ID: string(models.GapFieldMetric), Field: models.GapFieldMetric}
	if dec.Metric.Name != "" {
		metric.Question = fmt.Sprintf("%q can be measured several ways. Which measure should be used?", dec.Metric.Name)
	} else {
		metric.Question = "Which measure should answer this question?"
	}
	metric.Options = d.metricOptions()
	add(metric, dec.Metric.Status != models.FieldStatusResolved)

	meanings := d.lex.AmbiguousMeanings(dec.Grain.Entity)
	entityOpen := dec.Grain.Status != models.FieldStatusResolved && meanings != nil
	add(models.Gap{
		ID:       string(models.GapFieldEntity),
		Field:    models.GapFieldEntity,
		Question: fmt.Sprintf("Which kind of %q do you mean?", dec.Grain.Entity),
		Options:  meanings,
	}, entityOpen)

	add(models.Gap{
		ID:       string(models.GapFieldGrain),
		Field:    models.GapFieldGrain,
		Question: "What should one row of the answer describe (for example one customer, one region, or one month)?",
	}, dec.Grain.Status != models.FieldStatusResolved && !entityOpen)

	agg := models.Gap{
		ID:       string(models.GapFieldAggregation),
		Field:    models.GapFieldAggregation,
		Question: fmt.Sprintf("Which statistic should be applied to %s?", dec.Metric.Name),
		Options:  []string{"sum", "average", "median", "count", "min", "max"},
	}
	if dec.Metric.AggregationAssumed {
		agg.Status = models.FieldStatusDeferred
		agg.Resolution = fmt.Sprintf("assumed %s", dec.Metric.Aggregation)
	}
	add(agg, dec.Metric.AggregationAssumed)

	scope := models.Gap{
		ID:       string(models.GapFieldTimeScope),
		Field:    models.GapFieldTimeScope,
		Question: "Which time period should the answer cover?",
	}
	if dec.TimeScope.Status != models.FieldStatusResolved {
		scope.Status = models.FieldStatusDeferred
		scope.Resolution = "all available history"
	}
	add(scope, dec.TimeScope.Status != models.FieldStatusResolved)

	for i, f := range dec.Filters {
		g := models.Gap{
			ID:       filterGapID(i),
			Field:    models.GapFieldFilter,
			Question: fmt.Sprintf("How exactly should %q be defined?", f.Phrase),
		}
		if f.Status == models.FieldStatusDeferred {
			g.Status = models.FieldStatusDeferred
			g.Resolution = "boundary to be settled from the data"
		}
		add(g, f.Status == models.FieldStatusDeferred)
	}

	return gaps
}

// ============================================================================
// Clarify
// ============================================================================

func copyDecomposition(dec *models.Decomposition) *models.Decomposition {
	out := *dec
	out.Dimensions = append([]models.Dimension{}, dec.Dimensions...)
	out.Filters = append([]models.Filter{}, dec.Filters...)
	out.Clarifications = append([]models.Clarification{}, dec.Clarifications...)
	return &out
}

func (d *decomposer) Clarify(dec *models.Decomposition, answers map[string]string) (*models.Decomposition, []models.Gap, error) {
	out := copyDecomposition(dec)

	if role, ok := answers[AnswerRole]; ok && strings.TrimSpace(role) != "" {
		out.Requester = strings.TrimSpace(role)
	}
	if q, ok := answers[AnswerQuestion]; ok && strings.TrimSpace(q) != "" {
		next, gaps, err := d.Decompose(q, out.Requester)
		if err != nil {
			return out, nil, err
		}
		next.Clarifications = append(out.Clarifications, models.Clarification{GapID: AnswerQuestion, Answer: strings.TrimSpace(q)})
		return next, gaps, nil
	}
	if d.lex.IsNonCommittal(cleanQuestion(out.Question)) {
		if out.Requester == "" {
			return out, nil, apperrors.NewBlocker(apperrors.ErrInsufficientContext,
				"the question does not say what should be measured").
				WithRemediation("Share your role or team so starter questions can be suggested.")
		}
		return out, d.Classify(out), nil
	}

	ids := make([]string, 0, len(answers))
	for id := range answers {
		if id != AnswerRole && id != AnswerQuestion {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		answer := strings.TrimSpace(answers[id])
		if answer == "" || d.lex.IsNonCommittal(answer) {
			continue
		}
		applied, err := d.apply(out, id, answer)
		if err != nil {
			return dec, nil, err
		}
		if applied {
			out.Clarifications = append(out.Clarifications, models.Clarification{GapID: id, Answer: answer})
		}
	}

	gaps := d.Classify(out)
	d.logger.Debug("applied clarifications",
		zap.Int("answers", len(ids)),
		zap.Int("blocking", len(models.BlockingGaps(gaps))))
	return out, gaps, nil
}

// apply writes one answer into the decomposition. It returns false when the
// answer does not settle the gap.
func (d *decomposer) apply(dec *models.Decomposition, id, answer string) (bool, error) {
	if strings.HasPrefix(id, string(models.GapFieldFilter)+":") {
		i, err := strconv.Atoi(strings.TrimPrefix(id, string(models.GapFieldFilter)+":"))
		if err != nil || i < 0 || i >= len(dec.Filters) {
			return false, fmt.Errorf("gap %q: %w", id, apperrors.ErrNotFound)
		}
		dec.Filters[i] = models.Filter{Phrase: answer, Status: models.FieldStatusResolved}
		return true, nil
	}

	switch models.GapField(id) {
	case models.GapFieldMetric:
		agg, rest := extractAggregation(answer)
		trial := &models.Decomposition{}
		d.resolveMetric(trial, []string{rest}, agg, answer)
		if trial.Metric.Status != models.FieldStatusResolved {
			words := contentWords(rest)
			if len(words) == 0 {
				return false, nil
			}
			if _, vague := d.lex.VagueMetric(answer); vague {
				return false, nil
			}
			trial.Metric = models.Metric{Name: strings.Join(words, "_"), Aggregation: agg, Status: models.FieldStatusResolved}
		}
		dec.Metric = trial.Metric
		return true, nil

	case models.GapFieldEntity:
		previous := dec.Grain.Entity
		if entity, ok := d.lex.EntityFor(answer); ok {
			dec.Grain.Entity = entity
		} else if words := contentWords(answer); len(words) > 0 {
			dec.Grain.Entity = strings.Join(words, "_")
		} else {
			return false, nil
		}
		dec.Grain.Status = models.FieldStatusResolved
		for i := range dec.Dimensions {
			if dec.Dimensions[i].Name == previous {
				dec.Dimensions[i].Name = dec.Grain.Entity
			}
		}
		return true, nil

	case models.GapFieldGrain:
		if reOverall.MatchString(answer) {
			dec.Grain.Entity = models.GrainOverall
			dec.Grain.Status = models.FieldStatusResolved
			return true, nil
		}
		period, rest := extractPeriod(answer)
		if period == "" {
			if p, ok := periodAdjectives[strings.ToLower(strings.TrimSuffix(answer, "s"))]; ok {
				period = p
			} else if p := lexicon.Singular(answer); p == "day" || p == "week" || p == "month" || p == "quarter" || p == "year" {
				period, rest = p, ""
			}
		}
		if period != "" {
			dec.Grain.Period = period
		}
		name, ambiguous, _ := d.breakdownName(rest)
		switch {
		case name != "":
			dec.Grain.Entity = name
		case period != "":
			dec.Grain.Entity = models.GrainOverall
		default:
			return false, nil
		}
		dec.Grain.Status = models.FieldStatusResolved
		if ambiguous {
			dec.Grain.Status = models.FieldStatusUnset
		}
		return true, nil

	case models.GapFieldAggregation:
		agg, _ := extractAggregation(answer)
		if agg == models.AggregationUnspecified {
			return false, nil
		}
		dec.Metric.Aggregation = agg
		dec.Metric.AggregationAssumed = false
		return true, nil

	case models.GapFieldTimeScope:
		if reAllTime.MatchString(answer) {
			dec.TimeScope = models.TimeScope{Phrase: "all available history", Status: models.FieldStatusResolved}
			return true, nil
		}
		scope, _ := ParseTimeScope(answer, d.now())
		if scope.Status != models.FieldStatusResolved {
			return false, nil
		}
		dec.TimeScope = scope
		return true, nil
	}

	return false, fmt.Errorf("gap %q: %w", id, apperrors.ErrNotFound)
}
