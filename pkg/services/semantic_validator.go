package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse"
	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/config"
	"github.com/ekaya-inc/ekaya-assess/pkg/lexicon"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

// SemanticValidator inspects actual values and joins behind chosen mappings.
// It never modifies the mappings it is given.
type SemanticValidator interface {
	// Validate classifies every chosen mapping, then every join needed to
	// bring a breakdown onto the metric's table.
	Validate(ctx context.Context, ref lakehouse.Ref, namespace string, mappings []models.ConceptMapping, tables []models.TableCandidate) ([]models.SemanticFinding, error)
}

type semanticValidator struct {
	querier lakehouse.StatsQuerier
	cfg     config.SemanticConfig
	lex     *lexicon.Lexicon
	logger  *zap.Logger
}

// NewSemanticValidator creates a validator over a stats querier.
func NewSemanticValidator(querier lakehouse.StatsQuerier, cfg config.SemanticConfig, lex *lexicon.Lexicon, logger *zap.Logger) SemanticValidator {
	return &semanticValidator{
		querier: querier,
		cfg:     cfg,
		lex:     lex,
		logger:  logger.Named("semantic-validator"),
	}
}

var _ SemanticValidator = (*semanticValidator)(nil)

func (v *semanticValidator) Validate(ctx context.Context, ref lakehouse.Ref, namespace string, mappings []models.ConceptMapping, tables []models.TableCandidate) ([]models.SemanticFinding, error) {
	var findings []models.SemanticFinding
	for _, m := range mappings {
		col, ok := m.Primary()
		if !ok {
			continue
		}
		f := models.SemanticFinding{
			Concept:  m.Concept.Name,
			Critical: m.Concept.Critical,
			Column:   col,
		}
		var err error
		switch m.Concept.Role {
		case models.ConceptRoleMetric:
			err = v.validateMetric(ctx, ref, namespace, m, &f)
		case models.ConceptRoleTime:
			err = v.validateTime(ctx, ref, namespace, &f)
		default:
			err = v.validateCategorical(ctx, ref, namespace, &f)
		}
		if err != nil {
			return nil, fmt.Errorf("validate %s: %w", m.Concept.Name, err)
		}
		findings = append(findings, f)
	}

	joins, err := v.validateJoins(ctx, ref, namespace, mappings, tables)
	if err != nil {
		return nil, err
	}
	findings = append(findings, joins...)

	v.logger.Info("semantic validation complete",
		zap.Int("findings", len(findings)),
		zap.Int("confirmed", len(models.FindingsByClass(findings, models.FindingConfirmed))),
		zap.Int("ambiguous", len(models.FindingsByClass(findings, models.FindingAmbiguous))),
		zap.Int("misaligned", len(models.FindingsByClass(findings, models.FindingMisaligned))))
	return findings, nil
}

func formatNumber(f float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.4f", f), "0"), ".")
}

func (v *semanticValidator) validateMetric(ctx context.Context, ref lakehouse.Ref, namespace string, m models.ConceptMapping, f *models.SemanticFinding) error {
	col := f.Column

	// Counting an entity only needs its keys to be present.
	if strings.HasPrefix(m.Transform, "COUNT(") || v.lex.IsKeyColumn(col.Column) {
		stats, err := v.querier.ColumnStats(ctx, ref, namespace, col.Table, col.Column)
		if err != nil {
			return err
		}
		f.Evidence = append(f.Evidence, fmt.Sprintf("%d distinct keys over %d rows", stats.DistinctCount, stats.RowCount))
		if stats.NonNullCount == 0 {
			f.Class = models.FindingMisaligned
			f.Reason = "key column has no values to count"
			return nil
		}
		f.Class = models.FindingConfirmed
		f.Reason = "keys present for counting"
		return nil
	}

	if col.Kind() != models.ColumnKindNumeric {
		f.Class = models.FindingMisaligned
		f.Reason = fmt.Sprintf("metric column is %s, not numeric", orUnknown(col.DataType))
		return nil
	}

	summary, err := v.querier.NumericSummary(ctx, ref, namespace, col.Table, col.Column)
	if err != nil {
		return err
	}
	f.Numeric = summary
	if summary.NonNullCount == 0 {
		f.Class = models.FindingMisaligned
		f.Reason = "metric column has no values"
		return nil
	}
	f.Evidence = append(f.Evidence, fmt.Sprintf("min %s, max %s, mean %s, %d distinct",
		formatNumber(summary.Min), formatNumber(summary.Max), formatNumber(summary.Mean), summary.DistinctCount))

	switch {
	case summary.Min < 0:
		f.Class = models.FindingAmbiguous
		f.Reason = "negative values present; refunds or credits may need excluding"
	case summary.DistinctCount == 1 && summary.NonNullCount > 1:
		f.Class = models.FindingAmbiguous
		f.Reason = "every row holds the same value"
	default:
		f.Class = models.FindingConfirmed
		f.Reason = "numeric values in a plausible range"
	}
	return nil
}

func (v *semanticValidator) validateCategorical(ctx context.Context, ref lakehouse.Ref, namespace string, f *models.SemanticFinding) error {
	col := f.Column
	stats, err := v.querier.ColumnStats(ctx, ref, namespace, col.Table, col.Column)
	if err != nil {
		return err
	}

	if v.lex.IsKeyColumn(col.Column) {
		f.Evidence = append(f.Evidence, fmt.Sprintf("%d distinct keys over %d rows", stats.DistinctCount, stats.RowCount))
	} else {
		top, err := v.querier.TopValues(ctx, ref, namespace, col.Table, col.Column, v.cfg.TopN)
		if err != nil {
			return err
		}
		f.TopValues = top
		f.Evidence = append(f.Evidence, fmt.Sprintf("%d distinct values; top: %s", stats.DistinctCount, formatTopValues(top)))
	}

	switch {
	case stats.NonNullCount == 0:
		f.Class = models.FindingMisaligned
		f.Reason = "column has no values"
	case stats.DistinctCount == 1:
		f.Class = models.FindingAmbiguous
		f.Reason = "a single distinct value cannot break results down"
	default:
		f.Class = models.FindingConfirmed
		f.Reason = fmt.Sprintf("%d distinct values", stats.DistinctCount)
	}
	return nil
}

func formatTopValues(top []models.ValueCount) string {
	if len(top) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(top))
	for _, vc := range top {
		parts = append(parts, fmt.Sprintf("%s (%d)", vc.Value, vc.Count))
	}
	return strings.Join(parts, ", ")
}

func (v *semanticValidator) validateTime(ctx context.Context, ref lakehouse.Ref, namespace string, f *models.SemanticFinding) error {
	col := f.Column

	if col.Kind() == models.ColumnKindTemporal {
		tr, err := v.querier.TimeRange(ctx, ref, namespace, col.Table, col.Column)
		if err != nil {
			return err
		}
		if tr.Min == nil || tr.Max == nil {
			f.Class = models.FindingMisaligned
			f.Reason = "time column has no values"
			return nil
		}
		f.Class = models.FindingConfirmed
		f.Reason = "temporal column"
		f.Evidence = append(f.Evidence, fmt.Sprintf("spans %s to %s", monthLabel(*tr.Min), monthLabel(*tr.Max)))
		return nil
	}

	samples, err := v.querier.TopValues(ctx, ref, namespace, col.Table, col.Column, v.cfg.TopN)
	if err != nil {
		return err
	}
	f.TopValues = samples
	for _, s := range samples {
		if _, err := lakehouse.ParseTime(s.Value); err != nil {
			f.Class = models.FindingMisaligned
			f.Reason = fmt.Sprintf("%s column holds values that are not timestamps", orUnknown(col.DataType))
			f.Evidence = append(f.Evidence, fmt.Sprintf("unparseable sample %q", s.Value))
			return nil
		}
	}
	if len(samples) == 0 {
		f.Class = models.FindingMisaligned
		f.Reason = "time column has no values"
		return nil
	}
	f.Class = models.FindingConfirmed
	f.Reason = fmt.Sprintf("%s column parses as timestamps; cast before filtering", orUnknown(col.DataType))
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "of unknown type"
	}
	return s
}

// joinFindingPrefix marks findings that describe a join rather than a column.
const joinFindingPrefix = "join "

// joinPath is a key pair linking the metric's table to another table.
type joinPath struct {
	left, right models.ColumnRef
}

// findJoin looks for a foreign key on either side pointing at the other
// table's identity column, then for a shared key column name.
func (v *semanticValidator) findJoin(from, to *models.TableCandidate) (joinPath, bool) {
	refersTo := func(src, dst *models.TableCandidate) (joinPath, bool) {
		id, ok := dst.Column("id")
		if !ok {
			return joinPath{}, false
		}
		dstTerms := []string{lexicon.Normalize(dst.Name)}
		for _, col := range src.Columns {
			entity := v.lex.KeyEntity(col.Name)
			if entity != "" && lexicon.MatchScore(entity, dstTerms) >= 3 {
				return joinPath{
					left:  models.ColumnRef{Table: src.Name, Column: col.Name, DataType: col.DataType},
					right: models.ColumnRef{Table: dst.Name, Column: id.Name, DataType: id.DataType},
				}, true
			}
		}
		return joinPath{}, false
	}

	if p, ok := refersTo(from, to); ok {
		return p, true
	}
	if p, ok := refersTo(to, from); ok {
		return p, true
	}
	for _, col := range from.Columns {
		if v.lex.KeyEntity(col.Name) == "" {
			continue
		}
		if other, ok := to.Column(col.Name); ok {
			return joinPath{
				left:  models.ColumnRef{Table: from.Name, Column: col.Name, DataType: col.DataType},
				right: models.ColumnRef{Table: to.Name, Column: other.Name, DataType: other.DataType},
			}, true
		}
	}
	return joinPath{}, false
}

func (v *semanticValidator) validateJoins(ctx context.Context, ref lakehouse.Ref, namespace string, mappings []models.ConceptMapping, tables []models.TableCandidate) ([]models.SemanticFinding, error) {
	var metricTable string
	for _, m := range mappings {
		if m.Concept.Role != models.ConceptRoleMetric {
			continue
		}
		if col, ok := m.Primary(); ok {
			metricTable = col.Table
		}
	}
	if metricTable == "" {
		return nil, nil
	}
	from, ok := models.FindTable(tables, metricTable)
	if !ok {
		return nil, nil
	}

	// One finding per joined table; it is critical if any concept it serves is.
	type target struct {
		concepts []string
		critical bool
	}
	targets := map[string]*target{}
	for _, m := range mappings {
		col, ok := m.Primary()
		if !ok || m.Concept.Role == models.ConceptRoleMetric || col.Table == metricTable {
			continue
		}
		t, ok := targets[col.Table]
		if !ok {
			t = &target{}
			targets[col.Table] = t
		}
		t.concepts = append(t.concepts, m.Concept.Name)
		t.critical = t.critical || m.Concept.Critical
	}

	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)

	var findings []models.SemanticFinding
	for _, name := range names {
		tgt := targets[name]
		f := models.SemanticFinding{
			Concept:  fmt.Sprintf("%s%s to %s (%s)", joinFindingPrefix, metricTable, name, strings.Join(tgt.concepts, ", ")),
			Critical: tgt.critical,
		}

		to, ok := models.FindTable(tables, name)
		var path joinPath
		if ok {
			path, ok = v.findJoin(from, to)
		}
		if !ok {
			f.Class = models.FindingAmbiguous
			f.Reason = fmt.Sprintf("no key links %s to %s", metricTable, name)
			f.Evidence = append(f.Evidence, fmt.Sprintf("no foreign key or shared key column between %s and %s", metricTable, name))
			findings = append(findings, f)
			continue
		}

		stats, err := v.querier.AnalyzeJoin(ctx, ref, namespace, path.left, path.right)
		if err != nil {
			return nil, fmt.Errorf("validate join %s: %w", name, err)
		}
		f.Column = path.left
		f.Join = stats
		f.Evidence = append(f.Evidence, fmt.Sprintf("%s = %s: %d of %d keys match (%s overlap, %s orphaned), max fanout %d",
			path.left, path.right, stats.MatchedKeys, stats.LeftKeys,
			formatPercent(stats.Overlap), formatPercent(stats.OrphanRate), stats.MaxFanout))

		switch {
		case stats.Overlap < v.cfg.JoinOverlapMisaligned:
			f.Class = models.FindingMisaligned
			f.Reason = fmt.Sprintf("only %s of keys match; the tables do not describe the same records", formatPercent(stats.Overlap))
		case stats.HasFanout():
			f.Class = models.FindingAmbiguous
			f.Reason = fmt.Sprintf("fanout of %d rows per key risks inflating aggregates", stats.MaxFanout)
		case stats.Overlap < v.cfg.JoinOverlapConfirmed:
			f.Class = models.FindingAmbiguous
			f.Reason = fmt.Sprintf("%s of keys match; orphaned rows would drop out of the join", formatPercent(stats.Overlap))
		default:
			f.Class = models.FindingConfirmed
			f.Reason = "keys line up one to one"
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// SemanticBlocker returns an ErrSemanticMisalignment blocker when a critical
// mapping or join is misaligned. It downgrades the verdict; it does not halt.
func SemanticBlocker(findings []models.SemanticFinding) error {
	var concepts []string
	var evidence []string
	for _, f := range models.FindingsByClass(findings, models.FindingMisaligned) {
		if !f.Critical {
			continue
		}
		concepts = append(concepts, f.Concept)
		evidence = append(evidence, fmt.Sprintf("%s: %s", f.Concept, f.Reason))
		evidence = append(evidence, f.Evidence...)
	}
	if len(concepts) == 0 {
		return nil
	}
	return apperrors.NewBlocker(apperrors.ErrSemanticMisalignment,
		fmt.Sprintf("misaligned: %s", strings.Join(concepts, ", "))).
		WithEvidence(evidence...).
		WithRemediation("choose a different column for the misaligned concept", "confirm the business definition with the data owner")
}
