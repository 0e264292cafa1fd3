package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse"
	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/config"
	"github.com/ekaya-inc/ekaya-assess/pkg/lexicon"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

// QualityProfiler runs the fixed quality checks against mapped columns.
type QualityProfiler interface {
	// Profile grades every chosen column. Unchosen or unmapped concepts are skipped.
	Profile(ctx context.Context, ref lakehouse.Ref, namespace string, dec *models.Decomposition, mappings []models.ConceptMapping) ([]models.QualityRecord, error)

	// ProfileColumn runs the five checks on one column. timeColumn, when set,
	// must be in the same table and drives freshness and coverage.
	ProfileColumn(ctx context.Context, ref lakehouse.Ref, namespace string, dec *models.Decomposition, mapping models.ConceptMapping, timeColumn *models.ColumnRef) (*models.QualityRecord, error)

	// Gate returns an ErrQualityBlocker when a critical concept's column is not usable.
	Gate(records []models.QualityRecord, mappings []models.ConceptMapping) error
}

type qualityProfiler struct {
	querier lakehouse.StatsQuerier
	cfg     config.QualityConfig
	lex     *lexicon.Lexicon
	now     func() time.Time
	logger  *zap.Logger
}

// NewQualityProfiler creates a profiler over a stats querier.
func NewQualityProfiler(querier lakehouse.StatsQuerier, cfg config.QualityConfig, lex *lexicon.Lexicon, now func() time.Time, logger *zap.Logger) QualityProfiler {
	if now == nil {
		now = time.Now
	}
	return &qualityProfiler{
		querier: querier,
		cfg:     cfg,
		lex:     lex,
		now:     now,
		logger:  logger.Named("quality-profiler"),
	}
}

var _ QualityProfiler = (*qualityProfiler)(nil)

func (p *qualityProfiler) Profile(ctx context.Context, ref lakehouse.Ref, namespace string, dec *models.Decomposition, mappings []models.ConceptMapping) ([]models.QualityRecord, error) {
	var timeCol *models.ColumnRef
	if tm, ok := models.FindMapping(mappings, TimeConcept); ok {
		if col, chosen := tm.Primary(); chosen {
			timeCol = &col
		}
	}

	var records []models.QualityRecord
	for _, m := range mappings {
		col, ok := m.Primary()
		if !ok {
			continue
		}
		var tc *models.ColumnRef
		if timeCol != nil && timeCol.Table == col.Table {
			tc = timeCol
		}
		record, err := p.ProfileColumn(ctx, ref, namespace, dec, m, tc)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}

func (p *qualityProfiler) ProfileColumn(ctx context.Context, ref lakehouse.Ref, namespace string, dec *models.Decomposition, mapping models.ConceptMapping, timeColumn *models.ColumnRef) (*models.QualityRecord, error) {
	col, ok := mapping.Primary()
	if !ok {
		return nil, fmt.Errorf("concept %q has no chosen column: %w", mapping.Concept.Name, apperrors.ErrInvalidPhase)
	}

	stats, err := p.querier.ColumnStats(ctx, ref, namespace, col.Table, col.Column)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", col, err)
	}

	record := &models.QualityRecord{
		Concept:       mapping.Concept.Name,
		Critical:      mapping.Concept.Critical,
		Column:        col,
		RowCount:      stats.RowCount,
		NullCount:     stats.NullCount(),
		NullRate:      stats.NullRate(),
		DistinctCount: stats.DistinctCount,
		IsJoinKey:     p.lex.IsKeyColumn(col.Column),
	}

	var tr *lakehouse.TimeRange
	if timeColumn != nil {
		record.TimeColumn = timeColumn.Column
		tr, err = p.querier.TimeRange(ctx, ref, namespace, timeColumn.Table, timeColumn.Column)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", timeColumn, err)
		}
		record.MinTimestamp = tr.Min
		record.MaxTimestamp = tr.Max
	}

	record.Checks = []models.QualityCheck{
		p.checkFreshness(tr),
		p.checkCompleteness(record),
		p.checkVolume(record),
		p.checkKeyIntegrity(record, stats),
		p.checkCoverage(record, dec, tr),
	}

	record.Grade = models.GradeUsable
	for _, c := range record.Checks {
		record.Grade = models.Worse(record.Grade, c.Grade)
		if c.Grade != models.GradeUsable {
			record.Deviations = append(record.Deviations, fmt.Sprintf("%s on %s %s: %s", c.Name, mapping.Concept.Role, mapping.Concept.Name, c.Detail))
		}
	}

	p.logger.Debug("profiled column",
		zap.String("column", col.String()),
		zap.String("grade", string(record.Grade)),
		zap.Float64("null_rate", record.NullRate),
		zap.Int64("rows", record.RowCount))
	return record, nil
}

func (p *qualityProfiler) checkFreshness(tr *lakehouse.TimeRange) models.QualityCheck {
	check := models.QualityCheck{Name: models.CheckFreshness, Grade: models.GradeUsable}
	switch {
	case tr == nil:
		check.Detail = "n/a (no time column in this table)"
	case tr.Max == nil:
		check.Grade = models.GradeNotUsable
		check.Detail = "time column has no values"
	default:
		check.Detail = "latest " + tr.Max.UTC().Format(time.RFC3339)
		if p.cfg.MaxStalenessHours > 0 {
			age := p.now().Sub(*tr.Max)
			if age > time.Duration(p.cfg.MaxStalenessHours)*time.Hour {
				check.Grade = models.GradeUsableWithCaveats
				check.Detail = fmt.Sprintf("latest %s is %.0f hours old (limit %d)",
					tr.Max.UTC().Format(time.RFC3339), age.Hours(), p.cfg.MaxStalenessHours)
			}
		}
	}
	return check
}

// checkCompleteness grades the null rate. A rate strictly above the not-usable
// threshold fails; a rate exactly at it is a caveat.
func (p *qualityProfiler) checkCompleteness(r *models.QualityRecord) models.QualityCheck {
	check := models.QualityCheck{
		Name:   models.CheckCompleteness,
		Grade:  models.GradeUsable,
		Detail: fmt.Sprintf("%s null", formatPercent(r.NullRate)),
	}
	switch {
	case r.RowCount == 0:
		check.Detail = "n/a (no rows)"
	case r.NullRate > p.cfg.NotUsableNullRate:
		check.Grade = models.GradeNotUsable
		check.Detail = fmt.Sprintf("%s null (limit %s)", formatPercent(r.NullRate), formatPercent(p.cfg.NotUsableNullRate))
	case r.NullRate > p.cfg.CaveatNullRate:
		check.Grade = models.GradeUsableWithCaveats
	}
	return check
}

func (p *qualityProfiler) checkVolume(r *models.QualityRecord) models.QualityCheck {
	check := models.QualityCheck{
		Name:   models.CheckVolume,
		Grade:  models.GradeUsable,
		Detail: fmt.Sprintf("%d rows", r.RowCount),
	}
	if r.RowCount < p.cfg.MinRowCount {
		check.Grade = models.GradeNotUsable
		check.Detail = fmt.Sprintf("%d rows (minimum %d)", r.RowCount, p.cfg.MinRowCount)
	}
	return check
}

func (p *qualityProfiler) checkKeyIntegrity(r *models.QualityRecord, stats *lakehouse.ColumnStats) models.QualityCheck {
	check := models.QualityCheck{Name: models.CheckKeyIntegrity, Grade: models.GradeUsable}
	if !r.IsJoinKey {
		check.Detail = "n/a (not a key column)"
		return check
	}

	var issues []string
	if r.NullCount > 0 {
		issues = append(issues, fmt.Sprintf("%d null keys", r.NullCount))
	}
	// A table's own identity column must be unique; foreign keys may repeat.
	if strings.EqualFold(r.Column.Column, "id") && stats.DistinctCount < stats.NonNullCount {
		issues = append(issues, fmt.Sprintf("%d duplicate keys", stats.NonNullCount-stats.DistinctCount))
	}
	if len(issues) == 0 {
		check.Detail = fmt.Sprintf("%d distinct, no nulls", r.DistinctCount)
		return check
	}
	check.Grade = models.GradeUsableWithCaveats
	check.Detail = strings.Join(issues, ", ")
	return check
}

func monthLabel(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func (p *qualityProfiler) checkCoverage(r *models.QualityRecord, dec *models.Decomposition, tr *lakehouse.TimeRange) models.QualityCheck {
	check := models.QualityCheck{Name: models.CheckCoverage, Grade: models.GradeUsable}
	scope := dec.TimeScope

	switch {
	case tr == nil:
		check.Detail = "n/a (no time column in this table)"
		return check
	case tr.Min == nil || tr.Max == nil:
		check.Grade = models.GradeNotUsable
		check.Detail = "no timestamps to measure coverage"
		return check
	case !scope.IsBounded():
		check.Detail = fmt.Sprintf("data spans %s to %s; no period requested", monthLabel(*tr.Min), monthLabel(*tr.Max))
		return check
	}

	requested := scope.Months()
	start, end := *scope.Start, *scope.End
	lastRequested := end.Add(-time.Nanosecond)

	overlapStart := *tr.Min
	if start.After(overlapStart) {
		overlapStart = start
	}
	overlapEnd := tr.Max.Add(time.Nanosecond)
	if end.Before(overlapEnd) {
		overlapEnd = end
	}
	covered := 0
	if overlapEnd.After(overlapStart) {
		covered = models.MonthsBetween(overlapStart, overlapEnd)
	}

	r.CoveredMonths = covered
	r.RequestedMonths = requested

	fraction := 0.0
	if requested > 0 {
		fraction = float64(covered) / float64(requested)
	}
	check.Detail = fmt.Sprintf("data covers %d of %d requested months (data %s to %s; requested %s to %s)",
		covered, requested, monthLabel(*tr.Min), monthLabel(*tr.Max), monthLabel(start), monthLabel(lastRequested))

	switch {
	case fraction >= p.cfg.FullCoverage:
	case fraction < p.cfg.NotUsableCoverage:
		check.Grade = models.GradeNotUsable
	default:
		check.Grade = models.GradeUsableWithCaveats
	}
	return check
}

func formatPercent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

func (p *qualityProfiler) Gate(records []models.QualityRecord, mappings []models.ConceptMapping) error {
	var failing []string
	var evidence []string
	var remediation []string

	for _, r := range records {
		if !r.Critical || r.Grade != models.GradeNotUsable {
			continue
		}
		failing = append(failing, fmt.Sprintf("%s (%s)", r.Column, r.Concept))
		for _, c := range r.FailedChecks() {
			evidence = append(evidence, fmt.Sprintf("%s %s: %s", r.Column, c.Name, c.Detail))
			switch c.Name {
			case models.CheckCoverage:
				if r.MinTimestamp != nil && r.MaxTimestamp != nil {
					remediation = append(remediation, fmt.Sprintf("narrow the time scope to %s..%s where %s has data",
						monthLabel(*r.MinTimestamp), monthLabel(*r.MaxTimestamp), r.Column.Table))
				}
			case models.CheckCompleteness, models.CheckVolume, models.CheckFreshness:
				if m, ok := models.FindMapping(mappings, r.Concept); ok {
					for _, cand := range m.Candidates {
						if cand.ColumnRef != r.Column {
							remediation = append(remediation, fmt.Sprintf("use alternate column %s for %s", cand.String(), r.Concept))
						}
					}
				}
			}
		}
	}
	if len(failing) == 0 {
		return nil
	}

	p.logger.Info("quality gate failed", zap.Strings("columns", failing))
	remediation = append(remediation, "ask the data owner to backfill or repair the source")
	return apperrors.NewBlocker(apperrors.ErrQualityBlocker,
		fmt.Sprintf("not usable: %s", strings.Join(failing, ", "))).
		WithEvidence(evidence...).
		WithRemediation(remediation...)
}
