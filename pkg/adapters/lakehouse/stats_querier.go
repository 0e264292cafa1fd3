package lakehouse

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

// SQLStatsQuerier implements StatsQuerier by issuing aggregate SQL through a QueryRunner.
type SQLStatsQuerier struct {
	runner  QueryRunner
	dialect Dialect
	logger  *zap.Logger
}

// NewSQLStatsQuerier creates a stats querier. runner should already be guarded.
func NewSQLStatsQuerier(runner QueryRunner, dialect Dialect, logger *zap.Logger) *SQLStatsQuerier {
	return &SQLStatsQuerier{
		runner:  runner,
		dialect: dialect,
		logger:  logger.Named("stats"),
	}
}

func (p *SQLStatsQuerier) single(ctx context.Context, ref Ref, query string) (map[string]any, error) {
	result, err := p.runner.RunQuery(ctx, ref, query, 1)
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return nil, fmt.Errorf("aggregate query returned no rows")
	}
	return result.Rows[0], nil
}

// ColumnStats returns row, non-null and distinct counts.
func (p *SQLStatsQuerier) ColumnStats(ctx context.Context, ref Ref, namespace, table, column string) (*ColumnStats, error) {
	col := p.dialect.QuoteIdentifier(column)
	query := fmt.Sprintf(
		"SELECT COUNT(*) AS row_count, COUNT(%s) AS non_null_count, COUNT(DISTINCT %s) AS distinct_count FROM %s",
		col, col, p.dialect.QualifyTable(ref, namespace, table),
	)

	row, err := p.single(ctx, ref, query)
	if err != nil {
		return nil, fmt.Errorf("column stats %s.%s: %w", table, column, err)
	}

	var s ColumnStats
	if s.RowCount, err = ToInt64(row["row_count"]); err != nil {
		return nil, fmt.Errorf("column stats row_count: %w", err)
	}
	if s.NonNullCount, err = ToInt64(row["non_null_count"]); err != nil {
		return nil, fmt.Errorf("column stats non_null_count: %w", err)
	}
	if s.DistinctCount, err = ToInt64(row["distinct_count"]); err != nil {
		return nil, fmt.Errorf("column stats distinct_count: %w", err)
	}

	p.logger.Debug("column stats",
		zap.String("table", table),
		zap.String("column", column),
		zap.Int64("row_count", s.RowCount),
		zap.Int64("non_null_count", s.NonNullCount),
		zap.Int64("distinct_count", s.DistinctCount))
	return &s, nil
}

// TimeRange returns MIN and MAX of a temporal column.
func (p *SQLStatsQuerier) TimeRange(ctx context.Context, ref Ref, namespace, table, column string) (*TimeRange, error) {
	col := p.dialect.QuoteIdentifier(column)
	query := fmt.Sprintf(
		"SELECT MIN(%s) AS min_value, MAX(%s) AS max_value FROM %s",
		col, col, p.dialect.QualifyTable(ref, namespace, table),
	)

	row, err := p.single(ctx, ref, query)
	if err != nil {
		return nil, fmt.Errorf("time range %s.%s: %w", table, column, err)
	}

	var tr TimeRange
	if tr.Min, err = ToTime(row["min_value"]); err != nil {
		return nil, fmt.Errorf("time range min: %w", err)
	}
	if tr.Max, err = ToTime(row["max_value"]); err != nil {
		return nil, fmt.Errorf("time range max: %w", err)
	}
	return &tr, nil
}

// TopValues returns the n most frequent non-null values with their counts.
func (p *SQLStatsQuerier) TopValues(ctx context.Context, ref Ref, namespace, table, column string, n int) ([]models.ValueCount, error) {
	col := p.dialect.QuoteIdentifier(column)
	query := fmt.Sprintf(
		"SELECT %s AS value, COUNT(*) AS value_count FROM %s WHERE %s IS NOT NULL GROUP BY %s ORDER BY value_count DESC, value ASC",
		p.dialect.CastText(col), p.dialect.QualifyTable(ref, namespace, table), col, p.dialect.CastText(col),
	)

	result, err := p.runner.RunQuery(ctx, ref, query, n)
	if err != nil {
		return nil, fmt.Errorf("top values %s.%s: %w", table, column, err)
	}

	values := make([]models.ValueCount, 0, len(result.Rows))
	for _, row := range result.Rows {
		count, err := ToInt64(row["value_count"])
		if err != nil {
			return nil, fmt.Errorf("top values count: %w", err)
		}
		values = append(values, models.ValueCount{Value: ToString(row["value"]), Count: count})
	}
	return values, nil
}

// NumericSummary returns min, max, mean and distinct count of a numeric column.
func (p *SQLStatsQuerier) NumericSummary(ctx context.Context, ref Ref, namespace, table, column string) (*models.NumericSummary, error) {
	col := p.dialect.QuoteIdentifier(column)
	f := p.dialect.CastFloat(col)
	query := fmt.Sprintf(
		"SELECT MIN(%s) AS min_value, MAX(%s) AS max_value, AVG(%s) AS mean_value, COUNT(DISTINCT %s) AS distinct_count, COUNT(%s) AS non_null_count FROM %s",
		f, f, f, col, col, p.dialect.QualifyTable(ref, namespace, table),
	)

	row, err := p.single(ctx, ref, query)
	if err != nil {
		return nil, fmt.Errorf("numeric summary %s.%s: %w", table, column, err)
	}

	var s models.NumericSummary
	if s.Min, _, err = ToFloat64(row["min_value"]); err != nil {
		return nil, fmt.Errorf("numeric summary min: %w", err)
	}
	if s.Max, _, err = ToFloat64(row["max_value"]); err != nil {
		return nil, fmt.Errorf("numeric summary max: %w", err)
	}
	if s.Mean, _, err = ToFloat64(row["mean_value"]); err != nil {
		return nil, fmt.Errorf("numeric summary mean: %w", err)
	}
	if s.DistinctCount, err = ToInt64(row["distinct_count"]); err != nil {
		return nil, fmt.Errorf("numeric summary distinct_count: %w", err)
	}
	if s.NonNullCount, err = ToInt64(row["non_null_count"]); err != nil {
		return nil, fmt.Errorf("numeric summary non_null_count: %w", err)
	}
	return &s, nil
}

// AnalyzeJoin measures how the left key column lines up with the right one:
// overlap of distinct left keys, and the largest number of right rows
// matching a single left key.
func (p *SQLStatsQuerier) AnalyzeJoin(ctx context.Context, ref Ref, namespace string, left, right models.ColumnRef) (*models.JoinStats, error) {
	lc := p.dialect.QuoteIdentifier(left.Column)
	rc := p.dialect.QuoteIdentifier(right.Column)
	query := fmt.Sprintf(`WITH l AS (
	SELECT DISTINCT %s AS k FROM %s WHERE %s IS NOT NULL
), r AS (
	SELECT %s AS k, COUNT(*) AS n FROM %s WHERE %s IS NOT NULL GROUP BY %s
)
SELECT
	(SELECT COUNT(*) FROM l) AS left_keys,
	(SELECT COUNT(*) FROM l JOIN r ON l.k = r.k) AS matched_keys,
	(SELECT COALESCE(MAX(r.n), 0) FROM l JOIN r ON l.k = r.k) AS max_fanout`,
		p.dialect.CastText(lc), p.dialect.QualifyTable(ref, namespace, left.Table), lc,
		p.dialect.CastText(rc), p.dialect.QualifyTable(ref, namespace, right.Table), rc, p.dialect.CastText(rc),
	)

	row, err := p.single(ctx, ref, query)
	if err != nil {
		return nil, fmt.Errorf("analyze join %s -> %s: %w", left, right, err)
	}

	stats := &models.JoinStats{Left: left, Right: right}
	if stats.LeftKeys, err = ToInt64(row["left_keys"]); err != nil {
		return nil, fmt.Errorf("analyze join left_keys: %w", err)
	}
	if stats.MatchedKeys, err = ToInt64(row["matched_keys"]); err != nil {
		return nil, fmt.Errorf("analyze join matched_keys: %w", err)
	}
	if stats.MaxFanout, err = ToInt64(row["max_fanout"]); err != nil {
		return nil, fmt.Errorf("analyze join max_fanout: %w", err)
	}
	FinishJoinStats(stats)
	return stats, nil
}

// FinishJoinStats derives overlap and orphan rate from the key counts.
func FinishJoinStats(stats *models.JoinStats) {
	if stats.LeftKeys > 0 {
		stats.Overlap = float64(stats.MatchedKeys) / float64(stats.LeftKeys)
	}
	stats.OrphanRate = 1 - stats.Overlap
	if stats.LeftKeys == 0 {
		stats.OrphanRate = 0
	}
}

var _ StatsQuerier = (*SQLStatsQuerier)(nil)

// CountRows returns the exact row count of a table.
func CountRows(ctx context.Context, runner QueryRunner, dialect Dialect, ref Ref, namespace, table string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) AS row_count FROM %s", dialect.QualifyTable(ref, namespace, table))
	result, err := runner.RunQuery(ctx, ref, query, 1)
	if err != nil {
		return 0, fmt.Errorf("count rows %s: %w", table, err)
	}
	if len(result.Rows) == 0 {
		return 0, nil
	}
	return ToInt64(result.Rows[0]["row_count"])
}
