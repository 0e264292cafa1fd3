package memory

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

// ColumnStats counts rows, non-null values and distinct values.
func (a *Adapter) ColumnStats(_ context.Context, ref lakehouse.Ref, namespace, table, column string) (*lakehouse.ColumnStats, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, values, err := a.column(ref, namespace, table, column)
	if err != nil {
		return nil, err
	}

	distinct := make(map[string]struct{}, len(values))
	for _, v := range values {
		distinct[key(v)] = struct{}{}
	}
	return &lakehouse.ColumnStats{
		RowCount:      int64(len(t.Rows)),
		NonNullCount:  int64(len(values)),
		DistinctCount: int64(len(distinct)),
	}, nil
}

// TimeRange returns the earliest and latest timestamp in a column.
func (a *Adapter) TimeRange(_ context.Context, ref lakehouse.Ref, namespace, table, column string) (*lakehouse.TimeRange, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	_, values, err := a.column(ref, namespace, table, column)
	if err != nil {
		return nil, err
	}

	tr := &lakehouse.TimeRange{}
	for _, v := range values {
		ts, err := lakehouse.ToTime(v)
		if err != nil {
			return nil, fmt.Errorf("time range %s.%s: %w", table, column, err)
		}
		if ts == nil {
			continue
		}
		if tr.Min == nil || ts.Before(*tr.Min) {
			tr.Min = ts
		}
		if tr.Max == nil || ts.After(*tr.Max) {
			tr.Max = ts
		}
	}
	return tr, nil
}

// TopValues returns the n most frequent values, ties broken by value.
func (a *Adapter) TopValues(_ context.Context, ref lakehouse.Ref, namespace, table, column string, n int) ([]models.ValueCount, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	_, values, err := a.column(ref, namespace, table, column)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	for _, v := range values {
		counts[key(v)]++
	}
	result := make([]models.ValueCount, 0, len(counts))
	for v, c := range counts {
		result = append(result, models.ValueCount{Value: v, Count: c})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Value < result[j].Value
	})
	if n > 0 && len(result) > n {
		result = result[:n]
	}
	return result, nil
}

// NumericSummary returns min, max, mean and distinct count of a column.
func (a *Adapter) NumericSummary(_ context.Context, ref lakehouse.Ref, namespace, table, column string) (*models.NumericSummary, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	_, values, err := a.column(ref, namespace, table, column)
	if err != nil {
		return nil, err
	}

	s := &models.NumericSummary{Min: math.Inf(1), Max: math.Inf(-1)}
	distinct := make(map[float64]struct{})
	var sum float64
	for _, v := range values {
		f, ok, err := lakehouse.ToFloat64(v)
		if err != nil {
			return nil, fmt.Errorf("numeric summary %s.%s: %w", table, column, err)
		}
		if !ok {
			continue
		}
		s.Min = math.Min(s.Min, f)
		s.Max = math.Max(s.Max, f)
		sum += f
		distinct[f] = struct{}{}
		s.NonNullCount++
	}
	if s.NonNullCount == 0 {
		return &models.NumericSummary{}, nil
	}
	s.Mean = sum / float64(s.NonNullCount)
	s.DistinctCount = int64(len(distinct))
	return s, nil
}

// AnalyzeJoin compares distinct left keys with right keys.
func (a *Adapter) AnalyzeJoin(_ context.Context, ref lakehouse.Ref, namespace string, left, right models.ColumnRef) (*models.JoinStats, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	_, leftValues, err := a.column(ref, namespace, left.Table, left.Column)
	if err != nil {
		return nil, err
	}
	_, rightValues, err := a.column(ref, namespace, right.Table, right.Column)
	if err != nil {
		return nil, err
	}

	rightCounts := make(map[string]int64)
	for _, v := range rightValues {
		rightCounts[key(v)]++
	}

	stats := &models.JoinStats{Left: left, Right: right}
	seen := make(map[string]struct{})
	for _, v := range leftValues {
		k := key(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		stats.LeftKeys++
		if n, ok := rightCounts[k]; ok {
			stats.MatchedKeys++
			if n > stats.MaxFanout {
				stats.MaxFanout = n
			}
		}
	}
	lakehouse.FinishJoinStats(stats)
	return stats, nil
}
