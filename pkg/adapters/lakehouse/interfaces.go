// Package lakehouse defines the read-only boundary to the data being assessed.
// Every call names its ref explicitly; there is no ambient current branch.
package lakehouse

import (
	"context"
	"time"

	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

// MaxQueryLimit is the hard cap on rows returned by RunQuery.
const MaxQueryLimit = 1000

// Ref identifies an immutable data snapshot (branch or commit) to query against.
type Ref string

func (r Ref) String() string { return string(r) }

// IsZero returns true if no ref was given.
func (r Ref) IsZero() bool { return r == "" }

// Catalog discovers refs, tables and schemas.
type Catalog interface {
	// HasRef reports whether the ref exists. It never falls back to a default.
	HasRef(ctx context.Context, ref Ref) (bool, error)

	// ListTables returns every table in the namespace at ref. Row counts and
	// columns may be left empty; GetTable fills them in.
	ListTables(ctx context.Context, ref Ref, namespace string) ([]models.TableCandidate, error)

	// GetTable returns the schema and exact row count of one table.
	GetTable(ctx context.Context, ref Ref, namespace, table string) (*models.TableCandidate, error)
}

// QueryRunner executes read-only SQL with an explicit ref and row bound.
type QueryRunner interface {
	// RunQuery runs a single SELECT against ref and returns at most maxRows rows.
	// Implementations must refuse an empty ref and a non-positive maxRows.
	RunQuery(ctx context.Context, ref Ref, sqlQuery string, maxRows int) (*QueryResult, error)
}

// StatsQuerier computes the aggregate statistics used by profiling and validation.
// Every method issues aggregate or explicitly bounded queries only.
type StatsQuerier interface {
	ColumnStats(ctx context.Context, ref Ref, namespace, table, column string) (*ColumnStats, error)
	TimeRange(ctx context.Context, ref Ref, namespace, table, column string) (*TimeRange, error)
	TopValues(ctx context.Context, ref Ref, namespace, table, column string, n int) ([]models.ValueCount, error)
	NumericSummary(ctx context.Context, ref Ref, namespace, table, column string) (*models.NumericSummary, error)
	AnalyzeJoin(ctx context.Context, ref Ref, namespace string, left, right models.ColumnRef) (*models.JoinStats, error)
}

// Source bundles everything the assessment workflow needs from a lakehouse.
type Source interface {
	Catalog
	StatsQuerier

	// Type returns the adapter type for logging.
	Type() string

	// Close releases the adapter (pools owned by a PoolManager stay open).
	Close() error
}

// Dialect renders the SQL fragments that differ between engines.
type Dialect interface {
	Name() string

	// QuoteIdentifier safely quotes a table, column or schema name.
	QuoteIdentifier(name string) string

	// QualifyTable returns the fully quoted table reference for ref and namespace.
	QualifyTable(ref Ref, namespace, table string) string

	// Bound wraps or suffixes a SELECT so it returns at most maxRows rows.
	Bound(sqlQuery string, maxRows int) string

	// CastText and CastFloat render portable casts.
	CastText(expr string) string
	CastFloat(expr string) string
}

// ColumnInfo describes a result column.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryResult holds the results from executing a query.
type QueryResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// ColumnStats holds the completeness and cardinality of one column.
type ColumnStats struct {
	RowCount      int64 `json:"row_count"`
	NonNullCount  int64 `json:"non_null_count"`
	DistinctCount int64 `json:"distinct_count"`
}

// NullCount returns the number of null values.
func (s *ColumnStats) NullCount() int64 {
	return s.RowCount - s.NonNullCount
}

// NullRate returns the fraction of null values, or 0 for an empty table.
func (s *ColumnStats) NullRate() float64 {
	if s.RowCount == 0 {
		return 0
	}
	return float64(s.NullCount()) / float64(s.RowCount)
}

// TimeRange holds the earliest and latest value of a temporal column.
// Both are nil when the column has no non-null values.
type TimeRange struct {
	Min *time.Time `json:"min,omitempty"`
	Max *time.Time `json:"max,omitempty"`
}
