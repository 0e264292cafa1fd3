package lakehouse

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	sqlguard "github.com/ekaya-inc/ekaya-assess/pkg/sql"
)

// BoundWithLimit bounds a query with a LIMIT clause (PostgreSQL, DuckDB).
// A query already carrying its own LIMIT is wrapped so the tighter bound wins.
func BoundWithLimit(sqlQuery string, maxRows int) string {
	q := strings.TrimSpace(sqlQuery)
	if !sqlguard.HasTopLevelLimit(q) && sqlguard.HasTopLevelOrderBy(q) {
		return fmt.Sprintf("%s LIMIT %d", q, maxRows)
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", q, maxRows)
}

// BoundWithFetch bounds a query with OFFSET/FETCH (SQL Server). CTEs cannot be
// wrapped in a derived table there, so an ORDER BY is synthesized instead.
func BoundWithFetch(sqlQuery string, maxRows int) string {
	q := strings.TrimSpace(sqlQuery)
	if sqlguard.HasTopLevelOrderBy(q) {
		return fmt.Sprintf("%s OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", q, maxRows)
	}
	return fmt.Sprintf("%s ORDER BY (SELECT NULL) OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", q, maxRows)
}

// ============================================================================
// PostgreSQL
// ============================================================================

// PostgresDialect renders SQL for PostgreSQL. Each ref is its own database,
// so tables are qualified by schema only.
type PostgresDialect struct{}

func (PostgresDialect) Name() string { return "postgres" }

func (PostgresDialect) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (PostgresDialect) QualifyTable(_ Ref, namespace, table string) string {
	if namespace == "" {
		return pgx.Identifier{table}.Sanitize()
	}
	return pgx.Identifier{namespace, table}.Sanitize()
}

func (PostgresDialect) Bound(sqlQuery string, maxRows int) string {
	return BoundWithLimit(sqlQuery, maxRows)
}

func (PostgresDialect) CastText(expr string) string  { return fmt.Sprintf("CAST(%s AS TEXT)", expr) }
func (PostgresDialect) CastFloat(expr string) string { return fmt.Sprintf("CAST(%s AS DOUBLE PRECISION)", expr) }

// ============================================================================
// SQL Server
// ============================================================================

// MSSQLDialect renders SQL for SQL Server. Refs map to databases on one
// server and tables use three-part names.
type MSSQLDialect struct {
	Databases map[string]string // ref -> database
}

func (MSSQLDialect) Name() string { return "mssql" }

func (MSSQLDialect) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (d MSSQLDialect) QualifyTable(ref Ref, namespace, table string) string {
	if namespace == "" {
		namespace = "dbo"
	}
	qualified := d.QuoteIdentifier(namespace) + "." + d.QuoteIdentifier(table)
	if db, ok := d.Databases[ref.String()]; ok && db != "" {
		return d.QuoteIdentifier(db) + "." + qualified
	}
	return qualified
}

func (MSSQLDialect) Bound(sqlQuery string, maxRows int) string {
	return BoundWithFetch(sqlQuery, maxRows)
}

func (MSSQLDialect) CastText(expr string) string  { return fmt.Sprintf("CAST(%s AS NVARCHAR(4000))", expr) }
func (MSSQLDialect) CastFloat(expr string) string { return fmt.Sprintf("CAST(%s AS FLOAT)", expr) }

// ============================================================================
// DuckDB
// ============================================================================

// DuckDBDialect renders SQL for DuckDB. Each ref is its own database file.
type DuckDBDialect struct{}

func (DuckDBDialect) Name() string { return "duckdb" }

func (DuckDBDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d DuckDBDialect) QualifyTable(_ Ref, namespace, table string) string {
	if namespace == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(namespace) + "." + d.QuoteIdentifier(table)
}

func (DuckDBDialect) Bound(sqlQuery string, maxRows int) string {
	return BoundWithLimit(sqlQuery, maxRows)
}

func (DuckDBDialect) CastText(expr string) string  { return fmt.Sprintf("CAST(%s AS VARCHAR)", expr) }
func (DuckDBDialect) CastFloat(expr string) string { return fmt.Sprintf("CAST(%s AS DOUBLE)", expr) }

var (
	_ Dialect = PostgresDialect{}
	_ Dialect = MSSQLDialect{}
	_ Dialect = DuckDBDialect{}
)
