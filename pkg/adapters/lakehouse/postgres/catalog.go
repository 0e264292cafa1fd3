package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse"
	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

const listColumnsQuery = `
	SELECT c.table_name, c.column_name, c.data_type, c.is_nullable = 'YES' AS is_nullable
	FROM information_schema.columns c
	JOIN information_schema.tables t
	  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
	WHERE c.table_schema = $1
	  AND t.table_type IN ('BASE TABLE', 'VIEW')
	ORDER BY c.table_name, c.ordinal_position
`

const tableColumnsQuery = `
	SELECT c.column_name, c.data_type, c.is_nullable = 'YES' AS is_nullable
	FROM information_schema.columns c
	WHERE c.table_schema = $1 AND c.table_name = $2
	ORDER BY c.ordinal_position
`

func namespaceOrDefault(namespace string) string {
	if namespace == "" {
		return defaultNamespace
	}
	return namespace
}

// ListTables returns every table and view in the namespace with its columns.
// Row counts are left at zero; GetTable computes them.
func (a *Adapter) ListTables(ctx context.Context, ref lakehouse.Ref, namespace string) ([]models.TableCandidate, error) {
	if ref.IsZero() {
		return nil, apperrors.ErrRefRequired
	}
	namespace = namespaceOrDefault(namespace)

	pool, err := a.pool(ctx, ref)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listColumnsQuery, namespace)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []models.TableCandidate
	index := make(map[string]int)
	for rows.Next() {
		var tableName string
		var col models.ColumnSchema
		if err := rows.Scan(&tableName, &col.Name, &col.DataType, &col.Nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		i, ok := index[tableName]
		if !ok {
			i = len(tables)
			index[tableName] = i
			tables = append(tables, models.TableCandidate{Namespace: namespace, Name: tableName})
		}
		tables[i].Columns = append(tables[i].Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	a.logger.Debug("listed tables",
		zap.String("ref", ref.String()),
		zap.String("namespace", namespace),
		zap.Int("tables", len(tables)))
	return tables, nil
}

// GetTable returns one table's schema and exact row count.
func (a *Adapter) GetTable(ctx context.Context, ref lakehouse.Ref, namespace, table string) (*models.TableCandidate, error) {
	if ref.IsZero() {
		return nil, apperrors.ErrRefRequired
	}
	namespace = namespaceOrDefault(namespace)

	pool, err := a.pool(ctx, ref)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, tableColumnsQuery, namespace, table)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	candidate := &models.TableCandidate{Namespace: namespace, Name: table}
	for rows.Next() {
		var col models.ColumnSchema
		if err := rows.Scan(&col.Name, &col.DataType, &col.Nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		candidate.Columns = append(candidate.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	if len(candidate.Columns) == 0 {
		return nil, fmt.Errorf("table %s.%s: %w", namespace, table, apperrors.ErrNotFound)
	}

	count, err := lakehouse.CountRows(ctx, a.guarded, a.dialect, ref, namespace, table)
	if err != nil {
		return nil, err
	}
	candidate.RowCount = count
	return candidate, nil
}
