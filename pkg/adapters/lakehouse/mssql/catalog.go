package mssql

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse"
	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

func namespaceOrDefault(namespace string) string {
	if namespace == "" {
		return defaultNamespace
	}
	return namespace
}

// ListTables returns every table and view in the namespace with its columns.
func (a *Adapter) ListTables(ctx context.Context, ref lakehouse.Ref, namespace string) ([]models.TableCandidate, error) {
	database, err := a.database(ref)
	if err != nil {
		return nil, err
	}
	namespace = namespaceOrDefault(namespace)

	db, err := a.open(ctx)
	if err != nil {
		return nil, err
	}

	catalog := a.dialect.QuoteIdentifier(database)
	query := fmt.Sprintf(`
		SELECT c.TABLE_NAME, c.COLUMN_NAME, c.DATA_TYPE, CASE WHEN c.IS_NULLABLE = 'YES' THEN 1 ELSE 0 END
		FROM %s.INFORMATION_SCHEMA.COLUMNS c
		JOIN %s.INFORMATION_SCHEMA.TABLES t
		  ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
		WHERE c.TABLE_SCHEMA = @p1
		  AND t.TABLE_TYPE IN ('BASE TABLE', 'VIEW')
		ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`, catalog, catalog)

	rows, err := db.QueryContext(ctx, query, namespace)
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
	return tables, nil
}

// GetTable returns one table's schema and exact row count.
func (a *Adapter) GetTable(ctx context.Context, ref lakehouse.Ref, namespace, table string) (*models.TableCandidate, error) {
	database, err := a.database(ref)
	if err != nil {
		return nil, err
	}
	namespace = namespaceOrDefault(namespace)

	db, err := a.open(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT COLUMN_NAME, DATA_TYPE, CASE WHEN IS_NULLABLE = 'YES' THEN 1 ELSE 0 END
		FROM %s.INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
		ORDER BY ORDINAL_POSITION`, a.dialect.QuoteIdentifier(database))

	rows, err := db.QueryContext(ctx, query, namespace, table)
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
