package duckdb

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

// ListTables returns every table and view in the schema with its columns.
func (a *Adapter) ListTables(ctx context.Context, ref lakehouse.Ref, namespace string) ([]models.TableCandidate, error) {
	db, err := a.db(ctx, ref)
	if err != nil {
		return nil, err
	}
	namespace = namespaceOrDefault(namespace)

	const query = `
		SELECT table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = ?
		ORDER BY table_name, ordinal_position
	`
	rows, err := db.QueryContext(ctx, query, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []models.TableCandidate
	index := make(map[string]int)
	for rows.Next() {
		var tableName, nullable string
		var col models.ColumnSchema
		if err := rows.Scan(&tableName, &col.Name, &col.DataType, &nullable); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Nullable = nullable == "YES"

		i, ok := index[tableName]
		if !ok {
			i = len(tables)
			index[tableName] = i
			tables = append(tables, models.TableCandidate{Namespace: namespace, Name: tableName})
		}
		tables[i].Columns = append(tables[i].Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}
	return tables, nil
}

// GetTable returns one table's schema and exact row count.
func (a *Adapter) GetTable(ctx context.Context, ref lakehouse.Ref, namespace, table string) (*models.TableCandidate, error) {
	db, err := a.db(ctx, ref)
	if err != nil {
		return nil, err
	}
	namespace = namespaceOrDefault(namespace)

	const query = `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`
	rows, err := db.QueryContext(ctx, query, namespace, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidate := &models.TableCandidate{Namespace: namespace, Name: table}
	for rows.Next() {
		var nullable string
		var col models.ColumnSchema
		if err := rows.Scan(&col.Name, &col.DataType, &nullable); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Nullable = nullable == "YES"
		candidate.Columns = append(candidate.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
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
