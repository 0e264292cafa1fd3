package lakehouse

import (
	"database/sql"
	"fmt"
)

// ScanSQLRows reads at most maxRows rows from a database/sql result set into
// generic maps. The caller still owns rows and must close it.
func ScanSQLRows(rows *sql.Rows, maxRows int) (*QueryResult, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}

	columns := make([]ColumnInfo, len(columnTypes))
	for i, ct := range columnTypes {
		columns[i] = ColumnInfo{Name: ct.Name(), Type: ct.DatabaseTypeName()}
	}

	result := &QueryResult{Columns: columns, Rows: make([]map[string]any, 0)}
	for rows.Next() {
		if result.RowCount >= maxRows {
			break
		}

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col.Name] = values[i]
		}
		result.Rows = append(result.Rows, row)
		result.RowCount++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}
