// Package memory serves lakehouse refs from in-process data. It backs
// fixture-driven demos and the workflow tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse"
	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

const adapterType = "memory"

// Table is one in-memory table. Row values use the same Go types drivers return.
type Table struct {
	Name    string                `yaml:"name"`
	Columns []models.ColumnSchema `yaml:"columns"`
	Rows    []map[string]any      `yaml:"rows"`
}

// Adapter is a Source over in-memory tables keyed by ref and namespace.
type Adapter struct {
	mu   sync.RWMutex
	refs map[string]map[string][]Table
}

// New creates an empty adapter.
func New() *Adapter {
	return &Adapter{refs: make(map[string]map[string][]Table)}
}

// AddRef registers a ref with no tables.
func (a *Adapter) AddRef(ref string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.refs[ref]; !ok {
		a.refs[ref] = make(map[string][]Table)
	}
}

// AddTable adds or replaces a table, creating the ref if needed.
func (a *Adapter) AddTable(ref, namespace string, table Table) {
	a.mu.Lock()
	defer a.mu.Unlock()
	namespaces, ok := a.refs[ref]
	if !ok {
		namespaces = make(map[string][]Table)
		a.refs[ref] = namespaces
	}
	tables := namespaces[namespace]
	for i := range tables {
		if tables[i].Name == table.Name {
			tables[i] = table
			return
		}
	}
	namespaces[namespace] = append(tables, table)
}

// Type returns the adapter type.
func (a *Adapter) Type() string { return adapterType }

// Close is a no-op.
func (a *Adapter) Close() error { return nil }

// HasRef reports whether the ref was registered.
func (a *Adapter) HasRef(_ context.Context, ref lakehouse.Ref) (bool, error) {
	if ref.IsZero() {
		return false, apperrors.ErrRefRequired
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.refs[ref.String()]
	return ok, nil
}

func (a *Adapter) namespace(ref lakehouse.Ref, namespace string) ([]Table, error) {
	if ref.IsZero() {
		return nil, apperrors.ErrRefRequired
	}
	namespaces, ok := a.refs[ref.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrRefNotFound, ref)
	}
	return namespaces[namespace], nil
}

func (a *Adapter) table(ref lakehouse.Ref, namespace, name string) (*Table, error) {
	tables, err := a.namespace(ref, namespace)
	if err != nil {
		return nil, err
	}
	for i := range tables {
		if tables[i].Name == name {
			return &tables[i], nil
		}
	}
	return nil, fmt.Errorf("table %s.%s: %w", namespace, name, apperrors.ErrNotFound)
}

// ListTables returns the namespace's tables sorted by name.
func (a *Adapter) ListTables(_ context.Context, ref lakehouse.Ref, namespace string) ([]models.TableCandidate, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	tables, err := a.namespace(ref, namespace)
	if err != nil {
		return nil, err
	}

	result := make([]models.TableCandidate, 0, len(tables))
	for _, t := range tables {
		result = append(result, models.TableCandidate{
			Namespace: namespace,
			Name:      t.Name,
			Columns:   append([]models.ColumnSchema(nil), t.Columns...),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// GetTable returns one table with its row count.
func (a *Adapter) GetTable(_ context.Context, ref lakehouse.Ref, namespace, name string) (*models.TableCandidate, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, err := a.table(ref, namespace, name)
	if err != nil {
		return nil, err
	}
	return &models.TableCandidate{
		Namespace: namespace,
		Name:      t.Name,
		RowCount:  int64(len(t.Rows)),
		Columns:   append([]models.ColumnSchema(nil), t.Columns...),
	}, nil
}

// column returns the non-null values of a column.
func (a *Adapter) column(ref lakehouse.Ref, namespace, table, column string) (*Table, []any, error) {
	t, err := a.table(ref, namespace, table)
	if err != nil {
		return nil, nil, err
	}
	found := false
	for _, c := range t.Columns {
		if c.Name == column {
			found = true
			break
		}
	}
	if !found {
		return nil, nil, fmt.Errorf("column %s.%s: %w", table, column, apperrors.ErrNotFound)
	}

	var values []any
	for _, row := range t.Rows {
		if v, ok := row[column]; ok && v != nil {
			values = append(values, v)
		}
	}
	return t, values, nil
}

func key(v any) string {
	return lakehouse.ToString(v)
}

var _ lakehouse.Source = (*Adapter)(nil)
