package models

import (
	"fmt"
	"strings"
)

// ============================================================================
// Table Disposition
// ============================================================================

// Disposition is the triage classification assigned to a candidate table.
type Disposition string

const (
	DispositionStrongCandidate Disposition = "strong_candidate"
	DispositionWeakCandidate   Disposition = "weak_candidate"
	DispositionNotRelevant     Disposition = "not_relevant"
	DispositionSelected        Disposition = "selected"
	DispositionConsidered      Disposition = "considered"
)

// ValidDispositions contains all valid disposition values.
var ValidDispositions = []Disposition{
	DispositionStrongCandidate,
	DispositionWeakCandidate,
	DispositionNotRelevant,
	DispositionSelected,
	DispositionConsidered,
}

// IsValidDisposition checks if the given disposition is valid.
func IsValidDisposition(d Disposition) bool {
	for _, v := range ValidDispositions {
		if v == d {
			return true
		}
	}
	return false
}

// IsCandidate returns true for dispositions produced by triage that can be selected.
func (d Disposition) IsCandidate() bool {
	return d == DispositionStrongCandidate || d == DispositionWeakCandidate
}

// IsFinal returns true once a disposition has been frozen by confirmation.
func (d Disposition) IsFinal() bool {
	return d == DispositionSelected || d == DispositionConsidered || d == DispositionNotRelevant
}

// Label returns the upper-case label used in reports.
func (d Disposition) Label() string {
	return strings.ToUpper(strings.ReplaceAll(string(d), "_", " "))
}

// ============================================================================
// Column Kind
// ============================================================================

// ColumnKind is a coarse classification of a column's data type.
type ColumnKind string

const (
	ColumnKindNumeric  ColumnKind = "numeric"
	ColumnKindTemporal ColumnKind = "temporal"
	ColumnKindText     ColumnKind = "text"
	ColumnKindBoolean  ColumnKind = "boolean"
	ColumnKindOther    ColumnKind = "other"
)

// ClassifyDataType maps a database type name to a ColumnKind.
// Handles PostgreSQL, SQL Server and DuckDB spellings.
func ClassifyDataType(dataType string) ColumnKind {
	t := strings.ToLower(strings.TrimSpace(dataType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch {
	case t == "":
		return ColumnKindOther
	case strings.HasPrefix(t, "timestamp"), strings.HasPrefix(t, "datetime"),
		t == "date", t == "smalldatetime", t == "time", strings.HasPrefix(t, "time with"):
		return ColumnKindTemporal
	case t == "boolean", t == "bool", t == "bit":
		return ColumnKindBoolean
	case strings.Contains(t, "int"), t == "numeric", t == "decimal", t == "real",
		strings.HasPrefix(t, "double"), t == "float", t == "float4", t == "float8",
		t == "money", t == "smallmoney", t == "hugeint", t == "ubigint":
		return ColumnKindNumeric
	case strings.Contains(t, "char"), t == "text", t == "string", t == "uuid",
		t == "uniqueidentifier", t == "varchar", t == "citext", t == "ntext":
		return ColumnKindText
	default:
		return ColumnKindOther
	}
}

// ============================================================================
// Table Candidate
// ============================================================================

// ColumnSchema describes one column of a lakehouse table.
type ColumnSchema struct {
	Name     string `json:"name" yaml:"name"`
	DataType string `json:"data_type" yaml:"type"`
	Nullable bool   `json:"nullable" yaml:"nullable"`
}

// Kind returns the column's coarse type classification.
func (c ColumnSchema) Kind() ColumnKind {
	return ClassifyDataType(c.DataType)
}

// TableCandidate is a table discovered in the target namespace.
// Disposition and Reason are filled in by triage and frozen on confirmation.
type TableCandidate struct {
	Namespace       string         `json:"namespace"`
	Name            string         `json:"name"`
	RowCount        int64          `json:"row_count"`
	Columns         []ColumnSchema `json:"columns"`
	Disposition     Disposition    `json:"disposition,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	MatchedConcepts []string       `json:"matched_concepts,omitempty"`
}

// QualifiedName returns namespace.table.
func (t *TableCandidate) QualifiedName() string {
	if t.Namespace == "" {
		return t.Name
	}
	return fmt.Sprintf("%s.%s", t.Namespace, t.Name)
}

// Column looks up a column by name (case-insensitive).
func (t *TableCandidate) Column(name string) (ColumnSchema, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return ColumnSchema{}, false
}

// TemporalColumns returns the table's date/time columns in schema order.
func (t *TableCandidate) TemporalColumns() []ColumnSchema {
	var cols []ColumnSchema
	for _, c := range t.Columns {
		if c.Kind() == ColumnKindTemporal {
			cols = append(cols, c)
		}
	}
	return cols
}

// FindTable returns the table with the given name from a list.
func FindTable(tables []TableCandidate, name string) (*TableCandidate, bool) {
	for i := range tables {
		if strings.EqualFold(tables[i].Name, name) {
			return &tables[i], true
		}
	}
	return nil, false
}
