package models

import "fmt"

// ConceptRole is the part a business concept plays in the question.
type ConceptRole string

const (
	ConceptRoleMetric    ConceptRole = "metric"
	ConceptRoleDimension ConceptRole = "dimension"
	ConceptRoleTime      ConceptRole = "time"
	ConceptRoleFilter    ConceptRole = "filter"
)

// Concept is a business term that must be located in the data.
// Terms are the normalized search tokens (the name plus lexicon synonyms).
type Concept struct {
	Name     string      `json:"name"`
	Role     ConceptRole `json:"role"`
	Critical bool        `json:"critical"`
	Terms    []string    `json:"terms,omitempty"`
}

// ColumnRef identifies a column in a table.
type ColumnRef struct {
	Table    string `json:"table"`
	Column   string `json:"column"`
	DataType string `json:"data_type,omitempty"`
}

// String returns table.column.
func (c ColumnRef) String() string {
	return fmt.Sprintf("%s.%s", c.Table, c.Column)
}

// IsZero returns true if the reference is unset.
func (c ColumnRef) IsZero() bool {
	return c.Table == "" && c.Column == ""
}

// Kind returns the coarse type classification of the referenced column.
func (c ColumnRef) Kind() ColumnKind {
	return ClassifyDataType(c.DataType)
}

// ColumnCandidate is one column that could serve a concept.
type ColumnCandidate struct {
	ColumnRef
	Reason string `json:"reason"`
	Score  int    `json:"score"`
}

// ConceptMapping links a concept to every column that could serve it.
// Chosen is set automatically only when exactly one candidate exists;
// otherwise it stays false until the requester picks a column.
type ConceptMapping struct {
	Concept      Concept           `json:"concept"`
	Candidates   []ColumnCandidate `json:"candidates"`
	Chosen       bool              `json:"chosen"`
	ChosenColumn ColumnRef         `json:"chosen_column,omitempty"`
	Transform    string            `json:"transform,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	Alternatives []string          `json:"alternatives,omitempty"`
}

// IsMapped returns true if at least one candidate column exists.
func (m *ConceptMapping) IsMapped() bool {
	return len(m.Candidates) > 0
}

// NeedsChoice returns true if several columns compete and none has been picked.
func (m *ConceptMapping) NeedsChoice() bool {
	return len(m.Candidates) > 1 && !m.Chosen
}

// Primary returns the column backing the concept, if one has been chosen.
func (m *ConceptMapping) Primary() (ColumnRef, bool) {
	if !m.Chosen {
		return ColumnRef{}, false
	}
	return m.ChosenColumn, true
}

// CandidateFor finds a candidate by table and column name.
func (m *ConceptMapping) CandidateFor(table, column string) (ColumnCandidate, bool) {
	for _, c := range m.Candidates {
		if c.Table == table && c.Column == column {
			return c, true
		}
	}
	return ColumnCandidate{}, false
}

// FindMapping returns the mapping for a concept name.
func FindMapping(mappings []ConceptMapping, concept string) (*ConceptMapping, bool) {
	for i := range mappings {
		if mappings[i].Concept.Name == concept {
			return &mappings[i], true
		}
	}
	return nil, false
}
