package models

import (
	"time"

	"github.com/google/uuid"
)

// Verdict is the final feasibility classification.
type Verdict string

const (
	VerdictAnswerable          Verdict = "answerable"
	VerdictPartiallyAnswerable Verdict = "partially_answerable"
	VerdictNotAnswerable       Verdict = "not_answerable"
)

// ValidVerdicts contains all valid verdict values.
var ValidVerdicts = []Verdict{
	VerdictAnswerable,
	VerdictPartiallyAnswerable,
	VerdictNotAnswerable,
}

// IsValidVerdict checks if the given verdict is valid.
func IsValidVerdict(v Verdict) bool {
	for _, x := range ValidVerdicts {
		if x == v {
			return true
		}
	}
	return false
}

// Label returns the upper-case verdict used in the report heading.
func (v Verdict) Label() string {
	switch v {
	case VerdictAnswerable:
		return "ANSWERABLE"
	case VerdictPartiallyAnswerable:
		return "PARTIALLY ANSWERABLE"
	case VerdictNotAnswerable:
		return "NOT ANSWERABLE"
	default:
		return string(v)
	}
}

// FeasibilityReport is the terminal artifact of an assessment.
// Markdown is rendered once and never changes afterwards.
type FeasibilityReport struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Ref       string    `json:"ref"`
	Namespace string    `json:"namespace"`

	Question      string            `json:"question"`
	Decomposition Decomposition     `json:"decomposition"`
	Verdict       Verdict           `json:"verdict"`
	Reason        string            `json:"reason"`
	Tables        []TableCandidate  `json:"tables"`
	Mappings      []ConceptMapping  `json:"mappings"`
	Quality       []QualityRecord   `json:"quality"`
	Findings      []SemanticFinding `json:"findings"`
	JoinStrategy  []string          `json:"join_strategy,omitempty"`
	Assumptions   []string          `json:"assumptions,omitempty"`
	Caveats       []string          `json:"caveats,omitempty"`
	NextSteps     []string          `json:"next_steps,omitempty"`

	Markdown  string    `json:"markdown"`
	CreatedAt time.Time `json:"created_at"`
}

// ReportSummary is the listing form of a stored report.
type ReportSummary struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Question  string    `json:"question"`
	Verdict   Verdict   `json:"verdict"`
	Ref       string    `json:"ref"`
	CreatedAt time.Time `json:"created_at"`
}
