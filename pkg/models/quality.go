package models

import "time"

// ============================================================================
// Grade
// ============================================================================

// Grade is the overall usability of a mapped column.
type Grade string

const (
	GradeUsable            Grade = "usable"
	GradeUsableWithCaveats Grade = "usable_with_caveats"
	GradeNotUsable         Grade = "not_usable"
)

// ValidGrades contains all valid grade values, best first.
var ValidGrades = []Grade{
	GradeUsable,
	GradeUsableWithCaveats,
	GradeNotUsable,
}

// IsValidGrade checks if the given grade is valid.
func IsValidGrade(g Grade) bool {
	for _, v := range ValidGrades {
		if v == g {
			return true
		}
	}
	return false
}

func (g Grade) rank() int {
	switch g {
	case GradeUsable:
		return 0
	case GradeUsableWithCaveats:
		return 1
	default:
		return 2
	}
}

// Worse returns the lower of two grades.
func Worse(a, b Grade) Grade {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// Label returns the human-readable grade.
func (g Grade) Label() string {
	switch g {
	case GradeUsable:
		return "Usable"
	case GradeUsableWithCaveats:
		return "Usable with caveats"
	case GradeNotUsable:
		return "Not usable"
	default:
		return string(g)
	}
}

// ============================================================================
// Quality Checks
// ============================================================================

// CheckName identifies one of the fixed quality checks.
type CheckName string

const (
	CheckFreshness    CheckName = "freshness"
	CheckCompleteness CheckName = "completeness"
	CheckVolume       CheckName = "volume"
	CheckKeyIntegrity CheckName = "key_integrity"
	CheckCoverage     CheckName = "coverage"
)

// AllChecks lists the checks in execution order.
var AllChecks = []CheckName{
	CheckFreshness,
	CheckCompleteness,
	CheckVolume,
	CheckKeyIntegrity,
	CheckCoverage,
}

// QualityCheck is the outcome of one check on one column.
type QualityCheck struct {
	Name   CheckName `json:"name"`
	Grade  Grade     `json:"grade"`
	Detail string    `json:"detail"`
}

// QualityRecord holds the profile of one mapped column.
type QualityRecord struct {
	Concept  string    `json:"concept"`
	Critical bool      `json:"critical"`
	Column   ColumnRef `json:"column"`

	RowCount      int64   `json:"row_count"`
	NullCount     int64   `json:"null_count"`
	NullRate      float64 `json:"null_rate"`
	DistinctCount int64   `json:"distinct_count"`
	IsJoinKey     bool    `json:"is_join_key,omitempty"`

	TimeColumn      string     `json:"time_column,omitempty"`
	MinTimestamp    *time.Time `json:"min_timestamp,omitempty"`
	MaxTimestamp    *time.Time `json:"max_timestamp,omitempty"`
	CoveredMonths   int        `json:"covered_months,omitempty"`
	RequestedMonths int        `json:"requested_months,omitempty"`

	Checks     []QualityCheck `json:"checks"`
	Grade      Grade          `json:"grade"`
	Deviations []string       `json:"deviations,omitempty"`
}

// Check returns the result of a named check.
func (q *QualityRecord) Check(name CheckName) (QualityCheck, bool) {
	for _, c := range q.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return QualityCheck{}, false
}

// FailedChecks returns the checks graded not usable.
func (q *QualityRecord) FailedChecks() []QualityCheck {
	var failed []QualityCheck
	for _, c := range q.Checks {
		if c.Grade == GradeNotUsable {
			failed = append(failed, c)
		}
	}
	return failed
}
