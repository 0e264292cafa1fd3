package models

// FindingClass is the semantic classification of a mapping.
type FindingClass string

const (
	FindingConfirmed  FindingClass = "confirmed"
	FindingAmbiguous  FindingClass = "ambiguous"
	FindingMisaligned FindingClass = "misaligned"
)

// ValidFindingClasses contains all valid finding classes.
var ValidFindingClasses = []FindingClass{
	FindingConfirmed,
	FindingAmbiguous,
	FindingMisaligned,
}

// IsValidFindingClass checks if the given class is valid.
func IsValidFindingClass(c FindingClass) bool {
	for _, v := range ValidFindingClasses {
		if v == c {
			return true
		}
	}
	return false
}

// ValueCount is one value of a categorical column with its frequency.
type ValueCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// NumericSummary describes the distribution of a numeric column.
type NumericSummary struct {
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	Mean          float64 `json:"mean"`
	DistinctCount int64   `json:"distinct_count"`
	NonNullCount  int64   `json:"non_null_count"`
}

// JoinStats describes how two key columns line up.
type JoinStats struct {
	Left  ColumnRef `json:"left"`
	Right ColumnRef `json:"right"`

	LeftKeys    int64   `json:"left_keys"`    // distinct non-null left keys
	MatchedKeys int64   `json:"matched_keys"` // distinct left keys found on the right
	Overlap     float64 `json:"overlap"`      // MatchedKeys / LeftKeys
	OrphanRate  float64 `json:"orphan_rate"`  // 1 - Overlap
	MaxFanout   int64   `json:"max_fanout"`   // max right rows per left key
}

// HasFanout returns true if a left key matches more than one right row.
func (j *JoinStats) HasFanout() bool {
	return j.MaxFanout > 1
}

// SemanticFinding classifies one mapping (or join) with its evidence.
type SemanticFinding struct {
	Concept   string          `json:"concept"`
	Critical  bool            `json:"critical"`
	Column    ColumnRef       `json:"column"`
	Class     FindingClass    `json:"class"`
	Reason    string          `json:"reason"`
	Evidence  []string        `json:"evidence,omitempty"`
	TopValues []ValueCount    `json:"top_values,omitempty"`
	Numeric   *NumericSummary `json:"numeric,omitempty"`
	Join      *JoinStats      `json:"join,omitempty"`
}

// FindingsByClass filters findings to a single class.
func FindingsByClass(findings []SemanticFinding, class FindingClass) []SemanticFinding {
	var out []SemanticFinding
	for _, f := range findings {
		if f.Class == class {
			out = append(out, f)
		}
	}
	return out
}
