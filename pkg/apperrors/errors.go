package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrSessionNotFound   = errors.New("assessment session not found")
	ErrInvalidPhase      = errors.New("operation not allowed in current phase")
	ErrReportExists      = errors.New("feasibility report already written")
	ErrRefRequired       = errors.New("explicit data ref is required")
	ErrRefNotFound       = errors.New("data ref does not exist")
	ErrUnboundedQuery    = errors.New("query must carry an explicit row bound")
	ErrReadOnlyViolation = errors.New("only read-only queries are permitted")

	// Workflow blockers. Each one is terminal for the current run and is only
	// cleared by the requester supplying new information.
	ErrInsufficientContext     = errors.New("insufficient context")
	ErrUnmappedCriticalConcept = errors.New("unmapped critical concept")
	ErrQualityBlocker          = errors.New("quality blocker")
	ErrSemanticMisalignment    = errors.New("semantic misalignment")
)

// BlockerError describes why the workflow halted. It unwraps to one of the
// blocker sentinels so callers can use errors.Is.
type BlockerError struct {
	Kind        error    `json:"-"`
	Message     string   `json:"message"`
	Evidence    []string `json:"evidence,omitempty"`
	Remediation []string `json:"remediation,omitempty"`
}

// NewBlocker creates a BlockerError of the given kind.
func NewBlocker(kind error, message string) *BlockerError {
	return &BlockerError{Kind: kind, Message: message}
}

// WithEvidence appends evidence lines and returns the receiver.
func (e *BlockerError) WithEvidence(evidence ...string) *BlockerError {
	e.Evidence = append(e.Evidence, evidence...)
	return e
}

// WithRemediation appends remediation suggestions and returns the receiver.
func (e *BlockerError) WithRemediation(remediation ...string) *BlockerError {
	e.Remediation = append(e.Remediation, remediation...)
	return e
}

func (e *BlockerError) Error() string {
	var b strings.Builder
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if len(e.Evidence) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Evidence, "; "))
	}
	return b.String()
}

func (e *BlockerError) Unwrap() error {
	return e.Kind
}

// Code returns a stable snake_case code for the blocker kind.
func (e *BlockerError) Code() string {
	return BlockerCode(e.Kind)
}

// BlockerCode maps a blocker sentinel to the code surfaced to clients.
func BlockerCode(kind error) string {
	switch {
	case errors.Is(kind, ErrInsufficientContext):
		return "insufficient_context"
	case errors.Is(kind, ErrUnmappedCriticalConcept):
		return "unmapped_critical_concept"
	case errors.Is(kind, ErrQualityBlocker):
		return "quality_blocker"
	case errors.Is(kind, ErrSemanticMisalignment):
		return "semantic_misalignment"
	case errors.Is(kind, ErrRefRequired):
		return "ref_required"
	case errors.Is(kind, ErrRefNotFound):
		return "ref_not_found"
	default:
		return "blocker"
	}
}

// AsBlocker extracts a BlockerError from err.
func AsBlocker(err error) (*BlockerError, bool) {
	var b *BlockerError
	if errors.As(err, &b) {
		return b, true
	}
	return nil, false
}
