package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse"
	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

// StepResult is returned by every workflow operation. It describes the phase
// the session moved to, what input it awaits and any blocker.
type StepResult struct {
	SessionID uuid.UUID           `json:"session_id"`
	Phase     models.Phase        `json:"phase"`
	Awaiting  models.AwaitedInput `json:"awaiting,omitempty"`
	Message   string              `json:"message"`

	Ref       string `json:"ref,omitempty"`
	Namespace string `json:"namespace,omitempty"`

	Decomposition *models.Decomposition `json:"decomposition,omitempty"`
	Gaps          []models.Gap          `json:"gaps,omitempty"`
	Suggestions   []string              `json:"suggestions,omitempty"`

	Tables         []models.TableCandidate  `json:"tables,omitempty"`
	Mappings       []models.ConceptMapping  `json:"mappings,omitempty"`
	PendingChoices []models.ConceptMapping  `json:"pending_choices,omitempty"`
	Quality        []models.QualityRecord   `json:"quality,omitempty"`
	Findings       []models.SemanticFinding `json:"findings,omitempty"`

	Blocker     *apperrors.BlockerError   `json:"blocker,omitempty"`
	BlockerCode string                    `json:"blocker_code,omitempty"`
	Report      *models.FeasibilityReport `json:"report,omitempty"`
}

// assessmentSession holds the working entities of one assessment. Only the
// service mutates it, and only while holding mu.
type assessmentSession struct {
	mu sync.Mutex

	id        uuid.UUID
	createdAt time.Time
	phase     models.Phase
	awaiting  models.AwaitedInput
	message   string

	ref          lakehouse.Ref
	namespace    string
	refConfirmed bool

	dec         *models.Decomposition
	gaps        []models.Gap
	suggestions []string
	concepts    []models.Concept

	triage   *TriageResult
	tables   []models.TableCandidate
	mappings []models.ConceptMapping
	quality  []models.QualityRecord
	findings []models.SemanticFinding

	blocker *apperrors.BlockerError
	// haltedIn is the phase the blocker was raised in.
	haltedIn models.Phase
	report   *models.FeasibilityReport
}

func newAssessmentSession(now time.Time) *assessmentSession {
	return &assessmentSession{
		id:        uuid.New(),
		createdAt: now,
		phase:     models.PhaseDecomposition,
	}
}

func (s *assessmentSession) moveTo(phase models.Phase, awaiting models.AwaitedInput, message string) {
	s.phase = phase
	s.awaiting = awaiting
	s.message = message
	if phase != models.PhaseHalted {
		s.blocker = nil
		s.haltedIn = ""
	}
}

func (s *assessmentSession) halt(in models.Phase, blocker *apperrors.BlockerError) {
	s.haltedIn = in
	s.phase = models.PhaseHalted
	s.awaiting = models.AwaitNewInformation
	s.blocker = blocker
	s.message = "halted: " + blocker.Message
}

// resetFrom discards everything derived at or after phase, so re-entry
// re-runs the affected phase against fresh inputs.
func (s *assessmentSession) resetFrom(phase models.Phase) {
	switch phase {
	case models.PhaseDecomposition:
		s.concepts = nil
		fallthrough
	case models.PhaseTriage:
		s.triage = nil
		s.tables = nil
		fallthrough
	case models.PhaseAwaitingColumnChoice:
		s.mappings = nil
		fallthrough
	case models.PhaseQuality:
		s.quality = nil
		fallthrough
	case models.PhaseSemantic:
		s.findings = nil
		fallthrough
	default:
		s.report = nil
	}
}

// discard drops every working entity, keeping only the identity.
func (s *assessmentSession) discard() {
	s.ref, s.namespace, s.refConfirmed = "", "", false
	s.dec, s.gaps, s.suggestions = nil, nil, nil
	s.blocker, s.haltedIn = nil, ""
	s.resetFrom(models.PhaseDecomposition)
}

// result snapshots the session. Slices are copied so callers cannot reach
// the session's working state.
func (s *assessmentSession) result() *StepResult {
	r := &StepResult{
		SessionID:   s.id,
		Phase:       s.phase,
		Awaiting:    s.awaiting,
		Message:     s.message,
		Ref:         s.ref.String(),
		Namespace:   s.namespace,
		Gaps:        append([]models.Gap(nil), s.gaps...),
		Suggestions: append([]string(nil), s.suggestions...),
		Mappings:    append([]models.ConceptMapping(nil), s.mappings...),
		Quality:     append([]models.QualityRecord(nil), s.quality...),
		Findings:    append([]models.SemanticFinding(nil), s.findings...),
		Report:      s.report,
	}
	if s.dec != nil {
		r.Decomposition = copyDecomposition(s.dec)
	}
	switch {
	case s.tables != nil:
		r.Tables = append([]models.TableCandidate(nil), s.tables...)
	case s.triage != nil:
		r.Tables = append([]models.TableCandidate(nil), s.triage.Tables...)
	}
	if s.phase == models.PhaseAwaitingColumnChoice {
		r.PendingChoices = PendingChoices(s.mappings)
	}
	if s.blocker != nil {
		r.Blocker = s.blocker
		r.BlockerCode = s.blocker.Code()
	}
	return r
}
