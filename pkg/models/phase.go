package models

// ============================================================================
// Assessment Phase
// ============================================================================

// Phase is the state of an assessment session.
type Phase string

const (
	PhaseDecomposition              Phase = "decomposition"
	PhaseAwaitingClarification      Phase = "awaiting_clarification"
	PhaseAwaitingRefConfirmation    Phase = "awaiting_ref_confirmation"
	PhaseTriage                     Phase = "triage"
	PhaseAwaitingTriageConfirmation Phase = "awaiting_triage_confirmation"
	PhaseAwaitingColumnChoice       Phase = "awaiting_column_choice"
	PhaseQuality                    Phase = "quality"
	PhaseSemantic                   Phase = "semantic"
	PhaseVerdict                    Phase = "verdict"
	PhaseCompleted                  Phase = "completed"
	PhaseHalted                     Phase = "halted"
	PhaseAborted                    Phase = "aborted"
)

// ValidPhases contains all valid phase values.
var ValidPhases = []Phase{
	PhaseDecomposition,
	PhaseAwaitingClarification,
	PhaseAwaitingRefConfirmation,
	PhaseTriage,
	PhaseAwaitingTriageConfirmation,
	PhaseAwaitingColumnChoice,
	PhaseQuality,
	PhaseSemantic,
	PhaseVerdict,
	PhaseCompleted,
	PhaseHalted,
	PhaseAborted,
}

// IsValidPhase checks if the given phase is valid.
func IsValidPhase(p Phase) bool {
	for _, v := range ValidPhases {
		if v == p {
			return true
		}
	}
	return false
}

// IsTerminal returns true once the session can no longer advance.
// A halted session is terminal for the current run but may be re-entered
// with new input.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseHalted || p == PhaseAborted
}

// IsSuspended returns true if the session is waiting on external input.
func (p Phase) IsSuspended() bool {
	switch p {
	case PhaseAwaitingClarification, PhaseAwaitingRefConfirmation,
		PhaseAwaitingTriageConfirmation, PhaseAwaitingColumnChoice:
		return true
	default:
		return false
	}
}

// Number returns the workflow phase number (0-4) a state belongs to, or -1.
func (p Phase) Number() int {
	switch p {
	case PhaseDecomposition, PhaseAwaitingClarification, PhaseAwaitingRefConfirmation:
		return 0
	case PhaseTriage, PhaseAwaitingTriageConfirmation, PhaseAwaitingColumnChoice:
		return 1
	case PhaseQuality:
		return 2
	case PhaseSemantic:
		return 3
	case PhaseVerdict, PhaseCompleted:
		return 4
	default:
		return -1
	}
}

// AwaitedInput names what the session needs next.
type AwaitedInput string

const (
	AwaitNothing            AwaitedInput = ""
	AwaitClarification      AwaitedInput = "clarification"
	AwaitRefConfirmation    AwaitedInput = "ref_confirmation"
	AwaitTriageConfirmation AwaitedInput = "triage_confirmation"
	AwaitColumnChoice       AwaitedInput = "column_choice"
	AwaitContinue           AwaitedInput = "continue"
	AwaitNewInformation     AwaitedInput = "new_information"
)
