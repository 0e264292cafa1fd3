package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhase_IsTerminal(t *testing.T) {
	terminal := map[Phase]bool{PhaseCompleted: true, PhaseHalted: true, PhaseAborted: true}
	for _, p := range ValidPhases {
		assert.Equal(t, terminal[p], p.IsTerminal(), p)
	}
}

func TestPhase_IsSuspended(t *testing.T) {
	assert.True(t, PhaseAwaitingClarification.IsSuspended())
	assert.True(t, PhaseAwaitingRefConfirmation.IsSuspended())
	assert.True(t, PhaseAwaitingTriageConfirmation.IsSuspended())
	assert.True(t, PhaseAwaitingColumnChoice.IsSuspended())
	assert.False(t, PhaseQuality.IsSuspended())
	assert.False(t, PhaseCompleted.IsSuspended())
}

func TestPhase_Number(t *testing.T) {
	tests := []struct {
		phase Phase
		want  int
	}{
		{PhaseDecomposition, 0},
		{PhaseAwaitingRefConfirmation, 0},
		{PhaseAwaitingTriageConfirmation, 1},
		{PhaseAwaitingColumnChoice, 1},
		{PhaseQuality, 2},
		{PhaseSemantic, 3},
		{PhaseVerdict, 4},
		{PhaseCompleted, 4},
		{PhaseHalted, -1},
		{PhaseAborted, -1},
	}
	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.phase.Number())
		})
	}
}

func TestIsValidPhase(t *testing.T) {
	assert.True(t, IsValidPhase(PhaseSemantic))
	assert.False(t, IsValidPhase("running"))
}
