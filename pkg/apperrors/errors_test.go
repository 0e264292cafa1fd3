package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockerError_UnwrapsToKind(t *testing.T) {
	blocker := NewBlocker(ErrQualityBlocker, "orders.created_at covers 2 of 12 requested months").
		WithEvidence("data spans 2024-01..2024-02").
		WithRemediation("narrow the time scope to 2024-01..2024-02")

	wrapped := fmt.Errorf("phase 2: %w", blocker)

	assert.True(t, errors.Is(wrapped, ErrQualityBlocker))
	assert.False(t, errors.Is(wrapped, ErrUnmappedCriticalConcept))

	got, ok := AsBlocker(wrapped)
	require.True(t, ok)
	assert.Equal(t, "quality_blocker", got.Code())
	assert.Equal(t, []string{"narrow the time scope to 2024-01..2024-02"}, got.Remediation)
	assert.Contains(t, got.Error(), "data spans 2024-01..2024-02")
}

func TestBlockerCode(t *testing.T) {
	tests := []struct {
		kind error
		want string
	}{
		{ErrInsufficientContext, "insufficient_context"},
		{ErrUnmappedCriticalConcept, "unmapped_critical_concept"},
		{ErrQualityBlocker, "quality_blocker"},
		{ErrSemanticMisalignment, "semantic_misalignment"},
		{ErrRefRequired, "ref_required"},
		{ErrRefNotFound, "ref_not_found"},
		{ErrNotFound, "blocker"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, BlockerCode(tt.kind))
		})
	}
}

func TestAsBlocker_PlainError(t *testing.T) {
	_, ok := AsBlocker(errors.New("boom"))
	assert.False(t, ok)
}
