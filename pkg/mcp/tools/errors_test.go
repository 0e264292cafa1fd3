package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
)

// getTextContent extracts the text of the first content item.
func getTextContent(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	jsonBytes, _ := json.Marshal(result.Content[0])
	var textContent struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(jsonBytes, &textContent)
	return textContent.Text
}

func TestNewErrorResult(t *testing.T) {
	result := NewErrorResult("invalid_phase", "continue is not allowed")
	require.True(t, result.IsError)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &errResp))
	assert.True(t, errResp.Error)
	assert.Equal(t, "invalid_phase", errResp.Code)
	assert.Equal(t, "continue is not allowed", errResp.Message)
	assert.Nil(t, errResp.Details)
}

func TestNewErrorResultWithDetails(t *testing.T) {
	result := NewErrorResultWithDetails("invalid_parameters", "unknown tables",
		map[string]any{"unknown": []string{"ghost"}})

	var errResp struct {
		Details map[string][]string `json:"details"`
	}
	require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &errResp))
	assert.Equal(t, []string{"ghost"}, errResp.Details["unknown"])
}

func TestErrorResultFor(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("session x: %w", apperrors.ErrSessionNotFound), "session_not_found"},
		{fmt.Errorf("continue: %w", apperrors.ErrInvalidPhase), "invalid_phase"},
		{apperrors.ErrRefRequired, "ref_required"},
		{fmt.Errorf("ref dev: %w", apperrors.ErrRefNotFound), "ref_not_found"},
		{fmt.Errorf("namespace: %w", apperrors.ErrInvalidInput), "invalid_input"},
		{apperrors.ErrNotFound, "not_found"},
	}
	for _, tt := range tests {
		result := ErrorResultFor(tt.err)
		require.NotNil(t, result, "err %v", tt.err)

		var errResp ErrorResponse
		require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &errResp))
		assert.Equal(t, tt.code, errResp.Code)
		assert.Equal(t, tt.err.Error(), errResp.Message)
	}

	assert.Nil(t, ErrorResultFor(errors.New("connection reset by peer")))
	assert.Nil(t, ErrorResultFor(nil))
}

func TestIsInputError(t *testing.T) {
	assert.True(t, IsInputError(apperrors.ErrInvalidPhase))
	assert.True(t, IsInputError(errors.New("table ghost not found")))
	assert.False(t, IsInputError(errors.New("dial tcp: i/o timeout")))
	assert.False(t, IsInputError(nil))
}
