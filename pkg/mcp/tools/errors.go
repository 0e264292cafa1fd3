package tools

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
)

// ErrorResponse is a structured error returned as a tool result so the
// client sees actionable detail instead of a bare protocol error.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use it for errors the caller can act on (bad parameters, wrong phase).
// System failures should still be returned as Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	jsonBytes, _ := json.Marshal(ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	})
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// inputErrors maps caller-correctable workflow errors to result codes.
var inputErrors = []struct {
	err  error
	code string
}{
	{apperrors.ErrSessionNotFound, "session_not_found"},
	{apperrors.ErrInvalidPhase, "invalid_phase"},
	{apperrors.ErrRefRequired, "ref_required"},
	{apperrors.ErrRefNotFound, "ref_not_found"},
	{apperrors.ErrInvalidInput, "invalid_input"},
	{apperrors.ErrNotFound, "not_found"},
	{apperrors.ErrReportExists, "report_exists"},
}

// InputErrorCode returns the result code for a caller-correctable error,
// or "" when err is a system failure.
func InputErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, ie := range inputErrors {
		if errors.Is(err, ie.err) {
			return ie.code
		}
	}
	return ""
}

// ErrorResultFor converts caller-correctable errors into error results.
// It returns nil for anything else; the caller returns those as Go errors.
func ErrorResultFor(err error) *mcp.CallToolResult {
	code := InputErrorCode(err)
	if code == "" {
		return nil
	}
	return NewErrorResult(code, err.Error())
}

// inputErrorPatterns catch input errors raised below the service layer
// without a sentinel.
var inputErrorPatterns = []string{
	"not found",
	"invalid input",
	"missing required",
	"cannot be empty",
}

// IsInputError reports whether err was caused by the caller's input rather
// than a server failure. Input errors are logged at debug level.
func IsInputError(err error) bool {
	if err == nil {
		return false
	}
	if InputErrorCode(err) != "" {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range inputErrorPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
