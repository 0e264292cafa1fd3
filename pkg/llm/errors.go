package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies what went wrong talking to the endpoint.
type ErrorType string

const (
	ErrorTypeEndpoint    ErrorType = "endpoint"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeModel       ErrorType = "model"
	ErrorTypeRateLimited ErrorType = "rate_limited"
	ErrorTypeResponse    ErrorType = "response"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error is a classified LLM failure.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Model      string
}

func (e *Error) Error() string {
	parts := []string{string(e.Type)}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable lets pkg/retry decide without importing llm.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a classified error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{Type: errType, Message: message, Retryable: retryable, Cause: cause}
}

var statusCodes = []int{400, 401, 403, 404, 429, 500, 502, 503, 504}

// extractStatusCode finds an HTTP status in the error text. Codes must stand
// alone so that "15003ms" is not read as a 500.
func extractStatusCode(msg string) int {
	for _, code := range statusCodes {
		needle := fmt.Sprintf("%d", code)
		idx := strings.Index(msg, needle)
		for idx >= 0 {
			before := idx == 0 || !isDigit(msg[idx-1])
			end := idx + len(needle)
			after := end == len(msg) || !isDigit(msg[end])
			if before && after {
				return code
			}
			next := strings.Index(msg[idx+1:], needle)
			if next < 0 {
				break
			}
			idx += next + 1
		}
	}
	return 0
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// ClassifyError turns a raw client error into an *Error. Errors that are
// already classified pass through unchanged.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	status := extractStatusCode(msg)

	classify := func(t ErrorType, message string, retryable bool) *Error {
		e := NewError(t, message, retryable, err)
		e.StatusCode = status
		return e
	}

	switch {
	case errors.Is(err, context.Canceled):
		return classify(ErrorTypeEndpoint, "request canceled", false)
	case status == 401 || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		return classify(ErrorTypeAuth, "authentication failed", false)
	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist")):
		return classify(ErrorTypeModel, "model not found", false)
	case status == 404:
		return classify(ErrorTypeEndpoint, "endpoint not found", false)
	case status == 429 || strings.Contains(lower, "rate limit"):
		return classify(ErrorTypeRateLimited, "rate limited", true)
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host"):
		return classify(ErrorTypeEndpoint, "connection failed", true)
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return classify(ErrorTypeEndpoint, "request timeout", true)
	case status >= 500:
		return classify(ErrorTypeEndpoint, "server error", true)
	}
	return classify(ErrorTypeUnknown, "llm error", false)
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}
