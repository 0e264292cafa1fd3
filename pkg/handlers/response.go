// Package handlers serves the HTTP endpoints next to the MCP transport:
// health checks and read-only access to stored feasibility reports.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
)

const (
	contentTypeJSON     = "application/json"
	contentTypeMarkdown = "text/markdown; charset=utf-8"
)

// ErrorBody is the JSON shape of every error response. Error is a stable
// machine-readable code; Message is for people.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func setContentType(w http.ResponseWriter, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

// ErrorResponse writes an ErrorBody with the given status.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	setContentType(w, contentTypeJSON)
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(ErrorBody{Error: errorCode, Message: message})
}

// WriteJSON encodes data as the response body. A 200 status is left implicit.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	setContentType(w, contentTypeJSON)
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteMarkdown writes a rendered report as-is.
func WriteMarkdown(w http.ResponseWriter, doc string) error {
	setContentType(w, contentTypeMarkdown)
	_, err := io.WriteString(w, doc)
	return err
}
