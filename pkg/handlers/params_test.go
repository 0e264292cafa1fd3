package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestParseReportID(t *testing.T) {
	tests := []struct {
		name      string
		pathValue string
		wantOK    bool
	}{
		{"valid UUID", "550e8400-e29b-41d4-a716-446655440000", true},
		{"invalid UUID", "not-a-uuid", false},
		{"empty UUID", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withURLParam(httptest.NewRequest(http.MethodGet, "/test", nil), "id", tt.pathValue)
			rec := httptest.NewRecorder()

			id, ok := ParseReportID(rec, req, zap.NewNop())

			if ok != tt.wantOK {
				t.Fatalf("ParseReportID() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok {
				if id.String() != tt.pathValue {
					t.Errorf("id = %s, want %s", id, tt.pathValue)
				}
				return
			}
			if id != uuid.Nil {
				t.Errorf("expected uuid.Nil, got %s", id)
			}
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body["error"] != "invalid_report_id" {
				t.Errorf("error = %q, want invalid_report_id", body["error"])
			}
		})
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query  string
		want   int
		wantOK bool
	}{
		{"", 0, true},
		{"?limit=5", 5, true},
		{"?limit=-1", 0, false},
		{"?limit=abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			got, ok := ParseLimit(rec, httptest.NewRequest(http.MethodGet, "/api/reports"+tt.query, nil), zap.NewNop())
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseLimit(%q) = %d, %v; want %d, %v", tt.query, got, ok, tt.want, tt.wantOK)
			}
			if !ok && rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}
