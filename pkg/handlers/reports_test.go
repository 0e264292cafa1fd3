package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/models"
	"github.com/ekaya-inc/ekaya-assess/pkg/repositories"
)

// failingRepo fails every call.
type failingRepo struct{}

func (failingRepo) Create(context.Context, *models.FeasibilityReport) error { return errors.New("disk full") }
func (failingRepo) GetByID(context.Context, uuid.UUID) (*models.FeasibilityReport, error) {
	return nil, errors.New("disk full")
}
func (failingRepo) List(context.Context, int) ([]models.ReportSummary, error) {
	return nil, errors.New("disk full")
}

func newReportsRouter(t *testing.T, repo repositories.ReportRepository) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	NewReportsHandler(repo, zap.NewNop()).RegisterRoutes(r)
	return r
}

func seededRepo(t *testing.T) (repositories.ReportRepository, *models.FeasibilityReport) {
	t.Helper()
	repo, err := repositories.NewFileReportRepository(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	report := &models.FeasibilityReport{
		ID:        uuid.New(),
		SessionID: uuid.New(),
		Ref:       "main",
		Namespace: "sales",
		Question:  "Top customers by revenue?",
		Verdict:   models.VerdictPartiallyAnswerable,
		Reason:    "region is ambiguous",
		Markdown:  "# Feasibility Report\n\n**PARTIALLY ANSWERABLE**\n",
		CreatedAt: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Create(context.Background(), report))
	return repo, report
}

func serve(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestReportsHandler_List(t *testing.T) {
	repo, report := seededRepo(t)
	rec := serve(newReportsRouter(t, repo), "/api/reports?limit=10")

	require.Equal(t, http.StatusOK, rec.Code)
	var body ReportListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, report.ID, body.Reports[0].ID)
	assert.Equal(t, models.VerdictPartiallyAnswerable, body.Reports[0].Verdict)
}

func TestReportsHandler_ListEmpty(t *testing.T) {
	repo, err := repositories.NewFileReportRepository(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	rec := serve(newReportsRouter(t, repo), "/api/reports")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reports":[],"count":0}`, rec.Body.String())
}

func TestReportsHandler_Get(t *testing.T) {
	repo, report := seededRepo(t)
	h := newReportsRouter(t, repo)

	tests := []struct {
		name     string
		target   string
		status   int
		contains string
	}{
		{"json", "/api/reports/" + report.ID.String(), http.StatusOK, `"verdict":"partially_answerable"`},
		{"markdown", "/api/reports/" + report.ID.String() + "?format=markdown", http.StatusOK, "**PARTIALLY ANSWERABLE**"},
		{"bad format", "/api/reports/" + report.ID.String() + "?format=pdf", http.StatusBadRequest, "invalid_format"},
		{"unknown id", "/api/reports/" + uuid.NewString(), http.StatusNotFound, "not_found"},
		{"bad id", "/api/reports/abc", http.StatusBadRequest, "invalid_report_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}

func TestReportsHandler_StoreFailure(t *testing.T) {
	h := newReportsRouter(t, failingRepo{})

	rec := serve(h, "/api/reports")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk full")

	rec = serve(h, "/api/reports/"+uuid.NewString())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
