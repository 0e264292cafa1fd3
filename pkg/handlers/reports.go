package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
	"github.com/ekaya-inc/ekaya-assess/pkg/repositories"
)

// ReportListResponse is the body of GET /api/reports.
type ReportListResponse struct {
	Reports []models.ReportSummary `json:"reports"`
	Count   int                    `json:"count"`
}

// ReportsHandler exposes stored feasibility reports read-only.
type ReportsHandler struct {
	reports repositories.ReportRepository
	logger  *zap.Logger
}

// NewReportsHandler creates a ReportsHandler.
func NewReportsHandler(reports repositories.ReportRepository, logger *zap.Logger) *ReportsHandler {
	return &ReportsHandler{reports: reports, logger: logger.Named("reports-handler")}
}

// RegisterRoutes mounts the report routes under /api/reports.
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/reports", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
	})
}

// List handles GET /api/reports?limit=n, newest first.
func (h *ReportsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := ParseLimit(w, r, h.logger)
	if !ok {
		return
	}

	summaries, err := h.reports.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list reports", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list reports")
		return
	}
	if summaries == nil {
		summaries = []models.ReportSummary{}
	}

	if err := WriteJSON(w, http.StatusOK, ReportListResponse{Reports: summaries, Count: len(summaries)}); err != nil {
		h.logger.Error("Failed to encode report list", zap.Error(err))
	}
}

// Get handles GET /api/reports/{id}. ?format=markdown returns the document
// itself instead of the JSON envelope.
func (h *ReportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseReportID(w, r, h.logger)
	if !ok {
		return
	}

	report, err := h.reports.GetByID(r.Context(), id)
	if errors.Is(err, apperrors.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Report not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to load report", zap.String("report_id", id.String()), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to load report")
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		err = WriteJSON(w, http.StatusOK, report)
	case "markdown", "md":
		err = WriteMarkdown(w, report.Markdown)
	default:
		h.writeError(w, http.StatusBadRequest, "invalid_format", "format must be json or markdown")
		return
	}
	if err != nil {
		h.logger.Error("Failed to write report", zap.Error(err))
	}
}

func (h *ReportsHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
