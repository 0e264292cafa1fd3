package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

// ReportRepository stores feasibility reports. Reports are insert-only: a
// second Create with the same ID fails with apperrors.ErrReportExists.
type ReportRepository interface {
	Create(ctx context.Context, report *models.FeasibilityReport) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.FeasibilityReport, error)
	List(ctx context.Context, limit int) ([]models.ReportSummary, error)
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return defaultListLimit
	}
	return limit
}

func summaryOf(r *models.FeasibilityReport) models.ReportSummary {
	return models.ReportSummary{
		ID:        r.ID,
		SessionID: r.SessionID,
		Question:  r.Question,
		Verdict:   r.Verdict,
		Ref:       r.Ref,
		CreatedAt: r.CreatedAt,
	}
}
