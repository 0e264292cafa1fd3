package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/database"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

const uniqueViolation = "23505"

type postgresReportRepository struct {
	db *database.DB
}

// NewPostgresReportRepository stores reports in the assess_feasibility_reports table.
func NewPostgresReportRepository(db *database.DB) ReportRepository {
	return &postgresReportRepository{db: db}
}

var _ ReportRepository = (*postgresReportRepository)(nil)

func (r *postgresReportRepository) Create(ctx context.Context, report *models.FeasibilityReport) error {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	query := `
		INSERT INTO assess_feasibility_reports (
			id, session_id, ref, namespace,
			question, verdict, reason, markdown,
			body, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.Exec(ctx, query,
		report.ID,
		report.SessionID,
		report.Ref,
		report.Namespace,
		report.Question,
		report.Verdict,
		report.Reason,
		report.Markdown,
		body,
		report.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("report %s: %w", report.ID, apperrors.ErrReportExists)
		}
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

func (r *postgresReportRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.FeasibilityReport, error) {
	var body []byte
	err := r.db.QueryRow(ctx, `SELECT body FROM assess_feasibility_reports WHERE id = $1`, id).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("report %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var report models.FeasibilityReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report %s: %w", id, err)
	}
	return &report, nil
}

func (r *postgresReportRepository) List(ctx context.Context, limit int) ([]models.ReportSummary, error) {
	query := `
		SELECT id, session_id, question, verdict, ref, created_at
		FROM assess_feasibility_reports
		ORDER BY created_at DESC, id
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	summaries := make([]models.ReportSummary, 0)
	for rows.Next() {
		var s models.ReportSummary
		if err := rows.Scan(&s.ID, &s.SessionID, &s.Question, &s.Verdict, &s.Ref, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}
	return summaries, nil
}
