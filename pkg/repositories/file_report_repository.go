package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

// Reports are written read-only. Each file is written to a temp file and
// hard-linked into place, so a final name only ever holds a complete file and
// a second write of the same ID fails.
const reportFileMode = 0o444

type fileReportRepository struct {
	dir    string
	write  func(dir, path string, data []byte) error
	logger *zap.Logger
}

// NewFileReportRepository stores each report as <id>.md (the rendered
// document) and <id>.json (the full record) under dir.
func NewFileReportRepository(dir string, logger *zap.Logger) (ReportRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}
	return &fileReportRepository{
		dir:    dir,
		write:  writeExclusive,
		logger: logger.Named("report-files"),
	}, nil
}

var _ ReportRepository = (*fileReportRepository)(nil)

func (r *fileReportRepository) path(name string) (string, error) {
	p, err := securejoin.SecureJoin(r.dir, name)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", name, err)
	}
	return p, nil
}

func writeExclusive(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".report-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(reportFileMode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Link(tmp.Name(), path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return apperrors.ErrReportExists
		}
		return err
	}
	return nil
}

func (r *fileReportRepository) Create(_ context.Context, report *models.FeasibilityReport) error {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}

	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	jsonPath, err := r.path(report.ID.String() + ".json")
	if err != nil {
		return err
	}
	mdPath, err := r.path(report.ID.String() + ".md")
	if err != nil {
		return err
	}

	// The record goes last: its presence is what makes a report exist.
	if err := r.write(r.dir, mdPath, []byte(report.Markdown)); err != nil {
		return fmt.Errorf("report %s markdown: %w", report.ID, err)
	}
	if err := r.write(r.dir, jsonPath, body); err != nil {
		if rmErr := os.Remove(mdPath); rmErr != nil {
			r.logger.Warn("failed to remove orphaned report markdown", zap.String("path", mdPath), zap.Error(rmErr))
		}
		return fmt.Errorf("report %s: %w", report.ID, err)
	}

	r.logger.Debug("report written", zap.String("path", mdPath))
	return nil
}

func (r *fileReportRepository) GetByID(_ context.Context, id uuid.UUID) (*models.FeasibilityReport, error) {
	p, err := r.path(id.String() + ".json")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("report %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read report %s: %w", id, err)
	}

	var report models.FeasibilityReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report %s: %w", id, err)
	}
	return &report, nil
}

func (r *fileReportRepository) List(ctx context.Context, limit int) ([]models.ReportSummary, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	summaries := make([]models.ReportSummary, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		report, err := r.GetByID(ctx, id)
		if err != nil {
			r.logger.Warn("skipping unreadable report", zap.String("file", name), zap.Error(err))
			continue
		}
		summaries = append(summaries, summaryOf(report))
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
		}
		return summaries[i].ID.String() < summaries[j].ID.String()
	})
	if limit = clampLimit(limit); len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}
