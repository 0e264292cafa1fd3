package repositories

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

func testReport(question string, verdict models.Verdict, created time.Time) *models.FeasibilityReport {
	return &models.FeasibilityReport{
		ID:        uuid.New(),
		SessionID: uuid.New(),
		Ref:       "main",
		Namespace: "sales",
		Question:  question,
		Verdict:   verdict,
		Reason:    "test",
		Markdown:  "# Feasibility Report\n\n## Business Question\n\n" + question + "\n",
		CreatedAt: created,
	}
}

func newTestFileRepo(t *testing.T) (ReportRepository, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "reports")
	repo, err := NewFileReportRepository(dir, zap.NewNop())
	require.NoError(t, err)
	return repo, dir
}

func TestFileReportRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo, dir := newTestFileRepo(t)

	report := testReport("Top customers by revenue", models.VerdictAnswerable, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Create(ctx, report))

	md, err := os.ReadFile(filepath.Join(dir, report.ID.String()+".md"))
	require.NoError(t, err)
	assert.Equal(t, report.Markdown, string(md))

	got, err := repo.GetByID(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.Question, got.Question)
	assert.Equal(t, report.Verdict, got.Verdict)
	assert.Equal(t, report.Markdown, got.Markdown)
	assert.True(t, report.CreatedAt.Equal(got.CreatedAt))
}

func TestFileReportRepository_IsInsertOnly(t *testing.T) {
	ctx := context.Background()
	repo, dir := newTestFileRepo(t)

	report := testReport("q", models.VerdictAnswerable, time.Now())
	require.NoError(t, repo.Create(ctx, report))

	changed := *report
	changed.Verdict = models.VerdictNotAnswerable
	err := repo.Create(ctx, &changed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrReportExists))

	got, err := repo.GetByID(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictAnswerable, got.Verdict)

	info, err := os.Stat(filepath.Join(dir, report.ID.String()+".md"))
	require.NoError(t, err)
	assert.Zero(t, info.Mode().Perm()&0o222, "report files are read-only")
}

func TestFileReportRepository_FailedWriteLeavesNoFiles(t *testing.T) {
	ctx := context.Background()
	repo, dir := newTestFileRepo(t)
	fr := repo.(*fileReportRepository)

	diskFull := errors.New("no space left on device")
	fr.write = func(dir, path string, data []byte) error {
		if filepath.Ext(path) == ".json" {
			return diskFull
		}
		return writeExclusive(dir, path, data)
	}

	report := testReport("q", models.VerdictAnswerable, time.Now())
	err := repo.Create(ctx, report)
	require.Error(t, err)
	assert.True(t, errors.Is(err, diskFull))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = repo.GetByID(ctx, report.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	fr.write = writeExclusive
	require.NoError(t, repo.Create(ctx, report))
	got, err := repo.GetByID(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.Question, got.Question)
}

func TestFileReportRepository_NoTempFilesRemain(t *testing.T) {
	repo, dir := newTestFileRepo(t)
	report := testReport("q", models.VerdictAnswerable, time.Now())
	require.NoError(t, repo.Create(context.Background(), report))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{report.ID.String() + ".json", report.ID.String() + ".md"}, names)
}

func TestFileReportRepository_GetMissing(t *testing.T) {
	repo, _ := newTestFileRepo(t)
	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestFileReportRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo, dir := newTestFileRepo(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, q := range []string{"first", "second", "third"} {
		require.NoError(t, repo.Create(ctx, testReport(q, models.VerdictPartiallyAnswerable, base.AddDate(0, 0, i))))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0o600))

	list, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "third", list[0].Question)
	assert.Equal(t, "first", list[2].Question)

	list, err = repo.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
