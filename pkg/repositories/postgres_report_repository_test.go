//go:build integration

package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
	"github.com/ekaya-inc/ekaya-assess/pkg/testhelpers"
)

func TestPostgresReportRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgresReportRepository(testhelpers.GetReportDB(t).DB)

	created := time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)
	report := testReport("Top customers by revenue", models.VerdictPartiallyAnswerable, created)
	report.Caveats = []string{"completeness on metric revenue: 8.0% null"}
	require.NoError(t, repo.Create(ctx, report))

	got, err := repo.GetByID(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.Markdown, got.Markdown)
	assert.Equal(t, report.Caveats, got.Caveats)
	assert.True(t, created.Equal(got.CreatedAt))

	err = repo.Create(ctx, report)
	assert.True(t, errors.Is(err, apperrors.ErrReportExists))

	list, err := repo.List(ctx, 10)
	require.NoError(t, err)
	var found bool
	for _, s := range list {
		if s.ID == report.ID {
			found = true
			assert.Equal(t, models.VerdictPartiallyAnswerable, s.Verdict)
		}
	}
	assert.True(t, found)
}
