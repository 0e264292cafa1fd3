//go:build integration

package testhelpers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestDB_Connection(t *testing.T) {
	testDB := GetTestDB(t)

	var one int
	err := testDB.Pool.QueryRow(context.Background(), "SELECT 1").Scan(&one)
	require.NoError(t, err)
	assert.Equal(t, 1, one)
}

func TestReportDB_MigrationsApplied(t *testing.T) {
	reportDB := GetReportDB(t)

	var exists bool
	err := reportDB.DB.Pool.QueryRow(context.Background(), `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_name = 'assess_feasibility_reports'
		)`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists)
}
