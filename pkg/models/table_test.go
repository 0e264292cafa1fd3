package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyDataType(t *testing.T) {
	tests := []struct {
		dataType string
		want     ColumnKind
	}{
		{"bigint", ColumnKindNumeric},
		{"numeric(10,2)", ColumnKindNumeric},
		{"DOUBLE PRECISION", ColumnKindNumeric},
		{"money", ColumnKindNumeric},
		{"HUGEINT", ColumnKindNumeric},
		{"timestamp with time zone", ColumnKindTemporal},
		{"datetime2", ColumnKindTemporal},
		{"date", ColumnKindTemporal},
		{"varchar(255)", ColumnKindText},
		{"nvarchar", ColumnKindText},
		{"uniqueidentifier", ColumnKindText},
		{"bit", ColumnKindBoolean},
		{"BOOLEAN", ColumnKindBoolean},
		{"jsonb", ColumnKindOther},
		{"", ColumnKindOther},
	}
	for _, tt := range tests {
		t.Run(tt.dataType, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyDataType(tt.dataType))
		})
	}
}

func TestDisposition(t *testing.T) {
	assert.True(t, DispositionStrongCandidate.IsCandidate())
	assert.True(t, DispositionWeakCandidate.IsCandidate())
	assert.False(t, DispositionNotRelevant.IsCandidate())
	assert.False(t, DispositionSelected.IsCandidate())

	assert.True(t, DispositionSelected.IsFinal())
	assert.True(t, DispositionConsidered.IsFinal())
	assert.True(t, DispositionNotRelevant.IsFinal())
	assert.False(t, DispositionWeakCandidate.IsFinal())

	assert.Equal(t, "STRONG CANDIDATE", DispositionStrongCandidate.Label())
	assert.Equal(t, "NOT RELEVANT", DispositionNotRelevant.Label())

	for _, d := range ValidDispositions {
		assert.True(t, IsValidDisposition(d))
	}
	assert.False(t, IsValidDisposition("maybe"))
}

func TestTableCandidate(t *testing.T) {
	table := TableCandidate{
		Namespace: "sales",
		Name:      "orders",
		Columns: []ColumnSchema{
			{Name: "id", DataType: "integer"},
			{Name: "created_at", DataType: "timestamp"},
			{Name: "Shipped_On", DataType: "date"},
			{Name: "status", DataType: "text"},
		},
	}

	assert.Equal(t, "sales.orders", table.QualifiedName())
	assert.Equal(t, "orders", (&TableCandidate{Name: "orders"}).QualifiedName())

	col, ok := table.Column("shipped_on")
	require.True(t, ok)
	assert.Equal(t, "Shipped_On", col.Name)
	_, ok = table.Column("missing")
	assert.False(t, ok)

	var temporal []string
	for _, c := range table.TemporalColumns() {
		temporal = append(temporal, c.Name)
	}
	assert.Equal(t, []string{"created_at", "Shipped_On"}, temporal)
}

func TestFindTable(t *testing.T) {
	tables := []TableCandidate{{Name: "orders"}, {Name: "customers"}}

	found, ok := FindTable(tables, "Customers")
	require.True(t, ok)
	found.Disposition = DispositionSelected
	assert.Equal(t, DispositionSelected, tables[1].Disposition, "FindTable should return a pointer into the slice")

	_, ok = FindTable(tables, "events")
	assert.False(t, ok)
}
