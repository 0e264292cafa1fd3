package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse/memory"
	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/lexicon"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

func newTestValidator(a *memory.Adapter) SemanticValidator {
	return NewSemanticValidator(a, defaultSemanticConfig(), lexicon.Default(), zap.NewNop())
}

func tablesOf(t *testing.T, a *memory.Adapter) []models.TableCandidate {
	t.Helper()
	tables, err := a.ListTables(context.Background(), testRef, testNamespace)
	require.NoError(t, err)
	return tables
}

func findFinding(findings []models.SemanticFinding, concept string) (models.SemanticFinding, bool) {
	for _, f := range findings {
		if f.Concept == concept {
			return f, true
		}
	}
	return models.SemanticFinding{}, false
}

func TestSemanticValidator_Confirmed(t *testing.T) {
	a := shopAdapter()
	v := newTestValidator(a)

	findings, err := v.Validate(context.Background(), testRef, testNamespace, revenueMappings(), tablesOf(t, a))
	require.NoError(t, err)
	require.Len(t, findings, 4)

	revenue, ok := findFinding(findings, "revenue")
	require.True(t, ok)
	assert.Equal(t, models.FindingConfirmed, revenue.Class)
	require.NotNil(t, revenue.Numeric)
	assert.Equal(t, float64(100), revenue.Numeric.Min)
	assert.Equal(t, float64(210), revenue.Numeric.Max)
	assert.Equal(t, "min 100, max 210, mean 155, 12 distinct", revenue.Evidence[0])

	customer, ok := findFinding(findings, "customer")
	require.True(t, ok)
	assert.Equal(t, models.FindingConfirmed, customer.Class)
	assert.Empty(t, customer.TopValues)

	tm, ok := findFinding(findings, TimeConcept)
	require.True(t, ok)
	assert.Equal(t, models.FindingConfirmed, tm.Class)
	assert.Equal(t, []string{"spans 2024-03 to 2025-02"}, tm.Evidence)

	join, ok := findFinding(findings, "join orders to customers (customer)")
	require.True(t, ok)
	assert.Equal(t, models.FindingConfirmed, join.Class)
	assert.True(t, join.Critical)
	require.NotNil(t, join.Join)
	assert.Equal(t, 1.0, join.Join.Overlap)
	assert.Equal(t, "orders.customer_id", join.Column.String())

	assert.NoError(t, SemanticBlocker(findings))
}

func TestSemanticValidator_PartialJoinOverlapIsAmbiguous(t *testing.T) {
	a := memory.New()
	a.AddTable(testRef, testNamespace, ordersTable(date(2024, time.March, 1), 12, 5))
	a.AddTable(testRef, testNamespace, customersTable(2))
	v := newTestValidator(a)

	findings, err := v.Validate(context.Background(), testRef, testNamespace, revenueMappings(), tablesOf(t, a))
	require.NoError(t, err)

	join, ok := findFinding(findings, "join orders to customers (customer)")
	require.True(t, ok)
	assert.Equal(t, models.FindingAmbiguous, join.Class)
	assert.InDelta(t, 0.4, join.Join.Overlap, 1e-9)
	assert.Contains(t, join.Evidence[0], "2 of 5 keys match (40.0% overlap, 60.0% orphaned)")
	assert.NoError(t, SemanticBlocker(findings))
}

func TestSemanticValidator_DisjointKeysAreMisaligned(t *testing.T) {
	a := memory.New()
	orders := ordersTable(date(2024, time.March, 1), 12, 4)
	for _, row := range orders.Rows {
		row["customer_id"] = row["customer_id"].(int64) + 100
	}
	a.AddTable(testRef, testNamespace, orders)
	a.AddTable(testRef, testNamespace, customersTable(4))
	v := newTestValidator(a)

	findings, err := v.Validate(context.Background(), testRef, testNamespace, revenueMappings(), tablesOf(t, a))
	require.NoError(t, err)

	join, ok := findFinding(findings, "join orders to customers (customer)")
	require.True(t, ok)
	assert.Equal(t, models.FindingMisaligned, join.Class)

	err = SemanticBlocker(findings)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrSemanticMisalignment))
}

func TestSemanticValidator_Fanout(t *testing.T) {
	a := memory.New()
	a.AddTable(testRef, testNamespace, ordersTable(date(2024, time.March, 1), 12, 4))
	customers := customersTable(4)
	customers.Rows = append(customers.Rows, map[string]any{"id": int64(2), "name": "Customer 2 (copy)", "region": "AMER"})
	a.AddTable(testRef, testNamespace, customers)
	v := newTestValidator(a)

	findings, err := v.Validate(context.Background(), testRef, testNamespace, revenueMappings(), tablesOf(t, a))
	require.NoError(t, err)

	join, ok := findFinding(findings, "join orders to customers (customer)")
	require.True(t, ok)
	assert.Equal(t, models.FindingAmbiguous, join.Class)
	assert.Equal(t, int64(2), join.Join.MaxFanout)
	assert.Contains(t, join.Reason, "inflating aggregates")
}

func TestSemanticValidator_NoJoinPath(t *testing.T) {
	a := memory.New()
	a.AddTable(testRef, testNamespace, ordersTable(date(2024, time.March, 1), 12, 4))
	a.AddTable(testRef, testNamespace, webEventsTable())
	v := newTestValidator(a)

	mappings := []models.ConceptMapping{
		chosenMapping(revenueConcept, "orders", "order_total", "numeric"),
		chosenMapping(models.Concept{Name: "page", Role: models.ConceptRoleDimension, Critical: true}, "web_events", "page", "varchar"),
	}
	findings, err := v.Validate(context.Background(), testRef, testNamespace, mappings, tablesOf(t, a))
	require.NoError(t, err)

	join, ok := findFinding(findings, "join orders to web_events (page)")
	require.True(t, ok)
	assert.Equal(t, models.FindingAmbiguous, join.Class)
	assert.Nil(t, join.Join)
	assert.Equal(t, "no key links orders to web_events", join.Reason)
}

func TestSemanticValidator_MetricRules(t *testing.T) {
	tests := []struct {
		name     string
		dataType string
		values   []any
		want     models.FindingClass
	}{
		{"positive numbers", "numeric", []any{10.0, 20.0, 30.0}, models.FindingConfirmed},
		{"negative values", "numeric", []any{-5.0, 20.0, 30.0}, models.FindingAmbiguous},
		{"constant", "numeric", []any{1.0, 1.0, 1.0}, models.FindingAmbiguous},
		{"all null", "numeric", []any{nil, nil}, models.FindingMisaligned},
		{"text column", "varchar", []any{"a", "b"}, models.FindingMisaligned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := make([]map[string]any, len(tt.values))
			for i, val := range tt.values {
				rows[i] = map[string]any{"amount": val}
			}
			a := memory.New()
			a.AddTable(testRef, testNamespace, memory.Table{
				Name:    "payments",
				Columns: []models.ColumnSchema{{Name: "amount", DataType: tt.dataType}},
				Rows:    rows,
			})

			mappings := []models.ConceptMapping{chosenMapping(revenueConcept, "payments", "amount", tt.dataType)}
			findings, err := newTestValidator(a).Validate(context.Background(), testRef, testNamespace, mappings, tablesOf(t, a))
			require.NoError(t, err)
			require.Len(t, findings, 1)
			assert.Equal(t, tt.want, findings[0].Class)
			assert.NotEmpty(t, findings[0].Reason)
		})
	}
}

func TestSemanticValidator_DimensionRules(t *testing.T) {
	a := memory.New()
	a.AddTable(testRef, testNamespace, memory.Table{
		Name: "customers",
		Columns: []models.ColumnSchema{
			{Name: "region", DataType: "varchar"},
			{Name: "segment", DataType: "varchar"},
			{Name: "tier", DataType: "varchar"},
		},
		Rows: []map[string]any{
			{"region": "EMEA", "segment": "smb", "tier": nil},
			{"region": "EMEA", "segment": "smb", "tier": nil},
			{"region": "AMER", "segment": "smb", "tier": nil},
		},
	})
	v := newTestValidator(a)

	mappings := []models.ConceptMapping{
		chosenMapping(regionConcept, "customers", "region", "varchar"),
		chosenMapping(models.Concept{Name: "segment", Role: models.ConceptRoleDimension}, "customers", "segment", "varchar"),
		chosenMapping(models.Concept{Name: "tier", Role: models.ConceptRoleFilter}, "customers", "tier", "varchar"),
	}
	findings, err := v.Validate(context.Background(), testRef, testNamespace, mappings, tablesOf(t, a))
	require.NoError(t, err)
	require.Len(t, findings, 3)

	assert.Equal(t, models.FindingConfirmed, findings[0].Class)
	assert.Equal(t, []models.ValueCount{{Value: "EMEA", Count: 2}, {Value: "AMER", Count: 1}}, findings[0].TopValues)
	assert.Equal(t, "2 distinct values; top: EMEA (2), AMER (1)", findings[0].Evidence[0])

	assert.Equal(t, models.FindingAmbiguous, findings[1].Class)
	assert.Equal(t, models.FindingMisaligned, findings[2].Class)
}

func TestSemanticValidator_TextTimeColumn(t *testing.T) {
	tests := []struct {
		name   string
		values []any
		want   models.FindingClass
	}{
		{"parseable", []any{"2024-01-02", "2024-02-03"}, models.FindingConfirmed},
		{"garbage", []any{"2024-01-02", "soon"}, models.FindingMisaligned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := make([]map[string]any, len(tt.values))
			for i, val := range tt.values {
				rows[i] = map[string]any{"order_date": val}
			}
			a := memory.New()
			a.AddTable(testRef, testNamespace, memory.Table{
				Name:    "orders",
				Columns: []models.ColumnSchema{{Name: "order_date", DataType: "varchar"}},
				Rows:    rows,
			})

			mappings := []models.ConceptMapping{chosenMapping(timeConcept, "orders", "order_date", "varchar")}
			findings, err := newTestValidator(a).Validate(context.Background(), testRef, testNamespace, mappings, tablesOf(t, a))
			require.NoError(t, err)
			require.Len(t, findings, 1)
			assert.Equal(t, tt.want, findings[0].Class)
		})
	}
}

func TestSemanticValidator_DoesNotMutateMappings(t *testing.T) {
	a := shopAdapter()
	mappings := revenueMappings()
	before := revenueMappings()

	_, err := newTestValidator(a).Validate(context.Background(), testRef, testNamespace, mappings, tablesOf(t, a))
	require.NoError(t, err)
	assert.Equal(t, before, mappings)
}
