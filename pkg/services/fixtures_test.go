package services

import (
	"fmt"
	"time"

	"github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse/memory"
	"github.com/ekaya-inc/ekaya-assess/pkg/config"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

const (
	testRef       = "main"
	testNamespace = "sales"
)

func defaultQualityConfig() config.QualityConfig {
	return config.QualityConfig{
		CaveatNullRate:    0.05,
		NotUsableNullRate: 0.5,
		MinRowCount:       1,
		FullCoverage:      1.0,
		NotUsableCoverage: 0.5,
	}
}

func defaultSemanticConfig() config.SemanticConfig {
	return config.SemanticConfig{
		TopN:                  10,
		JoinOverlapConfirmed:  0.95,
		JoinOverlapMisaligned: 0.10,
	}
}

// last12Months is the scope "last 12 months" resolves to at fixedNow.
func last12Months() models.TimeScope {
	start, end := date(2024, time.March, 1), date(2025, time.March, 1)
	return models.TimeScope{Phrase: "last 12 months", Start: &start, End: &end, Status: models.FieldStatusResolved}
}

func ordersColumns() []models.ColumnSchema {
	return []models.ColumnSchema{
		{Name: "id", DataType: "integer"},
		{Name: "customer_id", DataType: "integer"},
		{Name: "order_total", DataType: "numeric", Nullable: true},
		{Name: "created_at", DataType: "timestamp"},
	}
}

// ordersTable returns one order per month starting at first, customer ids
// cycling over customers.
func ordersTable(first time.Time, months, customers int) memory.Table {
	rows := make([]map[string]any, 0, months)
	for i := 0; i < months; i++ {
		rows = append(rows, map[string]any{
			"id":          int64(i + 1),
			"customer_id": int64(i%customers + 1),
			"order_total": float64(100 + i*10),
			"created_at":  first.AddDate(0, i, 4),
		})
	}
	return memory.Table{Name: "orders", Columns: ordersColumns(), Rows: rows}
}

func customersTable(n int) memory.Table {
	regions := []string{"EMEA", "AMER", "APAC"}
	rows := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, map[string]any{
			"id":     int64(i + 1),
			"name":   fmt.Sprintf("Customer %d", i+1),
			"region": regions[i%len(regions)],
		})
	}
	return memory.Table{
		Name: "customers",
		Columns: []models.ColumnSchema{
			{Name: "id", DataType: "integer"},
			{Name: "name", DataType: "varchar"},
			{Name: "region", DataType: "varchar"},
		},
		Rows: rows,
	}
}

func webEventsTable() memory.Table {
	return memory.Table{
		Name: "web_events",
		Columns: []models.ColumnSchema{
			{Name: "id", DataType: "bigint"},
			{Name: "page", DataType: "varchar"},
			{Name: "ts", DataType: "timestamp"},
		},
		Rows: []map[string]any{
			{"id": int64(1), "page": "/", "ts": date(2025, time.January, 2)},
		},
	}
}

// shopAdapter holds a year of orders from four customers that all exist.
func shopAdapter() *memory.Adapter {
	a := memory.New()
	a.AddTable(testRef, testNamespace, ordersTable(date(2024, time.March, 1), 12, 4))
	a.AddTable(testRef, testNamespace, customersTable(4))
	a.AddTable(testRef, testNamespace, webEventsTable())
	return a
}

func chosenMapping(c models.Concept, table, column, dataType string) models.ConceptMapping {
	ref := models.ColumnRef{Table: table, Column: column, DataType: dataType}
	return models.ConceptMapping{
		Concept:      c,
		Candidates:   []models.ColumnCandidate{{ColumnRef: ref, Reason: "test", Score: 4}},
		Chosen:       true,
		ChosenColumn: ref,
	}
}

var (
	revenueConcept  = models.Concept{Name: "revenue", Role: models.ConceptRoleMetric, Critical: true, Terms: []string{"revenue"}}
	customerConcept = models.Concept{Name: "customer", Role: models.ConceptRoleDimension, Critical: true, Terms: []string{"customer"}}
	regionConcept   = models.Concept{Name: "region", Role: models.ConceptRoleDimension, Terms: []string{"region"}}
	timeConcept     = models.Concept{Name: TimeConcept, Role: models.ConceptRoleTime}
)

// revenueByCustomer is the decomposition of "top customers by revenue in the last 12 months".
func revenueByCustomer() *models.Decomposition {
	return &models.Decomposition{
		Question:  "Top customers by revenue in the last 12 months",
		Metric:    models.Metric{Name: "revenue", Aggregation: models.AggregationSum, Status: models.FieldStatusResolved},
		Grain:     models.Grain{Entity: "customer", Status: models.FieldStatusResolved},
		TimeScope: last12Months(),
	}
}

func revenueMappings() []models.ConceptMapping {
	return []models.ConceptMapping{
		chosenMapping(revenueConcept, "orders", "order_total", "numeric"),
		chosenMapping(customerConcept, "customers", "id", "integer"),
		chosenMapping(timeConcept, "orders", "created_at", "timestamp"),
	}
}
