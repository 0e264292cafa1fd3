package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse/memory"
	"github.com/ekaya-inc/ekaya-assess/pkg/config"
	"github.com/ekaya-inc/ekaya-assess/pkg/lexicon"
	"github.com/ekaya-inc/ekaya-assess/pkg/mcp"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
	"github.com/ekaya-inc/ekaya-assess/pkg/repositories"
	"github.com/ekaya-inc/ekaya-assess/pkg/services"
)

const question = "Top customers by revenue in the last 12 months?"

var cliNow = time.Date(2025, time.March, 15, 10, 30, 0, 0, time.UTC)

func salesLakehouse() *memory.Adapter {
	a := memory.New()
	orders := make([]map[string]any, 0, 12)
	for i := 0; i < 12; i++ {
		orders = append(orders, map[string]any{
			"id":          int64(i + 1),
			"customer_id": int64(i%4 + 1),
			"order_total": float64(100 + i*10),
			"created_at":  time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC).AddDate(0, i, 0),
		})
	}
	a.AddTable("main", "sales", memory.Table{
		Name: "orders",
		Columns: []models.ColumnSchema{
			{Name: "id", DataType: "integer"},
			{Name: "customer_id", DataType: "integer"},
			{Name: "order_total", DataType: "numeric"},
			{Name: "created_at", DataType: "timestamp"},
		},
		Rows: orders,
	})

	customers := make([]map[string]any, 0, 4)
	for i := 0; i < 4; i++ {
		customers = append(customers, map[string]any{"id": int64(i + 1), "name": fmt.Sprintf("Customer %d", i+1)})
	}
	a.AddTable("main", "sales", memory.Table{
		Name:    "customers",
		Columns: []models.ColumnSchema{{Name: "id", DataType: "integer"}, {Name: "name", DataType: "varchar"}},
		Rows:    customers,
	})
	return a
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Version:   "test",
		Env:       "test",
		Lakehouse: config.LakehouseConfig{Type: "memory"},
		Quality: config.QualityConfig{
			CaveatNullRate: 0.05, NotUsableNullRate: 0.5, MinRowCount: 1,
			FullCoverage: 1.0, NotUsableCoverage: 0.5,
		},
		Semantic: config.SemanticConfig{TopN: 10, JoinOverlapConfirmed: 0.95, JoinOverlapMisaligned: 0.10},
		Reports:  config.ReportsConfig{Store: "file", Dir: t.TempDir()},
		MCP:      config.MCPConfig{Transport: "http"},
	}
}

// testApp wires the service over the in-memory lakehouse.
func testApp(t *testing.T) *app {
	t.Helper()
	cfg := testConfig(t)
	reports, err := repositories.NewFileReportRepository(cfg.Reports.Dir, zap.NewNop())
	require.NoError(t, err)
	svc := services.NewAssessmentService(salesLakehouse(), lexicon.Default(), cfg, reports, nil,
		func() time.Time { return cliNow }, zap.NewNop())
	return &app{cfg: cfg, logger: zap.NewNop(), service: svc, reports: reports}
}

// scriptedPrompter answers prompts from a fixed script and quits when it
// runs out.
type scriptedPrompter struct {
	answers []string
	prompts []string
}

func (s *scriptedPrompter) Prompt(prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.answers) == 0 {
		return "", errQuit
	}
	next := s.answers[0]
	s.answers = s.answers[1:]
	return next, nil
}

func TestRunAssessment_CompletesWithReport(t *testing.T) {
	a := testApp(t)
	p := &scriptedPrompter{answers: []string{"main", "sales", "orders, customers", "y", "", "yes"}}
	var out bytes.Buffer

	err := runAssessment(context.Background(), a.service, p, &out, question, &AssessOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Ref:", "Namespace:"}, p.prompts[:2])
	assert.True(t, strings.HasPrefix(p.prompts[2], "Tables ["), p.prompts[2])
	assert.Contains(t, out.String(), "# Feasibility Report")
	assert.Contains(t, out.String(), "Report: ")

	listed, err := a.reports.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, models.VerdictAnswerable, listed[0].Verdict)
	assert.Equal(t, question, listed[0].Question)
}

func TestRunAssessment_RefFlagsAndRetry(t *testing.T) {
	a := testApp(t)
	// The flag ref does not exist, so the user is asked again.
	p := &scriptedPrompter{answers: []string{"main", "sales", "abort"}}
	var out bytes.Buffer

	err := runAssessment(context.Background(), a.service, p, &out, question,
		&AssessOptions{Ref: "dev", Namespace: "sales"})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "dev")
	assert.Equal(t, "Ref:", p.prompts[0])
	assert.Contains(t, out.String(), "Session aborted.")
}

func TestRunAssessment_AbortDiscardsSession(t *testing.T) {
	a := testApp(t)
	p := &scriptedPrompter{answers: []string{"abort"}}
	var out bytes.Buffer

	require.NoError(t, runAssessment(context.Background(), a.service, p, &out, question, &AssessOptions{}))
	assert.Contains(t, out.String(), "Session aborted.")

	listed, err := a.reports.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestRunAssessment_AsksForQuestion(t *testing.T) {
	a := testApp(t)
	p := &scriptedPrompter{answers: []string{"", question}}
	var out bytes.Buffer

	require.NoError(t, runAssessment(context.Background(), a.service, p, &out, "", &AssessOptions{}))
	assert.Equal(t, "Question:", p.prompts[0])
	assert.Equal(t, "Question:", p.prompts[1])
	assert.Contains(t, out.String(), "Session aborted.")
}

func TestParseAnswers(t *testing.T) {
	tests := []struct {
		line string
		want map[string]string
	}{
		{"How many customers bought?", map[string]string{"question": "How many customers bought?"}},
		{"gap-1=net revenue; gap-2 = month", map[string]string{"gap-1": "net revenue", "gap-2": "month"}},
		{"=x; gap-3=", map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, parseAnswers(tt.line))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"orders", "customers"}, splitList("orders, customers"))
	assert.Equal(t, []string{"a", "b", "c"}, splitList("a b,c"))
	assert.Nil(t, splitList(" , "))
}

func TestProposedTables(t *testing.T) {
	got := proposedTables([]models.TableCandidate{
		{Name: "orders", Disposition: models.DispositionStrongCandidate},
		{Name: "events", Disposition: models.DispositionNotRelevant},
		{Name: "customers", Disposition: models.DispositionWeakCandidate},
	})
	assert.Equal(t, []string{"orders", "customers"}, got)
}

func TestRenderReportList(t *testing.T) {
	var out bytes.Buffer
	renderReportList(&out, nil)
	assert.Contains(t, out.String(), "(no reports)")

	out.Reset()
	renderReportList(&out, []models.ReportSummary{{
		Question:  question,
		Verdict:   models.VerdictNotAnswerable,
		Ref:       "main",
		CreatedAt: cliNow,
	}})
	assert.Contains(t, out.String(), question)
	assert.Contains(t, out.String(), "2025-03-15 10:30")
}

func TestNewRouter(t *testing.T) {
	a := testApp(t)
	server := mcp.NewAssessmentServer("test", a.service, a.healthInfo(), zap.NewNop())
	router := newRouter(a, server)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"lakehouse":"memory"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reports":[],"count":0}`, rec.Body.String())

	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": "assess_start", "arguments": map[string]any{"question": question}},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "awaiting_ref_confirmation")
}

func TestRootCommand(t *testing.T) {
	root := NewRootCmd("1.2.3")

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "assess", "reports", "version"})
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "ekaya-assess 1.2.3\n", out.String())
}

func TestServeCommandFlags(t *testing.T) {
	cmd := newServeCmd()
	assert.NotNil(t, cmd.Flags().Lookup("transport"))
	assert.NotNil(t, cmd.Flags().Lookup("port"))

	assess := newAssessCmd()
	for _, flag := range []string{"requester", "ref", "namespace"} {
		assert.NotNil(t, assess.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestReportsCommand_ListFromFileStore(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REPORTS_DIR", dir)
	t.Setenv("REPORTS_STORE", "file")
	t.Setenv("LAKEHOUSE_TYPE", "duckdb")

	root := NewRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", dir + "/missing.yaml", "reports", "list"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "(no reports)")
}
