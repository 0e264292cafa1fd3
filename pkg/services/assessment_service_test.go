package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse/memory"
	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/config"
	"github.com/ekaya-inc/ekaya-assess/pkg/lexicon"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

const revenueQuestion = "Top customers by revenue in the last 12 months?"

// mockReportRepository keeps reports in memory and enforces insert-only writes.
type mockReportRepository struct {
	mu      sync.Mutex
	reports map[uuid.UUID]*models.FeasibilityReport
	order   []uuid.UUID
	err     error
}

func newMockReportRepository() *mockReportRepository {
	return &mockReportRepository{reports: make(map[uuid.UUID]*models.FeasibilityReport)}
}

func (m *mockReportRepository) Create(_ context.Context, report *models.FeasibilityReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.reports[report.ID]; ok {
		return apperrors.ErrReportExists
	}
	m.reports[report.ID] = report
	m.order = append(m.order, report.ID)
	return nil
}

func (m *mockReportRepository) GetByID(_ context.Context, id uuid.UUID) (*models.FeasibilityReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return r, nil
}

func (m *mockReportRepository) List(_ context.Context, _ int) ([]models.ReportSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ReportSummary, 0, len(m.order))
	for _, id := range m.order {
		r := m.reports[id]
		out = append(out, models.ReportSummary{ID: r.ID, Question: r.Question, Verdict: r.Verdict})
	}
	return out, nil
}

type stubSuggester struct {
	suggestions []string
	err         error
	calls       int
}

func (s *stubSuggester) SuggestClarifications(_ context.Context, _ string, _ []models.Gap) ([]string, error) {
	s.calls++
	return s.suggestions, s.err
}

func newTestService(a *memory.Adapter, repo *mockReportRepository, suggester ClarificationSuggester) AssessmentService {
	cfg := &config.Config{Quality: defaultQualityConfig(), Semantic: defaultSemanticConfig()}
	return NewAssessmentService(a, lexicon.Default(), cfg, repo, suggester, func() time.Time { return fixedNow }, zap.NewNop())
}

// startAtTriage runs a question through decomposition and ref confirmation.
func startAtTriage(t *testing.T, svc AssessmentService) *StepResult {
	t.Helper()
	ctx := context.Background()

	res, err := svc.Start(ctx, revenueQuestion, "")
	require.NoError(t, err)
	require.Equal(t, models.PhaseAwaitingRefConfirmation, res.Phase)
	require.Equal(t, models.AwaitRefConfirmation, res.Awaiting)

	res, err = svc.ConfirmRef(ctx, res.SessionID, testRef, testNamespace)
	require.NoError(t, err)
	return res
}

func ordersWithSubtotal() memory.Table {
	orders := ordersTable(date(2024, time.March, 1), 12, 4)
	orders.Columns = append(orders.Columns, models.ColumnSchema{Name: "subtotal", DataType: "numeric"})
	for i, row := range orders.Rows {
		row["subtotal"] = float64(90 + i*10)
	}
	return orders
}

func TestAssessment_AnswerableEndToEnd(t *testing.T) {
	ctx := context.Background()
	repo := newMockReportRepository()
	svc := newTestService(shopAdapter(), repo, nil)

	res := startAtTriage(t, svc)
	require.Equal(t, models.PhaseAwaitingTriageConfirmation, res.Phase)
	require.Len(t, res.Tables, 3)
	web, ok := models.FindTable(res.Tables, "web_events")
	require.True(t, ok)
	assert.Equal(t, models.DispositionNotRelevant, web.Disposition)
	assert.NotEmpty(t, web.Reason)

	id := res.SessionID
	res, err := svc.ConfirmTriage(ctx, id, []string{"orders", "customers"})
	require.NoError(t, err)
	require.Equal(t, models.PhaseQuality, res.Phase)
	assert.Equal(t, models.AwaitContinue, res.Awaiting)

	res, err = svc.Continue(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.PhaseSemantic, res.Phase)
	assert.NotEmpty(t, res.Quality)

	res, err = svc.Continue(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.PhaseVerdict, res.Phase)
	assert.NotEmpty(t, res.Findings)

	res, err = svc.Continue(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.PhaseCompleted, res.Phase)
	require.NotNil(t, res.Report)
	assert.Equal(t, models.VerdictAnswerable, res.Report.Verdict)
	assert.Equal(t, id, res.Report.SessionID)
	assert.Equal(t, testRef, res.Report.Ref)

	stored, err := svc.GetReport(ctx, res.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Report.Markdown, stored.Markdown)

	_, err = svc.Continue(ctx, id)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidPhase))
}

// Scenario: zero tables in the namespace.
func TestAssessment_EmptyNamespaceHaltsOnUnmappedConcepts(t *testing.T) {
	a := memory.New()
	a.AddRef(testRef)
	repo := newMockReportRepository()
	svc := newTestService(a, repo, nil)

	res := startAtTriage(t, svc)

	require.Equal(t, models.PhaseHalted, res.Phase)
	assert.Equal(t, models.AwaitNewInformation, res.Awaiting)
	require.NotNil(t, res.Blocker)
	assert.True(t, errors.Is(res.Blocker, apperrors.ErrUnmappedCriticalConcept))
	assert.Equal(t, "unmapped_critical_concept", res.BlockerCode)
	assert.Contains(t, res.Blocker.Message, "revenue")
	assert.Contains(t, res.Blocker.Message, "customer")
	assert.Contains(t, res.Blocker.Evidence, "no tables available (0 in namespace)")

	require.NotNil(t, res.Report)
	assert.Equal(t, models.VerdictNotAnswerable, res.Report.Verdict)
	assert.Contains(t, res.Report.Markdown, "Halted on `unmapped_critical_concept`.")
	assert.Len(t, repo.order, 1)
}

// Scenario: one matching table with a complete revenue column.
func TestAssessment_SingleTableIsAnswerable(t *testing.T) {
	ctx := context.Background()
	a := memory.New()
	a.AddTable(testRef, testNamespace, ordersTable(date(2024, time.March, 1), 12, 4))
	svc := newTestService(a, newMockReportRepository(), nil)

	res := startAtTriage(t, svc)
	id := res.SessionID
	res, err := svc.ConfirmTriage(ctx, id, []string{"orders"})
	require.NoError(t, err)
	require.Equal(t, models.PhaseQuality, res.Phase)

	res, err = svc.Continue(ctx, id)
	require.NoError(t, err)
	revenue := findRecord(t, res.Quality, "revenue")
	assert.Equal(t, models.GradeUsable, revenue.Grade)
	assert.Zero(t, revenue.NullRate)

	_, err = svc.Continue(ctx, id)
	require.NoError(t, err)
	res, err = svc.Continue(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictAnswerable, res.Report.Verdict)
}

// ordersWithoutTime returns orders(id, customer_id, order_total) with
// complete totals and no temporal column.
func ordersWithoutTime(n int) memory.Table {
	rows := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, map[string]any{
			"id":          int64(i + 1),
			"customer_id": int64(i%4 + 1),
			"order_total": float64(100 + i*10),
		})
	}
	return memory.Table{Name: "orders", Columns: ordersColumns()[:3], Rows: rows}
}

// runUnscoped drives an unscoped question from start to report over the
// given tables, which are all confirmed at triage.
func runUnscoped(t *testing.T, a *memory.Adapter, tables ...string) *StepResult {
	t.Helper()
	ctx := context.Background()
	svc := newTestService(a, newMockReportRepository(), nil)

	res, err := svc.Start(ctx, "Top customers by revenue?", "")
	require.NoError(t, err)
	require.Equal(t, models.PhaseAwaitingRefConfirmation, res.Phase)
	id := res.SessionID

	res, err = svc.ConfirmRef(ctx, id, testRef, testNamespace)
	require.NoError(t, err)
	res, err = svc.ConfirmTriage(ctx, id, tables)
	require.NoError(t, err)
	require.Equal(t, models.PhaseQuality, res.Phase)
	_, ok := models.FindMapping(res.Mappings, TimeConcept)
	assert.False(t, ok)

	for res.Phase != models.PhaseCompleted {
		res, err = svc.Continue(ctx, id)
		require.NoError(t, err)
	}
	require.NotNil(t, res.Report)
	return res
}

// Scenario: no time asked for and no temporal column in the data.
func TestAssessment_UnscopedQuestionWithoutTimeColumnIsAnswerable(t *testing.T) {
	a := memory.New()
	a.AddTable(testRef, testNamespace, ordersWithoutTime(12))

	res := runUnscoped(t, a, "orders")
	assert.Equal(t, models.VerdictAnswerable, res.Report.Verdict)
}

func TestAssessment_UnscopedQuestionIgnoresCompetingTimestamps(t *testing.T) {
	orders := ordersTable(date(2024, time.March, 1), 12, 4)
	orders.Columns = append(orders.Columns, models.ColumnSchema{Name: "shipped_at", DataType: "timestamp"})
	for _, row := range orders.Rows {
		row["shipped_at"] = row["created_at"]
	}
	a := memory.New()
	a.AddTable(testRef, testNamespace, orders)

	res := runUnscoped(t, a, "orders")
	assert.Equal(t, models.VerdictAnswerable, res.Report.Verdict)
}

// Scenario: two competing revenue columns and no choice supplied.
func TestAssessment_CompetingColumnsAwaitChoice(t *testing.T) {
	ctx := context.Background()
	a := memory.New()
	a.AddTable(testRef, testNamespace, ordersWithSubtotal())
	a.AddTable(testRef, testNamespace, customersTable(4))
	svc := newTestService(a, newMockReportRepository(), nil)

	res := startAtTriage(t, svc)
	id := res.SessionID
	res, err := svc.ConfirmTriage(ctx, id, []string{"orders", "customers"})
	require.NoError(t, err)

	require.Equal(t, models.PhaseAwaitingColumnChoice, res.Phase)
	assert.Equal(t, models.AwaitColumnChoice, res.Awaiting)
	require.Len(t, res.PendingChoices, 1)
	pending := res.PendingChoices[0]
	assert.Equal(t, "revenue", pending.Concept.Name)
	assert.False(t, pending.Chosen)
	assert.True(t, pending.ChosenColumn.IsZero())
	assert.Len(t, pending.Candidates, 2)

	_, err = svc.Continue(ctx, id)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidPhase))

	_, err = svc.ChooseColumn(ctx, id, "revenue", "orders", "discount")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	res, err = svc.ChooseColumn(ctx, id, "revenue", "orders", "subtotal")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseQuality, res.Phase)
	mapping, ok := models.FindMapping(res.Mappings, "revenue")
	require.True(t, ok)
	assert.Equal(t, "subtotal", mapping.ChosenColumn.Column)
}

// Scenario: 40% of order customer ids exist in customers.
func TestAssessment_PartialJoinOverlapCapsVerdict(t *testing.T) {
	ctx := context.Background()
	a := memory.New()
	a.AddTable(testRef, testNamespace, ordersTable(date(2024, time.March, 1), 12, 5))
	a.AddTable(testRef, testNamespace, customersTable(2))
	svc := newTestService(a, newMockReportRepository(), nil)

	res := startAtTriage(t, svc)
	id := res.SessionID
	_, err := svc.ConfirmTriage(ctx, id, []string{"orders", "customers"})
	require.NoError(t, err)

	res, err = svc.Continue(ctx, id)
	require.NoError(t, err)
	for _, q := range res.Quality {
		assert.NotEqual(t, models.GradeNotUsable, q.Grade, q.Column.String())
	}

	res, err = svc.Continue(ctx, id)
	require.NoError(t, err)
	join, ok := findFinding(res.Findings, "join orders to customers (customer)")
	require.True(t, ok)
	assert.Equal(t, models.FindingAmbiguous, join.Class)
	require.NotNil(t, join.Join)
	assert.InDelta(t, 0.4, join.Join.Overlap, 1e-9)

	res, err = svc.Continue(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictPartiallyAnswerable, res.Report.Verdict)
}

// Scenario: data for 2 of the 12 requested months.
func TestAssessment_CoverageGapHaltsQuality(t *testing.T) {
	ctx := context.Background()
	a := memory.New()
	a.AddTable(testRef, testNamespace, ordersTable(date(2025, time.January, 1), 2, 4))
	a.AddTable(testRef, testNamespace, customersTable(4))
	repo := newMockReportRepository()
	svc := newTestService(a, repo, nil)

	res := startAtTriage(t, svc)
	id := res.SessionID
	_, err := svc.ConfirmTriage(ctx, id, []string{"orders", "customers"})
	require.NoError(t, err)

	res, err = svc.Continue(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.PhaseHalted, res.Phase)
	require.NotNil(t, res.Blocker)
	assert.True(t, errors.Is(res.Blocker, apperrors.ErrQualityBlocker))
	assert.Contains(t, res.Blocker.Message, "orders.order_total (revenue)")
	assert.Contains(t, fmt.Sprint(res.Blocker.Evidence), "data covers 2 of 12 requested months")
	assert.Contains(t, res.Blocker.Remediation, "narrow the time scope to 2025-01..2025-02 where orders has data")

	revenue := findRecord(t, res.Quality, "revenue")
	assert.Equal(t, models.GradeNotUsable, revenue.Grade)
	require.NotNil(t, res.Report)
	assert.Equal(t, models.VerdictNotAnswerable, res.Report.Verdict)

	// A halted session accepts no further automatic steps.
	_, err = svc.Continue(ctx, id)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidPhase))

	// Narrowing the scope is new information: the workflow re-enters at triage.
	res, err = svc.Clarify(ctx, id, map[string]string{string(models.GapFieldTimeScope): "from 2025-01-01 to 2025-02-28"})
	require.NoError(t, err)
	assert.Equal(t, models.PhaseAwaitingTriageConfirmation, res.Phase)
	assert.Nil(t, res.Blocker)
	assert.Nil(t, res.Report)
	assert.Len(t, repo.order, 1)
}

func TestAssessment_InsufficientContextAwaitsNewInformation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(shopAdapter(), newMockReportRepository(), nil)

	res, err := svc.Start(ctx, "I don't know", "")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseHalted, res.Phase)
	assert.Equal(t, models.AwaitNewInformation, res.Awaiting)
	assert.Equal(t, "insufficient_context", res.BlockerCode)
	assert.Nil(t, res.Report)

	res, err = svc.Clarify(ctx, res.SessionID, map[string]string{AnswerRole: "finance"})
	require.NoError(t, err)
	assert.Equal(t, models.PhaseAwaitingClarification, res.Phase)
	require.NotEmpty(t, res.Gaps)
	assert.Equal(t, lexicon.Default().RoleStarters["finance"], res.Gaps[0].Options)

	res, err = svc.Clarify(ctx, res.SessionID, map[string]string{AnswerQuestion: revenueQuestion})
	require.NoError(t, err)
	assert.Equal(t, models.PhaseAwaitingRefConfirmation, res.Phase)
}

func TestAssessment_CriticalGapsSolicitAnswers(t *testing.T) {
	ctx := context.Background()
	suggester := &stubSuggester{suggestions: []string{"Use total sales per store"}}
	svc := newTestService(shopAdapter(), newMockReportRepository(), suggester)

	res, err := svc.Start(ctx, "Which stores have the best performance?", "")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseAwaitingClarification, res.Phase)
	assert.NotEmpty(t, models.BlockingGaps(res.Gaps))
	assert.Equal(t, []string{"Use total sales per store"}, res.Suggestions)
	assert.Equal(t, 1, suggester.calls)

	// The data is never examined while a critical gap is open.
	_, err = svc.ConfirmRef(ctx, res.SessionID, testRef, testNamespace)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidPhase))
}

func TestAssessment_SuggesterFailureIsNotFatal(t *testing.T) {
	suggester := &stubSuggester{err: errors.New("endpoint down")}
	svc := newTestService(shopAdapter(), newMockReportRepository(), suggester)

	res, err := svc.Start(context.Background(), "Which stores have the best performance?", "")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseAwaitingClarification, res.Phase)
	assert.Empty(t, res.Suggestions)
}

func TestAssessment_ConfirmRefValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(shopAdapter(), newMockReportRepository(), nil)

	res, err := svc.Start(ctx, revenueQuestion, "")
	require.NoError(t, err)
	id := res.SessionID

	tests := []struct {
		name      string
		ref       string
		namespace string
		want      error
	}{
		{"empty ref", "", testNamespace, apperrors.ErrRefRequired},
		{"empty namespace", testRef, "", apperrors.ErrInvalidInput},
		{"injection in ref", "main'; DROP TABLE orders; --", testNamespace, apperrors.ErrInvalidInput},
		{"unknown ref", "feature-x", testNamespace, apperrors.ErrRefNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ConfirmRef(ctx, id, tt.ref, tt.namespace)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), err.Error())
		})
	}

	res, err = svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseAwaitingRefConfirmation, res.Phase)
	assert.Empty(t, res.Ref)
}

func TestAssessment_AbortDiscardsSession(t *testing.T) {
	ctx := context.Background()
	repo := newMockReportRepository()
	svc := newTestService(shopAdapter(), repo, nil)

	res := startAtTriage(t, svc)
	id := res.SessionID

	res, err := svc.Abort(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseAborted, res.Phase)
	assert.Nil(t, res.Decomposition)
	assert.Empty(t, res.Tables)
	assert.Empty(t, res.Ref)

	_, err = svc.Status(ctx, id)
	assert.True(t, errors.Is(err, apperrors.ErrSessionNotFound))
	_, err = svc.ConfirmTriage(ctx, id, nil)
	assert.True(t, errors.Is(err, apperrors.ErrSessionNotFound))
	assert.Empty(t, repo.order)
}

func TestAssessment_ReportStoreFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	repo := newMockReportRepository()
	svc := newTestService(shopAdapter(), repo, nil)

	res := startAtTriage(t, svc)
	id := res.SessionID
	_, err := svc.ConfirmTriage(ctx, id, []string{"orders", "customers"})
	require.NoError(t, err)
	_, err = svc.Continue(ctx, id)
	require.NoError(t, err)
	_, err = svc.Continue(ctx, id)
	require.NoError(t, err)

	repo.err = errors.New("disk full")
	_, err = svc.Continue(ctx, id)
	require.Error(t, err)

	res, err = svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseVerdict, res.Phase)
	assert.Nil(t, res.Report)

	repo.err = nil
	res, err = svc.Continue(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseCompleted, res.Phase)
}

func TestAssessment_SessionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(shopAdapter(), newMockReportRepository(), nil)

	first := startAtTriage(t, svc)
	second := startAtTriage(t, svc)
	require.NotEqual(t, first.SessionID, second.SessionID)

	_, err := svc.Abort(ctx, first.SessionID)
	require.NoError(t, err)

	res, err := svc.Status(ctx, second.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseAwaitingTriageConfirmation, res.Phase)
}

func TestAssessment_UnknownSession(t *testing.T) {
	svc := newTestService(shopAdapter(), newMockReportRepository(), nil)
	_, err := svc.Status(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, apperrors.ErrSessionNotFound))
}

func findRecord(t *testing.T, records []models.QualityRecord, concept string) models.QualityRecord {
	t.Helper()
	for _, r := range records {
		if r.Concept == concept {
			return r
		}
	}
	require.Failf(t, "record not found", "no quality record for %q", concept)
	return models.QualityRecord{}
}
