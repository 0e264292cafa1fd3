package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse"
	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/config"
	"github.com/ekaya-inc/ekaya-assess/pkg/lexicon"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
	"github.com/ekaya-inc/ekaya-assess/pkg/repositories"
	sqlguard "github.com/ekaya-inc/ekaya-assess/pkg/sql"
)

// ClarificationSuggester proposes answers for open gaps. Suggestions are shown
// to the requester and never resolve a gap on their own.
type ClarificationSuggester interface {
	SuggestClarifications(ctx context.Context, question string, gaps []models.Gap) ([]string, error)
}

// AssessmentService drives assessment sessions through the gated phases.
// Each session is independent; operations on one session are serialized.
type AssessmentService interface {
	// Start decomposes a question and opens a session.
	Start(ctx context.Context, question, requester string) (*StepResult, error)

	// Clarify answers gaps keyed by gap ID (or "question" / "role").
	Clarify(ctx context.Context, sessionID uuid.UUID, answers map[string]string) (*StepResult, error)

	// ConfirmRef fixes the ref and namespace every later query runs against.
	ConfirmRef(ctx context.Context, sessionID uuid.UUID, ref, namespace string) (*StepResult, error)

	// ConfirmTriage freezes the table selection and maps concepts to columns.
	ConfirmTriage(ctx context.Context, sessionID uuid.UUID, selected []string) (*StepResult, error)

	// ChooseColumn picks one candidate column for a concept.
	ChooseColumn(ctx context.Context, sessionID uuid.UUID, concept, table, column string) (*StepResult, error)

	// Continue runs the next automatic phase: quality, semantic or verdict.
	Continue(ctx context.Context, sessionID uuid.UUID) (*StepResult, error)

	Status(ctx context.Context, sessionID uuid.UUID) (*StepResult, error)

	// Abort discards the session. Reports already written are kept.
	Abort(ctx context.Context, sessionID uuid.UUID) (*StepResult, error)

	GetReport(ctx context.Context, reportID uuid.UUID) (*models.FeasibilityReport, error)
	ListReports(ctx context.Context, limit int) ([]models.ReportSummary, error)
}

type assessmentService struct {
	source     lakehouse.Source
	lex        *lexicon.Lexicon
	decomposer Decomposer
	triager    TableTriager
	mapper     ColumnMapper
	profiler   QualityProfiler
	validator  SemanticValidator
	renderer   ReportRenderer
	reports    repositories.ReportRepository
	suggester  ClarificationSuggester
	now        func() time.Time
	logger     *zap.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*assessmentSession
}

// NewAssessmentService wires the phase components over one lakehouse source.
// suggester may be nil. now defaults to time.Now.
func NewAssessmentService(
	source lakehouse.Source,
	lex *lexicon.Lexicon,
	cfg *config.Config,
	reports repositories.ReportRepository,
	suggester ClarificationSuggester,
	now func() time.Time,
	logger *zap.Logger,
) AssessmentService {
	if now == nil {
		now = time.Now
	}
	return &assessmentService{
		source:     source,
		lex:        lex,
		decomposer: NewDecomposer(lex, now, logger),
		triager:    NewTableTriager(lex, logger),
		mapper:     NewColumnMapper(lex, logger),
		profiler:   NewQualityProfiler(source, cfg.Quality, lex, now, logger),
		validator:  NewSemanticValidator(source, cfg.Semantic, lex, logger),
		renderer:   NewReportRenderer(logger),
		reports:    reports,
		suggester:  suggester,
		now:        now,
		logger:     logger.Named("assessment"),
		sessions:   make(map[uuid.UUID]*assessmentSession),
	}
}

var _ AssessmentService = (*assessmentService)(nil)

// ============================================================================
// Session bookkeeping
// ============================================================================

// lock returns the session with its mutex held.
func (a *assessmentService) lock(id uuid.UUID) (*assessmentSession, error) {
	a.mu.RLock()
	s, ok := a.sessions[id]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, apperrors.ErrSessionNotFound)
	}
	s.mu.Lock()
	if s.phase == models.PhaseAborted {
		s.mu.Unlock()
		return nil, fmt.Errorf("session %s: %w", id, apperrors.ErrSessionNotFound)
	}
	return s, nil
}

func invalidPhase(op string, s *assessmentSession) error {
	return fmt.Errorf("%s is not allowed in phase %s: %w", op, s.phase, apperrors.ErrInvalidPhase)
}

func (a *assessmentService) logStep(op string, s *assessmentSession) {
	fields := []zap.Field{
		zap.String("session_id", s.id.String()),
		zap.String("phase", string(s.phase)),
	}
	if s.awaiting != models.AwaitNothing {
		fields = append(fields, zap.String("awaiting", string(s.awaiting)))
	}
	if s.blocker != nil {
		fields = append(fields, zap.String("blocker", s.blocker.Code()))
	}
	a.logger.Info(op, fields...)
}

// ============================================================================
// Phase 0: decomposition and clarification
// ============================================================================

func (a *assessmentService) Start(ctx context.Context, question, requester string) (*StepResult, error) {
	s := newAssessmentSession(a.now())
	s.mu.Lock()
	defer s.mu.Unlock()

	dec, gaps, err := a.decomposer.Decompose(question, requester)
	if err := a.afterDecomposition(ctx, s, dec, gaps, err); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.sessions[s.id] = s
	a.mu.Unlock()

	a.logStep("assessment started", s)
	return s.result(), nil
}

func (a *assessmentService) Clarify(ctx context.Context, sessionID uuid.UUID, answers map[string]string) (*StepResult, error) {
	if len(answers) == 0 {
		return nil, fmt.Errorf("no answers given: %w", apperrors.ErrInvalidInput)
	}
	s, err := a.lock(sessionID)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	switch s.phase {
	case models.PhaseAwaitingClarification, models.PhaseAwaitingRefConfirmation, models.PhaseHalted:
	default:
		return nil, invalidPhase("clarify", s)
	}

	dec, gaps, err := a.decomposer.Clarify(s.dec, answers)
	if err := a.afterDecomposition(ctx, s, dec, gaps, err); err != nil {
		return nil, err
	}
	a.logStep("clarification applied", s)
	return s.result(), nil
}

func (a *assessmentService) afterDecomposition(ctx context.Context, s *assessmentSession, dec *models.Decomposition, gaps []models.Gap, err error) error {
	if err != nil {
		blocker, ok := apperrors.AsBlocker(err)
		if !ok {
			return err
		}
		s.dec = dec
		s.gaps = nil
		s.resetFrom(models.PhaseDecomposition)
		s.halt(models.PhaseDecomposition, blocker)
		return nil
	}

	s.dec = dec
	s.gaps = gaps
	s.resetFrom(models.PhaseDecomposition)

	if blocking := models.BlockingGaps(gaps); len(blocking) > 0 {
		s.suggestions = a.suggest(ctx, dec, blocking)
		s.moveTo(models.PhaseAwaitingClarification, models.AwaitClarification,
			fmt.Sprintf("%d critical gap(s) must be answered before the data is examined", len(blocking)))
		return nil
	}

	s.suggestions = nil
	s.concepts = BuildConcepts(dec, a.lex)
	if s.refConfirmed {
		return a.runTriage(ctx, s)
	}
	s.moveTo(models.PhaseAwaitingRefConfirmation, models.AwaitRefConfirmation,
		fmt.Sprintf("decomposed as %s; confirm the ref and namespace to assess against", dec.Summary()))
	return nil
}

func (a *assessmentService) suggest(ctx context.Context, dec *models.Decomposition, gaps []models.Gap) []string {
	if a.suggester == nil {
		return nil
	}
	out, err := a.suggester.SuggestClarifications(ctx, dec.Question, gaps)
	if err != nil {
		a.logger.Warn("clarification suggestions unavailable", zap.Error(err))
		return nil
	}
	return out
}

// ============================================================================
// Ref confirmation and triage
// ============================================================================

func (a *assessmentService) ConfirmRef(ctx context.Context, sessionID uuid.UUID, ref, namespace string) (*StepResult, error) {
	ref, namespace = strings.TrimSpace(ref), strings.TrimSpace(namespace)
	if ref == "" {
		return nil, apperrors.ErrRefRequired
	}
	if namespace == "" {
		return nil, fmt.Errorf("namespace is required: %w", apperrors.ErrInvalidInput)
	}
	if err := sqlguard.ValidateName("ref", ref); err != nil {
		return nil, fmt.Errorf("%v: %w", err, apperrors.ErrInvalidInput)
	}
	if err := sqlguard.ValidateName("namespace", namespace); err != nil {
		return nil, fmt.Errorf("%v: %w", err, apperrors.ErrInvalidInput)
	}

	s, err := a.lock(sessionID)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	// A new ref is new information for any halt after the ref was confirmed.
	if s.phase != models.PhaseAwaitingRefConfirmation && (s.phase != models.PhaseHalted || !s.refConfirmed) {
		return nil, invalidPhase("confirm_ref", s)
	}

	ok, err := a.source.HasRef(ctx, lakehouse.Ref(ref))
	if err != nil {
		return nil, fmt.Errorf("failed to check ref %q: %w", ref, err)
	}
	if !ok {
		return nil, fmt.Errorf("ref %q: %w", ref, apperrors.ErrRefNotFound)
	}

	prevRef, prevNamespace, prevConfirmed := s.ref, s.namespace, s.refConfirmed
	s.ref = lakehouse.Ref(ref)
	s.namespace = namespace
	s.refConfirmed = true
	if err := a.runTriage(ctx, s); err != nil {
		s.ref, s.namespace, s.refConfirmed = prevRef, prevNamespace, prevConfirmed
		return nil, err
	}
	a.logStep("ref confirmed", s)
	return s.result(), nil
}

// loadTables lists the namespace and fetches each table's schema and exact
// row count.
func (a *assessmentService) loadTables(ctx context.Context, ref lakehouse.Ref, namespace string) ([]models.TableCandidate, error) {
	listed, err := a.source.ListTables(ctx, ref, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables in %s at %s: %w", namespace, ref, err)
	}
	tables := make([]models.TableCandidate, 0, len(listed))
	for _, t := range listed {
		full, err := a.source.GetTable(ctx, ref, namespace, t.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to describe table %s: %w", t.Name, err)
		}
		tables = append(tables, *full)
	}
	return tables, nil
}

func (a *assessmentService) runTriage(ctx context.Context, s *assessmentSession) error {
	tables, err := a.loadTables(ctx, s.ref, s.namespace)
	if err != nil {
		return err
	}

	s.resetFrom(models.PhaseTriage)
	s.triage = a.triager.Triage(tables, s.concepts)

	if len(tables) == 0 {
		// Nothing to confirm; the mapping gate reports the empty namespace.
		s.tables = []models.TableCandidate{}
		return a.runMapping(ctx, s)
	}

	s.moveTo(models.PhaseAwaitingTriageConfirmation, models.AwaitTriageConfirmation,
		fmt.Sprintf("%d strong and %d weak candidate table(s) out of %d; confirm the selection",
			s.triage.Count(models.DispositionStrongCandidate),
			s.triage.Count(models.DispositionWeakCandidate),
			len(tables)))
	return nil
}

// ============================================================================
// Phase 1: concept mapping
// ============================================================================

func (a *assessmentService) ConfirmTriage(ctx context.Context, sessionID uuid.UUID, selected []string) (*StepResult, error) {
	s, err := a.lock(sessionID)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	reentry := s.phase == models.PhaseHalted && s.triage != nil && s.haltedIn.Number() >= 1
	if s.phase != models.PhaseAwaitingTriageConfirmation && !reentry {
		return nil, invalidPhase("confirm_triage", s)
	}

	frozen, err := a.triager.Confirm(s.triage, selected)
	if err != nil {
		return nil, err
	}
	s.tables = frozen
	if err := a.runMapping(ctx, s); err != nil {
		return nil, err
	}
	a.logStep("triage confirmed", s)
	return s.result(), nil
}

func (a *assessmentService) runMapping(ctx context.Context, s *assessmentSession) error {
	s.resetFrom(models.PhaseAwaitingColumnChoice)

	selected := SelectedTables(s.tables)
	mappings := a.mapper.MapConcepts(s.dec, selected, s.concepts)
	s.mappings = mappings
	if err := a.mapper.Gate(mappings, selected, s.tables); err != nil {
		return a.haltWith(ctx, s, models.PhaseTriage, err)
	}

	if pending := PendingChoices(mappings); len(pending) > 0 {
		names := make([]string, 0, len(pending))
		for _, m := range pending {
			names = append(names, m.Concept.Name)
		}
		s.moveTo(models.PhaseAwaitingColumnChoice, models.AwaitColumnChoice,
			fmt.Sprintf("choose a column for %s; several candidates fit", strings.Join(names, ", ")))
		return nil
	}
	a.mappingComplete(s)
	return nil
}

func (a *assessmentService) mappingComplete(s *assessmentSession) {
	s.moveTo(models.PhaseQuality, models.AwaitContinue,
		fmt.Sprintf("%d concept(s) mapped; continue to profile data quality", len(s.mappings)))
}

func (a *assessmentService) ChooseColumn(ctx context.Context, sessionID uuid.UUID, concept, table, column string) (*StepResult, error) {
	s, err := a.lock(sessionID)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	if s.phase != models.PhaseAwaitingColumnChoice {
		return nil, invalidPhase("choose_column", s)
	}

	mappings, err := a.mapper.ChooseColumn(s.dec, s.mappings, concept, table, column)
	if err != nil {
		return nil, err
	}
	s.mappings = mappings
	if pending := PendingChoices(mappings); len(pending) > 0 {
		s.message = fmt.Sprintf("%d concept(s) still need a column choice", len(pending))
	} else {
		a.mappingComplete(s)
	}
	a.logStep("column chosen", s)
	return s.result(), nil
}

// ============================================================================
// Phases 2-4: quality, semantic validation, verdict
// ============================================================================

func (a *assessmentService) Continue(ctx context.Context, sessionID uuid.UUID) (*StepResult, error) {
	s, err := a.lock(sessionID)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	switch s.phase {
	case models.PhaseQuality:
		err = a.runQuality(ctx, s)
	case models.PhaseSemantic:
		err = a.runSemantic(ctx, s)
	case models.PhaseVerdict:
		err = a.finish(ctx, s, nil)
		if err == nil {
			s.moveTo(models.PhaseCompleted, models.AwaitNothing,
				fmt.Sprintf("%s: %s", s.report.Verdict.Label(), s.report.Reason))
		}
	default:
		return nil, invalidPhase("continue", s)
	}
	if err != nil {
		return nil, err
	}
	a.logStep("phase advanced", s)
	return s.result(), nil
}

func (a *assessmentService) runQuality(ctx context.Context, s *assessmentSession) error {
	records, err := a.profiler.Profile(ctx, s.ref, s.namespace, s.dec, s.mappings)
	if err != nil {
		return fmt.Errorf("quality profiling failed: %w", err)
	}
	s.resetFrom(models.PhaseQuality)
	s.quality = records
	if err := a.profiler.Gate(records, s.mappings); err != nil {
		return a.haltWith(ctx, s, models.PhaseQuality, err)
	}

	var caveats int
	for _, r := range records {
		if r.Grade == models.GradeUsableWithCaveats {
			caveats++
		}
	}
	s.moveTo(models.PhaseSemantic, models.AwaitContinue,
		fmt.Sprintf("%d column(s) profiled, %d with caveats; continue to validate meaning", len(records), caveats))
	return nil
}

func (a *assessmentService) runSemantic(ctx context.Context, s *assessmentSession) error {
	findings, err := a.validator.Validate(ctx, s.ref, s.namespace, s.mappings, SelectedTables(s.tables))
	if err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}
	s.resetFrom(models.PhaseSemantic)
	s.findings = findings

	message := fmt.Sprintf("%d confirmed, %d ambiguous, %d misaligned; continue to render the verdict",
		len(models.FindingsByClass(findings, models.FindingConfirmed)),
		len(models.FindingsByClass(findings, models.FindingAmbiguous)),
		len(models.FindingsByClass(findings, models.FindingMisaligned)))
	// Misalignment downgrades the verdict; it does not halt.
	if blocker, ok := apperrors.AsBlocker(SemanticBlocker(findings)); ok {
		message = blocker.Message + "; " + message
	}
	s.moveTo(models.PhaseVerdict, models.AwaitContinue, message)
	return nil
}

// haltWith halts the session on a blocker and writes the not-answerable
// report for the run. Errors that are not blockers are returned as is.
func (a *assessmentService) haltWith(ctx context.Context, s *assessmentSession, in models.Phase, err error) error {
	blocker, ok := apperrors.AsBlocker(err)
	if !ok {
		return err
	}
	s.halt(in, blocker)
	return a.finish(ctx, s, blocker)
}

// finish renders and stores the report for the current run.
func (a *assessmentService) finish(ctx context.Context, s *assessmentSession, blocker *apperrors.BlockerError) error {
	tables := s.tables
	if tables == nil && s.triage != nil {
		tables = s.triage.Tables
	}
	report, err := a.renderer.Render(ReportInput{
		ID:            uuid.New(),
		SessionID:     s.id,
		Ref:           s.ref.String(),
		Namespace:     s.namespace,
		CreatedAt:     a.now(),
		Decomposition: s.dec,
		Tables:        tables,
		Mappings:      s.mappings,
		Quality:       s.quality,
		Findings:      s.findings,
		Blocker:       blocker,
	})
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	if a.reports != nil {
		if err := a.reports.Create(ctx, report); err != nil {
			return fmt.Errorf("failed to store report: %w", err)
		}
	}
	s.report = report
	a.logger.Info("feasibility report written",
		zap.String("session_id", s.id.String()),
		zap.String("report_id", report.ID.String()),
		zap.String("verdict", string(report.Verdict)))
	return nil
}

// ============================================================================
// Status, abort and reports
// ============================================================================

func (a *assessmentService) Status(ctx context.Context, sessionID uuid.UUID) (*StepResult, error) {
	s, err := a.lock(sessionID)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	return s.result(), nil
}

func (a *assessmentService) Abort(ctx context.Context, sessionID uuid.UUID) (*StepResult, error) {
	s, err := a.lock(sessionID)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	a.mu.Lock()
	delete(a.sessions, sessionID)
	a.mu.Unlock()

	s.discard()
	s.moveTo(models.PhaseAborted, models.AwaitNothing, "session aborted; working state discarded")
	a.logStep("assessment aborted", s)
	return s.result(), nil
}

func (a *assessmentService) GetReport(ctx context.Context, reportID uuid.UUID) (*models.FeasibilityReport, error) {
	if a.reports == nil {
		return nil, fmt.Errorf("report %s: %w", reportID, apperrors.ErrNotFound)
	}
	return a.reports.GetByID(ctx, reportID)
}

func (a *assessmentService) ListReports(ctx context.Context, limit int) ([]models.ReportSummary, error) {
	if a.reports == nil {
		return []models.ReportSummary{}, nil
	}
	return a.reports.List(ctx, limit)
}
