package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

// ReportInput is everything a feasibility report is rendered from.
// ID and CreatedAt are supplied by the caller so rendering stays deterministic.
type ReportInput struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Ref       string
	Namespace string
	CreatedAt time.Time

	Decomposition *models.Decomposition
	Tables        []models.TableCandidate
	Mappings      []models.ConceptMapping
	Quality       []models.QualityRecord
	Findings      []models.SemanticFinding

	// Blocker is the gate failure that halted the run, if any.
	Blocker *apperrors.BlockerError
}

// ReportRenderer turns the outputs of every phase into a FeasibilityReport.
type ReportRenderer interface {
	// Render is deterministic: identical input yields an identical report.
	Render(in ReportInput) (*models.FeasibilityReport, error)
}

type reportRenderer struct {
	logger *zap.Logger
}

// NewReportRenderer creates a markdown report renderer.
func NewReportRenderer(logger *zap.Logger) ReportRenderer {
	return &reportRenderer{logger: logger.Named("report-renderer")}
}

var _ ReportRenderer = (*reportRenderer)(nil)

func (r *reportRenderer) Render(in ReportInput) (*models.FeasibilityReport, error) {
	if in.Decomposition == nil {
		return nil, fmt.Errorf("render report: decomposition is required: %w", apperrors.ErrInvalidInput)
	}
	dec := in.Decomposition

	decision := DecideVerdict(dec, in.Mappings, in.Quality, in.Findings)
	reason := decision.Reason
	if in.Blocker != nil && decision.Verdict == models.VerdictNotAnswerable {
		reason = in.Blocker.Message
	}

	report := &models.FeasibilityReport{
		ID:            in.ID,
		SessionID:     in.SessionID,
		Ref:           in.Ref,
		Namespace:     in.Namespace,
		Question:      dec.Question,
		Decomposition: *dec,
		Verdict:       decision.Verdict,
		Reason:        reason,
		Tables:        in.Tables,
		Mappings:      in.Mappings,
		Quality:       in.Quality,
		Findings:      in.Findings,
		JoinStrategy:  joinStrategy(in.Findings),
		Assumptions:   assumptions(in),
		Caveats:       caveats(in),
		NextSteps:     nextSteps(in, decision),
		CreatedAt:     in.CreatedAt,
	}
	report.Markdown = renderMarkdown(report, in.Blocker)

	r.logger.Info("report rendered",
		zap.String("report_id", report.ID.String()),
		zap.String("verdict", string(report.Verdict)))
	return report, nil
}

// ============================================================================
// Report Sections
// ============================================================================

func isJoinFinding(f models.SemanticFinding) bool {
	return f.Join != nil || strings.HasPrefix(f.Concept, joinFindingPrefix)
}

func joinStrategy(findings []models.SemanticFinding) []string {
	var out []string
	for _, f := range findings {
		if !isJoinFinding(f) {
			continue
		}
		if f.Join == nil {
			out = append(out, fmt.Sprintf("%s: %s", f.Concept, f.Reason))
			continue
		}
		out = append(out, fmt.Sprintf("%s = %s (%s overlap, max fanout %d, %s)",
			f.Join.Left, f.Join.Right, formatPercent(f.Join.Overlap), f.Join.MaxFanout, f.Class))
	}
	return out
}

func assumptions(in ReportInput) []string {
	dec := in.Decomposition
	var out []string

	out = append(out, fmt.Sprintf("Data was read at ref %q in namespace %q; other refs may differ.", in.Ref, in.Namespace))

	if dec.Metric.AggregationAssumed {
		out = append(out, fmt.Sprintf("%s is aggregated with %s, which the question did not state.", dec.Metric.Name, dec.Metric.Aggregation))
	}
	switch {
	case !dec.TimeScope.IsBounded():
		out = append(out, "No period was stated; all available history is used.")
	case dec.TimeScope.Phrase != "":
		out = append(out, fmt.Sprintf("%q covers complete periods from %s to %s (end exclusive).",
			dec.TimeScope.Phrase, dec.TimeScope.Start.Format("2006-01-02"), dec.TimeScope.End.Format("2006-01-02")))
	}
	if dec.Grain.IsOverall() {
		out = append(out, "A single overall figure is wanted, not a breakdown.")
	}
	if dec.TopN > 0 {
		out = append(out, fmt.Sprintf("Only the top %d rows of the ranking are reported.", dec.TopN))
	}
	for _, f := range dec.Filters {
		if f.Status == models.FieldStatusDeferred {
			out = append(out, fmt.Sprintf("Filter %q still needs a precise definition from the data.", f.Phrase))
		}
	}
	for _, c := range dec.Clarifications {
		out = append(out, fmt.Sprintf("Requester clarified %s as %q.", c.GapID, c.Answer))
	}
	for _, m := range in.Mappings {
		if col, ok := m.Primary(); ok && len(m.Candidates) == 1 {
			out = append(out, fmt.Sprintf("%s uses %s, the only candidate column.", m.Concept.Name, col))
		}
	}
	return out
}

func caveats(in ReportInput) []string {
	var out []string
	for _, q := range in.Quality {
		out = append(out, q.Deviations...)
	}
	for _, f := range in.Findings {
		if f.Class == models.FindingConfirmed {
			continue
		}
		out = append(out, fmt.Sprintf("%s is %s: %s", f.Concept, f.Class, f.Reason))
	}
	for _, m := range in.Mappings {
		if m.Concept.Critical {
			continue
		}
		if !m.IsMapped() {
			out = append(out, fmt.Sprintf("%s has no column and is left out.", m.Concept.Name))
		} else if m.NeedsChoice() {
			out = append(out, fmt.Sprintf("%s has %d competing columns and none was chosen.", m.Concept.Name, len(m.Candidates)))
		}
	}
	return out
}

func nextSteps(in ReportInput, d Decision) []string {
	var out []string
	switch d.Verdict {
	case models.VerdictNotAnswerable:
		if in.Blocker != nil {
			out = append(out, in.Blocker.Remediation...)
		}
		for _, m := range in.Mappings {
			if m.Concept.Critical && !m.IsMapped() && in.Blocker == nil {
				out = append(out, m.Alternatives...)
			}
		}
		out = append(out, "Supply the missing information and re-run the assessment.")
	case models.VerdictPartiallyAnswerable:
		for _, reason := range d.Reducing {
			out = append(out, "Resolve: "+reason+".")
		}
		out = append(out, "Proceed with the analysis only if the caveats above are acceptable to the requester.")
	default:
		out = append(out, "Hand the mapping to the analysis workflow: "+queryOutline(in)+".")
	}
	out = append(out, fmt.Sprintf("Pin ref %q when reproducing these results.", in.Ref))
	return out
}

// queryOutline describes the eventual query in terms of the chosen columns.
func queryOutline(in ReportInput) string {
	var measure string
	var groups, filters []string
	for _, m := range in.Mappings {
		col, ok := m.Primary()
		if !ok {
			continue
		}
		switch m.Concept.Role {
		case models.ConceptRoleMetric:
			measure = fmt.Sprintf("%s from %s", m.Transform, col.Table)
		case models.ConceptRoleDimension:
			groups = append(groups, col.String())
		case models.ConceptRoleTime:
			if m.Transform != "" {
				filters = append(filters, fmt.Sprintf("%s on %s", m.Transform, col))
			}
		case models.ConceptRoleFilter:
			filters = append(filters, fmt.Sprintf("%q on %s", m.Concept.Name, col))
		}
	}
	parts := []string{measure}
	if len(groups) > 0 {
		parts = append(parts, "grouped by "+strings.Join(groups, ", "))
	}
	if len(filters) > 0 {
		parts = append(parts, strings.Join(filters, "; "))
	}
	return strings.Join(parts, ", ")
}

// ============================================================================
// Markdown
// ============================================================================

func markdownTable(header table.Row, rows []table.Row) string {
	t := table.NewWriter()
	t.AppendHeader(header)
	t.AppendRows(rows)
	return t.RenderMarkdown()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func numbered(b *strings.Builder, items []string, empty string) {
	if len(items) == 0 {
		b.WriteString(empty + "\n")
		return
	}
	for i, item := range items {
		fmt.Fprintf(b, "%d. %s\n", i+1, item)
	}
}

func bulleted(b *strings.Builder, items []string, empty string) {
	if len(items) == 0 {
		b.WriteString(empty + "\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func metricLabel(m models.Metric) string {
	if m.Name == "" {
		return ""
	}
	if m.Aggregation == models.AggregationUnspecified {
		return m.Name
	}
	if m.AggregationAssumed {
		return fmt.Sprintf("%s (%s, assumed)", m.Name, m.Aggregation)
	}
	return fmt.Sprintf("%s (%s)", m.Name, m.Aggregation)
}

func decompositionRows(dec *models.Decomposition) []table.Row {
	scope := dec.TimeScope.String()
	if dec.TimeScope.IsBounded() && dec.TimeScope.Phrase != "" {
		scope = fmt.Sprintf("%s (%s)", scope, dec.TimeScope.Phrase)
	}
	dimStatus := models.FieldStatusResolved
	for _, d := range dec.Dimensions {
		if d.Status != models.FieldStatusResolved {
			dimStatus = d.Status
		}
	}
	var filters []string
	filterStatus := models.FieldStatusResolved
	for _, f := range dec.Filters {
		filters = append(filters, f.Phrase)
		if f.Status != models.FieldStatusResolved {
			filterStatus = f.Status
		}
	}
	if len(filters) == 0 {
		filterStatus = ""
	}
	if len(dec.Dimensions) == 0 {
		dimStatus = ""
	}
	return []table.Row{
		{"Metric", dash(metricLabel(dec.Metric)), dash(string(dec.Metric.Status))},
		{"Grain", dec.Grain.String(), dash(string(dec.Grain.Status))},
		{"Dimensions", dash(strings.Join(dec.DimensionNames(), ", ")), dash(string(dimStatus))},
		{"Time scope", scope, dash(string(dec.TimeScope.Status))},
		{"Filters", dash(strings.Join(filters, "; ")), dash(string(filterStatus))},
	}
}

func mappingRows(mappings []models.ConceptMapping) []table.Row {
	var rows []table.Row
	for _, m := range mappings {
		name := m.Concept.Name
		if m.Concept.Critical {
			name += " (critical)"
		}
		col, chosen := m.Primary()
		switch {
		case chosen:
			rows = append(rows, table.Row{name, col.Table, col.Column, dash(col.DataType), dash(m.Transform), dash(m.Notes)})
		case !m.IsMapped():
			notes := "unmapped"
			if len(m.Alternatives) > 0 {
				notes += "; " + strings.Join(m.Alternatives, "; ")
			}
			rows = append(rows, table.Row{name, "-", "-", "-", "-", notes})
		default:
			options := make([]string, 0, len(m.Candidates))
			for _, c := range m.Candidates {
				options = append(options, c.String())
			}
			rows = append(rows, table.Row{name, "-", "-", "-", "-", "not chosen; candidates: " + strings.Join(options, ", ")})
		}
	}
	return rows
}

func qualityRows(records []models.QualityRecord) []table.Row {
	var rows []table.Row
	for _, q := range records {
		freshness := "n/a"
		if q.MaxTimestamp != nil {
			freshness = q.MaxTimestamp.UTC().Format("2006-01-02")
		} else if c, ok := q.Check(models.CheckFreshness); ok && c.Grade != models.GradeUsable {
			freshness = c.Detail
		}
		coverage := "n/a"
		if q.RequestedMonths > 0 {
			coverage = fmt.Sprintf("%d/%d months", q.CoveredMonths, q.RequestedMonths)
		} else if q.MinTimestamp != nil && q.MaxTimestamp != nil {
			coverage = fmt.Sprintf("%s to %s", monthLabel(*q.MinTimestamp), monthLabel(*q.MaxTimestamp))
		}
		rows = append(rows, table.Row{
			q.Column.Table,
			q.Column.Column,
			freshness,
			formatPercent(q.NullRate),
			fmt.Sprintf("%d rows", q.RowCount),
			coverage,
			q.Grade.Label(),
		})
	}
	return rows
}

func writeFindings(b *strings.Builder, findings []models.SemanticFinding) {
	sections := []struct {
		title string
		class models.FindingClass
	}{
		{"Confirmed", models.FindingConfirmed},
		{"Ambiguous", models.FindingAmbiguous},
		{"Misaligned", models.FindingMisaligned},
	}
	for _, s := range sections {
		fmt.Fprintf(b, "### %s\n\n", s.title)
		items := models.FindingsByClass(findings, s.class)
		if len(items) == 0 {
			b.WriteString("None.\n\n")
			continue
		}
		for _, f := range items {
			target := ""
			if !f.Column.IsZero() && !isJoinFinding(f) {
				target = fmt.Sprintf(" (%s)", f.Column)
			}
			fmt.Fprintf(b, "- **%s**%s: %s\n", f.Concept, target, f.Reason)
			for _, e := range f.Evidence {
				fmt.Fprintf(b, "  - %s\n", e)
			}
		}
		b.WriteString("\n")
	}
}

func renderMarkdown(r *models.FeasibilityReport, blocker *apperrors.BlockerError) string {
	var b strings.Builder

	b.WriteString("# Feasibility Report\n\n")

	b.WriteString("## Business Question\n\n")
	fmt.Fprintf(&b, "> %s\n\n", r.Question)
	if r.Decomposition.Requester != "" {
		fmt.Fprintf(&b, "Requester: %s\n\n", r.Decomposition.Requester)
	}
	fmt.Fprintf(&b, "Ref: `%s`, namespace: `%s`, assessed %s\n\n", r.Ref, r.Namespace, r.CreatedAt.UTC().Format(time.RFC3339))

	b.WriteString("## Decomposition\n\n")
	b.WriteString(markdownTable(table.Row{"Component", "Value", "Status"}, decompositionRows(&r.Decomposition)))
	b.WriteString("\n\n")

	b.WriteString("## Verdict\n\n")
	fmt.Fprintf(&b, "**%s**: %s\n\n", r.Verdict.Label(), r.Reason)
	if blocker != nil {
		fmt.Fprintf(&b, "Halted on `%s`.\n\n", blocker.Code())
		bulleted(&b, blocker.Evidence, "")
		if len(blocker.Evidence) > 0 {
			b.WriteString("\n")
		}
	}

	b.WriteString("## Tables Considered\n\n")
	if len(r.Tables) == 0 {
		b.WriteString("No tables in the namespace.\n\n")
	} else {
		rows := make([]table.Row, 0, len(r.Tables))
		for _, t := range r.Tables {
			rows = append(rows, table.Row{t.Name, t.RowCount, t.Disposition.Label(), t.Reason})
		}
		b.WriteString(markdownTable(table.Row{"Table", "Rows", "Disposition", "Reason"}, rows))
		b.WriteString("\n\n")
	}

	b.WriteString("## Concept-to-Column Mapping\n\n")
	if len(r.Mappings) == 0 {
		b.WriteString("No concepts were mapped.\n\n")
	} else {
		b.WriteString(markdownTable(table.Row{"Concept", "Table", "Column", "Type", "Transform", "Notes"}, mappingRows(r.Mappings)))
		b.WriteString("\n\n")
	}

	b.WriteString("## Quality Scorecard\n\n")
	if len(r.Quality) == 0 {
		b.WriteString("Not profiled.\n\n")
	} else {
		b.WriteString(markdownTable(table.Row{"Table", "Column", "Freshness", "Null Rate", "Volume", "Coverage", "Grade"}, qualityRows(r.Quality)))
		b.WriteString("\n\n")
	}

	b.WriteString("## Semantic Findings\n\n")
	if len(r.Findings) == 0 {
		b.WriteString("Not validated.\n\n")
	} else {
		writeFindings(&b, r.Findings)
	}

	b.WriteString("## Join Strategy\n\n")
	if len(r.JoinStrategy) == 0 {
		b.WriteString("Not applicable: no join is needed.\n\n")
	} else {
		bulleted(&b, r.JoinStrategy, "")
		b.WriteString("\n")
	}

	b.WriteString("## Assumptions\n\n")
	numbered(&b, r.Assumptions, "None.")
	b.WriteString("\n")

	b.WriteString("## Caveats\n\n")
	bulleted(&b, r.Caveats, "None.")
	b.WriteString("\n")

	b.WriteString("## Recommended Next Steps\n\n")
	numbered(&b, r.NextSteps, "None.")

	return b.String()
}
