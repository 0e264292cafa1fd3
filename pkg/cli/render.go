package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ekaya-inc/ekaya-assess/pkg/models"
	"github.com/ekaya-inc/ekaya-assess/pkg/services"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

// renderStep prints everything new in a step result.
func renderStep(w io.Writer, r *services.StepResult) {
	_, _ = fmt.Fprintf(w, "\n%s %s\n", titleStyle.Render(r.Message), phaseStyle.Render("["+string(r.Phase)+"]"))

	if r.Decomposition != nil && r.Awaiting == models.AwaitRefConfirmation {
		_, _ = fmt.Fprintf(w, "  %s\n", r.Decomposition.Summary())
	}
	if len(r.Suggestions) > 0 {
		_, _ = fmt.Fprintln(w, hintStyle.Render("  Suggested answers:"))
		for _, s := range r.Suggestions {
			_, _ = fmt.Fprintf(w, "  %s\n", hintStyle.Render("- "+s))
		}
	}
	if r.Awaiting == models.AwaitTriageConfirmation && len(r.Tables) > 0 {
		renderTables(w, r.Tables)
	}
	if len(r.PendingChoices) > 0 {
		renderMappings(w, r.PendingChoices)
	}
	if r.Phase == models.PhaseSemantic && len(r.Quality) > 0 {
		renderQuality(w, r.Quality)
	}
	if r.Phase == models.PhaseVerdict && len(r.Findings) > 0 {
		renderFindings(w, r.Findings)
	}
	if r.Blocker != nil {
		renderBlocker(w, r)
	}
	if r.Report != nil {
		_, _ = fmt.Fprintf(w, "\nVerdict: %s\n", verdictStyle(r.Report.Verdict).Render(r.Report.Verdict.Label()))
		_, _ = fmt.Fprintf(w, "Report: %s\n", r.Report.ID)
	}
}

func renderTables(w io.Writer, tables []models.TableCandidate) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Table", "Rows", "Disposition", "Concepts", "Reason"})
	for _, tc := range tables {
		t.AppendRow(table.Row{
			tc.QualifiedName(),
			tc.RowCount,
			tc.Disposition.Label(),
			strings.Join(tc.MatchedConcepts, ", "),
			tc.Reason,
		})
	}
	t.Render()
}

func renderMappings(w io.Writer, mappings []models.ConceptMapping) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Concept", "#", "Candidate", "Type", "Reason"})
	for _, m := range mappings {
		for i, c := range m.Candidates {
			concept := ""
			if i == 0 {
				concept = m.Concept.Name
			}
			t.AppendRow(table.Row{concept, i + 1, c.String(), c.DataType, c.Reason})
		}
		t.AppendSeparator()
	}
	t.Render()
}

func renderQuality(w io.Writer, records []models.QualityRecord) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Concept", "Column", "Rows", "Null rate", "Distinct", "Grade"})
	for _, q := range records {
		t.AppendRow(table.Row{
			q.Concept,
			q.Column.String(),
			q.RowCount,
			fmt.Sprintf("%.1f%%", q.NullRate*100),
			q.DistinctCount,
			gradeStyle(q.Grade).Render(string(q.Grade)),
		})
	}
	t.Render()
}

func renderFindings(w io.Writer, findings []models.SemanticFinding) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Concept", "Column", "Class", "Reason"})
	for _, f := range findings {
		t.AppendRow(table.Row{
			f.Concept,
			f.Column.String(),
			findingStyle(f.Class).Render(string(f.Class)),
			f.Reason,
		})
	}
	t.Render()
}

func renderBlocker(w io.Writer, r *services.StepResult) {
	var b strings.Builder
	b.WriteString(errorStyle.Render("Blocked: " + r.BlockerCode))
	b.WriteString("\n" + r.Blocker.Message)
	for _, e := range r.Blocker.Evidence {
		b.WriteString("\n  evidence: " + e)
	}
	for _, step := range r.Blocker.Remediation {
		b.WriteString("\n  next: " + step)
	}
	_, _ = fmt.Fprintln(w, blockerBox.Render(b.String()))
}

func renderReportList(w io.Writer, reports []models.ReportSummary) {
	if len(reports) == 0 {
		_, _ = fmt.Fprintln(w, "(no reports)")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Created", "Ref", "Verdict", "Question"})
	for _, r := range reports {
		t.AppendRow(table.Row{
			r.ID,
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.Ref,
			verdictStyle(r.Verdict).Render(r.Verdict.Label()),
			r.Question,
		})
	}
	t.Render()
}
