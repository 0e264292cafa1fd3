package services

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/lexicon"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

// TriageResult is the classification of every table in the namespace.
type TriageResult struct {
	Tables []models.TableCandidate `json:"tables"`
}

// Count returns how many tables carry the disposition.
func (r *TriageResult) Count(d models.Disposition) int {
	n := 0
	for _, t := range r.Tables {
		if t.Disposition == d {
			n++
		}
	}
	return n
}

// Candidates returns the strong and weak candidates.
func (r *TriageResult) Candidates() []models.TableCandidate {
	var out []models.TableCandidate
	for _, t := range r.Tables {
		if t.Disposition.IsCandidate() {
			out = append(out, t)
		}
	}
	return out
}

// TableTriager classifies tables against the concepts of a question.
type TableTriager interface {
	// Triage gives every table exactly one disposition and a non-empty reason.
	Triage(tables []models.TableCandidate, concepts []models.Concept) *TriageResult

	// Confirm freezes dispositions. Selected tables become selected, other
	// candidates become considered and the rest stay not relevant. An empty
	// selection accepts every strong candidate.
	Confirm(result *TriageResult, selected []string) ([]models.TableCandidate, error)
}

type tableTriager struct {
	lex    *lexicon.Lexicon
	logger *zap.Logger
}

// NewTableTriager creates a name and schema heuristic triager.
func NewTableTriager(lex *lexicon.Lexicon, logger *zap.Logger) TableTriager {
	return &tableTriager{
		lex:    lex,
		logger: logger.Named("triage"),
	}
}

var _ TableTriager = (*tableTriager)(nil)

type tableMatch struct {
	concept  models.Concept
	location string // "table" or a column name
	score    int
	numeric  bool
}

func (t *tableTriager) matches(table models.TableCandidate, concepts []models.Concept) []tableMatch {
	var out []tableMatch
	for _, c := range concepts {
		if c.Role == models.ConceptRoleTime || len(c.Terms) == 0 {
			continue
		}
		if score := lexicon.MatchScore(table.Name, c.Terms); score > 0 {
			out = append(out, tableMatch{concept: c, location: "table", score: score})
		}
		for _, col := range table.Columns {
			if score := lexicon.MatchScore(col.Name, c.Terms); score > 0 {
				out = append(out, tableMatch{
					concept:  c,
					location: col.Name,
					score:    score,
					numeric:  col.Kind() == models.ColumnKindNumeric && !t.lex.IsKeyColumn(col.Name),
				})
			}
		}
	}
	return out
}

func (t *tableTriager) Triage(tables []models.TableCandidate, concepts []models.Concept) *TriageResult {
	result := &TriageResult{Tables: make([]models.TableCandidate, len(tables))}

	var searched []string
	for _, c := range concepts {
		if c.Role != models.ConceptRoleTime && len(c.Terms) > 0 {
			searched = append(searched, c.Name)
		}
	}

	for i, table := range tables {
		table.MatchedConcepts = nil
		matches := t.matches(table, concepts)

		strong := false
		var reasons []string
		seenConcept := map[string]bool{}
		for _, m := range matches {
			switch {
			case m.location == "table" && m.concept.Critical:
				strong = true
			case m.concept.Role == models.ConceptRoleMetric && m.numeric:
				strong = true
			}
			if m.location == "table" {
				reasons = append(reasons, fmt.Sprintf("table name matches %s", m.concept.Name))
			} else {
				reasons = append(reasons, fmt.Sprintf("column %s matches %s", m.location, m.concept.Name))
			}
			if !seenConcept[m.concept.Name] {
				seenConcept[m.concept.Name] = true
				table.MatchedConcepts = append(table.MatchedConcepts, m.concept.Name)
			}
		}

		switch {
		case strong:
			table.Disposition = models.DispositionStrongCandidate
			table.Reason = strings.Join(reasons, "; ")
		case len(matches) > 0:
			table.Disposition = models.DispositionWeakCandidate
			table.Reason = strings.Join(reasons, "; ") + "; no critical concept located here"
		default:
			table.Disposition = models.DispositionNotRelevant
			if len(searched) == 0 {
				table.Reason = "no concepts to match"
			} else {
				table.Reason = fmt.Sprintf("no table or column name matches %s", strings.Join(searched, ", "))
			}
		}
		result.Tables[i] = table
	}

	t.logger.Info("triage complete",
		zap.Int("tables", len(tables)),
		zap.Int("strong", result.Count(models.DispositionStrongCandidate)),
		zap.Int("weak", result.Count(models.DispositionWeakCandidate)),
		zap.Int("not_relevant", result.Count(models.DispositionNotRelevant)))
	return result
}

func (t *tableTriager) Confirm(result *TriageResult, selected []string) ([]models.TableCandidate, error) {
	chosen := make(map[string]bool, len(selected))
	for _, name := range selected {
		table, ok := models.FindTable(result.Tables, strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("table %q is not in the triage: %w", name, apperrors.ErrInvalidInput)
		}
		chosen[table.Name] = true
	}
	if len(selected) == 0 {
		for _, table := range result.Tables {
			if table.Disposition == models.DispositionStrongCandidate {
				chosen[table.Name] = true
			}
		}
	}
	if len(chosen) == 0 {
		return nil, fmt.Errorf("no tables selected and no strong candidates to accept: %w", apperrors.ErrInvalidInput)
	}

	frozen := make([]models.TableCandidate, len(result.Tables))
	for i, table := range result.Tables {
		switch {
		case chosen[table.Name]:
			if table.Disposition == models.DispositionNotRelevant {
				table.Reason = "selected by requester; " + table.Reason
			}
			table.Disposition = models.DispositionSelected
		case table.Disposition.IsCandidate():
			table.Disposition = models.DispositionConsidered
		default:
			table.Disposition = models.DispositionNotRelevant
		}
		frozen[i] = table
	}

	names := make([]string, 0, len(chosen))
	for name := range chosen {
		names = append(names, name)
	}
	sort.Strings(names)
	t.logger.Info("triage confirmed", zap.Strings("selected", names))
	return frozen, nil
}

// SelectedTables returns the tables frozen as selected.
func SelectedTables(tables []models.TableCandidate) []models.TableCandidate {
	var out []models.TableCandidate
	for _, t := range tables {
		if t.Disposition == models.DispositionSelected {
			out = append(out, t)
		}
	}
	return out
}
