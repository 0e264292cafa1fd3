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

// ColumnMapper enumerates the columns that could serve each concept.
type ColumnMapper interface {
	// MapConcepts maps every concept against the selected tables. A concept
	// with exactly one candidate is chosen automatically; with two or more
	// it stays unchosen until ChooseColumn is called.
	MapConcepts(dec *models.Decomposition, selected []models.TableCandidate, concepts []models.Concept) []models.ConceptMapping

	// Gate returns an ErrUnmappedCriticalConcept blocker when a critical
	// concept has no candidate. allTables is used to suggest join alternatives.
	Gate(mappings []models.ConceptMapping, selected, allTables []models.TableCandidate) error

	// ChooseColumn records the requester's pick among a concept's candidates.
	ChooseColumn(dec *models.Decomposition, mappings []models.ConceptMapping, concept, table, column string) ([]models.ConceptMapping, error)
}

type columnMapper struct {
	lex    *lexicon.Lexicon
	logger *zap.Logger
}

// NewColumnMapper creates a column mapper.
func NewColumnMapper(lex *lexicon.Lexicon, logger *zap.Logger) ColumnMapper {
	return &columnMapper{
		lex:    lex,
		logger: logger.Named("column-mapper"),
	}
}

var _ ColumnMapper = (*columnMapper)(nil)

// PendingChoices returns the mappings still waiting for a column choice.
func PendingChoices(mappings []models.ConceptMapping) []models.ConceptMapping {
	var out []models.ConceptMapping
	for _, m := range mappings {
		if m.NeedsChoice() {
			out = append(out, m)
		}
	}
	return out
}

func candidate(table models.TableCandidate, col models.ColumnSchema, score int, reason string) models.ColumnCandidate {
	return models.ColumnCandidate{
		ColumnRef: models.ColumnRef{Table: table.Name, Column: col.Name, DataType: col.DataType},
		Reason:    reason,
		Score:     score,
	}
}

func sortCandidates(cands []models.ColumnCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		if cands[i].Table != cands[j].Table {
			return cands[i].Table < cands[j].Table
		}
		return cands[i].Column < cands[j].Column
	})
}

func matchReason(name string, terms []string, score int) string {
	switch score {
	case 4, 3:
		if score == 4 {
			return fmt.Sprintf("name %s is %s", name, terms[0])
		}
		return fmt.Sprintf("name %s is a synonym of %s", name, terms[0])
	case 2:
		return fmt.Sprintf("name %s contains %s", name, terms[0])
	default:
		return fmt.Sprintf("name %s contains a synonym of %s", name, terms[0])
	}
}

// entityTables returns the selected tables named after the concept.
func entityTables(selected []models.TableCandidate, terms []string) []models.TableCandidate {
	var out []models.TableCandidate
	for _, t := range selected {
		if lexicon.MatchScore(t.Name, terms) >= 3 {
			out = append(out, t)
		}
	}
	return out
}

// identityColumns returns a table's own key columns: "id" or "<entity>_id".
func (m *columnMapper) identityColumns(table models.TableCandidate, terms []string) []models.ColumnSchema {
	var out []models.ColumnSchema
	for _, col := range table.Columns {
		if strings.EqualFold(col.Name, "id") {
			out = append(out, col)
			continue
		}
		if entity := m.lex.KeyEntity(col.Name); entity != "" {
			if lexicon.MatchScore(entity, terms) >= 3 || entity == lexicon.Normalize(table.Name) {
				out = append(out, col)
			}
		}
	}
	return out
}

func (m *columnMapper) labelColumns(table models.TableCandidate) []string {
	var out []string
	for _, col := range table.Columns {
		if m.lex.IsLabelColumn(col.Name) {
			out = append(out, table.Name+"."+col.Name)
		}
	}
	return out
}

func (m *columnMapper) metricCandidates(dec *models.Decomposition, concept models.Concept, selected []models.TableCandidate) ([]models.ColumnCandidate, string) {
	var cands []models.ColumnCandidate

	if dec.Metric.IsEntityCount() {
		for _, t := range entityTables(selected, concept.Terms) {
			for _, col := range m.identityColumns(t, concept.Terms) {
				cands = append(cands, candidate(t, col, 4, fmt.Sprintf("key of %s counts %s", t.Name, dec.Metric.Entity)))
			}
		}
		if len(cands) == 0 {
			// No table of the entity itself; count distinct foreign keys instead.
			for _, t := range selected {
				for _, col := range t.Columns {
					if entity := m.lex.KeyEntity(col.Name); entity != "" && lexicon.MatchScore(entity, concept.Terms) >= 3 {
						cands = append(cands, candidate(t, col, 2, fmt.Sprintf("foreign key %s references %s", col.Name, dec.Metric.Entity)))
					}
				}
			}
		}
		sortCandidates(cands)
		return cands, ""
	}

	var notes []string
	for _, t := range selected {
		for _, col := range t.Columns {
			score := lexicon.MatchScore(col.Name, concept.Terms)
			if score == 0 || m.lex.IsKeyColumn(col.Name) {
				continue
			}
			if col.Kind() != models.ColumnKindNumeric {
				notes = append(notes, fmt.Sprintf("%s.%s matches by name but is %s, not numeric", t.Name, col.Name, col.DataType))
				continue
			}
			cands = append(cands, candidate(t, col, score, matchReason(col.Name, concept.Terms, score)))
		}
	}
	sortCandidates(cands)
	return cands, strings.Join(notes, "; ")
}

func (m *columnMapper) dimensionCandidates(concept models.Concept, selected []models.TableCandidate) ([]models.ColumnCandidate, string) {
	var cands []models.ColumnCandidate
	var notes []string

	for _, t := range entityTables(selected, concept.Terms) {
		for _, col := range m.identityColumns(t, concept.Terms) {
			cands = append(cands, candidate(t, col, 4, fmt.Sprintf("identity of %s", t.Name)))
		}
		if labels := m.labelColumns(t); len(labels) > 0 {
			notes = append(notes, "label: "+strings.Join(labels, ", "))
		}
	}
	if len(cands) > 0 {
		sortCandidates(cands)
		return cands, strings.Join(notes, "; ")
	}

	for _, t := range selected {
		for _, col := range t.Columns {
			score := lexicon.MatchScore(col.Name, concept.Terms)
			if score == 0 || col.Kind() == models.ColumnKindTemporal {
				continue
			}
			reason := matchReason(col.Name, concept.Terms, score)
			if m.lex.IsKeyColumn(col.Name) {
				reason = fmt.Sprintf("foreign key %s identifies %s", col.Name, concept.Name)
			}
			cands = append(cands, candidate(t, col, score, reason))
		}
	}
	sortCandidates(cands)
	return cands, strings.Join(notes, "; ")
}

func (m *columnMapper) timeCandidates(metricTables map[string]bool, selected []models.TableCandidate) []models.ColumnCandidate {
	var cands []models.ColumnCandidate
	collect := func(only map[string]bool) {
		for _, t := range selected {
			if only != nil && !only[t.Name] {
				continue
			}
			for _, col := range t.TemporalColumns() {
				cands = append(cands, candidate(t, col, 1, fmt.Sprintf("%s timestamp of %s", col.DataType, t.Name)))
			}
		}
	}
	if len(metricTables) > 0 {
		collect(metricTables)
	}
	if len(cands) == 0 {
		collect(nil)
	}
	sortCandidates(cands)
	return cands
}

func (m *columnMapper) filterCandidates(concept models.Concept, selected []models.TableCandidate) []models.ColumnCandidate {
	var cands []models.ColumnCandidate
	for _, t := range selected {
		for _, col := range t.Columns {
			score := lexicon.MatchScore(col.Name, concept.Terms)
			if score == 0 {
				for _, term := range concept.Terms {
					if lexicon.MatchScore(col.Name, []string{term}) > 0 {
						score = 1
						break
					}
				}
			}
			if score > 0 {
				cands = append(cands, candidate(t, col, score, fmt.Sprintf("name %s relates to %q", col.Name, concept.Name)))
			}
		}
	}
	sortCandidates(cands)
	return cands
}

func (m *columnMapper) MapConcepts(dec *models.Decomposition, selected []models.TableCandidate, concepts []models.Concept) []models.ConceptMapping {
	mappings := make([]models.ConceptMapping, 0, len(concepts))

	metricTables := map[string]bool{}
	for _, c := range concepts {
		mapping := models.ConceptMapping{Concept: c}
		switch c.Role {
		case models.ConceptRoleMetric:
			mapping.Candidates, mapping.Notes = m.metricCandidates(dec, c, selected)
			for _, cand := range mapping.Candidates {
				metricTables[cand.Table] = true
			}
		case models.ConceptRoleDimension:
			mapping.Candidates, mapping.Notes = m.dimensionCandidates(c, selected)
		case models.ConceptRoleTime:
			mapping.Candidates = m.timeCandidates(metricTables, selected)
		case models.ConceptRoleFilter:
			mapping.Candidates = m.filterCandidates(c, selected)
		}
		if len(mapping.Candidates) == 1 {
			m.choose(dec, &mapping, mapping.Candidates[0])
		}
		mappings = append(mappings, mapping)
	}

	pending := PendingChoices(mappings)
	m.logger.Info("concepts mapped",
		zap.Int("concepts", len(mappings)),
		zap.Int("pending_choices", len(pending)))
	return mappings
}

func (m *columnMapper) choose(dec *models.Decomposition, mapping *models.ConceptMapping, cand models.ColumnCandidate) {
	mapping.Chosen = true
	mapping.ChosenColumn = cand.ColumnRef
	mapping.Transform = transformFor(dec, mapping.Concept, cand.ColumnRef)
}

// transformFor describes how the chosen column is used in the eventual query.
func transformFor(dec *models.Decomposition, c models.Concept, col models.ColumnRef) string {
	switch c.Role {
	case models.ConceptRoleMetric:
		switch dec.Metric.Aggregation {
		case models.AggregationCount, models.AggregationCountDist:
			if dec.Metric.IsEntityCount() {
				return fmt.Sprintf("COUNT(DISTINCT %s)", col.Column)
			}
			return fmt.Sprintf("COUNT(%s)", col.Column)
		case models.AggregationAverage:
			return fmt.Sprintf("AVG(%s)", col.Column)
		case models.AggregationUnspecified:
			return col.Column
		default:
			return fmt.Sprintf("%s(%s)", strings.ToUpper(string(dec.Metric.Aggregation)), col.Column)
		}
	case models.ConceptRoleDimension:
		return "group by"
	case models.ConceptRoleTime:
		var parts []string
		if dec.Grain.Period != "" {
			parts = append(parts, "bucket by "+dec.Grain.Period)
		}
		if dec.TimeScope.IsBounded() {
			parts = append(parts, "filter to "+dec.TimeScope.String())
		}
		if len(parts) == 0 {
			return "freshness and coverage only"
		}
		return strings.Join(parts, ", ")
	case models.ConceptRoleFilter:
		return "filter"
	}
	return ""
}

func (m *columnMapper) ChooseColumn(dec *models.Decomposition, mappings []models.ConceptMapping, concept, table, column string) ([]models.ConceptMapping, error) {
	out := append([]models.ConceptMapping(nil), mappings...)
	mapping, ok := models.FindMapping(out, concept)
	if !ok {
		return nil, fmt.Errorf("concept %q: %w", concept, apperrors.ErrNotFound)
	}
	cand, ok := mapping.CandidateFor(table, column)
	if !ok {
		return nil, fmt.Errorf("%s.%s is not a candidate for %q: %w", table, column, concept, apperrors.ErrInvalidInput)
	}
	m.choose(dec, mapping, cand)
	m.logger.Info("column chosen",
		zap.String("concept", concept),
		zap.String("column", cand.String()))
	return out, nil
}

// joinAlternatives suggests foreign-key columns that could reach a concept
// through a join, looking across every table in the namespace.
func (m *columnMapper) joinAlternatives(c models.Concept, allTables []models.TableCandidate) []string {
	var out []string
	for _, t := range allTables {
		for _, col := range t.Columns {
			entity := m.lex.KeyEntity(col.Name)
			if entity == "" {
				continue
			}
			if lexicon.MatchScore(entity, c.Terms) > 0 {
				out = append(out, fmt.Sprintf("%s.%s could stand in for %s via a join", t.Name, col.Name, c.Name))
			}
		}
	}
	return out
}

func (m *columnMapper) Gate(mappings []models.ConceptMapping, selected, allTables []models.TableCandidate) error {
	var unmapped []string
	var remediation []string
	for i := range mappings {
		mp := &mappings[i]
		if !mp.Concept.Critical || mp.IsMapped() {
			continue
		}
		unmapped = append(unmapped, mp.Concept.Name)
		mp.Alternatives = m.joinAlternatives(mp.Concept, allTables)
		remediation = append(remediation, mp.Alternatives...)
	}
	if len(unmapped) == 0 {
		return nil
	}

	var evidence []string
	if len(selected) == 0 {
		evidence = append(evidence, fmt.Sprintf("no tables available (%d in namespace)", len(allTables)))
	} else {
		names := make([]string, 0, len(selected))
		for _, t := range selected {
			names = append(names, t.Name)
		}
		evidence = append(evidence, "searched tables: "+strings.Join(names, ", "))
	}
	for _, t := range allTables {
		if t.Disposition == models.DispositionConsidered {
			remediation = append(remediation, fmt.Sprintf("select considered table %s", t.Name))
		}
	}
	remediation = append(remediation, "confirm a different ref or namespace that holds this data")

	m.logger.Info("critical concepts unmapped", zap.Strings("concepts", unmapped))
	return apperrors.NewBlocker(apperrors.ErrUnmappedCriticalConcept,
		fmt.Sprintf("no column found for %s", strings.Join(unmapped, ", "))).
		WithEvidence(evidence...).
		WithRemediation(remediation...)
}
