package services

import (
	"github.com/ekaya-inc/ekaya-assess/pkg/lexicon"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

// TimeConcept is the name of the concept backing time scope and period grain.
const TimeConcept = "time"

// BuildConcepts lists the business concepts a decomposition needs located
// in the data. The metric is always critical, as is the first breakdown (the
// grain entity, or the first dimension). A period-only grain makes the time
// concept critical instead.
func BuildConcepts(dec *models.Decomposition, lex *lexicon.Lexicon) []models.Concept {
	var concepts []models.Concept
	seen := map[string]bool{}
	add := func(c models.Concept) {
		if c.Name == "" || seen[c.Name] {
			return
		}
		seen[c.Name] = true
		concepts = append(concepts, c)
	}

	if dec.Metric.Name != "" {
		terms := lex.Terms(dec.Metric.Name)
		if dec.Metric.IsEntityCount() {
			terms = lex.Terms(dec.Metric.Entity)
		}
		add(models.Concept{
			Name:     dec.Metric.Name,
			Role:     models.ConceptRoleMetric,
			Critical: true,
			Terms:    terms,
		})
	}

	var breakdowns []string
	if dec.Grain.Entity != "" && !dec.Grain.IsOverall() {
		breakdowns = append(breakdowns, dec.Grain.Entity)
	}
	breakdowns = append(breakdowns, dec.DimensionNames()...)

	first := true
	for _, name := range breakdowns {
		if dec.Metric.IsEntityCount() && name == dec.Metric.Entity {
			continue
		}
		add(models.Concept{
			Name:     lexicon.Normalize(name),
			Role:     models.ConceptRoleDimension,
			Critical: first,
			Terms:    lex.Terms(name),
		})
		first = false
	}

	// Time is a concept only when the question asks for it. It blocks when the
	// answer is bucketed by period alone.
	if dec.TimeScope.IsBounded() || dec.Grain.Period != "" {
		periodOnly := dec.Grain.Period != "" && (dec.Grain.Entity == "" || dec.Grain.IsOverall())
		add(models.Concept{
			Name:     TimeConcept,
			Role:     models.ConceptRoleTime,
			Critical: periodOnly,
		})
	}

	for _, f := range dec.Filters {
		add(models.Concept{
			Name:  f.Phrase,
			Role:  models.ConceptRoleFilter,
			Terms: filterTerms(f.Phrase, lex),
		})
	}

	return concepts
}

// filterTerms keeps the content words of a filter phrase as search terms.
func filterTerms(phrase string, lex *lexicon.Lexicon) []string {
	var terms []string
	for _, w := range contentWords(phrase) {
		if _, vague := lex.VagueQualifier(w); vague {
			continue
		}
		switch w {
		case "excluding", "except", "only", "among", "where", "that":
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

// CriticalConcepts filters concepts to the critical ones.
func CriticalConcepts(concepts []models.Concept) []models.Concept {
	var out []models.Concept
	for _, c := range concepts {
		if c.Critical {
			out = append(out, c)
		}
	}
	return out
}
