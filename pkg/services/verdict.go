package services

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

// ============================================================================
// Verdict Decision
// ============================================================================

// Decision is the verdict with the evidence that produced it.
type Decision struct {
	Verdict models.Verdict
	Reason  string

	// Blocking lists what forces not_answerable; Reducing what caps the
	// verdict at partially_answerable.
	Blocking []string
	Reducing []string
}

// DecideVerdict applies the verdict table:
//
//   - not answerable: a critical concept is unmapped or unchosen, its column is
//     graded not usable, or it is misaligned
//   - partially answerable: the critical concepts hold, but a non-critical
//     concept is missing or unusable, or a finding is ambiguous or misaligned
//   - answerable: everything mapped, graded usable (with or without caveats)
//     and no finding is ambiguous or misaligned
func DecideVerdict(dec *models.Decomposition, mappings []models.ConceptMapping, quality []models.QualityRecord, findings []models.SemanticFinding) Decision {
	var d Decision

	hasMetric := false
	for _, m := range mappings {
		if m.Concept.Role == models.ConceptRoleMetric {
			hasMetric = true
		}
		_, chosen := m.Primary()
		switch {
		case !m.IsMapped() && m.Concept.Critical:
			d.Blocking = append(d.Blocking, fmt.Sprintf("%s is unmapped", m.Concept.Name))
		case !chosen && m.Concept.Critical:
			d.Blocking = append(d.Blocking, fmt.Sprintf("%s has no chosen column", m.Concept.Name))
		case !m.IsMapped():
			d.Reducing = append(d.Reducing, fmt.Sprintf("%s is unmapped", m.Concept.Name))
		case !chosen:
			d.Reducing = append(d.Reducing, fmt.Sprintf("%s has no chosen column", m.Concept.Name))
		}
	}
	if !hasMetric {
		metric := "the metric"
		if dec != nil && dec.Metric.Name != "" {
			metric = dec.Metric.Name
		}
		d.Blocking = append(d.Blocking, fmt.Sprintf("%s is unmapped", metric))
	}

	for _, q := range quality {
		if q.Grade != models.GradeNotUsable {
			continue
		}
		msg := fmt.Sprintf("%s (%s) is not usable", q.Column, q.Concept)
		if q.Critical {
			d.Blocking = append(d.Blocking, msg)
		} else {
			d.Reducing = append(d.Reducing, msg)
		}
	}

	for _, f := range findings {
		switch {
		case f.Class == models.FindingMisaligned && f.Critical:
			d.Blocking = append(d.Blocking, fmt.Sprintf("%s is misaligned: %s", f.Concept, f.Reason))
		case f.Class == models.FindingMisaligned:
			d.Reducing = append(d.Reducing, fmt.Sprintf("%s is misaligned: %s", f.Concept, f.Reason))
		case f.Class == models.FindingAmbiguous:
			d.Reducing = append(d.Reducing, fmt.Sprintf("%s is ambiguous: %s", f.Concept, f.Reason))
		}
	}

	switch {
	case len(d.Blocking) > 0:
		d.Verdict = models.VerdictNotAnswerable
		d.Reason = strings.Join(d.Blocking, "; ")
	case len(d.Reducing) > 0:
		d.Verdict = models.VerdictPartiallyAnswerable
		d.Reason = "core concepts hold but " + strings.Join(d.Reducing, "; ")
	default:
		d.Verdict = models.VerdictAnswerable
		d.Reason = "every concept is mapped to usable data with confirmed meaning"
		if caveats := countCaveats(quality); caveats > 0 {
			d.Reason = fmt.Sprintf("every concept is mapped with confirmed meaning; %d column(s) carry documented caveats", caveats)
		}
	}
	return d
}

func countCaveats(quality []models.QualityRecord) int {
	n := 0
	for _, q := range quality {
		if q.Grade == models.GradeUsableWithCaveats {
			n++
		}
	}
	return n
}
