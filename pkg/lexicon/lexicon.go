// Package lexicon holds the business vocabulary used to read questions and to
// match business concepts against table and column names.
package lexicon

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

//go:embed default.yaml
var defaultYAML []byte

// Term is one canonical business term with its synonyms.
type Term struct {
	Aggregation models.Aggregation `yaml:"aggregation,omitempty"`
	Synonyms    []string           `yaml:"synonyms"`
}

// Lexicon is the vocabulary loaded from YAML.
type Lexicon struct {
	Metrics           map[string]Term     `yaml:"metrics"`
	Entities          map[string]Term     `yaml:"entities"`
	Dimensions        map[string]Term     `yaml:"dimensions"`
	AmbiguousEntities map[string][]string `yaml:"ambiguous_entities"`
	VagueMetrics      []string            `yaml:"vague_metrics"`
	VagueQualifiers   []string            `yaml:"vague_qualifiers"`
	NonCommittal      []string            `yaml:"non_committal"`
	RoleStarters      map[string][]string `yaml:"role_starters"`
	DefaultStarters   []string            `yaml:"default_starters"`
	KeySuffixes       []string            `yaml:"key_suffixes"`
	LabelColumns      []string            `yaml:"label_columns"`
}

// Default returns the embedded lexicon.
func Default() *Lexicon {
	lex, err := Parse(defaultYAML)
	if err != nil {
		// The embedded file is part of the binary; failing to parse it is a build defect.
		panic(fmt.Sprintf("embedded lexicon: %v", err))
	}
	return lex
}

// Load reads a lexicon from a YAML file. An empty path returns the default.
func Load(path string) (*Lexicon, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML lexicon.
func Parse(data []byte) (*Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	if len(lex.Metrics) == 0 {
		return nil, fmt.Errorf("parse lexicon: no metrics defined")
	}
	if len(lex.KeySuffixes) == 0 {
		lex.KeySuffixes = []string{"_id"}
	}
	return &lex, nil
}

// ============================================================================
// Tokenizing
// ============================================================================

// Tokenize splits a name or phrase into lower-case singular tokens.
// "OrderTotal", "order_total" and "order totals" all become [order total].
func Tokenize(s string) []string {
	var tokens []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, Singular(string(cur)))
			cur = cur[:0]
		}
	}

	runes := []rune(s)
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			// Split camelCase but keep acronyms together.
			if len(cur) > 0 && (unicode.IsLower(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				flush()
			}
			cur = append(cur, unicode.ToLower(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur = append(cur, r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// Singular returns the lower-case singular form of a word.
func Singular(word string) string {
	w := strings.ToLower(word)
	// inflection turns "status" into "statu" and "sales" into "sale"; keep
	// words ending in "us" and "ss" intact.
	if strings.HasSuffix(w, "us") || strings.HasSuffix(w, "ss") {
		return w
	}
	return inflection.Singular(w)
}

// Normalize returns the snake_case singular form of a name.
func Normalize(s string) string {
	return strings.Join(Tokenize(s), "_")
}

// containsRun reports whether needle appears as a contiguous run in haystack.
func containsRun(haystack, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// MatchScore scores how well a table or column name matches a concept's terms.
// terms[0] is the canonical name. Returns 0 for no match.
//
//	4 exact canonical, 3 exact synonym, 2 name contains canonical, 1 name contains synonym
func MatchScore(name string, terms []string) int {
	tokens := Tokenize(name)
	best := 0
	for i, term := range terms {
		termTokens := strings.Split(term, "_")
		exact := strings.Join(tokens, "_") == term
		var score int
		switch {
		case exact && i == 0:
			score = 4
		case exact:
			score = 3
		case containsRun(tokens, termTokens) && i == 0:
			score = 2
		case containsRun(tokens, termTokens):
			score = 1
		}
		if score > best {
			best = score
		}
	}
	return best
}

// ============================================================================
// Lookups
// ============================================================================

// Terms returns the normalized search terms for a concept name: the name
// itself first, then synonyms from whichever vocabulary section defines it.
func (l *Lexicon) Terms(concept string) []string {
	name := Normalize(concept)
	terms := []string{name}
	seen := map[string]bool{name: true}
	add := func(t Term) {
		for _, s := range t.Synonyms {
			n := Normalize(s)
			if n != "" && !seen[n] {
				seen[n] = true
				terms = append(terms, n)
			}
		}
	}
	for _, section := range []map[string]Term{l.Metrics, l.Entities, l.Dimensions} {
		for key, t := range section {
			if Normalize(key) == name {
				add(t)
			}
		}
	}
	return terms
}

// lookup finds the canonical term whose name or synonym appears in phrase.
// The longest matching synonym wins; ties go to the alphabetically first name.
func lookup(section map[string]Term, phrase string) (string, Term, bool) {
	tokens := Tokenize(phrase)
	names := make([]string, 0, len(section))
	for name := range section {
		names = append(names, name)
	}
	sort.Strings(names)

	bestName, bestLen := "", 0
	for _, name := range names {
		candidates := append([]string{name}, section[name].Synonyms...)
		for _, c := range candidates {
			ct := Tokenize(c)
			if containsRun(tokens, ct) && len(ct) > bestLen {
				bestName, bestLen = name, len(ct)
			}
		}
	}
	if bestName == "" {
		return "", Term{}, false
	}
	return bestName, section[bestName], true
}

// MetricFor returns the canonical metric mentioned in phrase.
func (l *Lexicon) MetricFor(phrase string) (string, Term, bool) {
	return lookup(l.Metrics, phrase)
}

// EntityFor returns the canonical entity mentioned in phrase.
func (l *Lexicon) EntityFor(phrase string) (string, bool) {
	name, _, ok := lookup(l.Entities, phrase)
	return name, ok
}

// DimensionFor returns the canonical dimension mentioned in phrase.
func (l *Lexicon) DimensionFor(phrase string) (string, bool) {
	name, _, ok := lookup(l.Dimensions, phrase)
	return name, ok
}

func containsPhrase(list []string, phrase string) (string, bool) {
	tokens := Tokenize(phrase)
	for _, item := range list {
		if containsRun(tokens, Tokenize(item)) {
			return item, true
		}
	}
	return "", false
}

// VagueMetric returns the vague metric word in phrase, if any.
func (l *Lexicon) VagueMetric(phrase string) (string, bool) {
	return containsPhrase(l.VagueMetrics, phrase)
}

// VagueQualifier returns the imprecise qualifier in phrase, if any.
func (l *Lexicon) VagueQualifier(phrase string) (string, bool) {
	return containsPhrase(l.VagueQualifiers, phrase)
}

// IsNonCommittal reports whether the whole text carries no usable intent.
func (l *Lexicon) IsNonCommittal(text string) bool {
	t := strings.Trim(strings.ToLower(strings.TrimSpace(text)), ".!?")
	if t == "" {
		return true
	}
	for _, p := range l.NonCommittal {
		if t == p {
			return true
		}
	}
	return false
}

// AmbiguousMeanings returns the competing meanings of an entity word, or nil.
func (l *Lexicon) AmbiguousMeanings(word string) []string {
	return l.AmbiguousEntities[Singular(word)]
}

// Starters returns coaching questions for a requester role.
func (l *Lexicon) Starters(role string) []string {
	tokens := Tokenize(role)
	roles := make([]string, 0, len(l.RoleStarters))
	for r := range l.RoleStarters {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	for _, r := range roles {
		if containsRun(tokens, Tokenize(r)) {
			return l.RoleStarters[r]
		}
	}
	return l.DefaultStarters
}

// IsKeyColumn reports whether a column name looks like a primary or foreign key.
func (l *Lexicon) IsKeyColumn(name string) bool {
	n := strings.ToLower(name)
	if n == "id" {
		return true
	}
	for _, suffix := range l.KeySuffixes {
		if strings.HasSuffix(n, suffix) {
			return true
		}
	}
	return false
}

// KeyEntity returns the entity a foreign-key column points at
// ("customer_id" -> "customer"), or "" for non-key columns and bare "id".
func (l *Lexicon) KeyEntity(name string) string {
	n := strings.ToLower(name)
	for _, suffix := range l.KeySuffixes {
		if strings.HasSuffix(n, suffix) && len(n) > len(suffix) {
			return Normalize(strings.TrimSuffix(n, suffix))
		}
	}
	return ""
}

// IsLabelColumn reports whether a column holds a human-readable label.
func (l *Lexicon) IsLabelColumn(name string) bool {
	n := Normalize(name)
	for _, label := range l.LabelColumns {
		if n == label || strings.HasSuffix(n, "_"+label) {
			return true
		}
	}
	return false
}
