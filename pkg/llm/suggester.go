package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

// Completer is the part of Client the suggester needs.
type Completer interface {
	Complete(ctx context.Context, systemMessage, prompt string, temperature float64) (string, error)
}

var _ Completer = (*Client)(nil)

const (
	maxSuggestions     = 5
	maxSuggestionLen   = 300
	suggestionTemp     = 0.2
	suggesterSystemMsg = `You help a business analyst make a data question precise enough to answer.
You are given the question and the open clarification points.
Reply with a JSON object {"suggestions": ["..."]} holding at most five short
candidate answers a requester could pick from. Do not invent facts about the data.`
)

type suggestionResponse struct {
	Suggestions []string `json:"suggestions"`
}

// Suggester proposes candidate answers for open decomposition gaps.
// Suggestions are advisory: nothing the model says resolves a gap.
type Suggester struct {
	llm    Completer
	logger *zap.Logger
}

// NewSuggester wraps a completer.
func NewSuggester(llm Completer, logger *zap.Logger) *Suggester {
	return &Suggester{llm: llm, logger: logger.Named("suggester")}
}

// SuggestClarifications asks the model for candidate answers to gaps.
func (s *Suggester) SuggestClarifications(ctx context.Context, question string, gaps []models.Gap) ([]string, error) {
	if len(gaps) == 0 {
		return nil, nil
	}

	reply, err := s.llm.Complete(ctx, suggesterSystemMsg, buildSuggestionPrompt(question, gaps), suggestionTemp)
	if err != nil {
		return nil, err
	}

	parsed, err := ParseJSONResponse[suggestionResponse](reply)
	if err != nil {
		return nil, NewError(ErrorTypeResponse, "unparseable suggestions", false, err)
	}

	out := make([]string, 0, len(parsed.Suggestions))
	seen := make(map[string]bool)
	for _, raw := range parsed.Suggestions {
		sug := truncateRunes(strings.TrimSpace(raw), maxSuggestionLen)
		if sug == "" || seen[sug] {
			continue
		}
		seen[sug] = true
		out = append(out, sug)
		if len(out) == maxSuggestions {
			break
		}
	}

	s.logger.Debug("clarification suggestions",
		zap.Int("gaps", len(gaps)),
		zap.Int("suggestions", len(out)))
	return out, nil
}

// truncateRunes cuts s to at most n runes without splitting a character.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func buildSuggestionPrompt(question string, gaps []models.Gap) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nOpen points:\n", question)
	for _, g := range gaps {
		fmt.Fprintf(&b, "- [%s, %s] %s", g.Field, g.Severity, g.Question)
		if len(g.Options) > 0 {
			fmt.Fprintf(&b, " (options: %s)", strings.Join(g.Options, "; "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
