package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/models"
	"github.com/ekaya-inc/ekaya-assess/pkg/services"
)

// errQuit ends an interactive session at the user's request.
var errQuit = errors.New("quit")

// prompter reads one line of input after showing a prompt.
type prompter interface {
	Prompt(prompt string) (string, error)
}

type readlinePrompter struct {
	rl *readline.Instance
}

func (p *readlinePrompter) Prompt(prompt string) (string, error) {
	p.rl.SetPrompt(promptStyle.Render(prompt) + " ")
	line, err := p.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
		return "", errQuit
	}
	return strings.TrimSpace(line), err
}

// AssessOptions holds options for the assess command.
type AssessOptions struct {
	Requester string
	Ref       string
	Namespace string
}

func newAssessCmd() *cobra.Command {
	opts := &AssessOptions{}

	cmd := &cobra.Command{
		Use:   "assess [question]",
		Short: "Assess a business question interactively",
		Long: `Walk a question through every phase of the assessment, answering the
clarifications, ref confirmation, table triage and column choices as they come up.

Type "abort" at any prompt to discard the session.`,
		Example: `  ekaya-assess assess "Top customers by revenue in the last 12 months?"
  ekaya-assess assess --ref main --namespace sales`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := mustEnv(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "abort",
			})
			if err != nil {
				return fmt.Errorf("failed to initialize prompt: %w", err)
			}
			defer func() { _ = rl.Close() }()

			question := ""
			if len(args) == 1 {
				question = args[0]
			}
			return runAssessment(cmd.Context(), a.service, &readlinePrompter{rl: rl}, cmd.OutOrStdout(), question, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Requester, "requester", "", "role or context of the person asking")
	cmd.Flags().StringVar(&opts.Ref, "ref", "", "ref to assess against (asked for when empty)")
	cmd.Flags().StringVar(&opts.Namespace, "namespace", "", "namespace within the ref (asked for when empty)")

	return cmd
}

// runAssessment drives one session to completion, a halt without a way
// forward, or an abort.
func runAssessment(ctx context.Context, svc services.AssessmentService, p prompter, w io.Writer, question string, opts *AssessOptions) error {
	for question == "" {
		q, err := p.Prompt("Question:")
		if err != nil {
			return quitOK(err)
		}
		question = q
	}

	step, err := svc.Start(ctx, question, opts.Requester)
	if err != nil {
		return err
	}

	for {
		renderStep(w, step)

		next, err := advance(ctx, svc, p, w, step, opts)
		switch {
		case errors.Is(err, errQuit):
			if _, abortErr := svc.Abort(ctx, step.SessionID); abortErr != nil {
				return abortErr
			}
			_, _ = fmt.Fprintln(w, "Session aborted.")
			return nil
		case isRecoverable(err):
			_, _ = fmt.Fprintln(w, errorStyle.Render(err.Error()))
			continue
		case err != nil:
			return err
		}
		if next == nil {
			return nil
		}
		step = next
	}
}

// advance collects the input the step is waiting for and submits it.
// A nil step with nil error means the session has ended.
func advance(ctx context.Context, svc services.AssessmentService, p prompter, w io.Writer, step *services.StepResult, opts *AssessOptions) (*services.StepResult, error) {
	id := step.SessionID

	switch step.Awaiting {
	case models.AwaitClarification:
		answers, err := askGaps(p, step.Gaps)
		if err != nil {
			return nil, err
		}
		return svc.Clarify(ctx, id, answers)

	case models.AwaitNewInformation:
		_, _ = fmt.Fprintln(w, hintStyle.Render(`Answer as gap-id=answer (separate several with ";"), or type a reworded question.`))
		line, err := ask(p, "New information:")
		if err != nil {
			return nil, err
		}
		return svc.Clarify(ctx, id, parseAnswers(line))

	case models.AwaitRefConfirmation:
		ref, namespace := opts.Ref, opts.Namespace
		var err error
		if ref == "" {
			if ref, err = ask(p, "Ref:"); err != nil {
				return nil, err
			}
		}
		if namespace == "" {
			if namespace, err = ask(p, "Namespace:"); err != nil {
				return nil, err
			}
		}
		// Flags apply to the first attempt only so a bad ref can be corrected.
		opts.Ref, opts.Namespace = "", ""
		return svc.ConfirmRef(ctx, id, ref, namespace)

	case models.AwaitTriageConfirmation:
		proposed := proposedTables(step.Tables)
		line, err := p.Prompt(fmt.Sprintf("Tables [%s]:", strings.Join(proposed, ", ")))
		if err != nil {
			return nil, err
		}
		if isAbort(line) {
			return nil, errQuit
		}
		selected := proposed
		if line != "" {
			selected = splitList(line)
		}
		return svc.ConfirmTriage(ctx, id, selected)

	case models.AwaitColumnChoice:
		return chooseColumn(ctx, svc, p, step)

	case models.AwaitContinue:
		line, err := p.Prompt("Continue? [Y/n]:")
		if err != nil {
			return nil, err
		}
		if isAbort(line) || strings.EqualFold(line, "n") || strings.EqualFold(line, "no") {
			return nil, errQuit
		}
		return svc.Continue(ctx, id)
	}

	if step.Report != nil {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, step.Report.Markdown)
	}
	return nil, nil
}

func askGaps(p prompter, gaps []models.Gap) (map[string]string, error) {
	answers := make(map[string]string)
	for _, g := range gaps {
		if g.Status == models.FieldStatusResolved {
			continue
		}
		prompt := g.Question
		if len(g.Options) > 0 {
			prompt += " (" + strings.Join(g.Options, " / ") + ")"
		}
		if g.Severity == models.GapSeverityDeferrable {
			prompt += " [optional]"
		}
		line, err := p.Prompt(prompt + ":")
		if err != nil {
			return nil, err
		}
		if isAbort(line) {
			return nil, errQuit
		}
		if line != "" {
			answers[g.ID] = line
		}
	}
	if len(answers) == 0 {
		return nil, fmt.Errorf("at least one answer is needed: %w", apperrors.ErrInvalidInput)
	}
	return answers, nil
}

func chooseColumn(ctx context.Context, svc services.AssessmentService, p prompter, step *services.StepResult) (*services.StepResult, error) {
	m := step.PendingChoices[0]
	line, err := ask(p, fmt.Sprintf("Column for %q [1-%d]:", m.Concept.Name, len(m.Candidates)))
	if err != nil {
		return nil, err
	}

	var n int
	if _, scanErr := fmt.Sscanf(line, "%d", &n); scanErr == nil && n >= 1 && n <= len(m.Candidates) {
		c := m.Candidates[n-1]
		return svc.ChooseColumn(ctx, step.SessionID, m.Concept.Name, c.Table, c.Column)
	}
	table, column, ok := strings.Cut(line, ".")
	if !ok {
		return nil, fmt.Errorf("enter a candidate number or table.column: %w", apperrors.ErrInvalidInput)
	}
	return svc.ChooseColumn(ctx, step.SessionID, m.Concept.Name, table, column)
}

// ask prompts until a non-empty line is entered.
func ask(p prompter, prompt string) (string, error) {
	for {
		line, err := p.Prompt(prompt)
		if err != nil {
			return "", err
		}
		if isAbort(line) {
			return "", errQuit
		}
		if line != "" {
			return line, nil
		}
	}
}

func proposedTables(tables []models.TableCandidate) []string {
	var names []string
	for _, t := range tables {
		if t.Disposition.IsCandidate() || t.Disposition == models.DispositionSelected {
			names = append(names, t.Name)
		}
	}
	return names
}

// parseAnswers reads "id=answer; id2=answer2". A line without "=" is a
// reworded question.
func parseAnswers(line string) map[string]string {
	if !strings.Contains(line, "=") {
		return map[string]string{"question": line}
	}
	answers := make(map[string]string)
	for _, part := range strings.Split(line, ";") {
		k, v, ok := strings.Cut(part, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if ok && k != "" && v != "" {
			answers[k] = v
		}
	}
	return answers
}

func splitList(line string) []string {
	var out []string
	for _, f := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' }) {
		out = append(out, strings.TrimSpace(f))
	}
	return out
}

func isAbort(line string) bool {
	switch strings.ToLower(line) {
	case "abort", "quit", "exit":
		return true
	}
	return false
}

// isRecoverable reports errors the user can fix by answering again.
func isRecoverable(err error) bool {
	return errors.Is(err, apperrors.ErrInvalidInput) ||
		errors.Is(err, apperrors.ErrRefRequired) ||
		errors.Is(err, apperrors.ErrRefNotFound) ||
		errors.Is(err, apperrors.ErrNotFound)
}

func quitOK(err error) error {
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}
