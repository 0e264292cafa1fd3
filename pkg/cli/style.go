package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	phaseStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	promptStyle = lipgloss.NewStyle().Bold(true)
	hintStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))

	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	cautionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	blockerBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("9")).
			Padding(0, 1)
)

func verdictStyle(v models.Verdict) lipgloss.Style {
	switch v {
	case models.VerdictAnswerable:
		return okStyle.Bold(true)
	case models.VerdictPartiallyAnswerable:
		return cautionStyle.Bold(true)
	default:
		return badStyle.Bold(true)
	}
}

func gradeStyle(g models.Grade) lipgloss.Style {
	switch g {
	case models.GradeUsable:
		return okStyle
	case models.GradeUsableWithCaveats:
		return cautionStyle
	default:
		return badStyle
	}
}

func findingStyle(c models.FindingClass) lipgloss.Style {
	switch c {
	case models.FindingConfirmed:
		return okStyle
	case models.FindingAmbiguous:
		return cautionStyle
	default:
		return badStyle
	}
}
