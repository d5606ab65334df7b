// Package watch implements the live audit event monitor TUI. It polls the
// service's admin events feed and renders the stream as it grows.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for the watch TUI.
type Theme struct {
	Title     lipgloss.Style
	Border    lipgloss.Style
	StatusOK  lipgloss.Style
	StatusBad lipgloss.Style
	Dim       lipgloss.Style

	KindGood lipgloss.Style
	KindBad  lipgloss.Style
	KindInfo lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		StatusOK:  lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusBad: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),

		KindGood: lipgloss.NewStyle().Foreground(lipgloss.Color("#98C379")),
		KindBad:  lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75")),
		KindInfo: lipgloss.NewStyle().Foreground(lipgloss.Color("#61AFEF")),
	}
}

// styleForKind picks the event row color by outcome.
func (t Theme) styleForKind(kind string) lipgloss.Style {
	switch kind {
	case "email_sent", "download_success":
		return t.KindGood
	case "webhook_invalid", "email_failed", "download_failed", "regen_failed":
		return t.KindBad
	default:
		return t.KindInfo
	}
}
