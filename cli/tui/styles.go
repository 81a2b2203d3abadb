// Package tui provides Bubble Tea TUI components for the ganhost CLI.
//
// TUI is opt-in (--tui) and read-only. It renders the same payloads as the
// json/table/yaml output.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor   = lipgloss.Color("#0EA5E9")
	successColor   = lipgloss.Color("#22C55E")
	warningColor   = lipgloss.Color("#EAB308")
	errorColor     = lipgloss.Color("#F43F5E")
	mutedColor     = lipgloss.Color("#64748B")
	highlightColor = lipgloss.Color("#A855F7")
	textColor      = lipgloss.Color("#F8FAFC")
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	LabelStyle = lipgloss.NewStyle().Foreground(mutedColor).Width(14)
	ValueStyle = lipgloss.NewStyle().Foreground(textColor)
	MutedStyle = lipgloss.NewStyle().Foreground(mutedColor)

	SuccessStyle = lipgloss.NewStyle().Foreground(successColor)
	WarningStyle = lipgloss.NewStyle().Foreground(warningColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(errorColor)

	// BoxStyle frames every view.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	HelpStyle = lipgloss.NewStyle().Foreground(mutedColor)

	// StatBoxStyle frames one counter in the session stats view.
	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			Padding(0, 1).
			Width(18).
			Align(lipgloss.Center)
	StatLabelStyle = lipgloss.NewStyle().Foreground(mutedColor)
	StatValueStyle = lipgloss.NewStyle().Bold(true)

	// BarStyle fills variance share bars.
	BarStyle = lipgloss.NewStyle().Foreground(highlightColor)
)

// StatusStyle returns a style for a note status, render outcome or archive
// scheme.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "ok", "latent", "success":
		return SuccessStyle
	case "pitch_unsupported", "legacy", "partial":
		return WarningStyle
	case "failed":
		return ErrorStyle
	default:
		return ValueStyle
	}
}
