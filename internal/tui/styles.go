package tui

import "github.com/charmbracelet/lipgloss"

// Theme holds the colors and styles of the crop screen.
type Theme struct {
	Accent lipgloss.Color
	Muted  lipgloss.Color
	Error  lipgloss.Color

	Title   lipgloss.Style
	Status  lipgloss.Style
	HelpKey lipgloss.Style
	Help    lipgloss.Style
	Success lipgloss.Style
	Failure lipgloss.Style
}

// DefaultTheme returns the dark theme.
func DefaultTheme() *Theme {
	t := &Theme{
		Accent: lipgloss.Color("#4ade80"),
		Muted:  lipgloss.Color("#909090"),
		Error:  lipgloss.Color("#f87171"),
	}
	t.Title = lipgloss.NewStyle().Bold(true).Foreground(t.Accent)
	t.Status = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff"))
	t.HelpKey = lipgloss.NewStyle().Bold(true).Foreground(t.Accent)
	t.Help = lipgloss.NewStyle().Foreground(t.Muted)
	t.Success = lipgloss.NewStyle().Foreground(t.Accent)
	t.Failure = lipgloss.NewStyle().Foreground(t.Error)
	return t
}
