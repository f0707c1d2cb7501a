package ui

import "github.com/charmbracelet/lipgloss"

// Styles bundles the styles used for run output. Build one per writer with
// NewStyles so colour detection follows the destination.
type Styles struct {
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Host    lipgloss.Style
	Muted   lipgloss.Style
	Header  lipgloss.Style
}

// NewStyles creates the style set bound to r.
func NewStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Success: r.NewStyle().Foreground(ColorSuccess),
		Error:   r.NewStyle().Foreground(ColorError),
		Warning: r.NewStyle().Foreground(ColorWarning),
		Info:    r.NewStyle().Foreground(ColorInfo),
		Host:    r.NewStyle().Foreground(ColorSecondary).Bold(true),
		Muted:   r.NewStyle().Foreground(ColorMuted),
		Header:  r.NewStyle().Bold(true).Foreground(ColorPrimary),
	}
}
