// Package theme provides the Lip Gloss color palette and reusable styles
// for the echo-chat TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Connection colors.
var (
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
	ColorIdle    = lipgloss.Color("#4b5563")
)

// Message log colors.
var (
	ColorSent     = lipgloss.Color("#3b82f6")
	ColorReceived = lipgloss.Color("#a855f7")
	ColorSystem   = lipgloss.Color("#9ca3af")
)

// UI chrome colors.
var (
	ColorBorder = lipgloss.Color("#4b5563")
	ColorDimmed = lipgloss.Color("#6b7280")
	ColorBright = lipgloss.Color("#f9fafb")
	ColorAccent = lipgloss.Color("#7c3aed")
)

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSent = lipgloss.NewStyle().
			Foreground(ColorSent)

	StyleReceived = lipgloss.NewStyle().
			Foreground(ColorReceived)

	StyleSystem = lipgloss.NewStyle().
			Italic(true).
			Foreground(ColorSystem)
)

// Panel returns the double-bordered frame used by overlays.
func Panel(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(ColorBorder)
}
