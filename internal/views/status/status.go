// Package status renders the connection status bar.
package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/echo-chat/client/internal/session"
	"github.com/echo-chat/client/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	Status   session.Status
	URL      string
	Spinner  string // shown while connecting
	Sent     int
	Received int
	Width    int
}

// New creates a status bar model for url.
func New(url string) Model {
	return Model{URL: url}
}

// SetCounts updates the traffic counters.
func (m *Model) SetCounts(sent, received int) {
	m.Sent = sent
	m.Received = received
}

// Color returns the indicator color for a connection state.
func Color(s session.State) lipgloss.Color {
	switch s {
	case session.Connected:
		return theme.ColorHealthy
	case session.Connecting, session.Closing:
		return theme.ColorWarning
	case session.Failed:
		return theme.ColorDanger
	default:
		return theme.ColorIdle
	}
}

func glyph(s session.State) string {
	switch s {
	case session.Connected:
		return "●"
	case session.Failed:
		return "✗"
	case session.Closing:
		return "◌"
	default:
		return "○"
	}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	indicator := glyph(m.Status.State)
	if m.Status.State == session.Connecting && m.Spinner != "" {
		indicator = m.Spinner
	}
	connStr := lipgloss.NewStyle().
		Foreground(Color(m.Status.State)).
		Render(indicator + " " + m.Status.String())

	counts := fmt.Sprintf("%d sent  %d received", m.Sent, m.Received)

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + theme.StyleDimmed.Render(m.URL) + sep + counts

	bar := lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)

	return bar
}
