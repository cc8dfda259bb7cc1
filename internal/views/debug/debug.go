// Package debug provides a scrollable overlay of session lifecycle events.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/echo-chat/client/internal/theme"
)

const maxEntries = 200

// Kind tags an entry with its origin.
type Kind string

const (
	KindStatus  Kind = "stat"
	KindCommand Kind = "cmd"
	KindNet     Kind = "net"
	KindError   Kind = "err"
)

// Entry is a single event log line.
type Entry struct {
	Time    time.Time
	Kind    Kind
	Message string
}

// Model holds debug log state.
type Model struct {
	Entries []Entry
	Offset  int // scroll offset from bottom
	now     func() time.Time
}

// New creates an empty debug model.
func New() Model {
	return Model{now: time.Now}
}

// Add appends an entry, caps the buffer and scrolls back to the bottom.
func (m *Model) Add(kind Kind, message string) {
	ts := time.Now()
	if m.now != nil {
		ts = m.now()
	}
	m.Entries = append(m.Entries, Entry{Time: ts, Kind: kind, Message: message})
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	m.Offset = 0
}

// Addf is Add with fmt formatting.
func (m *Model) Addf(kind Kind, format string, args ...any) {
	m.Add(kind, fmt.Sprintf(format, args...))
}

// Count returns the number of entries of the given kind.
func (m Model) Count(kind Kind) int {
	n := 0
	for _, e := range m.Entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// ScrollUp moves the view towards older entries.
func (m *Model) ScrollUp(n int) {
	m.Offset += n
	limit := len(m.Entries) - 1
	if limit < 0 {
		limit = 0
	}
	if m.Offset > limit {
		m.Offset = limit
	}
}

// ScrollDown moves the view towards newer entries.
func (m *Model) ScrollDown(n int) {
	m.Offset -= n
	if m.Offset < 0 {
		m.Offset = 0
	}
}

// View renders the log as an overlay panel.
func (m Model) View(width, height int) string {
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}
	visibleLines := height - 6
	if visibleLines < 3 {
		visibleLines = 3
	}

	title := theme.StyleHeader.Render(" DEBUG LOG ")
	help := theme.StyleDimmed.Render(fmt.Sprintf(
		"pgup/pgdn:scroll  esc:close  %d entries  %d errors",
		len(m.Entries), m.Count(KindError)))

	if len(m.Entries) == 0 {
		body := theme.StyleDimmed.Render("  No events recorded yet.")
		content := lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help)
		return theme.Panel(innerW).Render(content)
	}

	end := len(m.Entries) - m.Offset
	if end < 0 {
		end = 0
	}
	start := end - visibleLines
	if start < 0 {
		start = 0
	}

	lines := make([]string, 0, end-start)
	for _, e := range m.Entries[start:end] {
		ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05.000"))
		kind := lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Width(4).Render(string(e.Kind))
		msg := e.Message
		if innerW > 26 {
			msg = ansi.Truncate(msg, innerW-20, "...")
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", ts, kind, msg))
	}

	body := strings.Join(lines, "\n")
	more := ""
	if m.Offset > 0 {
		more = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more", m.Offset))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, body, more, help)
	return theme.Panel(innerW).Render(content)
}

func kindColor(kind Kind) lipgloss.Color {
	switch kind {
	case KindStatus:
		return theme.ColorHealthy
	case KindCommand:
		return theme.ColorAccent
	case KindNet:
		return theme.ColorReceived
	case KindError:
		return theme.ColorDanger
	default:
		return theme.ColorDimmed
	}
}
