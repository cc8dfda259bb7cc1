// Package help renders the key binding reference overlay from markdown.
package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/echo-chat/client/internal/theme"
)

// Markdown builds the reference document for the given bindings.
func Markdown(url string, bindings []key.Binding) string {
	var b strings.Builder
	b.WriteString("# echo-chat\n\n")
	fmt.Fprintf(&b, "Messages are sent to `%s` and echoed back.\n\n", url)
	b.WriteString("| Key | Action |\n|---|---|\n")
	for _, kb := range bindings {
		h := kb.Help()
		if h.Key == "" {
			continue
		}
		fmt.Fprintf(&b, "| `%s` | %s |\n", h.Key, h.Desc)
	}
	return b.String()
}

// Model caches the rendered document for one width.
type Model struct {
	source   string
	width    int
	rendered string
}

// New creates a help overlay for url and bindings.
func New(url string, bindings []key.Binding) Model {
	return Model{source: Markdown(url, bindings)}
}

// SetWidth re-renders the document when the overlay width changes.
// Rendering failures fall back to the raw markdown.
func (m *Model) SetWidth(width int) {
	innerW := width - 8
	if innerW < 30 {
		innerW = 30
	}
	if m.rendered != "" && m.width == innerW {
		return
	}
	m.width = innerW
	m.rendered = render(m.source, innerW)
}

// View renders the overlay at the last width passed to SetWidth.
func (m Model) View() string {
	doc, width := m.rendered, m.width+4
	if doc == "" {
		doc, width = m.source, 0
	}
	title := theme.StyleHeader.Render(" HELP ")
	footer := theme.StyleDimmed.Render("esc:close")
	content := lipgloss.JoinVertical(lipgloss.Left, title, doc, footer)
	return theme.Panel(width).Render(content)
}

func render(md string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}
