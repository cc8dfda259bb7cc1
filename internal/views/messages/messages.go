// Package messages renders the chat log in a scrollable viewport whose
// offset is animated with a critically damped spring.
package messages

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"github.com/echo-chat/client/internal/session"
	"github.com/echo-chat/client/internal/theme"
)

const fps = 60

// FrameMsg advances the scroll animation by one frame. Frames from an
// animation that has since been snapped are ignored.
type FrameMsg struct {
	gen int
}

func frame(gen int) tea.Cmd {
	return tea.Tick(time.Second/fps, func(time.Time) tea.Msg { return FrameMsg{gen: gen} })
}

// Model is the message list.
type Model struct {
	vp       viewport.Model
	lines    []string
	maxLines int

	spring    harmonica.Spring
	pos, vel  float64
	target    float64
	animating bool
	gen       int
	follow    bool
}

// New creates a message list that renders at most maxLines of the log.
// Zero or negative means no limit.
func New(maxLines int) Model {
	return Model{
		vp:       viewport.New(0, 0),
		maxLines: maxLines,
		spring:   harmonica.NewSpring(harmonica.FPS(fps), 6.0, 1.0),
		follow:   true,
	}
}

// SetSize resizes the viewport and snaps to the current target.
func (m *Model) SetSize(width, height int) {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	m.vp.Width = width
	m.vp.Height = height
	m.render()
	if m.follow {
		m.target = m.maxOffset()
	}
	m.target = m.clamp(m.target)
	m.snap()
}

// SetLines replaces the rendered log. When the view was following the
// bottom it glides to the newest line.
func (m *Model) SetLines(lines []string) tea.Cmd {
	m.lines = lines
	m.render()
	if m.follow {
		m.target = m.maxOffset()
	}
	m.target = m.clamp(m.target)
	return m.animate()
}

// ScrollBy moves the scroll target by n lines; negative scrolls up.
func (m *Model) ScrollBy(n int) tea.Cmd {
	m.target = m.clamp(m.target + float64(n))
	m.follow = m.target >= m.maxOffset()
	return m.animate()
}

// Len returns the number of log lines held.
func (m Model) Len() int { return len(m.lines) }

// Following reports whether new lines scroll the view to the bottom.
func (m Model) Following() bool { return m.follow }

// Offset returns the viewport's current line offset.
func (m Model) Offset() int { return m.vp.YOffset }

// Update steps the animation.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	f, ok := msg.(FrameMsg)
	if !ok || !m.animating || f.gen != m.gen {
		return m, nil
	}
	m.pos, m.vel = m.spring.Update(m.pos, m.vel, m.target)
	if math.Abs(m.pos-m.target) < 0.5 && math.Abs(m.vel) < 0.5 {
		m.snap()
		return m, nil
	}
	m.vp.SetYOffset(int(math.Round(m.pos)))
	return m, frame(m.gen)
}

// View renders the viewport.
func (m Model) View() string {
	return m.vp.View()
}

func (m *Model) animate() tea.Cmd {
	if m.animating || math.Abs(m.pos-m.target) < 0.5 {
		if !m.animating {
			m.snap()
		}
		return nil
	}
	m.animating = true
	m.gen++
	return frame(m.gen)
}

func (m *Model) snap() {
	m.pos, m.vel = m.target, 0
	m.animating = false
	m.vp.SetYOffset(int(m.target))
}

func (m Model) maxOffset() float64 {
	n := m.vp.TotalLineCount() - m.vp.Height
	if n < 0 {
		return 0
	}
	return float64(n)
}

func (m Model) clamp(v float64) float64 {
	return math.Max(0, math.Min(v, m.maxOffset()))
}

func (m *Model) render() {
	if len(m.lines) == 0 {
		m.vp.SetContent(theme.StyleDimmed.Render("No messages yet. Press ctrl+o to connect."))
		return
	}

	visible := m.lines
	var b strings.Builder
	if m.maxLines > 0 && len(visible) > m.maxLines {
		hidden := len(visible) - m.maxLines
		visible = visible[hidden:]
		b.WriteString(theme.StyleDimmed.Render(fmt.Sprintf("… %d earlier messages", hidden)))
		b.WriteByte('\n')
	}

	wrap := lipgloss.NewStyle().Width(m.vp.Width)
	for i, line := range visible {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(wrap.Render(Style(line).Render(line)))
	}
	m.vp.SetContent(b.String())
}

// Style picks the style for a log line by its prefix.
func Style(line string) lipgloss.Style {
	switch {
	case strings.HasPrefix(line, session.SentPrefix):
		return theme.StyleSent
	case strings.HasPrefix(line, session.ReceivedPrefix):
		return theme.StyleReceived
	default:
		return theme.StyleSystem
	}
}
