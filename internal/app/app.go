package app

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/echo-chat/client/internal/session"
	"github.com/echo-chat/client/internal/theme"
	"github.com/echo-chat/client/internal/views/debug"
	"github.com/echo-chat/client/internal/views/help"
	"github.com/echo-chat/client/internal/views/messages"
	"github.com/echo-chat/client/internal/views/status"
)

// Session is the part of *session.Session the TUI drives. Requests are
// queued without blocking and are applied in the order they were made.
type Session interface {
	URL() string
	RequestConnect()
	RequestSend(text string)
	RequestDisconnect()
	SubscribeStatus() (<-chan session.Status, func())
	SubscribeMessages() (<-chan []string, func())
}

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayHelp
	OverlayDebug
)

// Options tune the root model.
type Options struct {
	AutoConnect         bool
	MaxMessagesRendered int
}

type (
	statusMsg             session.Status
	messagesMsg           []string
	subscriptionClosedMsg struct{}
)

// Layout rows outside the message pane: status bar, input box, footer and
// the message pane's own border.
const chromeRows = 3 + 3 + 1 + 2

const footer = "  enter:send  ctrl+o:connect  ctrl+x:disconnect  pgup/pgdn:scroll  f1:help  f2:debug  ctrl+c:quit"

// Model is the root Bubble Tea model.
type Model struct {
	session     Session
	statusCh    <-chan session.Status
	messagesCh  <-chan []string
	unsubscribe []func()
	autoConnect bool

	keys    KeyMap
	width   int
	height  int
	overlay Overlay

	status session.Status
	lines  []string

	input     textinput.Model
	spinner   spinner.Model
	statusBar status.Model
	messages  messages.Model
	debug     debug.Model
	help      help.Model
}

// New creates the root model and subscribes to s.
func New(s Session, opts Options) Model {
	keys := DefaultKeyMap()

	in := textinput.New()
	in.Placeholder = "Type a message"
	in.Prompt = "> "
	in.CharLimit = 4096
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorWarning)

	statusCh, cancelStatus := s.SubscribeStatus()
	messagesCh, cancelMessages := s.SubscribeMessages()

	return Model{
		session:     s,
		statusCh:    statusCh,
		messagesCh:  messagesCh,
		unsubscribe: []func(){cancelStatus, cancelMessages},
		autoConnect: opts.AutoConnect,
		keys:        keys,
		input:       in,
		spinner:     sp,
		statusBar:   status.New(s.URL()),
		messages:    messages.New(opts.MaxMessagesRendered),
		debug:       debug.New(),
		help:        help.New(s.URL(), keys.Bindings()),
	}
}

// Init starts the subscriptions and, if configured, queues the first
// connection ahead of any key press.
func (m Model) Init() tea.Cmd {
	if m.autoConnect {
		m.session.RequestConnect()
	}
	cmds := []tea.Cmd{
		waitStatus(m.statusCh),
		waitMessages(m.messagesCh),
		m.spinner.Tick,
		textinput.Blink,
	}
	return tea.Batch(cmds...)
}

// Unsubscribe cancels the model's observable subscriptions.
func (m Model) Unsubscribe() {
	for _, cancel := range m.unsubscribe {
		cancel()
	}
}

func waitStatus(ch <-chan session.Status) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return subscriptionClosedMsg{}
		}
		return statusMsg(st)
	}
}

func waitMessages(ch <-chan []string) tea.Cmd {
	return func() tea.Msg {
		lines, ok := <-ch
		if !ok {
			return subscriptionClosedMsg{}
		}
		return messagesMsg(lines)
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case statusMsg:
		m.setStatus(session.Status(msg))
		return m, waitStatus(m.statusCh)

	case messagesMsg:
		cmd := m.setLines(msg)
		return m, tea.Batch(cmd, waitMessages(m.messagesCh))

	case subscriptionClosedMsg:
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.statusBar.Spinner = m.spinner.View()
		return m, cmd

	case messages.FrameMsg:
		var cmd tea.Cmd
		m.messages, cmd = m.messages.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.statusBar.Width = width
	m.input.Width = width - 7
	m.messages.SetSize(width-2, height-chromeRows)
	m.help.SetWidth(width)
}

func (m *Model) setStatus(st session.Status) {
	if st != m.status {
		m.debug.Addf(debug.KindStatus, "%s -> %s", m.status.State, st)
	}
	if st.State == session.Failed {
		m.debug.Add(debug.KindError, st.Message)
	}
	m.status = st
	m.statusBar.Status = st
}

func (m *Model) setLines(lines []string) tea.Cmd {
	for _, line := range lines[min(len(m.lines), len(lines)):] {
		if strings.HasPrefix(line, session.ReceivedPrefix) {
			m.debug.Addf(debug.KindNet, "frame in (%d bytes)", len(line)-len(session.ReceivedPrefix))
		}
	}
	m.lines = lines
	m.statusBar.SetCounts(counts(lines))
	return m.messages.SetLines(lines)
}

func counts(lines []string) (sent, received int) {
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, session.SentPrefix):
			sent++
		case strings.HasPrefix(line, session.ReceivedPrefix):
			received++
		}
	}
	return sent, received
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	if m.overlay != OverlayNone {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Help):
			m.overlay = toggle(m.overlay, OverlayHelp)
		case key.Matches(msg, m.keys.Debug):
			m.overlay = toggle(m.overlay, OverlayDebug)
		case m.overlay == OverlayDebug && key.Matches(msg, m.keys.ScrollUp):
			m.debug.ScrollUp(m.pageSize())
		case m.overlay == OverlayDebug && key.Matches(msg, m.keys.ScrollDown):
			m.debug.ScrollDown(m.pageSize())
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		m.overlay = OverlayHelp
		return m, nil

	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
		return m, nil

	case key.Matches(msg, m.keys.Connect):
		m.debug.Add(debug.KindCommand, "connect")
		m.session.RequestConnect()
		return m, nil

	case key.Matches(msg, m.keys.Disconnect):
		m.debug.Add(debug.KindCommand, "disconnect")
		m.session.RequestDisconnect()
		return m, nil

	case key.Matches(msg, m.keys.Send):
		text := m.input.Value()
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.input.Reset()
		m.debug.Addf(debug.KindCommand, "send (%d bytes)", len(text))
		m.session.RequestSend(text)
		return m, nil

	case key.Matches(msg, m.keys.ScrollUp):
		return m, m.messages.ScrollBy(-m.pageSize())

	case key.Matches(msg, m.keys.ScrollDown):
		return m, m.messages.ScrollBy(m.pageSize())
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) pageSize() int {
	return max((m.height-chromeRows)/2, 1)
}

func toggle(current, target Overlay) Overlay {
	if current == target {
		return OverlayNone
	}
	return target
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	switch m.overlay {
	case OverlayHelp:
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.help.View())
	case OverlayDebug:
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.debug.View(m.width, m.height))
	}

	sections := []string{
		m.statusBar.View(),
		theme.StyleBorder.Width(m.width - 2).Render(m.messages.View()),
		theme.StyleBorder.Width(m.width - 2).Render(m.input.View()),
		theme.StyleDimmed.Render(footer),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
