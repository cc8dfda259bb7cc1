package help

import (
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/x/ansi"
)

func bindings() []key.Binding {
	return []key.Binding{
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send message")),
		key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "connect")),
		key.NewBinding(key.WithKeys("x")),
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown("ws://echo.test", bindings())

	for _, want := range []string{"ws://echo.test", "| `enter` | send message |", "| `ctrl+o` | connect |"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Count(md, "\n| `") != 2 {
		t.Errorf("bindings without help should be skipped:\n%s", md)
	}
}

func TestViewRendersBindings(t *testing.T) {
	m := New("ws://echo.test", bindings())
	m.SetWidth(100)
	v := ansi.Strip(m.View())

	for _, want := range []string{"HELP", "send message", "connect", "esc:close"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}

func TestViewCachesPerWidth(t *testing.T) {
	m := New("ws://echo.test", bindings())
	m.SetWidth(100)
	first := m.rendered
	m.SetWidth(100)
	if m.rendered != first {
		t.Error("same width should reuse the rendered document")
	}
	m.SetWidth(60)
	if m.width != 52 {
		t.Errorf("width = %d, want 52", m.width)
	}
}

func TestViewBeforeSetWidth(t *testing.T) {
	m := New("ws://echo.test", bindings())
	if v := ansi.Strip(m.View()); !strings.Contains(v, "send message") {
		t.Errorf("unrendered view should fall back to markdown:\n%s", v)
	}
}
