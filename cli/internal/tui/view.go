package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/muesli/reflow/wordwrap"

	"github.com/agentdesk-dev/agentdesk/pkg/desk/chat"
)

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderSeparator())
	b.WriteString("\n")
	b.WriteString(m.styles.Prompt.Render("> "))
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.renderSeparator())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m *Model) rebuildViewport() {
	if !m.ready {
		return
	}

	wrap := m.viewport.Width
	if wrap <= 0 {
		wrap = 80
	}

	var b strings.Builder
	b.WriteString(m.styles.RenderHeader(m.appName))
	b.WriteString("\n")

	for _, msg := range m.snap.Messages {
		switch msg.Role {
		case chat.RoleUser:
			b.WriteString(m.styles.User.Render("You> "))
			b.WriteString(wordwrap.String(msg.Text, wrap))
		case chat.RoleModel:
			b.WriteString(m.styles.Model.Render("Agent> "))
			b.WriteString(wordwrap.String(displayText(msg), wrap))
		case chat.RoleSystem:
			b.WriteString(m.styles.System.Render(wordwrap.String(msg.Text, wrap)))
		}
		b.WriteString("\n\n")
	}

	switch {
	case m.snap.Typing:
		b.WriteString(m.spinner.View())
		b.WriteString(" Agent is typing...\n\n")
	case m.snap.Busy:
		b.WriteString(m.spinner.View())
		b.WriteString(" Starting session...\n\n")
	}

	m.viewport.SetContent(b.String())
}

// displayText prefers the rendered form of a reply when one exists.
func displayText(msg chat.Message) string {
	if msg.RenderedText != "" {
		return msg.RenderedText
	}
	return msg.Text
}

func (m *Model) renderSeparator() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	return m.styles.Separator.Render(strings.Repeat("─", width))
}

func (m *Model) renderStatusBar() string {
	bindings := []key.Binding{m.keys.Submit, m.keys.ScrollUp, m.keys.ScrollDown, m.keys.Quit}
	return m.help.ShortHelpView(bindings)
}
