package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const accentColor = "86"

// Styles contains all lipgloss styles for the chat screen.
type Styles struct {
	Header    lipgloss.Style
	User      lipgloss.Style
	Model     lipgloss.Style
	System    lipgloss.Style
	Tips      lipgloss.Style
	Prompt    lipgloss.Style
	Separator lipgloss.Style
	StatusBar lipgloss.Style
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() Styles {
	return Styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(accentColor)),
		User:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(accentColor)),
		Model:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		System:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("196")),
		Tips:      lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Prompt:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(accentColor)),
		Separator: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		StatusBar: lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
	}
}

var welcomeTips = []string{
	"Tips for getting started:",
	"  - Type a message and press Enter to send",
	"  - Ctrl+C or Ctrl+D exits",
	"  - PgUp/PgDn scroll the conversation",
}

// RenderHeader returns the styled banner shown above the conversation.
func (s Styles) RenderHeader(appName string) string {
	var b strings.Builder
	b.WriteString(s.Header.Render("agentdesk"))
	if appName != "" {
		b.WriteString(s.StatusBar.Render("  agent: " + appName))
	}
	b.WriteString("\n\n")
	for _, tip := range welcomeTips {
		b.WriteString(s.Tips.Render(tip))
		b.WriteString("\n")
	}
	return b.String()
}
