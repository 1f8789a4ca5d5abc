// Package tui provides the Bubble Tea chat screen. It renders conversation
// snapshots and feeds typed input back into the conversation.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/agentdesk-dev/agentdesk/pkg/desk/chat"
)

// Layout constants for viewport height calculation.
const (
	separatorLines = 2
	helpLines      = 1
	inputLines     = 1
	minViewport    = 3
)

// snapshotMsg carries a fresh conversation snapshot into the event loop.
type snapshotMsg struct{ snap chat.Snapshot }

// sendDoneMsg signals that a Send call returned. State changes arrive
// separately through snapshot notifications.
type sendDoneMsg struct{}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
	keys     keyMap
	styles   Styles

	conv    *chat.Conversation
	ctx     context.Context
	snap    chat.Snapshot
	appName string

	width  int
	height int
	ready  bool
}

// New creates the chat screen model around conv.
func New(ctx context.Context, conv *chat.Conversation, appName string) Model {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.Prompt = ""
	ta.ShowLineNumbers = false
	ta.SetHeight(inputLines)
	ta.CharLimit = 0
	ta.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	return Model{
		input:   ta,
		spinner: sp,
		help:    help.New(),
		keys:    defaultKeyMap(),
		styles:  DefaultStyles(),
		conv:    conv,
		ctx:     ctx,
		snap:    conv.Snapshot(),
		appName: appName,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

func (m Model) sendCmd(text string) tea.Cmd {
	conv, ctx := m.conv, m.ctx
	return func() tea.Msg {
		// Errors surface as system messages in the next snapshot.
		_ = conv.Send(ctx, text)
		return sendDoneMsg{}
	}
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.input.SetWidth(width)
	m.help.Width = width

	vpHeight := height - separatorLines - inputLines - helpLines
	if vpHeight < minViewport {
		vpHeight = minViewport
	}
	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}
	m.rebuildViewport()
	m.viewport.GotoBottom()
}

func trimmedInput(ta textarea.Model) string {
	return strings.TrimSpace(ta.Value())
}
