package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Submit):
			text := trimmedInput(m.input)
			if text == "" || m.snap.Busy {
				return m, nil
			}
			m.input.Reset()
			return m, m.sendCmd(text)

		case key.Matches(msg, m.keys.ScrollUp):
			m.viewport.HalfViewUp()
			return m, nil

		case key.Matches(msg, m.keys.ScrollDown):
			m.viewport.HalfViewDown()
			return m, nil
		}

	case snapshotMsg:
		m.snap = msg.snap
		m.rebuildViewport()
		m.viewport.GotoBottom()
		return m, nil

	case sendDoneMsg:
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.snap.Busy || m.snap.Typing {
			m.rebuildViewport()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}
