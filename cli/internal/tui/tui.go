package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/agentdesk-dev/agentdesk/pkg/desk/chat"
)

// Run starts the chat screen and blocks until the user quits. Conversation
// updates are forwarded into the event loop through the snapshot
// subscription; the subscription is dropped before Run returns.
func Run(ctx context.Context, conv *chat.Conversation, appName string) error {
	model := New(ctx, conv, appName)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	cancel := conv.Subscribe(func(snap chat.Snapshot) {
		program.Send(snapshotMsg{snap: snap})
	})
	defer cancel()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("chat screen failed: %w", err)
	}
	return nil
}
