package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/agentdesk-dev/agentdesk/pkg/desk/link"
	"github.com/agentdesk-dev/agentdesk/pkg/desk/render"
)

// NewSessionsCmd creates the sessions command.
func NewSessionsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List chat sessions for the configured user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(cmd.Context(), opts)
		},
	}
	return cmd
}

func runSessions(ctx context.Context, opts *rootOptions) error {
	app, err := opts.buildApp(render.Plain{}, link.Callbacks{})
	if err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer app.Stop()

	sessions, err := app.Chat.ListSessions(ctx, app.Config.User.ID, app.Config.App.Name)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions found")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Session ID", "App", "User"})
	for _, s := range sessions {
		t.AppendRow(table.Row{s.ID, s.AppName, s.UserID})
	}
	t.SetStyle(table.StyleLight)
	t.Render()

	return nil
}
