package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/agentdesk-dev/agentdesk/cli/internal/tui"
	"github.com/agentdesk-dev/agentdesk/pkg/desk/link"
	"github.com/agentdesk-dev/agentdesk/pkg/desk/render"
)

// NewChatCmd creates the chat command.
func NewChatCmd(opts *rootOptions) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat with the agent",
		Long: `Start an interactive chat with the agent.

The session is created lazily on the first message and reused for the
rest of the conversation. Replies are rendered as markdown unless
--plain is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), opts, plain)
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Disable markdown rendering of replies")

	return cmd
}

func runChat(ctx context.Context, opts *rootOptions, plain bool) error {
	var renderer render.Renderer = render.Plain{}
	if !plain {
		if md, err := render.NewMarkdown(0); err == nil {
			renderer = md
		}
	}

	app, err := opts.buildApp(renderer, link.Callbacks{})
	if err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer app.Stop()

	// Warm the session up while the screen comes up. Failures are retried
	// on the first send.
	go func() {
		_, _ = app.Conversation.EnsureSession(ctx)
	}()

	return tui.Run(ctx, app.Conversation, app.Config.App.Name)
}
