package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agentdesk-dev/agentdesk/pkg/desk"
	"github.com/agentdesk-dev/agentdesk/pkg/desk/link"
	"github.com/agentdesk-dev/agentdesk/pkg/desk/render"
)

// NewLinkCmd creates the link command group.
func NewLinkCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Manage the linked GitHub account",
		Long: `Manage the GitHub account linked to the assistant.

Available subcommands:
  connect     Link a GitHub account through the browser
  disconnect  Remove the linked account
  status      Show the current link state`,
	}

	cmd.AddCommand(newConnectCmd(opts))
	cmd.AddCommand(newDisconnectCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))

	return cmd
}

// feedback is a linking outcome delivered by the coordinator.
type feedback struct {
	message string
	kind    link.FeedbackKind
}

// linkApp builds and starts an App whose coordinator reports outcomes on
// the returned channel.
func linkApp(ctx context.Context, opts *rootOptions) (*desk.App, <-chan feedback, error) {
	results := make(chan feedback, 1)
	callbacks := link.Callbacks{
		Feedback: func(message string, kind link.FeedbackKind) {
			select {
			case results <- feedback{message: message, kind: kind}:
			default:
			}
		},
	}

	app, err := opts.buildApp(render.Plain{}, callbacks)
	if err != nil {
		return nil, nil, err
	}
	if err := app.Start(ctx); err != nil {
		return nil, nil, err
	}
	return app, results, nil
}

func newConnectCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Link a GitHub account through the browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd.Context(), opts, timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for the browser flow to finish")

	return cmd
}

func runConnect(ctx context.Context, opts *rootOptions, timeout time.Duration) error {
	app, results, err := linkApp(ctx, opts)
	if err != nil {
		return err
	}
	defer app.Stop()

	if err := app.Link.Connect(ctx); err != nil {
		// The feedback callback already carries the user-facing message.
		select {
		case res := <-results:
			color.Red("%s", res.message)
		default:
		}
		return err
	}

	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	sp.Suffix = " Waiting for the browser to finish linking..."
	sp.Start()
	defer sp.Stop()

	poll := time.NewTicker(app.Config.Link.PollInterval)
	defer poll.Stop()
	deadline := time.After(timeout)

	for {
		select {
		case res := <-results:
			sp.Stop()
			if res.kind == link.FeedbackError {
				color.Red("%s", res.message)
				return fmt.Errorf("account linking failed")
			}
			color.Green("%s", res.message)
			return nil
		case <-poll.C:
			// The browser tab closing without an announcement still ends
			// the attempt. Confirm against the backend.
			if app.Link.Connecting() {
				continue
			}
			sp.Stop()
			return reportStatus(ctx, app)
		case <-deadline:
			sp.Stop()
			return fmt.Errorf("timed out after %s waiting for the linking flow", timeout)
		case <-ctx.Done():
			sp.Stop()
			return ctx.Err()
		}
	}
}

func newDisconnectCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Remove the linked GitHub account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDisconnect(cmd.Context(), opts)
		},
	}
	return cmd
}

func runDisconnect(ctx context.Context, opts *rootOptions) error {
	app, results, err := linkApp(ctx, opts)
	if err != nil {
		return err
	}
	defer app.Stop()

	disconnectErr := app.Link.Disconnect(ctx)

	select {
	case res := <-results:
		if res.kind == link.FeedbackError {
			color.Red("%s", res.message)
		} else {
			color.Green("%s", res.message)
		}
	default:
	}

	return disconnectErr
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current link state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := linkApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Stop()
			return reportStatus(cmd.Context(), app)
		},
	}
	return cmd
}

func reportStatus(ctx context.Context, app *desk.App) error {
	status, err := app.Link.Status(ctx)
	if err != nil {
		return err
	}
	if status.Connected {
		if status.Username != "" {
			color.Green("Connected as %s", status.Username)
		} else {
			color.Green("Connected")
		}
	} else {
		color.Yellow("No account linked")
	}
	return nil
}
