// Package cli implements the agentdesk command tree.
package cli

import (
	stdlog "log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/spf13/cobra"

	"github.com/agentdesk-dev/agentdesk/pkg/desk"
	"github.com/agentdesk-dev/agentdesk/pkg/desk/config"
	"github.com/agentdesk-dev/agentdesk/pkg/desk/link"
	"github.com/agentdesk-dev/agentdesk/pkg/desk/render"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
	verbosity  int
}

// NewRootCmd creates the root agentdesk command.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "agentdesk",
		Short: "Terminal client for the assistant backend",
		Long: `agentdesk is a terminal client for the assistant backend.

It keeps an interactive chat session with the agent, and manages the
linked GitHub account used by the agent's tooling.

Examples:
  agentdesk chat
  agentdesk sessions
  agentdesk link connect
  agentdesk link status`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file (default: ~/.agentdesk/config.yaml)")
	cmd.PersistentFlags().IntVarP(&opts.verbosity, "verbose", "v", 0, "Log verbosity (higher is noisier)")

	cmd.AddCommand(NewChatCmd(opts))
	cmd.AddCommand(NewSessionsCmd(opts))
	cmd.AddCommand(NewLinkCmd(opts))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

func (o *rootOptions) logger() logr.Logger {
	stdr.SetVerbosity(o.verbosity)
	return stdr.New(stdlog.New(os.Stderr, "", stdlog.LstdFlags))
}

// buildApp loads configuration and assembles the client. The caller still
// has to Start it.
func (o *rootOptions) buildApp(renderer render.Renderer, callbacks link.Callbacks) (*desk.App, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	return desk.NewApp(cfg, renderer, callbacks, desk.WithLogger(o.logger())), nil
}
