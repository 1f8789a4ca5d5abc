package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentdesk %s (%s)\n", Version, Commit)
		},
	}
}
