package cli

import (
	"context"

	"github.com/ngrantham/pausewatch/internal/daemon"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the collection/scoring pipeline in the foreground",
	Long: `Run the collection/scoring pipeline in the foreground.

This is the process a launchd plist (or systemd-equivalent unit) execs;
it samples top(1), scores every process, tracks rogue events in the local
database, and pushes the live stream to any connected "watch"/"status"
clients over a Unix socket. Stop it with SIGINT/SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemon.Run(context.Background(), Version, debugOutput)
	},
	SilenceUsage: true,
}
