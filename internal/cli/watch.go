package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ngrantham/pausewatch/internal/watchui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live-updating rogue process view",
	Long: `Display a live-updating view of the daemon's scored rogue process
stream, auto-starting the daemon if it isn't already running. Press q to
exit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := watchui.New()
		if err != nil {
			return err
		}
		p := tea.NewProgram(m, tea.WithAltScreen())
		_, err = p.Run()
		return err
	},
	SilenceUsage: true,
}
