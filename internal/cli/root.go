package cli

import (
	"fmt"
	"os"

	"github.com/ngrantham/pausewatch/internal/display"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

// jsonOutput is the global flag for JSON output mode.
var jsonOutput bool

// debugOutput is the global flag for debug logging.
var debugOutput bool

var rootCmd = &cobra.Command{
	Use:   "pausewatchd",
	Short: display.CBold + "pausewatchd" + display.CReset + " — host stress diagnostics",
	Run:   runRoot,
}

// coloredHelpTemplate is the Cobra help template with ANSI colors.
var coloredHelpTemplate = `{{with .Long}}{{. | trimTrailingWhitespaces}}

{{end}}` +
	`{{if or .Runnable .HasSubCommands}}` + display.CYellow + `Usage:` + display.CReset + `{{end}}
{{if .Runnable}}  {{.UseLine}}{{end}}` +
	`{{if .HasAvailableSubCommands}}  {{.CommandPath}} [command]{{end}}

` +
	`{{if gt (len .Aliases) 0}}` + display.CYellow + `Aliases:` + display.CReset + `
  {{.NameAndAliases}}

{{end}}` +
	`{{if .HasExample}}` + display.CYellow + `Examples:` + display.CReset + `
{{.Example}}

{{end}}` +
	`{{if .HasAvailableSubCommands}}` + display.CYellow + `Available Commands:` + display.CReset + `{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  ` + display.CCyan + `{{rpad .Name .NamePadding}}` + display.CReset + `  {{.Short}}{{end}}{{end}}

{{end}}` +
	`{{if .HasAvailableLocalFlags}}` + display.CYellow + `Flags:` + display.CReset + `
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}` +
	`{{if .HasAvailableInheritedFlags}}` + display.CYellow + `Global Flags:` + display.CReset + `
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}` +
	`{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.
{{end}}`

// runRoot is called when pausewatchd is invoked without a subcommand: show
// the one-shot status view if a daemon is reachable, otherwise show help.
func runRoot(cmd *cobra.Command, args []string) {
	if err := runStatusOnce(); err != nil {
		cmd.Help()
	}
}

// Execute sets up the root command, registers all subcommands, and runs cobra.
func Execute() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&debugOutput, "debug", false, "enable debug logging")

	rootCmd.SetHelpTemplate(coloredHelpTemplate)

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configShowCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// exitError prints an error message and exits. When jsonOutput is set, it
// writes a JSON object to stdout; otherwise it prints to stderr.
func exitError(msg string) {
	if jsonOutput {
		fmt.Fprintf(os.Stdout, "{\"error\":%q}\n", msg)
	} else {
		fmt.Fprintf(os.Stderr, "%s %s\n", display.Red("Error:"), msg)
	}
	os.Exit(1)
}
