package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ngrantham/pausewatch/internal/client"
	"github.com/ngrantham/pausewatch/internal/config"
	"github.com/ngrantham/pausewatch/internal/daemon"
	"github.com/ngrantham/pausewatch/internal/display"
	"github.com/ngrantham/pausewatch/internal/model"
	"github.com/ngrantham/pausewatch/internal/protocol"
	"github.com/ngrantham/pausewatch/internal/storage"
	"github.com/spf13/cobra"
)

var statusVerbose bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the most recent sample and exit",
	Long: `Connect to the daemon, read the initial_state handshake it sends on
connect, print the most recent sample, and disconnect. Does not auto-start
the daemon — if it isn't running, this reports that and exits non-zero.

With --verbose, also opens the event database read-only to print support
diagnostics: the last schema wipe timestamp and any notes recorded against
currently open events.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runStatusOnce(); err != nil {
			exitError(err.Error())
		}
		if statusVerbose {
			printVerboseDiagnostics()
		}
	},
}

func init() {
	statusCmd.Flags().BoolVarP(&statusVerbose, "verbose", "v", false, "print support diagnostics from the event database")
}

func printVerboseDiagnostics() {
	db, err := storage.OpenReadOnly(daemon.DBPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", display.Dim("verbose diagnostics unavailable:"), err)
		return
	}
	defer db.Close()

	fmt.Printf("\n%s\n", display.Bold("Diagnostics:"))

	var wipedAt string
	row := db.QueryRow(`SELECT value FROM daemon_state WHERE key = 'last_schema_wipe'`)
	if err := row.Scan(&wipedAt); err != nil {
		fmt.Printf("  Last schema wipe: %s\n", display.Dim("none recorded"))
	} else {
		fmt.Printf("  Last schema wipe: %s\n", wipedAt)
	}

	rows, err := db.Query(`SELECT pid, notes FROM events WHERE exit_time IS NULL AND notes != ''`)
	if err != nil {
		return
	}
	defer rows.Close()
	for rows.Next() {
		var pid int
		var notes string
		if err := rows.Scan(&pid, &notes); err == nil {
			fmt.Printf("  pid %d: %s\n", pid, notes)
		}
	}
}

func runStatusOnce() error {
	c, err := client.TryConnect()
	if err != nil {
		return fmt.Errorf("daemon not reachable: %w", err)
	}
	defer c.Close()

	typ, data, err := c.ReadMessage()
	if err != nil {
		return fmt.Errorf("read initial state: %w", err)
	}
	if typ != protocol.MessageInitialState {
		return fmt.Errorf("unexpected first message type %q", typ)
	}
	var msg protocol.InitialStateMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode initial state: %w", err)
	}

	if jsonOutput {
		out, _ := json.MarshalIndent(msg, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Daemon PID:  %s\n", display.Cyan(fmt.Sprintf("%d", msg.DaemonPID)))
	fmt.Printf("Boot time:   %s\n", time.Unix(msg.BootTime, 0).Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("Open events: %d\n\n", len(msg.OpenEventIDs))

	latest, ok := msg.Latest()
	if !ok {
		fmt.Println(display.Dim("No sample collected yet"))
		return nil
	}

	sample := latest
	age := time.Since(time.Unix(sample.Timestamp, 0))
	fmt.Printf("Last sample: %s (%s ago)\n", time.Unix(sample.Timestamp, 0).Format("15:04:05"), protocol.FormatDuration(age))
	fmt.Printf("Processes:   %d\n", sample.ProcessCount)
	fmt.Printf("Max score:   %s\n\n", scoreString(sample.MaxScore))

	if len(sample.RogueProcesses) == 0 {
		fmt.Println(display.Dim("No rogue processes"))
		return nil
	}

	procs := make([]model.ScoredProcess, len(sample.RogueProcesses))
	for i, p := range sample.RogueProcesses {
		procs[i] = p.FromJSON()
	}
	display.RenderRogueTable(os.Stdout, procs)
	printSuspectMatches(procs)
	return nil
}

// printSuspectMatches flags any rogue process whose command matches a
// configured suspect pattern. Purely informational: it never changes score,
// band, or forensics triggering.
func printSuspectMatches(procs []model.ScoredProcess) {
	cfg, err := config.Load()
	if err != nil {
		return
	}
	var matched []string
	for _, p := range procs {
		if cfg.IsSuspect(p.Command) {
			matched = append(matched, p.Command)
		}
	}
	if len(matched) == 0 {
		return
	}
	fmt.Printf("\n%s ", display.Yellow("Suspect pattern matches:"))
	fmt.Println(matched)
}

func scoreString(score int) string {
	switch {
	case score >= 80:
		return display.Red(fmt.Sprintf("%d", score))
	case score >= 60:
		return display.Yellow(fmt.Sprintf("%d", score))
	default:
		return display.Green(fmt.Sprintf("%d", score))
	}
}
