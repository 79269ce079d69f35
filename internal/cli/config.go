package cli

import (
	"encoding/json"
	"fmt"

	"github.com/ngrantham/pausewatch/internal/config"
	"github.com/ngrantham/pausewatch/internal/display"
	"github.com/spf13/cobra"
)

var configValidate bool

var configShowCmd = &cobra.Command{
	Use:   "config",
	Short: "Show resolved configuration",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			exitError(err.Error())
		}

		if configValidate {
			if err := config.Validate(cfg); err != nil {
				exitError(err.Error())
			}
			fmt.Println("Configuration valid")
			return
		}

		if jsonOutput {
			out, _ := json.MarshalIndent(cfg, "", "  ")
			fmt.Println(string(out))
			return
		}

		fmt.Printf("Config file:  %s\n\n", config.Path())

		fmt.Printf("%s\n", display.Bold("Sampling:"))
		fmt.Printf("  Rate:                %d Hz\n", cfg.Sampling.RateHz)
		fmt.Printf("  Ring buffer:         %d s\n", cfg.Sampling.RingBufferSeconds)
		fmt.Printf("  Pause threshold:     %.1fx expected interval\n\n", cfg.Sampling.PauseThresholdRatio)

		fmt.Printf("%s\n", display.Bold("Bands:"))
		fmt.Printf("  low < %d, medium < %d, elevated < %d, high < %d, critical <= %d\n",
			cfg.Bands.Low, cfg.Bands.Medium, cfg.Bands.Elevated, cfg.Bands.High, cfg.Bands.Critical)
		fmt.Printf("  Tracking band:       %s\n", cfg.Bands.TrackingBand)
		fmt.Printf("  Forensics band:      %s\n\n", cfg.Bands.ForensicsBand)

		fmt.Printf("%s\n", display.Bold("Scoring weights:"))
		w := cfg.Scoring.Weights
		fmt.Printf("  cpu=%d state=%d pageins=%d mem=%d cmprs=%d csw=%d sysbsd=%d threads=%d (sum=%d)\n\n",
			w.CPU, w.State, w.Pageins, w.Mem, w.Cmprs, w.CSW, w.SysBSD, w.Threads, w.Sum())

		fmt.Printf("%s\n", display.Bold("Retention:"))
		fmt.Printf("  Closed events kept:  %d days\n", cfg.Retention.EventsDays)

		if len(cfg.Suspects.Patterns) > 0 {
			fmt.Printf("\n%s\n", display.Bold("Suspect patterns:"))
			for _, p := range cfg.Suspects.Patterns {
				fmt.Printf("  %s\n", p)
			}
		}

		if err := config.Validate(cfg); err != nil {
			fmt.Printf("\n%s %s\n", display.Yellow("WARNING:"), err)
		}
	},
}

func init() {
	configShowCmd.Flags().BoolVar(&configValidate, "validate", false, "validate config only")
}
