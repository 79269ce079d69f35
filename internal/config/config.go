// Package config loads pausewatchd's typed, file-backed configuration.
// The file is TOML so that the nested-section shape the daemon needs
// ([sampling], [bands], [scoring], [scoring.normalization], [suspects],
// [retention]) maps directly onto TOML tables instead of being faked with
// dotted JSON keys.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Range is a linear clamp bound pair used by scoring normalization.
type Range struct {
	Low  float64 `toml:"low"`
	High float64 `toml:"high"`
}

type SamplingConfig struct {
	RateHz             int     `toml:"rate_hz"`
	RingBufferSeconds  int     `toml:"ring_buffer_seconds"`
	PauseThresholdRatio float64 `toml:"pause_threshold_ratio"`
}

type BandsConfig struct {
	Low           int    `toml:"low"`
	Medium        int    `toml:"medium"`
	Elevated      int    `toml:"elevated"`
	High          int    `toml:"high"`
	Critical      int    `toml:"critical"`
	TrackingBand  string `toml:"tracking_band"`
	ForensicsBand string `toml:"forensics_band"`
}

type WeightsConfig struct {
	CPU     int `toml:"cpu"`
	State   int `toml:"state"`
	Pageins int `toml:"pageins"`
	Mem     int `toml:"mem"`
	Cmprs   int `toml:"cmprs"`
	CSW     int `toml:"csw"`
	SysBSD  int `toml:"sysbsd"`
	Threads int `toml:"threads"`
}

func (w WeightsConfig) Sum() int {
	return w.CPU + w.State + w.Pageins + w.Mem + w.Cmprs + w.CSW + w.SysBSD + w.Threads
}

type NormalizationConfig struct {
	CPU     Range `toml:"cpu"`
	Mem     Range `toml:"mem"`
	Cmprs   Range `toml:"cmprs"`
	Pageins Range `toml:"pageins"`
	CSW     Range `toml:"csw"`
	SysBSD  Range `toml:"sysbsd"`
	Threads Range `toml:"threads"`
}

type ScoringConfig struct {
	Weights       WeightsConfig       `toml:"weights"`
	Normalization NormalizationConfig `toml:"normalization"`
}

type SuspectsConfig struct {
	Patterns []string `toml:"patterns"`
}

type RetentionConfig struct {
	EventsDays int `toml:"events_days"`
}

// Config is the fully-resolved, validated daemon configuration.
type Config struct {
	Sampling   SamplingConfig   `toml:"sampling"`
	Bands      BandsConfig      `toml:"bands"`
	Scoring    ScoringConfig    `toml:"scoring"`
	Suspects   SuspectsConfig   `toml:"suspects"`
	Retention  RetentionConfig  `toml:"retention"`
}

// Default returns a Config populated with the built-in defaults.
func Default() Config {
	return Config{
		Sampling: SamplingConfig{
			RateHz:              1,
			RingBufferSeconds:   30,
			PauseThresholdRatio: 2.0,
		},
		Bands: BandsConfig{
			Low: 20, Medium: 40, Elevated: 60, High: 80, Critical: 100,
			TrackingBand:  "elevated",
			ForensicsBand: "high",
		},
		Scoring: ScoringConfig{
			Weights: WeightsConfig{CPU: 25, State: 20, Pageins: 15, Mem: 15, Cmprs: 10, CSW: 10, SysBSD: 5, Threads: 0},
			Normalization: NormalizationConfig{
				CPU:     Range{Low: 10, High: 80},
				Mem:     Range{Low: 200 << 20, High: 4 << 30},
				Cmprs:   Range{Low: 50 << 20, High: 2 << 30},
				Pageins: Range{Low: 0, High: 150},
				CSW:     Range{Low: 0, High: 5000},
				SysBSD:  Range{Low: 0, High: 5000},
				Threads: Range{Low: 0, High: 64},
			},
		},
		Suspects:  SuspectsConfig{},
		Retention: RetentionConfig{EventsDays: 90},
	}
}

// Path returns the config file path, honoring XDG_CONFIG_HOME if set.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, "Library", "Application Support")
	}
	return filepath.Join(dir, "pausewatch", "config.toml")
}

// Load reads the config file, merging any present keys over Default().
// A missing file is not an error: defaults are written out so the user has
// something to edit, then returned. An unreadable or malformed file is a
// fatal startup error
func Load() (Config, error) {
	cfg := Default()
	path := Path()
	if path == "" {
		return cfg, fmt.Errorf("cannot determine config directory")
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if werr := writeDefault(path, cfg); werr != nil {
			return cfg, fmt.Errorf("write default config: %w", werr)
		}
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config file not readable: %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("config file %s: invalid TOML: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate enforces the fatal-at-startup invariants: weights must sum to
// 100, bands must be strictly increasing, and the tracking/forensics band
// names must resolve to a real band.
func Validate(cfg Config) error {
	if sum := cfg.Scoring.Weights.Sum(); sum != 100 {
		return fmt.Errorf("scoring.weights must sum to 100, got %d", sum)
	}
	bounds := cfg.bandBounds()
	for i := 1; i < len(bounds); i++ {
		if bounds[i].high <= bounds[i-1].high {
			return fmt.Errorf("bands must be strictly increasing: %s (%d) <= %s (%d)",
				bounds[i].name, bounds[i].high, bounds[i-1].name, bounds[i-1].high)
		}
	}
	if _, err := cfg.Threshold(cfg.Bands.TrackingBand); err != nil {
		return fmt.Errorf("bands.tracking_band: %w", err)
	}
	if _, err := cfg.Threshold(cfg.Bands.ForensicsBand); err != nil {
		return fmt.Errorf("bands.forensics_band: %w", err)
	}
	return nil
}

func writeDefault(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
