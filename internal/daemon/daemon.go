// Package daemon wires the collection, scoring, selection, tracking,
// ring-buffer, and broadcast components into the main loop. It is the
// generalized replacement for the daemon's old process-supervisor main
// loop: instead of supervising child processes, each tick now runs the
// scoring pipeline once and pushes the result.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/ngrantham/pausewatch/internal/boottime"
	"github.com/ngrantham/pausewatch/internal/broadcast"
	"github.com/ngrantham/pausewatch/internal/collector"
	"github.com/ngrantham/pausewatch/internal/config"
	"github.com/ngrantham/pausewatch/internal/forensics"
	"github.com/ngrantham/pausewatch/internal/model"
	"github.com/ngrantham/pausewatch/internal/protocol"
	"github.com/ngrantham/pausewatch/internal/ring"
	"github.com/ngrantham/pausewatch/internal/scorer"
	"github.com/ngrantham/pausewatch/internal/selector"
	"github.com/ngrantham/pausewatch/internal/storage"
	"github.com/ngrantham/pausewatch/internal/tracker"
)

// Version is set at build time.
var Version = "dev"

// Home returns the daemon's state directory path; it does not create it
// (Run does).
func Home() string {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			dir = filepath.Join(home, "Library", "Application Support")
		}
	}
	return filepath.Join(dir, "pausewatch")
}

func socketPath(home string) string  { return filepath.Join(home, "daemon.sock") }
func pidFilePath(home string) string { return filepath.Join(home, "daemon.pid") }
func dbPath(home string) string      { return filepath.Join(home, "events.db") }
func forensicsDir(home string) string { return filepath.Join(home, "forensics") }

// DBPath returns the daemon's event database path, for read-only CLI access.
func DBPath() string { return dbPath(Home()) }

// Daemon ties together one tick of the scoring pipeline, the sample ring
// buffer, event tracking, and the broadcast server.
type Daemon struct {
	cfg      config.Config
	home     string
	bootTime time.Time
	startAt  time.Time

	store      *storage.Store
	tracker    *tracker.Tracker
	ring       *ring.Buffer
	broadcast  *broadcast.Server
	forensics  *forensics.Runner
	collector  *collector.Collector

	mu             sync.Mutex
	lastTickAt     time.Time
	lastTickDur    time.Duration
	forensicsFired map[int]bool
}

// Run loads config, opens storage, starts the collector, and runs the main
// loop until ctx is canceled or a shutdown signal arrives.
func Run(ctx context.Context, version string, debug bool) error {
	Version = version
	home := Home()
	if err := os.MkdirAll(home, 0700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	logFile, err := os.OpenFile(filepath.Join(home, "daemon.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return err
	}

	boot, err := boottime.Get()
	if err != nil {
		logger.Error("failed to resolve boot time", "error", err)
		return err
	}

	store, err := storage.Open(ctx, dbPath(home), logger)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		return err
	}
	defer store.Close()

	if err := os.WriteFile(pidFilePath(home), []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		logger.Error("failed to write pid file", "error", err)
		return err
	}
	defer os.Remove(pidFilePath(home))

	trk := tracker.New(store, cfg.BandFor, cfg.Bands.TrackingBand, boot.Unix(), logger)
	if open, err := store.OpenEvents(ctx); err != nil {
		logger.Warn("failed to resume open events", "error", err)
	} else {
		trk.Resume(open)
	}

	ringBuf := ring.New(cfg.Sampling.RingBufferSeconds * cfg.Sampling.RateHz)
	forensicsRunner := forensics.New(forensicsDir(home), 30*time.Second, logger)

	d := &Daemon{
		cfg:            cfg,
		home:           home,
		bootTime:       boot,
		startAt:        time.Now(),
		store:          store,
		tracker:        trk,
		ring:           ringBuf,
		forensics:      forensicsRunner,
		collector:      collector.New(400, cfg.Sampling.RateHz, logger),
		forensicsFired: make(map[int]bool),
	}

	srv, err := broadcast.New(socketPath(home), logger, d.buildInitialState)
	if err != nil {
		logger.Error("failed to start broadcast server", "error", err)
		return err
	}
	d.broadcast = srv
	defer srv.Close()
	go srv.Serve()

	logger.Info("daemon started", "pid", os.Getpid(), "version", Version, "boot_time", boot)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reloadCh := make(chan os.Signal, 1)
	signal.Notify(reloadCh, syscall.SIGHUP)
	go d.watchReload(ctx, reloadCh, logger)

	go d.pruneLoop(ctx, logger)

	return d.mainLoop(ctx, logger)
}

// pruneLoop deletes closed events past the configured retention window on a
// slow cadence; retention is a housekeeping concern, not a per-tick one.
func (d *Daemon) pruneLoop(ctx context.Context, logger *slog.Logger) {
	const interval = time.Hour
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.mu.Lock()
			days := d.cfg.Retention.EventsDays
			d.mu.Unlock()
			cutoff := time.Now().AddDate(0, 0, -days)
			n, err := d.store.PruneEventsOlderThan(ctx, cutoff)
			if err != nil {
				logger.Warn("retention prune failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("pruned expired events", "count", n, "cutoff", cutoff)
			}
		}
	}
}

func (d *Daemon) watchReload(ctx context.Context, ch <-chan os.Signal, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			newCfg, err := config.Load()
			if err != nil {
				logger.Warn("config reload failed, keeping previous config", "error", err)
				continue
			}
			d.mu.Lock()
			d.cfg = newCfg
			d.mu.Unlock()
			logger.Info("config reloaded")
		}
	}
}

func (d *Daemon) mainLoop(ctx context.Context, logger *slog.Logger) error {
	ticks, err := d.collector.Start(ctx)
	if err != nil {
		logger.Error("failed to start collector", "error", err)
		return err
	}
	defer d.collector.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon shutting down")
			return nil
		case rows, ok := <-ticks:
			if !ok {
				logger.Error("collector exited unexpectedly")
				return fmt.Errorf("collector stream closed")
			}
			d.tick(ctx, rows, logger)
		}
	}
}

func (d *Daemon) tick(ctx context.Context, rows []model.ProcessMetrics, logger *slog.Logger) {
	start := time.Now()
	d.mu.Lock()
	cfg := d.cfg
	d.mu.Unlock()

	scored := make([]model.ScoredProcess, len(rows))
	trackedPIDs := make(map[int]struct{}, len(rows))
	maxScore := 0
	for i, row := range rows {
		score, cats := scorer.Score(row, cfg.Scoring.Weights, cfg.Scoring.Normalization)
		scored[i] = model.ScoredProcess{ProcessMetrics: row, Score: score, Categories: cats, CapturedAt: start}
		trackedPIDs[row.PID] = struct{}{}
		if score > maxScore {
			maxScore = score
		}
	}

	rogue := selector.Select(scored)

	sample := model.Sample{
		Timestamp:      start,
		ProcessCount:   len(rows),
		MaxScore:       maxScore,
		RogueProcesses: rogue,
	}
	tier := bandTier(cfg.BandFor(maxScore))
	rs := model.RingSample{Sample: sample, Tier: tier}

	// Ring-buffer push strictly precedes broadcast, which strictly precedes
	// the tracker update, which strictly precedes pause handling.
	d.ring.Push(rs)
	d.broadcast.Broadcast(protocol.NewSampleMessage(rs))
	d.tracker.Update(ctx, scored, trackedPIDs)

	d.runForensics(ctx, cfg, rogue, logger)
	d.detectPause(ctx, start, logger)

	d.mu.Lock()
	d.lastTickAt = start
	d.lastTickDur = time.Since(start)
	d.mu.Unlock()
}

// detectPause compares the gap since the previous tick against the
// configured ratio of the expected tick interval; a gap that large means
// the daemon itself was starved of CPU (a "pause"). On detection the ring
// buffer's existing contents are frozen and a single forensics capture is
// scheduled, with a pause-tagged snapshot inserted into every event open at
// that moment.
func (d *Daemon) detectPause(ctx context.Context, now time.Time, logger *slog.Logger) {
	d.mu.Lock()
	last := d.lastTickAt
	ratio := d.cfg.Sampling.PauseThresholdRatio
	expected := time.Second / time.Duration(max(1, d.cfg.Sampling.RateHz))
	d.mu.Unlock()

	if last.IsZero() {
		return
	}
	gap := now.Sub(last)
	if gap <= time.Duration(float64(expected)*ratio) {
		return
	}

	frozen := d.ring.Freeze()
	logger.Warn("self-latency pause detected", "gap", gap, "frozen_samples", len(frozen))

	open, err := d.store.OpenEvents(ctx)
	if err != nil {
		logger.Warn("failed to list open events for pause handling", "error", err)
		open = nil
	}

	go func() {
		incidentDir, results := d.forensics.Capture(ctx, os.Getpid(), "pausewatchd", now)
		_ = forensics.Notify(ctx, "pausewatch", fmt.Sprintf("self-latency pause detected (gap %s)", gap))

		timedOut := 0
		for _, res := range results {
			if res.Err != nil {
				timedOut++
			}
		}
		notes := fmt.Sprintf("pause forensics dispatched: %s", incidentDir)
		if timedOut == len(results) {
			notes = fmt.Sprintf("pause forensics timed out: %s", incidentDir)
		}

		for _, e := range open {
			payload := pausePayload(frozen, e.PID, now)
			if err := d.store.InsertSnapshot(ctx, e.ID, model.SnapshotPause, now, payload); err != nil {
				logger.Warn("failed to record pause snapshot", "event_id", e.ID, "error", err)
			}
			if err := d.store.SetEventNotes(ctx, e.ID, notes); err != nil {
				logger.Warn("failed to record pause notes", "event_id", e.ID, "error", err)
			}
		}
	}()
}

// pausePayload finds the most recent frozen sample's scored entry for pid,
// falling back to a bare, score-less record when the ring buffer never held
// a sample for that process (e.g. it crossed threshold between ticks).
func pausePayload(frozen []model.RingSample, pid int, now time.Time) string {
	for i := len(frozen) - 1; i >= 0; i-- {
		for _, p := range frozen[i].Sample.RogueProcesses {
			if p.PID == pid {
				b, err := json.Marshal(p.ToJSON())
				if err != nil {
					return "{}"
				}
				return string(b)
			}
		}
	}
	b, _ := json.Marshal(model.ScoredProcess{ProcessMetrics: model.ProcessMetrics{PID: pid}, CapturedAt: now}.ToJSON())
	return string(b)
}

func bandTier(band string) int {
	switch band {
	case "low":
		return 0
	case "medium":
		return 1
	case "elevated":
		return 2
	case "high":
		return 3
	case "critical":
		return 4
	default:
		return 0
	}
}

// runForensics fires the forensics tool set once per event for processes
// that have just entered the configured forensics band, so a process
// lingering in that band for many ticks doesn't re-trigger the full tool
// set on every single tick.
func (d *Daemon) runForensics(ctx context.Context, cfg config.Config, rogue []model.ScoredProcess, logger *slog.Logger) {
	for _, p := range rogue {
		band := cfg.BandFor(p.Score)
		if bandTier(band) < bandTier(cfg.Bands.ForensicsBand) {
			d.mu.Lock()
			delete(d.forensicsFired, p.PID)
			d.mu.Unlock()
			continue
		}
		d.mu.Lock()
		already := d.forensicsFired[p.PID]
		d.forensicsFired[p.PID] = true
		d.mu.Unlock()
		if already {
			continue
		}
		go func(p model.ScoredProcess) {
			now := time.Now()
			incidentDir, results := d.forensics.Capture(ctx, p.PID, p.Command, now)
			_ = forensics.Notify(ctx, "pausewatch", fmt.Sprintf("%s (pid %d) is using excessive resources", p.Command, p.PID))
			d.recordForensicsNotes(ctx, p, incidentDir, results, now, logger)
		}(p)
	}
}

// recordForensicsNotes appends a breadcrumb to the process's open event and
// inserts a forensics_band_entry snapshot, so pausewatchd status -v and
// external tooling can locate the capture without waiting on the next peak.
func (d *Daemon) recordForensicsNotes(ctx context.Context, p model.ScoredProcess, incidentDir string, results []forensics.Result, capturedAt time.Time, logger *slog.Logger) {
	event, ok, err := d.store.OpenEventForPID(ctx, p.PID, d.bootTime.Unix())
	if err != nil || !ok {
		return
	}

	timedOut := 0
	for _, res := range results {
		if res.Err != nil {
			timedOut++
		}
	}

	var notes string
	if timedOut == len(results) {
		notes = fmt.Sprintf("forensics timed out: %s", incidentDir)
	} else {
		notes = fmt.Sprintf("forensics dispatched: %s", incidentDir)
	}

	if err := d.store.SetEventNotes(ctx, event.ID, notes); err != nil {
		logger.Warn("failed to record forensics notes", "pid", p.PID, "error", err)
	}

	payload, err := json.Marshal(p.ToJSON())
	if err != nil {
		payload = []byte("{}")
	}
	if err := d.store.InsertSnapshot(ctx, event.ID, model.SnapshotForensicsBandEntry, capturedAt, string(payload)); err != nil {
		logger.Warn("failed to record forensics_band_entry snapshot", "pid", p.PID, "error", err)
	}
}

func (d *Daemon) buildInitialState() protocol.InitialStateMessage {
	msg := protocol.InitialStateMessage{
		Type:      protocol.MessageInitialState,
		DaemonPID: os.Getpid(),
		BootTime:  d.bootTime.Unix(),
	}

	d.mu.Lock()
	rateHz := d.cfg.Sampling.RateHz
	d.mu.Unlock()
	for _, rs := range d.ring.LastN(3 * max(1, rateHz)) {
		msg.Recent = append(msg.Recent, protocol.NewSampleMessage(rs))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if open, err := d.store.OpenEvents(ctx); err == nil {
		for _, e := range open {
			msg.OpenEventIDs = append(msg.OpenEventIDs, e.ID)
		}
	}
	return msg
}
