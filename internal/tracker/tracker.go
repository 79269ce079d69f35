// Package tracker implements the per-PID event state machine: a process
// opens an Event when its score first crosses the tracking
// threshold, the event's peak is updated as the score rises, and the event
// closes when the score drops back below threshold. It is generalized from
// the daemon's old process-exit/restart state machine, applied here to
// score-threshold crossings instead of process-exit/restart transitions.
package tracker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ngrantham/pausewatch/internal/model"
)

// Store is the subset of storage.Store the tracker needs; an interface so
// tests can exercise the state machine against an in-memory fake instead of
// a real database.
type Store interface {
	OpenEventForPID(ctx context.Context, pid int, bootTime int64) (model.Event, bool, error)
	OpenEvent(ctx context.Context, e model.Event) (int64, error)
	UpdatePeak(ctx context.Context, id int64, peakBand string, peakScore int, peakSnapshot string) error
	CloseEvent(ctx context.Context, id int64, exitTime time.Time) error
	InsertSnapshot(ctx context.Context, eventID int64, typ model.SnapshotType, capturedAt time.Time, payload string) error
}

// BandFunc classifies a score into a named band, e.g. config.Config.BandFor.
type BandFunc func(score int) string

// Tracker holds open-event bookkeeping keyed by PID so repeated updates
// don't need to round-trip the database to find an already-open event.
type Tracker struct {
	store         Store
	bandFor       BandFunc
	trackingBand  string
	bootTime      int64
	logger        *slog.Logger

	openEventIDs map[int]int64
	peakScores   map[int]int
}

// New constructs a Tracker. trackingBand names the band at or above which
// an event opens; bootTime scopes events to the current boot so PIDs reused
// across reboots are never conflated with a stale event.
func New(store Store, bandFor BandFunc, trackingBand string, bootTime int64, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:        store,
		bandFor:      bandFor,
		trackingBand: trackingBand,
		bootTime:     bootTime,
		logger:       logger,
		openEventIDs: make(map[int]int64),
		peakScores:   make(map[int]int),
	}
}

// Resume loads currently-open events (e.g. after a daemon restart) so their
// PIDs are recognized as already-tracked instead of opening duplicates.
func (t *Tracker) Resume(events []model.Event) {
	for _, e := range events {
		if e.Open() {
			t.openEventIDs[e.PID] = e.ID
			t.peakScores[e.PID] = e.PeakScore
		}
	}
}

// bandOrder gives each band's position among low < medium < elevated < high <
// critical, used to compare whether a process has crossed at/above another
// band without needing the band's numeric boundaries.
var bandOrder = map[string]int{"low": 0, "medium": 1, "elevated": 2, "high": 3, "critical": 4}

func atOrAbove(band, threshold string) bool {
	return bandOrder[band] >= bandOrder[threshold]
}

// Update runs one tick's worth of state-machine transitions for every
// scored process, opening, peak-updating, or closing Events as needed.
// trackedPIDs is the set of PIDs observed this tick, used to close events
// for processes that have exited.
func (t *Tracker) Update(ctx context.Context, procs []model.ScoredProcess, trackedPIDs map[int]struct{}) {
	now := time.Now()

	for _, p := range procs {
		band := t.bandFor(p.Score)
		tracking := atOrAbove(band, t.trackingBand)
		eventID, isOpen := t.openEventIDs[p.PID]

		switch {
		case tracking && !isOpen:
			t.open(ctx, p, band, now)
		case tracking && isOpen:
			t.updatePeak(ctx, eventID, p, band, now)
		case !tracking && isOpen:
			t.close(ctx, eventID, p.PID, now)
		}
	}

	// Close events for PIDs that vanished entirely this tick (process exited
	// while tracked) rather than merely dropping below threshold.
	for pid, id := range t.openEventIDs {
		if _, seen := trackedPIDs[pid]; !seen {
			t.close(ctx, id, pid, now)
		}
	}
}

func (t *Tracker) open(ctx context.Context, p model.ScoredProcess, band string, now time.Time) {
	snap, err := marshalSnapshot(p)
	if err != nil {
		t.logger.Warn("failed to marshal entry snapshot", "pid", p.PID, "error", err)
	}
	e := model.Event{
		PID:          p.PID,
		Command:      p.Command,
		BootTime:     t.bootTime,
		EntryTime:    now,
		EntryBand:    band,
		PeakBand:     band,
		PeakScore:    p.Score,
		PeakSnapshot: snap,
	}
	id, err := t.store.OpenEvent(ctx, e)
	if err != nil {
		t.logger.Error("failed to open event", "pid", p.PID, "error", err)
		return
	}
	t.openEventIDs[p.PID] = id
	t.peakScores[p.PID] = p.Score
	_ = t.store.InsertSnapshot(ctx, id, model.SnapshotEntry, now, snap)
	t.logger.Info("event opened", "pid", p.PID, "command", p.Command, "band", band, "score", p.Score)
}

// updatePeak writes a new peak only when the score actually rose since the
// last peak; every tick above threshold would otherwise churn the snapshots
// table without adding information.
func (t *Tracker) updatePeak(ctx context.Context, id int64, p model.ScoredProcess, band string, now time.Time) {
	if p.Score <= t.peakScores[p.PID] {
		return
	}
	snap, err := marshalSnapshot(p)
	if err != nil {
		t.logger.Warn("failed to marshal peak snapshot", "pid", p.PID, "error", err)
		return
	}
	if err := t.store.UpdatePeak(ctx, id, band, p.Score, snap); err != nil {
		t.logger.Error("failed to update peak", "pid", p.PID, "error", err)
		return
	}
	t.peakScores[p.PID] = p.Score
	_ = t.store.InsertSnapshot(ctx, id, model.SnapshotPeak, now, snap)
}

func (t *Tracker) close(ctx context.Context, id int64, pid int, now time.Time) {
	if err := t.store.CloseEvent(ctx, id, now); err != nil {
		t.logger.Error("failed to close event", "pid", pid, "error", err)
		return
	}
	delete(t.openEventIDs, pid)
	delete(t.peakScores, pid)
	t.logger.Info("event closed", "pid", pid)
}

func marshalSnapshot(p model.ScoredProcess) (string, error) {
	b, err := json.Marshal(p.ToJSON())
	if err != nil {
		return "{}", err
	}
	return string(b), nil
}
