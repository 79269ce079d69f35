package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ngrantham/pausewatch/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := Open(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesSchema(t *testing.T) {
	s := openTestStore(t)
	v, ok, err := s.GetState(context.Background(), "schema_version")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if !ok || v != "1" {
		t.Fatalf("expected schema_version=1, got %q ok=%v", v, ok)
	}
}

func TestOpenWipesStaleSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := Open(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SetState(context.Background(), "schema_version", "999"); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	s.Close()

	s2, err := Open(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	v, _, _ := s2.GetState(context.Background(), "schema_version")
	if v != "1" {
		t.Fatalf("expected wipe to reset schema_version to 1, got %q", v)
	}
}

func TestEventLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id, err := s.OpenEvent(ctx, eventFixture(1234, "heavyd", now))
	if err != nil {
		t.Fatalf("OpenEvent: %v", err)
	}

	open, ok, err := s.OpenEventForPID(ctx, 1234, 1000)
	if err != nil || !ok {
		t.Fatalf("OpenEventForPID: ok=%v err=%v", ok, err)
	}
	if open.ID != id {
		t.Fatalf("expected ID %d, got %d", id, open.ID)
	}
	if !open.Open() {
		t.Fatalf("expected event to be open")
	}

	if err := s.UpdatePeak(ctx, id, "critical", 95, "{}"); err != nil {
		t.Fatalf("UpdatePeak: %v", err)
	}
	if err := s.InsertSnapshot(ctx, id, "peak", now, "{}"); err != nil {
		t.Fatalf("InsertSnapshot: %v", err)
	}

	if err := s.CloseEvent(ctx, id, now.Add(time.Minute)); err != nil {
		t.Fatalf("CloseEvent: %v", err)
	}

	_, ok, err = s.OpenEventForPID(ctx, 1234, 1000)
	if err != nil {
		t.Fatalf("OpenEventForPID after close: %v", err)
	}
	if ok {
		t.Fatalf("expected no open event after CloseEvent")
	}
}

func TestOpenEventsListsOnlyOpen(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id1, _ := s.OpenEvent(ctx, eventFixture(1, "a", now))
	_, _ = s.OpenEvent(ctx, eventFixture(2, "b", now))
	s.CloseEvent(ctx, id1, now)

	open, err := s.OpenEvents(ctx)
	if err != nil {
		t.Fatalf("OpenEvents: %v", err)
	}
	if len(open) != 1 || open[0].PID != 2 {
		t.Fatalf("expected only pid 2 open, got %+v", open)
	}
}

func TestPruneEventsOlderThan(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	id, _ := s.OpenEvent(ctx, eventFixture(1, "a", old))
	s.CloseEvent(ctx, id, old)

	n, err := s.PruneEventsOlderThan(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("PruneEventsOlderThan: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row pruned, got %d", n)
	}
}

func eventFixture(pid int, command string, t0 time.Time) model.Event {
	return model.Event{
		PID:          pid,
		Command:      command,
		BootTime:     1000,
		EntryTime:    t0,
		EntryBand:    "elevated",
		PeakBand:     "elevated",
		PeakScore:    65,
		PeakSnapshot: "{}",
	}
}
