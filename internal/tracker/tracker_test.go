package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/ngrantham/pausewatch/internal/model"
)

type fakeStore struct {
	events map[int64]*model.Event
	nextID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{events: make(map[int64]*model.Event)}
}

func (f *fakeStore) OpenEventForPID(ctx context.Context, pid int, bootTime int64) (model.Event, bool, error) {
	for _, e := range f.events {
		if e.PID == pid && e.BootTime == bootTime && e.Open() {
			return *e, true, nil
		}
	}
	return model.Event{}, false, nil
}

func (f *fakeStore) OpenEvent(ctx context.Context, e model.Event) (int64, error) {
	f.nextID++
	e.ID = f.nextID
	f.events[e.ID] = &e
	return e.ID, nil
}

func (f *fakeStore) UpdatePeak(ctx context.Context, id int64, peakBand string, peakScore int, peakSnapshot string) error {
	f.events[id].PeakBand = peakBand
	f.events[id].PeakScore = peakScore
	f.events[id].PeakSnapshot = peakSnapshot
	return nil
}

func (f *fakeStore) CloseEvent(ctx context.Context, id int64, exitTime time.Time) error {
	t := exitTime
	f.events[id].ExitTime = &t
	return nil
}

func (f *fakeStore) InsertSnapshot(ctx context.Context, eventID int64, typ model.SnapshotType, capturedAt time.Time, payload string) error {
	return nil
}

func bandFor(score int) string {
	switch {
	case score >= 80:
		return "critical"
	case score >= 60:
		return "high"
	case score >= 40:
		return "elevated"
	case score >= 20:
		return "medium"
	default:
		return "low"
	}
}

func scored(pid, score int) model.ScoredProcess {
	return model.ScoredProcess{
		ProcessMetrics: model.ProcessMetrics{PID: pid, Command: "proc"},
		Score:          score,
		Categories:     model.NewCategorySet(),
	}
}

func TestUpdateOpensEventOnCrossingThreshold(t *testing.T) {
	store := newFakeStore()
	tr := New(store, bandFor, "elevated", 1000, nil)

	tr.Update(context.Background(), []model.ScoredProcess{scored(1, 50)}, map[int]struct{}{1: {}})

	if len(store.events) != 1 {
		t.Fatalf("expected 1 event opened, got %d", len(store.events))
	}
	if _, tracked := tr.openEventIDs[1]; !tracked {
		t.Fatalf("expected pid 1 tracked in memory")
	}
}

func TestUpdateDoesNotOpenBelowThreshold(t *testing.T) {
	store := newFakeStore()
	tr := New(store, bandFor, "elevated", 1000, nil)

	tr.Update(context.Background(), []model.ScoredProcess{scored(1, 10)}, map[int]struct{}{1: {}})

	if len(store.events) != 0 {
		t.Fatalf("expected no event for below-threshold score")
	}
}

func TestUpdateClosesEventWhenScoreDrops(t *testing.T) {
	store := newFakeStore()
	tr := New(store, bandFor, "elevated", 1000, nil)

	tr.Update(context.Background(), []model.ScoredProcess{scored(1, 50)}, map[int]struct{}{1: {}})
	tr.Update(context.Background(), []model.ScoredProcess{scored(1, 10)}, map[int]struct{}{1: {}})

	id := int64(1)
	if store.events[id].ExitTime == nil {
		t.Fatalf("expected event closed after dropping below threshold")
	}
	if _, tracked := tr.openEventIDs[1]; tracked {
		t.Fatalf("expected pid 1 no longer tracked after close")
	}
}

func TestUpdatePeakOnlyRisesOnHigherScore(t *testing.T) {
	store := newFakeStore()
	tr := New(store, bandFor, "elevated", 1000, nil)

	tr.Update(context.Background(), []model.ScoredProcess{scored(1, 50)}, map[int]struct{}{1: {}})
	tr.Update(context.Background(), []model.ScoredProcess{scored(1, 45)}, map[int]struct{}{1: {}})
	tr.Update(context.Background(), []model.ScoredProcess{scored(1, 90)}, map[int]struct{}{1: {}})

	var ev *model.Event
	for _, e := range store.events {
		ev = e
	}
	if ev.PeakScore != 90 {
		t.Fatalf("expected peak score 90, got %d", ev.PeakScore)
	}
}

func TestUpdateClosesEventWhenProcessVanishes(t *testing.T) {
	store := newFakeStore()
	tr := New(store, bandFor, "elevated", 1000, nil)

	tr.Update(context.Background(), []model.ScoredProcess{scored(1, 50)}, map[int]struct{}{1: {}})
	tr.Update(context.Background(), []model.ScoredProcess{}, map[int]struct{}{})

	for _, e := range store.events {
		if e.ExitTime == nil {
			t.Fatalf("expected event closed after process vanished")
		}
	}
}

func TestResumeRecognizesOpenEvents(t *testing.T) {
	store := newFakeStore()
	tr := New(store, bandFor, "elevated", 1000, nil)
	tr.Resume([]model.Event{
		{ID: 5, PID: 42, BootTime: 1000, PeakScore: 70},
	})
	if tr.openEventIDs[42] != 5 {
		t.Fatalf("expected resumed event tracked for pid 42")
	}
	if tr.peakScores[42] != 70 {
		t.Fatalf("expected resumed peak score tracked")
	}
}
