package ring

import (
	"testing"
	"time"

	"github.com/ngrantham/pausewatch/internal/model"
)

func sample(n int) model.RingSample {
	return model.RingSample{
		Sample: model.Sample{
			Timestamp:    time.Unix(int64(n), 0),
			ProcessCount: n,
		},
	}
}

func TestPushAndLatest(t *testing.T) {
	b := New(3)
	b.Push(sample(1))
	b.Push(sample(2))
	got, ok := b.Latest()
	if !ok || got.Sample.ProcessCount != 2 {
		t.Fatalf("expected latest sample 2, got %v ok=%v", got, ok)
	}
}

func TestPushEvictsOldestWhenFull(t *testing.T) {
	b := New(2)
	b.Push(sample(1))
	b.Push(sample(2))
	b.Push(sample(3))
	got := b.Slice()
	if len(got) != 2 {
		t.Fatalf("expected len 2, got %d", len(got))
	}
	if got[0].Sample.ProcessCount != 2 || got[1].Sample.ProcessCount != 3 {
		t.Fatalf("expected [2,3], got %v", got)
	}
}

func TestLatestEmptyBuffer(t *testing.T) {
	b := New(5)
	_, ok := b.Latest()
	if ok {
		t.Fatalf("expected no latest sample on empty buffer")
	}
}

func TestFreezeIsIndependentOfFurtherPushes(t *testing.T) {
	b := New(3)
	s := sample(1)
	s.Sample.RogueProcesses = []model.ScoredProcess{
		{ProcessMetrics: model.ProcessMetrics{PID: 7}, Categories: model.NewCategorySet(model.CatCPU)},
	}
	b.Push(s)
	frozen := b.Freeze()

	b.Push(sample(2))
	b.Push(sample(3))
	b.Push(sample(4))

	if len(frozen) != 1 {
		t.Fatalf("expected frozen snapshot to retain its own length, got %d", len(frozen))
	}
	if frozen[0].Sample.RogueProcesses[0].PID != 7 {
		t.Fatalf("expected frozen rogue process PID 7 preserved")
	}
	frozen[0].Sample.RogueProcesses[0].Categories.Add(model.CatMem)
	if b.buf[0].Sample.RogueProcesses != nil && len(b.buf[0].Sample.RogueProcesses) > 0 {
		if b.buf[0].Sample.RogueProcesses[0].Categories.Has(model.CatMem) {
			t.Fatalf("mutating frozen copy's category set must not affect buffer contents")
		}
	}
}

func TestLastNClampsToAvailableCount(t *testing.T) {
	b := New(5)
	b.Push(sample(1))
	b.Push(sample(2))
	got := b.LastN(10)
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
	if got[0].Sample.ProcessCount != 1 || got[1].Sample.ProcessCount != 2 {
		t.Fatalf("expected oldest-first [1,2], got %v", got)
	}
}

func TestLastNReturnsMostRecent(t *testing.T) {
	b := New(3)
	b.Push(sample(1))
	b.Push(sample(2))
	b.Push(sample(3))
	b.Push(sample(4))
	got := b.LastN(2)
	if len(got) != 2 || got[0].Sample.ProcessCount != 3 || got[1].Sample.ProcessCount != 4 {
		t.Fatalf("expected oldest-first [3,4], got %v", got)
	}
}

func TestClearResetsBuffer(t *testing.T) {
	b := New(2)
	b.Push(sample(1))
	b.Clear()
	if b.Len() != 0 {
		t.Fatalf("expected len 0 after clear, got %d", b.Len())
	}
	b.Push(sample(9))
	got, _ := b.Latest()
	if got.Sample.ProcessCount != 9 {
		t.Fatalf("expected buffer usable after clear, got %v", got)
	}
}
