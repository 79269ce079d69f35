package scorer

import (
	"testing"

	"github.com/ngrantham/pausewatch/internal/config"
	"github.com/ngrantham/pausewatch/internal/model"
)

func defaultWeightsNorm() (config.WeightsConfig, config.NormalizationConfig) {
	cfg := config.Default()
	return cfg.Scoring.Weights, cfg.Scoring.Normalization
}

func TestScoreIdleProcessIsZero(t *testing.T) {
	w, n := defaultWeightsNorm()
	m := model.ProcessMetrics{PID: 1, State: model.StateSleeping}
	score, cats := Score(m, w, n)
	if score != 0 {
		t.Fatalf("expected score 0, got %d", score)
	}
	if len(cats) != 0 {
		t.Fatalf("expected no categories, got %v", cats.Slice())
	}
}

func TestScoreStuckProcessTagsCatStuck(t *testing.T) {
	w, n := defaultWeightsNorm()
	m := model.ProcessMetrics{PID: 1, State: model.StateStuck}
	score, cats := Score(m, w, n)
	if !cats.Has(model.CatStuck) {
		t.Fatalf("expected CatStuck, got %v", cats.Slice())
	}
	if score != w.State {
		t.Fatalf("expected score %d, got %d", w.State, score)
	}
}

func TestScoreClampsAtUpperBound(t *testing.T) {
	w, n := defaultWeightsNorm()
	m := model.ProcessMetrics{
		PID:             1,
		State:           model.StateStuck,
		CPUPercent:      1000,
		ResidentBytes:   1 << 40,
		CompressedBytes: 1 << 40,
		Pageins:         1 << 20,
		ContextSwitches: 1 << 20,
		SyscallsBSD:     1 << 20,
		Threads:         1 << 20,
	}
	score, _ := Score(m, w, n)
	if score != 100 {
		t.Fatalf("expected clamped score 100, got %d", score)
	}
}

func TestScoreMonotonicInCPU(t *testing.T) {
	w, n := defaultWeightsNorm()
	low := model.ProcessMetrics{PID: 1, State: model.StateRunning, CPUPercent: 20}
	high := model.ProcessMetrics{PID: 1, State: model.StateRunning, CPUPercent: 70}
	sLow, _ := Score(low, w, n)
	sHigh, _ := Score(high, w, n)
	if sHigh <= sLow {
		t.Fatalf("expected higher CPU to score higher: low=%d high=%d", sLow, sHigh)
	}
}

func TestScorePageinsAlwaysTagsCatPaging(t *testing.T) {
	w, n := defaultWeightsNorm()
	w.Pageins = 0
	m := model.ProcessMetrics{PID: 1, State: model.StateRunning, Pageins: 1}
	_, cats := Score(m, w, n)
	if !cats.Has(model.CatPaging) {
		t.Fatalf("expected CatPaging whenever pageins > 0, even with zero pageins weight")
	}
}

func TestScoreUninterruptibleIsNotStuck(t *testing.T) {
	w, n := defaultWeightsNorm()
	m := model.ProcessMetrics{PID: 1, State: model.StateUninterruptible}
	score, cats := Score(m, w, n)
	if cats.Has(model.CatStuck) {
		t.Fatalf("expected uninterruptible state not to tag CatStuck")
	}
	if score != 0 {
		t.Fatalf("expected score 0 for bare uninterruptible state, got %d", score)
	}
}

func TestNormalizeDegenerateRangeIsZero(t *testing.T) {
	got := normalize(50, config.Range{Low: 10, High: 10})
	if got != 0 {
		t.Fatalf("expected 0 for degenerate range, got %v", got)
	}
}

func TestZeroWeightNeverTagsCategory(t *testing.T) {
	w, n := defaultWeightsNorm()
	w.Threads = 0
	m := model.ProcessMetrics{PID: 1, State: model.StateRunning, Threads: 1000}
	_, cats := Score(m, w, n)
	if cats.Has(model.CatThreads) {
		t.Fatalf("expected no CatThreads when weight is 0")
	}
}
