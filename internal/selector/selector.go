// Package selector implements the pure rogue-process selection rule: a
// process is "rogue" either because it is automatically
// flagged (stuck/uninterruptible scheduler state, or any pageins) or because
// it ranks in the top 3 for at least one scoring factor. Select never
// touches the clock, storage, or the network — it is a function of the rows
// it is given and is exercised entirely with table tests.
package selector

import (
	"sort"

	"github.com/ngrantham/pausewatch/internal/model"
)

// factor is a per-process metric used for the top-3-per-factor pass.
type factor func(model.ScoredProcess) float64

var factors = map[model.Category]factor{
	model.CatCPU:     func(p model.ScoredProcess) float64 { return p.CPUPercent },
	model.CatMem:     func(p model.ScoredProcess) float64 { return float64(p.ResidentBytes) },
	model.CatCmprs:   func(p model.ScoredProcess) float64 { return float64(p.CompressedBytes) },
	model.CatPageins: func(p model.ScoredProcess) float64 { return float64(p.Pageins) },
	model.CatCSW:     func(p model.ScoredProcess) float64 { return float64(p.ContextSwitches) },
	model.CatSysBSD:  func(p model.ScoredProcess) float64 { return float64(p.SyscallsBSD) },
	model.CatThreads: func(p model.ScoredProcess) float64 { return float64(p.Threads) },
}

// Select returns the subset of procs considered rogue this tick, ordered by
// descending score with ties broken by ascending PID.
func Select(procs []model.ScoredProcess) []model.ScoredProcess {
	rogue := make(map[int]model.ScoredProcess)

	for _, p := range procs {
		if p.State == model.StateStuck || p.State == model.StateUninterruptible {
			rogue[p.PID] = p
			continue
		}
		if p.Pageins > 0 {
			rogue[p.PID] = p
		}
	}

	for _, f := range factors {
		for _, p := range topN(procs, f, 3) {
			rogue[p.PID] = p
		}
	}

	out := make([]model.ScoredProcess, 0, len(rogue))
	for _, p := range rogue {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PID < out[j].PID
	})
	return out
}

// topN returns the n processes with the highest f(p), ties broken by
// ascending PID, skipping processes whose f(p) is zero or negative since a
// zero-valued factor never makes a process rogue on that factor's account.
func topN(procs []model.ScoredProcess, f factor, n int) []model.ScoredProcess {
	candidates := make([]model.ScoredProcess, 0, len(procs))
	for _, p := range procs {
		if f(p) > 0 {
			candidates = append(candidates, p)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		vi, vj := f(candidates[i]), f(candidates[j])
		if vi != vj {
			return vi > vj
		}
		return candidates[i].PID < candidates[j].PID
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}
