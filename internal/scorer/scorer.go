// Package scorer implements the pure, deterministic 0-100 scoring function.
// Score takes a metrics row and the configured
// weights/normalization ranges and returns a score plus the set of
// categories that contributed to it. It has no side effects and depends on
// nothing but its arguments, so it is exercised entirely with table tests.
package scorer

import (
	"github.com/ngrantham/pausewatch/internal/config"
	"github.com/ngrantham/pausewatch/internal/model"
)

// Score computes a process's 0-100 rogue score and its categories: every
// positively weighted factor whose normalized value is non-zero, plus stuck
// for a stuck process and paging whenever pageins is non-zero (these two are
// tagged whatever their weights).
func Score(m model.ProcessMetrics, weights config.WeightsConfig, norm config.NormalizationConfig) (int, model.CategorySet) {
	cats := model.NewCategorySet()
	total := 0.0

	if m.State == model.StateStuck {
		cats.Add(model.CatStuck)
		total += float64(weights.State)
	}

	if m.Pageins > 0 {
		cats.Add(model.CatPaging)
	}

	total += contribution(float64(weights.CPU), m.CPUPercent, norm.CPU, model.CatCPU, cats)
	total += contribution(float64(weights.Mem), float64(m.ResidentBytes), norm.Mem, model.CatMem, cats)
	total += contribution(float64(weights.Cmprs), float64(m.CompressedBytes), norm.Cmprs, model.CatCmprs, cats)
	total += contribution(float64(weights.Pageins), float64(m.Pageins), norm.Pageins, model.CatPageins, cats)
	total += contribution(float64(weights.CSW), float64(m.ContextSwitches), norm.CSW, model.CatCSW, cats)
	total += contribution(float64(weights.SysBSD), float64(m.SyscallsBSD), norm.SysBSD, model.CatSysBSD, cats)
	total += contribution(float64(weights.Threads), float64(m.Threads), norm.Threads, model.CatThreads, cats)

	score := int(total + 0.5)
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score, cats
}

// contribution linearly normalizes value into [0,1] over rng, scales it by
// weight, and tags cat into cats when the normalized value is non-zero.
func contribution(weight, value float64, rng config.Range, cat model.Category, cats model.CategorySet) float64 {
	if weight <= 0 {
		return 0
	}
	norm := normalize(value, rng)
	if norm > 0 {
		cats.Add(cat)
	}
	return weight * norm
}

// normalize clamps value into [low,high] and rescales it to [0,1]. A
// degenerate range (high <= low) always normalizes to 0, never dividing by
// zero or a negative span.
func normalize(value float64, rng config.Range) float64 {
	if rng.High <= rng.Low {
		return 0
	}
	if value <= rng.Low {
		return 0
	}
	if value >= rng.High {
		return 1
	}
	return (value - rng.Low) / (rng.High - rng.Low)
}
