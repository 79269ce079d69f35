// Package model holds the data types shared by the scoring pipeline:
// raw process rows, scored processes, ticks, and the persisted event/
// snapshot records. Types here carry no behavior beyond small invariant
// helpers — the pipeline packages (scorer, selector, tracker) own the logic.
package model

import "time"

// SchedState enumerates the scheduler states top(1) reports for a process.
type SchedState string

const (
	StateRunning       SchedState = "running"
	StateSleeping      SchedState = "sleeping"
	StateStuck         SchedState = "stuck"
	StateUninterruptible SchedState = "uninterruptible"
	StateZombie        SchedState = "zombie"
	StateIdle          SchedState = "idle"
	StateOther         SchedState = "other"
)

// ProcessMetrics is one row parsed from a single top(1) sample block.
type ProcessMetrics struct {
	PID        int
	Command    string
	User       string
	CPUPercent float64
	State      SchedState
	ResidentBytes   uint64
	CompressedBytes uint64
	Pageins         uint64
	ContextSwitches uint64
	SyscallsBSD     uint64
	Threads         int
}

// Category tags explain why a process was scored/selected.
type Category string

const (
	CatStuck    Category = "stuck"
	CatPaging   Category = "paging"
	CatCPU      Category = "cpu"
	CatMem      Category = "mem"
	CatCmprs    Category = "cmprs"
	CatPageins  Category = "pageins"
	CatCSW      Category = "csw"
	CatSysBSD   Category = "sysbsd"
	CatThreads  Category = "threads"
)

// CategorySet is an unordered set of category tags.
type CategorySet map[Category]struct{}

func NewCategorySet(cats ...Category) CategorySet {
	s := make(CategorySet, len(cats))
	for _, c := range cats {
		s[c] = struct{}{}
	}
	return s
}

func (s CategorySet) Add(c Category) { s[c] = struct{}{} }
func (s CategorySet) Has(c Category) bool {
	_, ok := s[c]
	return ok
}

// Merge adds every category from other into s.
func (s CategorySet) Merge(other CategorySet) {
	for c := range other {
		s[c] = struct{}{}
	}
}

// Slice returns the categories sorted for deterministic display/serialization.
func (s CategorySet) Slice() []Category {
	out := make([]Category, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// ScoredProcess is a ProcessMetrics augmented with a scorer verdict.
type ScoredProcess struct {
	ProcessMetrics
	Score      int
	Categories CategorySet
	CapturedAt time.Time
}

// ScoredJSON is the wire/storage representation of a ScoredProcess — plain
// fields only, so it round-trips through encoding/json without a custom
// marshaler for CategorySet.
type ScoredJSON struct {
	PID             int      `json:"pid"`
	Command         string   `json:"command"`
	User            string   `json:"user,omitempty"`
	CPUPercent      float64  `json:"cpu_percent"`
	State           string   `json:"state"`
	ResidentBytes   uint64   `json:"resident_bytes"`
	CompressedBytes uint64   `json:"compressed_bytes"`
	Pageins         uint64   `json:"pageins"`
	ContextSwitches uint64   `json:"context_switches"`
	SyscallsBSD     uint64   `json:"syscalls_bsd"`
	Threads         int      `json:"threads"`
	Score           int      `json:"score"`
	Categories      []string `json:"categories"`
	CapturedAt      int64    `json:"captured_at"`
}

// ToJSON converts a ScoredProcess to its flat wire form.
func (s ScoredProcess) ToJSON() ScoredJSON {
	cats := s.Categories.Slice()
	strs := make([]string, len(cats))
	for i, c := range cats {
		strs[i] = string(c)
	}
	return ScoredJSON{
		PID:             s.PID,
		Command:         s.Command,
		User:            s.User,
		CPUPercent:      s.CPUPercent,
		State:           string(s.State),
		ResidentBytes:   s.ResidentBytes,
		CompressedBytes: s.CompressedBytes,
		Pageins:         s.Pageins,
		ContextSwitches: s.ContextSwitches,
		SyscallsBSD:     s.SyscallsBSD,
		Threads:         s.Threads,
		Score:           s.Score,
		Categories:      strs,
		CapturedAt:      s.CapturedAt.Unix(),
	}
}

// FromJSON reconstructs a ScoredProcess from its flat wire form.
func (j ScoredJSON) FromJSON() ScoredProcess {
	cats := NewCategorySet()
	for _, c := range j.Categories {
		cats.Add(Category(c))
	}
	return ScoredProcess{
		ProcessMetrics: ProcessMetrics{
			PID:             j.PID,
			Command:         j.Command,
			User:            j.User,
			CPUPercent:      j.CPUPercent,
			State:           SchedState(j.State),
			ResidentBytes:   j.ResidentBytes,
			CompressedBytes: j.CompressedBytes,
			Pageins:         j.Pageins,
			ContextSwitches: j.ContextSwitches,
			SyscallsBSD:     j.SyscallsBSD,
			Threads:         j.Threads,
		},
		Score:      j.Score,
		Categories: cats,
		CapturedAt: time.Unix(j.CapturedAt, 0),
	}
}

// Sample is one collector tick: every rogue process selected that tick,
// ordered highest score first, plus tick-level summary fields.
type Sample struct {
	Timestamp      time.Time
	ProcessCount   int
	MaxScore       int
	RogueProcesses []ScoredProcess
}

// RingSample wraps a Sample with the tier assigned to it by the main loop,
// for compatibility with the broadcast wire protocol.
type RingSample struct {
	Sample Sample
	Tier   int
}

// Event is a persisted per-PID interval during which a process's score
// stayed at or above the tracking threshold.
type Event struct {
	ID           int64
	PID          int
	Command      string
	BootTime     int64
	EntryTime    time.Time
	ExitTime     *time.Time // nil while open
	EntryBand    string
	PeakBand     string
	PeakScore    int
	PeakSnapshot string // serialized ScoredJSON
	Notes        string
}

// Open reports whether the event has not yet been closed.
func (e Event) Open() bool { return e.ExitTime == nil }

// SnapshotType tags why a process_snapshots row was inserted.
type SnapshotType string

const (
	SnapshotEntry            SnapshotType = "entry"
	SnapshotPeak             SnapshotType = "peak"
	SnapshotPause            SnapshotType = "pause"
	SnapshotForensicsBandEntry SnapshotType = "forensics_band_entry"
)

// Band is a named half-open score interval, e.g. [40, 60) = "elevated".
type Band struct {
	Name string
	Low  int // inclusive
	High int // exclusive, except the top band which is inclusive of 100
}
