// Package protocol defines the wire messages exchanged over the daemon's
// Unix-domain broadcast socket plus the byte/duration
// formatting helpers shared by the CLI and TUI renderers.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ngrantham/pausewatch/internal/model"
)

// MessageType tags each newline-delimited JSON object pushed to clients.
type MessageType string

const (
	MessageInitialState MessageType = "initial_state"
	MessageSample        MessageType = "sample"
)

// Envelope is the outer shape every broadcast message shares; the client
// re-decodes the whole line into the concrete message type once Type is known.
type Envelope struct {
	Type MessageType `json:"type"`
}

// SampleMessage carries one collector tick's scored rogue processes.
type SampleMessage struct {
	Type           MessageType        `json:"type"`
	Timestamp      int64              `json:"timestamp"`
	Tier           int                `json:"tier"`
	ProcessCount   int                `json:"process_count"`
	MaxScore       int                `json:"max_score"`
	RogueProcesses []model.ScoredJSON `json:"rogue_processes"`
}

// NewSampleMessage converts a model.RingSample into its wire form.
func NewSampleMessage(rs model.RingSample) SampleMessage {
	rogue := make([]model.ScoredJSON, len(rs.Sample.RogueProcesses))
	for i, p := range rs.Sample.RogueProcesses {
		rogue[i] = p.ToJSON()
	}
	return SampleMessage{
		Type:           MessageSample,
		Timestamp:      rs.Sample.Timestamp.Unix(),
		Tier:           rs.Tier,
		ProcessCount:   rs.Sample.ProcessCount,
		MaxScore:       rs.Sample.MaxScore,
		RogueProcesses: rogue,
	}
}

// InitialStateMessage is sent once, synchronously, right after a client
// connects, so it never has to wait up to a full tick for its first sample.
// Recent carries the last few seconds of ring-buffer history (oldest first)
// so a client can draw a short backfilled chart instead of starting blank.
type InitialStateMessage struct {
	Type         MessageType     `json:"type"`
	DaemonPID    int             `json:"daemon_pid"`
	BootTime     int64           `json:"boot_time"`
	Recent       []SampleMessage `json:"recent,omitempty"`
	OpenEventIDs []int64         `json:"open_event_ids"`
}

// Latest returns the most recent sample in Recent, if any.
func (m InitialStateMessage) Latest() (SampleMessage, bool) {
	if len(m.Recent) == 0 {
		return SampleMessage{}, false
	}
	return m.Recent[len(m.Recent)-1], true
}

// FormatBytes renders a byte count the way `top`/Activity Monitor does:
// binary multiples with one decimal place above 1 KiB.
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// ParseSize parses a binary-multiple size suffix (e.g. "512K", "1.2G") as
// produced by top(1), returning the value in bytes.
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "+-")
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	suffixes := "KMGTPE"
	last := s[len(s)-1]
	idx := strings.IndexByte(suffixes, byte(toUpper(last)))
	if idx < 0 {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	}
	v, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil {
		return 0, err
	}
	mult := 1.0
	for i := 0; i <= idx; i++ {
		mult *= 1024
	}
	return uint64(v * mult), nil
}

func toUpper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

// FormatDuration renders a duration the way the CLI displays uptimes and
// event durations: the two most significant non-zero units.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	units := []struct {
		n    time.Duration
		name string
	}{
		{days, "d"}, {hours, "h"}, {minutes, "m"}, {seconds, "s"},
	}
	parts := make([]string, 0, 2)
	for _, u := range units {
		if u.n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", u.n, u.name))
			if len(parts) == 2 {
				break
			}
		}
	}
	if len(parts) == 0 {
		return "0s"
	}
	return strings.Join(parts, "")
}
