package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ngrantham/pausewatch/internal/model"
	"github.com/ngrantham/pausewatch/internal/protocol"
)

// Table renders bordered tables for CLI output.
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable creates a new table with the given headers.
func NewTable(headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	return &Table{headers: headers, widths: widths}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cols ...string) {
	for i, c := range cols {
		if i < len(t.widths) && len(c) > t.widths[i] {
			t.widths[i] = len(c)
		}
	}
	t.rows = append(t.rows, cols)
}

// Render writes the table to the given writer.
func (t *Table) Render(w io.Writer) {
	if len(t.rows) == 0 && len(t.headers) == 0 {
		return
	}
	t.line(w, "┌", "┬", "┐")
	t.row(w, t.headers)
	t.line(w, "├", "┼", "┤")
	for _, r := range t.rows {
		t.row(w, r)
	}
	t.line(w, "└", "┴", "┘")
}

func (t *Table) line(w io.Writer, left, mid, right string) {
	fmt.Fprint(w, left)
	for i, width := range t.widths {
		fmt.Fprint(w, strings.Repeat("─", width+2))
		if i < len(t.widths)-1 {
			fmt.Fprint(w, mid)
		}
	}
	fmt.Fprintln(w, right)
}

func (t *Table) row(w io.Writer, cols []string) {
	fmt.Fprint(w, "│")
	for i, width := range t.widths {
		val := ""
		if i < len(cols) {
			val = cols[i]
		}
		fmt.Fprintf(w, " %-*s │", width, val)
	}
	fmt.Fprintln(w)
}

// RenderRogueTable renders the current tick's rogue processes, highest
// score first, with the categories that earned each one its place.
func RenderRogueTable(w io.Writer, procs []model.ScoredProcess) {
	tbl := NewTable("PID", "COMMAND", "SCORE", "STATE", "CPU", "MEM", "CATEGORIES")
	for _, p := range procs {
		cats := make([]string, 0, len(p.Categories))
		for _, c := range p.Categories.Slice() {
			cats = append(cats, string(c))
		}
		tbl.AddRow(
			fmt.Sprintf("%d", p.PID),
			truncate(p.Command, 24),
			fmt.Sprintf("%d", p.Score),
			string(p.State),
			fmt.Sprintf("%.1f%%", p.CPUPercent),
			protocol.FormatBytes(p.ResidentBytes),
			strings.Join(cats, ","),
		)
	}
	tbl.Render(w)
}

// RenderEventTable renders a table-key-value view of a single tracked event.
func RenderEventTable(w io.Writer, e model.Event) {
	tbl := NewTable("Key", "Value")
	tbl.AddRow("ID", fmt.Sprintf("%d", e.ID))
	tbl.AddRow("PID", fmt.Sprintf("%d", e.PID))
	tbl.AddRow("Command", e.Command)
	tbl.AddRow("Entry Band", e.EntryBand)
	tbl.AddRow("Peak Band", e.PeakBand)
	tbl.AddRow("Peak Score", fmt.Sprintf("%d", e.PeakScore))
	tbl.AddRow("Entry Time", e.EntryTime.Format("2006-01-02 15:04:05 MST"))
	if e.ExitTime != nil {
		tbl.AddRow("Exit Time", e.ExitTime.Format("2006-01-02 15:04:05 MST"))
		tbl.AddRow("Duration", protocol.FormatDuration(e.ExitTime.Sub(e.EntryTime)))
	} else {
		tbl.AddRow("Exit Time", "-")
		tbl.AddRow("Duration", protocol.FormatDuration(time.Since(e.EntryTime))+" (ongoing)")
	}
	tbl.Render(w)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
