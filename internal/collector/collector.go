// Package collector spawns `top(1)` in logging mode and parses its
// streaming output into per-tick ProcessMetrics rows. It
// owns the only subprocess that runs continuously for the life of the
// daemon; every other subprocess (forensics tools) is spawned on demand.
package collector

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ngrantham/pausewatch/internal/model"
	"github.com/ngrantham/pausewatch/internal/protocol"
)

// Collector streams parsed ticks from a running `top` process.
type Collector struct {
	maxProcs int
	rateHz   int
	logger   *slog.Logger

	cmd    *exec.Cmd
	stdout io.ReadCloser
}

// New constructs a Collector. maxProcs bounds how many process rows top(1)
// reports per tick (top's -n flag); rateHz is its sampling interval.
func New(maxProcs, rateHz int, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{maxProcs: maxProcs, rateHz: rateHz, logger: logger}
}

// Start spawns `top` in logging mode (-l 0 runs indefinitely) and returns a
// channel of parsed ticks. The channel closes when ctx is canceled or top
// exits; callers should drain it until closed.
func (c *Collector) Start(ctx context.Context) (<-chan []model.ProcessMetrics, error) {
	args := []string{
		"-l", "0",
		"-n", strconv.Itoa(c.maxProcs),
		"-s", strconv.Itoa(c.rateHz),
		"-stats", "pid,command,cpu,state,rsize,compressed,pageins,csw,sysbsd,th",
	}
	cmd := exec.CommandContext(ctx, "/usr/bin/top", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe top stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start top: %w", err)
	}
	c.cmd = cmd
	c.stdout = stdout

	out := make(chan []model.ProcessMetrics)
	go c.scan(stdout, out)
	return out, nil
}

// Stop terminates the running top process, if any.
func (c *Collector) Stop() {
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
}

// scan splits top's output into per-tick blocks and parses each. top(1)
// separates ticks with a blank line following the last process row; we
// detect a new tick by the "Processes:" header line that starts every block.
func (c *Collector) scan(r io.Reader, out chan<- []model.ProcessMetrics) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var block []string
	inProcessTable := false

	flush := func() {
		if len(block) == 0 {
			return
		}
		rows := parseBlock(block)
		block = nil
		if len(rows) > 0 {
			out <- rows
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "Processes:"):
			flush()
			inProcessTable = false
			block = append(block, line)
		case strings.HasPrefix(line, "PID") && strings.Contains(line, "COMMAND"):
			inProcessTable = true
		case inProcessTable && strings.TrimSpace(line) == "":
			inProcessTable = false
		case inProcessTable:
			block = append(block, line)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		c.logger.Error("top output scan failed", "error", err)
	}
}

// parseBlock parses the process rows of a single tick, skipping any line
// that doesn't match the expected column count rather than aborting the
// whole tick — a single malformed row (e.g. a command containing odd
// whitespace) shouldn't cost us every other process that tick.
func parseBlock(lines []string) []model.ProcessMetrics {
	rows := make([]model.ProcessMetrics, 0, len(lines))
	for _, line := range lines {
		row, err := parseRow(line)
		if err != nil {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// parseRow parses one `top -stats pid,command,cpu,state,rsize,compressed,
// pageins,csw,sysbsd,th` row. Columns are whitespace-separated except
// COMMAND, which may itself contain spaces, so it is matched by taking the
// first and last N fields and joining whatever remains in the middle.
func parseRow(line string) (model.ProcessMetrics, error) {
	fields := strings.Fields(line)
	const trailingCols = 8 // state, rsize, compressed, pageins, csw, sysbsd, th  (cpu is adjacent to command)
	if len(fields) < 2+trailingCols {
		return model.ProcessMetrics{}, fmt.Errorf("unexpected column count: %q", line)
	}

	pid, err := strconv.Atoi(fields[0])
	if err != nil {
		return model.ProcessMetrics{}, fmt.Errorf("bad pid: %w", err)
	}

	tail := fields[len(fields)-trailingCols:]
	command := strings.Join(fields[1:len(fields)-trailingCols], " ")

	cpu, err := strconv.ParseFloat(strings.TrimSuffix(tail[0], "%"), 64)
	if err != nil {
		return model.ProcessMetrics{}, fmt.Errorf("bad cpu: %w", err)
	}

	state := parseState(tail[1])

	rsize, err := protocol.ParseSize(tail[2])
	if err != nil {
		return model.ProcessMetrics{}, fmt.Errorf("bad rsize: %w", err)
	}
	compressed, err := protocol.ParseSize(tail[3])
	if err != nil {
		return model.ProcessMetrics{}, fmt.Errorf("bad compressed: %w", err)
	}
	pageins, err := strconv.ParseUint(tail[4], 10, 64)
	if err != nil {
		return model.ProcessMetrics{}, fmt.Errorf("bad pageins: %w", err)
	}
	csw, err := strconv.ParseUint(tail[5], 10, 64)
	if err != nil {
		return model.ProcessMetrics{}, fmt.Errorf("bad csw: %w", err)
	}
	sysbsd, err := strconv.ParseUint(tail[6], 10, 64)
	if err != nil {
		return model.ProcessMetrics{}, fmt.Errorf("bad sysbsd: %w", err)
	}
	threads, err := strconv.Atoi(tail[7])
	if err != nil {
		return model.ProcessMetrics{}, fmt.Errorf("bad threads: %w", err)
	}

	return model.ProcessMetrics{
		PID:             pid,
		Command:         command,
		CPUPercent:      cpu,
		State:           state,
		ResidentBytes:   rsize,
		CompressedBytes: compressed,
		Pageins:         pageins,
		ContextSwitches: csw,
		SyscallsBSD:     sysbsd,
		Threads:         threads,
	}, nil
}

func parseState(s string) model.SchedState {
	switch strings.Trim(s, "()") {
	case "running":
		return model.StateRunning
	case "sleeping":
		return model.StateSleeping
	case "stuck":
		return model.StateStuck
	case "uninterruptible":
		return model.StateUninterruptible
	case "zombie":
		return model.StateZombie
	case "idle":
		return model.StateIdle
	default:
		return model.StateOther
	}
}
