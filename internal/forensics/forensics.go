// Package forensics spawns macOS diagnostic tools against a culprit process
// once it crosses the forensics band: a thread-stack sample,
// a continuous trace dump, and a recent system-log extract, each with its
// own bounded timeout so a hung tool can never block the next tick.
package forensics

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ngrantham/pausewatch/internal/logwriter"
)

// DefaultTimeout bounds each spawned tool; a tool that outlives it is killed
// so forensics capture never delays the next capture cycle indefinitely.
const DefaultTimeout = 30 * time.Second

// Result is one tool's capture outcome. IncidentID ties together the
// several tools spawned by a single Capture call, so their log lines can be
// correlated. The ID is not part of any file name: output files go into a
// directory named by PID and capture second.
type Result struct {
	Tool       string
	Output     string
	Err        error
	Duration   time.Duration
	IncidentID string
}

// Runner spawns the forensics tool set into a per-incident directory.
type Runner struct {
	outDir  string
	timeout time.Duration
	logger  *slog.Logger
}

// New constructs a Runner that writes captures under outDir.
func New(outDir string, timeout time.Duration, logger *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{outDir: outDir, timeout: timeout, logger: logger}
}

// Capture runs the full tool set against pid concurrently and returns once
// every tool has finished or timed out. Each tool's failure is independent:
// one timing out never prevents the others' output from being saved. The
// returned directory is where any non-spindump tool output was persisted,
// for callers that want to record it as a breadcrumb.
func (r *Runner) Capture(ctx context.Context, pid int, command string, at time.Time) (string, []Result) {
	incidentID := uuid.New().String()
	incidentDir := filepath.Join(r.outDir, fmt.Sprintf("%d-%d", pid, at.Unix()))
	if err := os.MkdirAll(incidentDir, 0700); err != nil {
		r.logger.Error("failed to create incident directory", "dir", incidentDir, "error", err)
	}

	jobs := []func(context.Context) Result{
		func(ctx context.Context) Result { return r.sample(ctx, pid) },
		func(ctx context.Context) Result { return r.spindump(ctx, pid, incidentDir) },
		func(ctx context.Context) Result { return r.logShow(ctx, pid, command) },
	}

	results := make([]Result, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job func(context.Context) Result) {
			defer wg.Done()
			jobCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			res := job(jobCtx)
			res.IncidentID = incidentID
			results[i] = res
		}(i, job)
	}
	wg.Wait()

	for _, res := range results {
		if res.Err != nil {
			r.logger.Warn("forensics tool failed", "incident_id", incidentID, "tool", res.Tool, "pid", pid, "error", res.Err)
		} else {
			r.logger.Info("forensics tool captured", "incident_id", incidentID, "tool", res.Tool, "pid", pid, "duration", res.Duration)
		}
		if res.Tool != "spindump" {
			r.persist(incidentDir, res)
		}
	}
	return incidentDir, results
}

// persist writes a captured tool's stdout/stderr to a size-capped file
// under incidentDir. It writes whatever tool it is given; Capture does not
// call it for spindump, which writes its own file directly.
func (r *Runner) persist(incidentDir string, res Result) {
	if res.Output == "" {
		return
	}
	name := strings.ReplaceAll(res.Tool, " ", "_") + ".txt"
	path := filepath.Join(incidentDir, name)
	w, err := logwriter.New(path, 10<<20, 1)
	if err != nil {
		r.logger.Warn("failed to open forensics output file", "path", path, "error", err)
		return
	}
	defer w.Close()
	if _, err := w.Write([]byte(res.Output)); err != nil {
		r.logger.Warn("failed to write forensics output", "path", path, "error", err)
	}
}

// sample runs `sample <pid> 3` — a 3-second thread-stack sampler.
func (r *Runner) sample(ctx context.Context, pid int) Result {
	return run(ctx, "sample", "sample", strconv.Itoa(pid), "3")
}

// spindump captures a 5-second continuous trace to a file under incidentDir.
func (r *Runner) spindump(ctx context.Context, pid int, incidentDir string) Result {
	path := filepath.Join(incidentDir, "spindump.txt")
	return run(ctx, "spindump", "spindump", "-notarget", "-timelimit", "5", "-file", path,
		strconv.Itoa(pid))
}

// logShow extracts the last 30 seconds of unified log entries attributable
// to the culprit process.
func (r *Runner) logShow(ctx context.Context, pid int, command string) Result {
	predicate := fmt.Sprintf("process == %q OR processImagePath CONTAINS %q", command, command)
	return run(ctx, "log show", "log", "show", "--last", "30s", "--style", "syslog", "--predicate", predicate)
}

func run(ctx context.Context, tool, name string, args ...string) Result {
	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return Result{Tool: tool, Output: buf.String(), Err: err, Duration: time.Since(start)}
}

// Notify posts a best-effort user notification via osascript. A failure here
// is never fatal — the forensics capture above already has what matters.
func Notify(ctx context.Context, title, message string) error {
	script := fmt.Sprintf("display notification %q with title %q", message, title)
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	return cmd.Run()
}
