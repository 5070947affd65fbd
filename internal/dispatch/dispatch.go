// Package dispatch runs test case commands on a bounded worker pool.
//
// Each case executes as an isolated child process with its working
// directory set to a private subdirectory of the output root, so
// concurrently running cases can never contaminate each other's output.
// Every dispatched case produces exactly one Outcome: launch failures,
// non-zero exits, and timeouts are contained in the outcome rather than
// failing the worker, and the pool keeps draining the queue.
//
// Cancellation stops the feed immediately; in-flight children are killed
// and their outcomes still emitted, bounded by the grace period.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/caldrift/caldrift/internal/discover"
)

// Status classifies how a case's process ended.
type Status string

const (
	// StatusOK - the process exited zero.
	StatusOK Status = "ok"
	// StatusExit - the process exited non-zero.
	StatusExit Status = "exit"
	// StatusTimeout - the process outlived the timeout and was killed.
	StatusTimeout Status = "timeout"
	// StatusLaunchFailure - the process never started (missing
	// executable, permission denied).
	StatusLaunchFailure Status = "launch-failure"
)

// stderrTailLimit bounds how much captured stderr an Outcome retains.
const stderrTailLimit = 2048

// Outcome is the execution record for one case. Created exactly once per
// dispatched case; owned by whichever stage consumes it afterwards.
type Outcome struct {
	CaseID     string        `json:"case_id"`
	Status     Status        `json:"status"`
	ExitCode   int           `json:"exit_code"`
	StderrTail string        `json:"stderr_tail,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`

	// WorkDir is the case's private output directory.
	WorkDir string `json:"work_dir"`

	// Artifacts lists files the run produced, as slash paths relative
	// to the dispatcher's output root, sorted.
	Artifacts []string `json:"artifacts,omitempty"`

	// Err describes launch failures and timeouts in human terms.
	Err string `json:"error,omitempty"`
}

// Dispatcher owns the worker pool configuration. Construct, then call
// Run once; the dispatcher itself holds no cross-run state except the
// executable version cache used for case logs.
type Dispatcher struct {
	// Workers is the pool size. Must be >= 1; 1 degrades to strictly
	// sequential execution, the baseline for debugging the harness.
	Workers int

	// Timeout bounds each case's wall-clock run. Zero means no limit.
	Timeout time.Duration

	// OutputRoot is where per-case working directories and the logs/
	// subtree are created.
	OutputRoot string

	// Grace bounds how long a cancelled or timed-out child may linger
	// before the wait gives up. Zero defaults to 5s.
	Grace time.Duration

	// Logger receives per-case progress. Nil means slog.Default().
	Logger *slog.Logger

	versionMu sync.Mutex
	versions  map[string]string
}

// Run dispatches every case from the sequence and returns the outcome
// stream. The channel closes once all dispatched cases have reported.
// Outcome order is unspecified relative to case order.
func (d *Dispatcher) Run(ctx context.Context, cases iter.Seq[discover.TestCase]) (<-chan Outcome, error) {
	if d.Workers < 1 {
		return nil, fmt.Errorf("dispatch: workers must be >= 1, got %d", d.Workers)
	}
	if err := os.MkdirAll(filepath.Join(d.OutputRoot, "logs"), 0o755); err != nil {
		return nil, fmt.Errorf("dispatch: create log directory: %w", err)
	}

	work := make(chan discover.TestCase)
	results := make(chan Outcome)

	// Feeder: stops dispatching new cases the moment ctx is cancelled.
	go func() {
		defer close(work)
		for tc := range cases {
			select {
			case work <- tc:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < d.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tc := range work {
				results <- d.runCase(ctx, tc)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()
	return results, nil
}

// runCase executes one case and never returns an error: every failure
// mode is folded into the Outcome.
func (d *Dispatcher) runCase(ctx context.Context, tc discover.TestCase) Outcome {
	log := d.logger()
	out := Outcome{CaseID: tc.ID, WorkDir: d.caseDir(tc.ID)}

	if err := os.MkdirAll(out.WorkDir, 0o755); err != nil {
		out.Status = StatusLaunchFailure
		out.Err = fmt.Sprintf("create work directory: %v", err)
		return out
	}
	if len(tc.Command) == 0 {
		out.Status = StatusLaunchFailure
		out.Err = "empty command"
		return out
	}

	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if d.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, d.Timeout)
	}
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, tc.Command[0], tc.Command[1:]...)
	cmd.Dir = out.WorkDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = d.grace()

	log.Info("processing case", "case", tc.ID)
	start := time.Now()
	err := cmd.Start()
	if err != nil {
		out.Status = StatusLaunchFailure
		out.Err = err.Error()
		log.Warn("case failed to launch", "case", tc.ID, "error", err)
		return out
	}
	err = cmd.Wait()
	out.Duration = time.Since(start)
	out.DurationMS = out.Duration.Milliseconds()
	out.StderrTail = tail(stderr.String())

	switch {
	case runCtx.Err() != nil && ctx.Err() == nil:
		out.Status = StatusTimeout
		out.Err = fmt.Sprintf("killed after %s", d.Timeout)
		log.Warn("case timed out", "case", tc.ID, "timeout", d.Timeout)
	case err != nil:
		out.Status = StatusExit
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
		} else {
			out.ExitCode = -1
			out.Err = err.Error()
		}
		log.Warn("case exited non-zero", "case", tc.ID, "code", out.ExitCode)
	default:
		out.Status = StatusOK
		log.Info("case succeeded", "case", tc.ID, "duration", out.Duration)
	}

	out.Artifacts = d.collectArtifacts(out.WorkDir)
	d.writeCaseLog(tc, &out, stdout.String(), stderr.String())
	return out
}

// caseDir maps a case ID to its private working directory.
func (d *Dispatcher) caseDir(caseID string) string {
	rel := strings.TrimSuffix(caseID, filepath.Ext(caseID))
	return filepath.Join(d.OutputRoot, filepath.FromSlash(rel))
}

// collectArtifacts enumerates regular files under the work directory as
// output-root-relative slash paths. The produced tree is the comparison
// target; parsing tool stdout for file names is not reliable.
func (d *Dispatcher) collectArtifacts(workDir string) []string {
	var files []string
	_ = filepath.WalkDir(workDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(d.OutputRoot, path)
		if relErr != nil {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(files)
	return files
}

// writeCaseLog records the full run transcript under <out>/logs. Failure
// to write a log is reported but never fails the case.
func (d *Dispatcher) writeCaseLog(tc discover.TestCase, out *Outcome, stdout, stderr string) {
	logPath := filepath.Join(d.OutputRoot, "logs", filepath.Base(tc.ID)+".log")

	var b strings.Builder
	fmt.Fprintf(&b, "Input file: %q\n", tc.Input)
	fmt.Fprintf(&b, "Command: %q\n", strings.Join(tc.Command, " "))
	fmt.Fprintf(&b, "Version: %s\n", d.executableVersion(tc.Command))
	fmt.Fprintf(&b, "Status: %s\n", out.Status)
	fmt.Fprintf(&b, "Exit code: %d\n\n", out.ExitCode)
	fmt.Fprintf(&b, "stdout:\n%s\n\n", stdout)
	fmt.Fprintf(&b, "stderr:\n%s\n", stderr)

	if err := os.WriteFile(logPath, []byte(b.String()), 0o644); err != nil {
		d.logger().Warn("cannot write case log", "path", logPath, "error", err)
	}
}

// executableVersion probes `exe --version` once per executable and
// caches the answer for the rest of the run.
func (d *Dispatcher) executableVersion(command []string) string {
	if len(command) == 0 {
		return "unknown"
	}
	exe := command[0]

	d.versionMu.Lock()
	defer d.versionMu.Unlock()
	if d.versions == nil {
		d.versions = make(map[string]string)
	}
	if v, ok := d.versions[exe]; ok {
		return v
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	raw, err := exec.CommandContext(ctx, exe, "--version").Output()
	v := "unknown"
	if err == nil {
		v = strings.TrimSpace(string(raw))
	}
	d.versions[exe] = v
	return v
}

// tail keeps the last stderrTailLimit bytes, enough to show why a
// pipeline stage bailed without dragging megabytes into the report.
func tail(s string) string {
	if len(s) <= stderrTailLimit {
		return s
	}
	return "..." + s[len(s)-stderrTailLimit:]
}

func (d *Dispatcher) grace() time.Duration {
	if d.Grace > 0 {
		return d.Grace
	}
	return 5 * time.Second
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
