package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/caldrift/caldrift/internal/dispatch"
	"github.com/caldrift/caldrift/internal/report"
)

// RunSummary is one history listing row.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	DurationMS int64
	RootPath   string
	OutputPath string
	Passed     int
	Failed     int
	Errored    int
}

// ErrRunNotFound reports an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// ListRuns returns stored runs, most recent first.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, duration_ms, root_path, output_path, passed, failed, errored
		FROM runs ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var started string
		if err := rows.Scan(&r.RunID, &started, &r.DurationMS, &r.RootPath, &r.OutputPath, &r.Passed, &r.Failed, &r.Errored); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadReport reconstructs a stored run report, cases in discovery order.
// Execution outcomes come back with only the fields history keeps
// (status, exit code, duration); transcripts live in the run's log tree.
func (s *Store) LoadReport(ctx context.Context, runID string) (*report.RunReport, error) {
	rep := &report.RunReport{RunID: runID}
	var started string
	err := s.db.QueryRowContext(ctx, `
		SELECT started_at, duration_ms, passed, failed, errored FROM runs WHERE id = ?
	`, runID).Scan(&started, &rep.DurationMS, &rep.Passed, &rep.Failed, &rep.Errored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load report %q: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load report %q: %w", runID, err)
	}
	rep.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	rep.Duration = time.Duration(rep.DurationMS) * time.Millisecond

	rows, err := s.db.QueryContext(ctx, `
		SELECT case_id, verdict, status, exit_code, duration_ms, detail, diffs
		FROM case_results WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("load report %q: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var c report.CaseResult
		var status, diffsJSON string
		var exitCode int
		var durationMS int64
		if err := rows.Scan(&c.CaseID, &c.Verdict, &status, &exitCode, &durationMS, &c.Detail, &diffsJSON); err != nil {
			return nil, fmt.Errorf("load report %q: %w", runID, err)
		}
		if status != "" {
			c.Outcome = &dispatch.Outcome{
				CaseID:     c.CaseID,
				Status:     dispatch.Status(status),
				ExitCode:   exitCode,
				Duration:   time.Duration(durationMS) * time.Millisecond,
				DurationMS: durationMS,
			}
		}
		if err := json.Unmarshal([]byte(diffsJSON), &c.Diffs); err != nil {
			return nil, fmt.Errorf("load report %q: case %q diffs: %w", runID, c.CaseID, err)
		}
		rep.Cases = append(rep.Cases, c)
	}
	return rep, rows.Err()
}
