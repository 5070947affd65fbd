package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/caldrift/caldrift/internal/report"
)

// SaveReport persists a finished run. The whole report goes in one
// transaction so history never contains a run with half its cases.
// Re-saving the same run ID replaces nothing and fails instead; run IDs
// are UUIDv7 and never reused.
func (s *Store) SaveReport(ctx context.Context, rep *report.RunReport, rootPath, outputPath string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, started_at, duration_ms, root_path, output_path, passed, failed, errored)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rep.RunID,
		rep.StartedAt.UTC().Format(time.RFC3339Nano),
		rep.DurationMS,
		rootPath,
		outputPath,
		rep.Passed,
		rep.Failed,
		rep.Errored,
	)
	if err != nil {
		return fmt.Errorf("save report: insert run: %w", err)
	}

	for seq, c := range rep.Cases {
		diffsJSON, err := json.Marshal(c.Diffs)
		if err != nil {
			return fmt.Errorf("save report: marshal diffs for %q: %w", c.CaseID, err)
		}
		status := ""
		exitCode := 0
		durationMS := int64(0)
		if c.Outcome != nil {
			status = string(c.Outcome.Status)
			exitCode = c.Outcome.ExitCode
			durationMS = c.Outcome.DurationMS
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO case_results
			(run_id, seq, case_id, verdict, status, exit_code, duration_ms, detail, diffs)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rep.RunID, seq, c.CaseID, string(c.Verdict),
			status, exitCode, durationMS, c.Detail, string(diffsJSON),
		)
		if err != nil {
			return fmt.Errorf("save report: insert case %q: %w", c.CaseID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}
