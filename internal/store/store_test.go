package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caldrift/caldrift/internal/artifact"
	"github.com/caldrift/caldrift/internal/diff"
	"github.com/caldrift/caldrift/internal/dispatch"
	"github.com/caldrift/caldrift/internal/report"
	"github.com/caldrift/caldrift/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleReport(runID string) *report.RunReport {
	return &report.RunReport{
		RunID:      runID,
		StartedAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		DurationMS: 4200,
		Cases: []report.CaseResult{
			{
				CaseID: "set1/j1_raw.fits",
				Outcome: &dispatch.Outcome{
					CaseID:     "set1/j1_raw.fits",
					Status:     dispatch.StatusOK,
					DurationMS: 2100,
				},
				Verdict: report.VerdictPass,
			},
			{
				CaseID: "set1/j2_raw.fits",
				Outcome: &dispatch.Outcome{
					CaseID:     "set1/j2_raw.fits",
					Status:     dispatch.StatusOK,
					DurationMS: 1900,
				},
				Verdict: report.VerdictFail,
				Diffs: []diff.ArtifactDiff{{
					RefPath:  "ref/j2_flt.fits",
					CandPath: "out/j2_flt.fits",
					Verdict:  diff.VerdictDiffering,
					Units: []diff.UnitDiff{{
						Name:     "SCI",
						Presence: diff.PresenceBoth,
						Fields: []diff.FieldChange{{
							Key:  "EXPTIME",
							Kind: diff.FieldChanged,
							Old:  artifact.Int(10),
							New:  artifact.Float(10.5),
						}},
						Data: &diff.DataDiff{Differing: 7, MaxAbs: 0.25, MaxRel: 0.003},
					}},
				}},
			},
			{
				CaseID:  "set2/o5_raw.fits",
				Verdict: report.VerdictError,
				Detail:  "reference artifact missing: set2/o5_raw/o5_flt.fits",
			},
		},
		Passed:  1,
		Failed:  1,
		Errored: 1,
	}
}

func TestStore_SaveAndLoadReport(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	rep := sampleReport("0190aaaa-0000-7000-8000-000000000001")

	require.NoError(t, s.SaveReport(ctx, rep, "/data/acs", "/tmp/out"))

	back, err := s.LoadReport(ctx, rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, rep.RunID, back.RunID)
	assert.Equal(t, rep.StartedAt, back.StartedAt)
	assert.Equal(t, rep.DurationMS, back.DurationMS)
	assert.Equal(t, 1, back.Passed)
	assert.Equal(t, 1, back.Failed)
	assert.Equal(t, 1, back.Errored)
	require.Len(t, back.Cases, 3)

	// Discovery order survives the round trip.
	assert.Equal(t, "set1/j1_raw.fits", back.Cases[0].CaseID)
	assert.Equal(t, "set1/j2_raw.fits", back.Cases[1].CaseID)
	assert.Equal(t, "set2/o5_raw.fits", back.Cases[2].CaseID)

	// Interface-typed header values decode back to their concrete kinds.
	f := back.Cases[1].Diffs[0].Units[0].Fields[0]
	assert.Equal(t, artifact.Int(10), f.Old)
	assert.Equal(t, artifact.Float(10.5), f.New)
	assert.Equal(t, 7, back.Cases[1].Diffs[0].Units[0].Data.Differing)

	// A case with no execution outcome stays outcome-less.
	assert.Nil(t, back.Cases[2].Outcome)
	assert.Equal(t, report.VerdictError, back.Cases[2].Verdict)
	require.NotNil(t, back.Cases[0].Outcome)
	assert.Equal(t, dispatch.StatusOK, back.Cases[0].Outcome.Status)
}

func TestStore_SaveReportRejectsDuplicateRunID(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	rep := sampleReport("0190aaaa-0000-7000-8000-000000000002")

	require.NoError(t, s.SaveReport(ctx, rep, "/data", "/out"))
	require.Error(t, s.SaveReport(ctx, rep, "/data", "/out"))
}

func TestStore_ListRunsMostRecentFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	older := sampleReport("0190aaaa-0000-7000-8000-00000000000a")
	older.StartedAt = time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	newer := sampleReport("0190aaaa-0000-7000-8000-00000000000b")
	newer.StartedAt = time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveReport(ctx, older, "/data", "/out1"))
	require.NoError(t, s.SaveReport(ctx, newer, "/data", "/out2"))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.RunID, runs[0].RunID)
	assert.Equal(t, older.RunID, runs[1].RunID)
	assert.Equal(t, "/out2", runs[0].OutputPath)
	assert.Equal(t, 1, runs[0].Passed)
}

func TestStore_LoadReportUnknownRun(t *testing.T) {
	s := openStore(t)
	_, err := s.LoadReport(context.Background(), "no-such-run")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}
