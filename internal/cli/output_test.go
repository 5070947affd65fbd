package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caldrift/caldrift/internal/report"
)

func TestExitError_Codes(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "regressions found")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flags")))
	// Non-ExitErrors default to ExitFailure.
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}

func TestExitError_Wrapping(t *testing.T) {
	inner := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "run failed", inner)
	assert.Equal(t, "run failed: disk full", err.Error())
	assert.ErrorIs(t, err, inner)

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
}

func TestWriteReport_AllPassedExitsClean(t *testing.T) {
	rep := &report.RunReport{
		Cases:  []report.CaseResult{{CaseID: "a_raw.fits", Verdict: report.VerdictPass}},
		Passed: 1,
	}

	var buf bytes.Buffer
	err := writeReport(&buf, &RootOptions{Format: "text"}, rep)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "1 passed")
}

func TestWriteReport_FailuresBecomeExitFailure(t *testing.T) {
	rep := &report.RunReport{
		Cases:  []report.CaseResult{{CaseID: "a_raw.fits", Verdict: report.VerdictFail}},
		Failed: 1,
	}

	var buf bytes.Buffer
	err := writeReport(&buf, &RootOptions{Format: "text"}, rep)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestWriteReport_JSONFormat(t *testing.T) {
	rep := &report.RunReport{
		RunID:  "run-x",
		Cases:  []report.CaseResult{{CaseID: "a_raw.fits", Verdict: report.VerdictPass}},
		Passed: 1,
	}

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, &RootOptions{Format: "json"}, rep))

	var back report.RunReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "run-x", back.RunID)
	require.Len(t, back.Cases, 1)
	assert.Equal(t, report.VerdictPass, back.Cases[0].Verdict)
}
