package report

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caldrift/caldrift/internal/diff"
	"github.com/caldrift/caldrift/internal/dispatch"
)

func TestDerive_ErrorBeatsFailBeatsPass(t *testing.T) {
	ok := &dispatch.Outcome{Status: dispatch.StatusOK}
	crashed := &dispatch.Outcome{Status: dispatch.StatusExit, ExitCode: 1}
	differing := []diff.ArtifactDiff{{Verdict: diff.VerdictDiffering}}
	identical := []diff.ArtifactDiff{{Verdict: diff.VerdictIdentical}}

	assert.Equal(t, VerdictPass, Derive(ok, nil, ""))
	assert.Equal(t, VerdictPass, Derive(ok, identical, ""))
	assert.Equal(t, VerdictPass, Derive(nil, identical, ""))
	assert.Equal(t, VerdictFail, Derive(ok, differing, ""))
	assert.Equal(t, VerdictError, Derive(crashed, differing, ""))
	assert.Equal(t, VerdictError, Derive(ok, identical, "reference artifact missing"))
}

func TestDerive_IncompatibleIsFail(t *testing.T) {
	diffs := []diff.ArtifactDiff{{Verdict: diff.VerdictIncompatible}}
	assert.Equal(t, VerdictFail, Derive(&dispatch.Outcome{Status: dispatch.StatusOK}, diffs, ""))
}

func TestAggregator_DiscoveryOrderPreserved(t *testing.T) {
	agg := NewAggregator("run-1")
	for _, id := range []string{"a_raw.fits", "b_raw.fits", "c_raw.fits"} {
		agg.Expect(id)
	}
	// Completion order differs from discovery order.
	agg.Add(CaseResult{CaseID: "c_raw.fits", Verdict: VerdictPass})
	agg.Add(CaseResult{CaseID: "a_raw.fits", Verdict: VerdictFail})
	agg.Add(CaseResult{CaseID: "b_raw.fits", Verdict: VerdictError})

	rep := agg.Report()
	require.Len(t, rep.Cases, 3)
	assert.Equal(t, "a_raw.fits", rep.Cases[0].CaseID)
	assert.Equal(t, "b_raw.fits", rep.Cases[1].CaseID)
	assert.Equal(t, "c_raw.fits", rep.Cases[2].CaseID)
	assert.Equal(t, 1, rep.Passed)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Errored)
	assert.Equal(t, 3, rep.Total())
}

func TestAggregator_DuplicateCaseCountsOnce(t *testing.T) {
	agg := NewAggregator("run-2")
	agg.Expect("x_raw.fits")
	agg.Add(CaseResult{CaseID: "x_raw.fits", Verdict: VerdictFail})
	agg.Add(CaseResult{CaseID: "x_raw.fits", Verdict: VerdictPass})

	rep := agg.Report()
	require.Len(t, rep.Cases, 1)
	assert.Equal(t, VerdictPass, rep.Cases[0].Verdict)
	assert.Equal(t, 1, rep.Passed)
	assert.Zero(t, rep.Failed)
}

func TestAggregator_PartialReportOmitsNeverCompleted(t *testing.T) {
	agg := NewAggregator("run-3")
	agg.Expect("done_raw.fits")
	agg.Expect("pending_raw.fits")
	agg.Add(CaseResult{CaseID: "done_raw.fits", Verdict: VerdictPass})

	rep := agg.Report()
	require.Len(t, rep.Cases, 1)
	assert.Equal(t, "done_raw.fits", rep.Cases[0].CaseID)
}

func TestAggregator_UnexpectedResultStillCounted(t *testing.T) {
	agg := NewAggregator("run-4")
	agg.Expect("known_raw.fits")
	agg.Add(CaseResult{CaseID: "known_raw.fits", Verdict: VerdictPass})
	agg.Add(CaseResult{CaseID: "stray_raw.fits", Verdict: VerdictError})

	rep := agg.Report()
	require.Len(t, rep.Cases, 2)
	assert.Equal(t, "stray_raw.fits", rep.Cases[1].CaseID)
	assert.Equal(t, 1, rep.Errored)
}

func TestAggregator_ConcurrentExpectAndAdd(t *testing.T) {
	agg := NewAggregator("run-5")
	var wg sync.WaitGroup
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = string(rune('a'+i%26)) + "_raw.fits"
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, id := range ids {
			agg.Expect(id)
		}
	}()
	go func() {
		defer wg.Done()
		for _, id := range ids {
			agg.Add(CaseResult{CaseID: id, Verdict: VerdictPass})
		}
	}()
	wg.Wait()

	rep := agg.Report()
	assert.Len(t, rep.Cases, 26)
	assert.Equal(t, 26, rep.Passed)
}
