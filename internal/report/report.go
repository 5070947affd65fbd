// Package report aggregates per-case results into a run report.
//
// The aggregator is a streaming consumer: results arrive in completion
// order, but the final report preserves discovery order by indexing
// cases as they are expected, not as they arrive. Duplicate case IDs
// (re-runs, overlapping discovery) keep the most recent result and count
// once. A report is always producible, including partial reports after
// cancellation.
package report

import (
	"sync"
	"time"

	"github.com/caldrift/caldrift/internal/diff"
	"github.com/caldrift/caldrift/internal/dispatch"
)

// VerdictKind is the final per-case classification.
type VerdictKind string

const (
	// VerdictPass - execution succeeded and every comparison was
	// identical (or there was nothing to compare).
	VerdictPass VerdictKind = "pass"
	// VerdictFail - execution succeeded but at least one artifact
	// comparison was non-identical.
	VerdictFail VerdictKind = "fail"
	// VerdictError - execution failed, or an artifact could not be
	// read, or a referenced artifact is missing.
	VerdictError VerdictKind = "error"
)

// CaseResult is the final record for one test case.
type CaseResult struct {
	CaseID  string              `json:"case_id"`
	Outcome *dispatch.Outcome   `json:"outcome,omitempty"` // absent in diff-only mode
	Diffs   []diff.ArtifactDiff `json:"diffs,omitempty"`
	Verdict VerdictKind         `json:"verdict"`
	Detail  string              `json:"detail,omitempty"` // error explanation
}

// Derive computes the verdict from the parts of a result.
//
// error beats fail beats pass: a failed execution makes the comparisons
// moot, and a single non-identical artifact fails the case.
func Derive(outcome *dispatch.Outcome, diffs []diff.ArtifactDiff, errDetail string) VerdictKind {
	if errDetail != "" {
		return VerdictError
	}
	if outcome != nil && outcome.Status != dispatch.StatusOK {
		return VerdictError
	}
	for i := range diffs {
		if diffs[i].Verdict != diff.VerdictIdentical {
			return VerdictFail
		}
	}
	return VerdictPass
}

// RunReport is the aggregated outcome of a whole run.
type RunReport struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`

	// Cases in discovery order, regardless of completion order.
	Cases []CaseResult `json:"cases"`

	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
}

// Total returns the number of counted cases.
func (r *RunReport) Total() int { return len(r.Cases) }

// Aggregator collects CaseResults as they arrive.
//
// Expect is called from the discovery walk while Add drains the result
// stream, so the two can overlap; a single mutex guards both. Report may
// be called at any point for a partial view.
type Aggregator struct {
	runID   string
	started time.Time

	mu      sync.Mutex
	order   []string
	known   map[string]struct{}
	results map[string]CaseResult
}

// NewAggregator creates an aggregator for one run.
func NewAggregator(runID string) *Aggregator {
	return &Aggregator{
		runID:   runID,
		started: time.Now(),
		known:   make(map[string]struct{}),
		results: make(map[string]CaseResult),
	}
}

// Expect registers a case in discovery order. Results for unregistered
// cases are still accepted (appended after all expected cases).
func (a *Aggregator) Expect(caseID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.note(caseID)
}

// Add records one case result. A repeated CaseID replaces the previous
// result; the case still counts once.
func (a *Aggregator) Add(res CaseResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.note(res.CaseID)
	a.results[res.CaseID] = res
}

func (a *Aggregator) note(caseID string) {
	if _, ok := a.known[caseID]; ok {
		return
	}
	a.known[caseID] = struct{}{}
	a.order = append(a.order, caseID)
}

// Report finalizes the aggregation. Expected cases that never produced a
// result (cancellation) are omitted; everything received is reported.
// Callable at any time to obtain a partial report.
func (a *Aggregator) Report() *RunReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := &RunReport{
		RunID:     a.runID,
		StartedAt: a.started,
		Duration:  time.Since(a.started),
	}
	r.DurationMS = r.Duration.Milliseconds()
	for _, id := range a.order {
		res, ok := a.results[id]
		if !ok {
			continue
		}
		r.Cases = append(r.Cases, res)
		switch res.Verdict {
		case VerdictPass:
			r.Passed++
		case VerdictFail:
			r.Failed++
		default:
			r.Errored++
		}
	}
	return r
}
