// Package run wires discovery, dispatch, comparison, and aggregation
// into the two entry points the CLI exposes: ExecuteAndReport for a full
// regression run and DiffOnly for comparing two existing output trees.
//
// All run-scoped state (aggregator, comparator, dispatcher) lives in an
// explicit context object owned by the entry point; nothing is shared
// across runs or held in package globals.
package run

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/caldrift/caldrift/internal/discover"
	"github.com/caldrift/caldrift/internal/dispatch"
	"github.com/caldrift/caldrift/internal/manifest"
	"github.com/caldrift/caldrift/internal/report"
)

// Options configures a full regression run.
type Options struct {
	// Root is the data tree to discover cases under.
	Root string

	// OutputRoot receives all run output. Must not already exist:
	// mixing two runs' output makes the comparison meaningless.
	OutputRoot string

	// ExecPath is the directory holding the pipeline executables.
	ExecPath string

	// Workers bounds parallel case execution. Must be >= 1.
	Workers int

	// Timeout bounds each case's run. Zero means no limit.
	Timeout time.Duration

	// Manifest describes the suite. Nil means manifest.Default().
	Manifest *manifest.Manifest

	// Selector, when non-nil, restricts the run to matching inputs.
	Selector *discover.Selector

	// ReferenceRoot enables live comparison: each case's produced
	// artifacts are compared against the same relative paths under
	// this tree as soon as the case completes.
	ReferenceRoot string

	Logger *slog.Logger
}

// ExecuteAndReport runs the whole suite and returns the aggregated
// report.
//
// Only conditions that prevent any case from running at all are
// returned as errors (bad root, existing output path, bad worker
// count). Per-case failures of every kind are contained in the report.
// On cancellation the report covers the cases that completed.
func ExecuteAndReport(ctx context.Context, opts Options) (*report.RunReport, error) {
	m := opts.Manifest
	if m == nil {
		m = manifest.Default()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	if _, err := os.Stat(opts.OutputRoot); err == nil {
		return nil, fmt.Errorf("output path %q already exists; delete it or choose another", opts.OutputRoot)
	}

	disc := &discover.Discoverer{
		Root:      opts.Root,
		IsPrimary: m.IsPrimary,
		Selector:  opts.Selector,
		Command: func(input string) ([]string, error) {
			return m.Command(opts.ExecPath, input)
		},
		Logger: log,
	}
	cases, err := disc.Discover(ctx)
	if err != nil {
		return nil, err
	}

	agg := report.NewAggregator(newRunID())

	// Register discovery order as the walk hands cases to the pool, so
	// the report can present results in that order no matter when each
	// case completes.
	tracked := func(yield func(discover.TestCase) bool) {
		for tc := range cases {
			agg.Expect(tc.ID)
			if !yield(tc) {
				return
			}
		}
	}

	disp := &dispatch.Dispatcher{
		Workers:    opts.Workers,
		Timeout:    opts.Timeout,
		OutputRoot: opts.OutputRoot,
		Logger:     log,
	}
	outcomes, err := disp.Run(ctx, tracked)
	if err != nil {
		return nil, err
	}

	var live *liveComparator
	if opts.ReferenceRoot != "" {
		live = &liveComparator{
			comparator:    m.Comparator(),
			isArtifact:    m.IsArtifact,
			outputRoot:    opts.OutputRoot,
			referenceRoot: opts.ReferenceRoot,
			logger:        log,
		}
	}

	for out := range outcomes {
		res := report.CaseResult{CaseID: out.CaseID, Outcome: &out}
		if live != nil && out.Status == dispatch.StatusOK {
			res.Diffs, res.Detail = live.compare(&out)
		}
		res.Verdict = report.Derive(res.Outcome, res.Diffs, res.Detail)
		agg.Add(res)
	}

	return agg.Report(), nil
}

func newRunID() string {
	return uuid.Must(uuid.NewV7()).String()
}
