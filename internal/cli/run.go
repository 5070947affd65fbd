package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/caldrift/caldrift/internal/discover"
	"github.com/caldrift/caldrift/internal/manifest"
	"github.com/caldrift/caldrift/internal/report"
	"github.com/caldrift/caldrift/internal/run"
	"github.com/caldrift/caldrift/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Root     string
	Out      string
	ExecPath string
	Workers  int
	Timeout  time.Duration
	RefRoot  string
	Select   string
	Manifest string
	Database string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the regression suite and report drift",
		Long: `Discover test cases under the data root, run each case's calibration
executable on a bounded worker pool, and aggregate the results.

With --ref, each case's produced artifacts are compared against the same
relative paths under the reference tree as soon as the case completes,
so failures surface while the batch is still running.

Example:
  caldrift run -r ./data -o ./out -e /opt/cal/bin -n 8 --timeout 30m
  caldrift run -r ./data -o ./out -e /opt/cal/bin --ref ./reference --select PCTECORR=PERFORM`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuite(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Root, "root", "r", "", "root path of regression test data (required)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output path; must not exist yet (required)")
	cmd.Flags().StringVarP(&opts.ExecPath, "exec", "e", "", "path containing the pipeline executables (required)")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "n", runtime.NumCPU(), "maximum parallel cases")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "per-case timeout (0 = none)")
	cmd.Flags().StringVar(&opts.RefRoot, "ref", "", "reference output tree for live comparison")
	cmd.Flags().StringVar(&opts.Select, "select", "", "only run inputs whose header matches KEY=VALUE")
	cmd.Flags().StringVar(&opts.Manifest, "manifest", "", "suite manifest file (default: built-in suite)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database to record run history")
	_ = cmd.MarkFlagRequired("root")
	_ = cmd.MarkFlagRequired("out")
	_ = cmd.MarkFlagRequired("exec")

	return cmd
}

func runSuite(cmd *cobra.Command, opts *RunOptions) error {
	m, err := loadManifest(opts.Manifest)
	if err != nil {
		return WrapExitError(ExitCommandError, "load manifest", err)
	}

	var selector *discover.Selector
	if opts.Select != "" {
		selector, err = discover.ParseSelector(opts.Select)
		if err != nil {
			return WrapExitError(ExitCommandError, "parse selector", err)
		}
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	rep, err := run.ExecuteAndReport(ctx, run.Options{
		Root:          opts.Root,
		OutputRoot:    opts.Out,
		ExecPath:      opts.ExecPath,
		Workers:       opts.Workers,
		Timeout:       opts.Timeout,
		Manifest:      m,
		Selector:      selector,
		ReferenceRoot: opts.RefRoot,
		Logger:        slog.Default(),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "run failed", err)
	}

	if opts.Database != "" {
		if err := saveHistory(ctx, opts, rep); err != nil {
			// History is best-effort: losing a row must not change
			// the run's verdicts or exit code.
			slog.Error("cannot record run history", "error", err)
		}
	}

	return writeReport(cmd.OutOrStdout(), opts.RootOptions, rep)
}

func saveHistory(ctx context.Context, opts *RunOptions, rep *report.RunReport) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	// The run context may already be cancelled when an aborted batch
	// reaches here; the partial report should still be recorded.
	return st.SaveReport(context.WithoutCancel(ctx), rep, opts.Root, opts.Out)
}

func loadManifest(path string) (*manifest.Manifest, error) {
	if path == "" {
		return manifest.Default(), nil
	}
	return manifest.Load(path)
}

// signalContext derives a context cancelled by SIGINT/SIGTERM, so an
// aborted batch still kills in-flight children and prints the partial
// report.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
