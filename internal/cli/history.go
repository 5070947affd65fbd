package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/caldrift/caldrift/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	RunID    string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs or show one run's report",
		Long: `List runs recorded with "run --db", most recent first, or re-render one
stored report with --run.

Example:
  caldrift history --db ./caldrift.db
  caldrift history --db ./caldrift.db --run 0190a3c4-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showHistory(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show the stored report for this run ID")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func showHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	ctx := cmd.Context()

	if opts.RunID != "" {
		rep, err := st.LoadReport(ctx, opts.RunID)
		if err != nil {
			return WrapExitError(ExitCommandError, "load run", err)
		}
		// Historical reports always exit zero: the failure already
		// counted when the run happened.
		if opts.Format == "json" {
			return rep.WriteJSON(cmd.OutOrStdout())
		}
		return rep.WriteText(cmd.OutOrStdout())
	}

	runs, err := st.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "list runs", err)
	}
	for _, r := range runs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %d passed, %d failed, %d errored  (%s)\n",
			r.RunID,
			r.StartedAt.Format(time.RFC3339),
			r.Passed, r.Failed, r.Errored,
			r.RootPath,
		)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d run(s)\n", len(runs))
	return nil
}
