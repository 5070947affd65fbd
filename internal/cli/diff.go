package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/caldrift/caldrift/internal/run"
)

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	*RootOptions
	Manifest string
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff <reference-tree> <candidate-tree>",
		Short: "Compare two existing output trees without running anything",
		Long: `Match files between two output trees by relative path and compare them:
artifact files structurally, everything else byte-for-byte.

Example:
  caldrift diff ./reference-out ./candidate-out`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest(opts.Manifest)
			if err != nil {
				return WrapExitError(ExitCommandError, "load manifest", err)
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()

			rep, err := run.DiffOnly(ctx, args[0], args[1], m, slog.Default())
			if err != nil {
				return WrapExitError(ExitCommandError, "diff failed", err)
			}
			return writeReport(cmd.OutOrStdout(), opts.RootOptions, rep)
		},
	}

	cmd.Flags().StringVar(&opts.Manifest, "manifest", "", "suite manifest file (default: built-in suite)")

	return cmd
}
