package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/caldrift/caldrift/internal/housekeep"
)

// NewCleanCommand creates the clean command.
func NewCleanCommand(rootOpts *RootOptions) *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "clean <path>",
		Short: "Remove everything except primary inputs from a data tree",
		Long: `Delete every file under <path> that is not a primary input, returning a
used data tree to its pre-run state.

Example:
  caldrift clean ./data`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest(manifestPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "load manifest", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removing all non-%s files from %q\n", m.PrimarySuffix, args[0])
			if err := housekeep.Clean(args[0], m.IsPrimary); err != nil {
				return WrapExitError(ExitCommandError, "clean incomplete", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "suite manifest file (default: built-in suite)")

	return cmd
}

// NewMoveCommand creates the move command.
func NewMoveCommand(rootOpts *RootOptions) *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "move <src> <dst>",
		Short: "Move generated output into a results subtree",
		Long: `Move every non-primary file under <src> to <dst>/results, preserving the
directory layout. Primary inputs stay behind.

Example:
  caldrift move ./data ./archive`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest(manifestPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "load manifest", err)
			}
			dst := filepath.Join(args[1], "results")
			fmt.Fprintf(cmd.OutOrStdout(), "Moving all non-%s files from %q to %q\n", m.PrimarySuffix, args[0], dst)
			if err := housekeep.Move(args[0], dst, m.IsPrimary); err != nil {
				return WrapExitError(ExitCommandError, "move incomplete", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "suite manifest file (default: built-in suite)")

	return cmd
}
