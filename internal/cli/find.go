package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caldrift/caldrift/internal/housekeep"
)

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "find <path> <keyword> <value> [and|or <keyword> <value>]...",
		Short: "Find primary inputs by header keyword",
		Long: `Recurse through <path> for primary input files whose header declares
<keyword> = <value>. Further clauses chain with "and" (intersect) or
"or" (union), evaluated left to right.

Example:
  caldrift find ./data INSTRUME WFC3 and PCTECORR PERFORM`,
		Args:          findArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest(manifestPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "load manifest", err)
			}

			clauses := []housekeep.Clause{{Keyword: args[1], Value: args[2]}}
			for i := 3; i < len(args); i += 3 {
				clauses = append(clauses, housekeep.Clause{
					Op:      args[i],
					Keyword: args[i+1],
					Value:   args[i+2],
				})
			}

			found, err := housekeep.Find(args[0], m.PrimarySuffix, clauses)
			if err != nil {
				return WrapExitError(ExitCommandError, "find failed", err)
			}
			for _, path := range found {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d files found\n", len(found))
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "suite manifest file (default: built-in suite)")

	return cmd
}

func findArgs(cmd *cobra.Command, args []string) error {
	if len(args) < 3 || (len(args)-3)%3 != 0 {
		return fmt.Errorf("expected <path> <keyword> <value> followed by [and|or <keyword> <value>] groups")
	}
	return nil
}
