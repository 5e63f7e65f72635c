// tbd is a git-native issue tracker. Issues live as plain files on a
// dedicated branch, checked out into a hidden worktree and synchronized
// through ordinary git operations.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jlevy/tbd/internal/types"
)

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "tbd",
	Short: "Git-native issue tracker",
	Long: `tbd tracks issues as plain files on a dedicated git branch.

Records live in a hidden worktree, so your checkout stays clean. Sync
runs entirely over git: commit, fetch, field-level merge, push. Nothing
is ever lost in a conflict; losing values land in the attic.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// fatal prints an error with an actionable hint where one exists, then
// exits non-zero.
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	switch {
	case errors.Is(err, types.ErrNotFound):
		fmt.Fprintln(os.Stderr, "Hint: run 'tbd list' to see known issues, or 'tbd init' to create a dataset.")
	case errors.Is(err, types.ErrIntegrity):
		fmt.Fprintln(os.Stderr, "Hint: run 'tbd doctor' to inspect the dataset.")
	case errors.Is(err, types.ErrSyncConflict):
		fmt.Fprintln(os.Stderr, "Hint: conflicting values are archived; run 'tbd attic list <issue>'.")
	}
	os.Exit(1)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
