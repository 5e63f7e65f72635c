package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jlevy/tbd/internal/syncbranch"
)

var (
	syncNoPush bool
	syncDryRun bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the data branch with its remote",
	Long: `Commits local changes, fetches the remote data branch, reconciles the two
histories with a field-level merge, and pushes. Conflicting values that
lose the merge are archived in the attic, never discarded.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkspace()
		orch := syncbranch.New(w.runner, w.root, w.cfg.SyncBranch, w.cfg.Remote)

		if !jsonOutput && !syncDryRun {
			fmt.Printf("→ Syncing %s with %s\n", w.cfg.SyncBranch, w.cfg.Remote)
		}
		sum, err := orch.Sync(w.ctx, syncbranch.Options{NoPush: syncNoPush, DryRun: syncDryRun})
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			w.printJSON(sum)
			if len(sum.Failures) > 0 {
				os.Exit(1)
			}
			return
		}
		printSummary(sum)
	},
}

func printSummary(sum *syncbranch.Summary) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	if sum.DryRun {
		if sum.AlreadyInSync {
			fmt.Println("Dry run: nothing to commit.")
		} else {
			fmt.Printf("Dry run: would commit %d new, %d updated, %d deleted issue(s).\n",
				sum.Sent.New, sum.Sent.Updated, sum.Sent.Deleted)
		}
		return
	}

	if sum.AlreadyInSync {
		fmt.Printf("%s Already in sync\n", green("✓"))
		return
	}
	if sum.Committed {
		fmt.Printf("  committed local changes\n")
	}
	if sum.Sent != (syncbranch.Counts{}) {
		fmt.Printf("  sent: %d new, %d updated, %d deleted\n", sum.Sent.New, sum.Sent.Updated, sum.Sent.Deleted)
	}
	if sum.Received != (syncbranch.Counts{}) {
		fmt.Printf("  received: %d new, %d updated, %d deleted\n", sum.Received.New, sum.Received.Updated, sum.Received.Deleted)
	}
	if sum.ConflictsResolved > 0 {
		fmt.Printf("  %s resolved %d conflict(s); losing values archived in the attic\n",
			yellow("!"), sum.ConflictsResolved)
	}
	for _, warning := range sum.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}
	for _, failure := range sum.Failures {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", failure.Path, failure.Err)
	}

	switch {
	case len(sum.Failures) > 0:
		os.Exit(1)
	case sum.Pushed:
		fmt.Printf("%s Synced\n", green("✓"))
	case sum.Unavailable:
		fmt.Printf("%s Committed locally (remote unavailable)\n", green("✓"))
	default:
		fmt.Printf("%s Done (push skipped)\n", green("✓"))
	}
}

func init() {
	syncCmd.Flags().BoolVar(&syncNoPush, "no-push", false, "Commit and merge but do not push")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Report pending changes without touching anything")
	rootCmd.AddCommand(syncCmd)
}
