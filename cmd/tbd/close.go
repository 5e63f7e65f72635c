package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jlevy/tbd/internal/types"
)

var closeCmd = &cobra.Command{
	Use:   "close ISSUE...",
	Short: "Close one or more issues",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setStatus(args, types.StatusClosed, "Closed")
	},
}

var reopenCmd = &cobra.Command{
	Use:   "reopen ISSUE...",
	Short: "Reopen closed issues",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setStatus(args, types.StatusOpen, "Reopened")
	},
}

func setStatus(refs []string, status types.Status, verb string) {
	w := openWorkspace()
	table := w.mappingTable()
	green := color.New(color.FgGreen).SprintFunc()

	for _, ref := range refs {
		id := w.resolve(ref)
		issue, err := w.store.Get(id)
		if err != nil {
			fatal(err)
		}
		applyStatus(issue, status)
		if err := w.store.Update(issue); err != nil {
			fatal(err)
		}
		if jsonOutput {
			w.printJSON(w.issueJSON(table, issue))
			continue
		}
		fmt.Printf("%s %s %s: %s\n", green("✓"), verb, w.display(table, id), issue.Title)
	}
}

// applyStatus keeps closed_at consistent with the status transition.
func applyStatus(issue *types.Issue, status types.Status) {
	issue.Status = status
	if status == types.StatusClosed {
		if issue.ClosedAt == nil {
			t := time.Now().UTC()
			issue.ClosedAt = &t
		}
	} else {
		issue.ClosedAt = nil
	}
}

func init() {
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(reopenCmd)
}
