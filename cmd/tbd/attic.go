package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jlevy/tbd/internal/attic"
)

var atticCmd = &cobra.Command{
	Use:   "attic",
	Short: "Inspect and restore values that lost a merge",
}

var atticListCmd = &cobra.Command{
	Use:   "list [ISSUE]",
	Short: "List archived conflict values",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkspace()

		var entries []*attic.Stored
		var err error
		if len(args) == 1 {
			entries, err = attic.List(w.root, w.resolve(args[0]))
		} else {
			entries, err = attic.ListAll(w.root)
		}
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			w.printJSON(entries)
			return
		}
		if len(entries) == 0 {
			fmt.Println("The attic is empty.")
			return
		}
		table := w.mappingTable()
		for _, e := range entries {
			fmt.Printf("%s  %s.%s  lost %v (kept %v, %s side won)\n",
				e.ArchivedAt.Local().Format(time.RFC3339),
				w.display(table, e.IssueID), e.Field,
				e.LostValue, e.WinnerValue, e.Winner)
			fmt.Printf("  restore with: tbd attic restore %s\n", e.Path)
		}
	},
}

var atticRestoreCmd = &cobra.Command{
	Use:   "restore ENTRY",
	Short: "Re-apply an archived value as a fresh edit",
	Long: `Takes the path of an attic entry (as printed by 'tbd attic list') and
writes its lost value back onto the live issue. The entry itself stays in
the attic.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkspace()
		issue, err := attic.Restore(w.store, args[0])
		if err != nil {
			fatal(err)
		}
		table := w.mappingTable()
		if jsonOutput {
			w.printJSON(w.issueJSON(table, issue))
			return
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Restored archived value onto %s (v%d)\n",
			green("✓"), w.display(table, issue.ID), issue.Version)
	},
}

func init() {
	atticCmd.AddCommand(atticListCmd)
	atticCmd.AddCommand(atticRestoreCmd)
	rootCmd.AddCommand(atticCmd)
}
