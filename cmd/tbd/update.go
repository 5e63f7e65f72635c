package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jlevy/tbd/internal/canonical"
	"github.com/jlevy/tbd/internal/types"
)

var (
	updateTitle        string
	updateStatus       string
	updateKind         string
	updatePriority     int
	updateAssignee     string
	updateDescription  string
	updateNotes        string
	updateParent       string
	updateAddLabels    []string
	updateRemoveLabels []string
)

var updateCmd = &cobra.Command{
	Use:   "update ISSUE",
	Short: "Update fields of an issue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkspace()
		id := w.resolve(args[0])
		issue, err := w.store.Get(id)
		if err != nil {
			fatal(err)
		}

		changed := false
		flags := cmd.Flags()

		if flags.Changed("title") {
			issue.Title = updateTitle
			changed = true
		}
		if flags.Changed("status") {
			status, err := types.ParseStatus(updateStatus)
			if err != nil {
				fatal(err)
			}
			applyStatus(issue, status)
			changed = true
		}
		if flags.Changed("kind") {
			kind, err := types.ParseKind(updateKind)
			if err != nil {
				fatal(err)
			}
			issue.Kind = kind
			changed = true
		}
		if flags.Changed("priority") {
			priority, err := types.ParsePriority(updatePriority)
			if err != nil {
				fatal(err)
			}
			issue.Priority = priority
			changed = true
		}
		if flags.Changed("assignee") {
			if updateAssignee == "" {
				issue.Assignee = nil
			} else {
				issue.Assignee = &updateAssignee
			}
			changed = true
		}
		if flags.Changed("description") {
			issue.Description = updateDescription
			changed = true
		}
		if flags.Changed("notes") {
			issue.Notes = updateNotes
			changed = true
		}
		if flags.Changed("parent") {
			if updateParent == "" {
				issue.Parent = nil
			} else {
				parent := w.resolve(updateParent)
				issue.Parent = &parent
			}
			changed = true
		}
		if len(updateAddLabels) > 0 {
			issue.Labels = canonical.SortedLabels(append(issue.Labels, updateAddLabels...))
			changed = true
		}
		if len(updateRemoveLabels) > 0 {
			drop := map[string]bool{}
			for _, l := range updateRemoveLabels {
				drop[l] = true
			}
			var kept []string
			for _, l := range issue.Labels {
				if !drop[l] {
					kept = append(kept, l)
				}
			}
			issue.Labels = kept
			changed = true
		}

		if !changed {
			fatalf("nothing to update; pass at least one field flag")
		}
		if err := w.store.Update(issue); err != nil {
			fatal(err)
		}

		table := w.mappingTable()
		if jsonOutput {
			w.printJSON(w.issueJSON(table, issue))
			return
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Updated %s (v%d)\n", green("✓"), w.display(table, id), issue.Version)
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateTitle, "title", "", "New title")
	updateCmd.Flags().StringVar(&updateStatus, "status", "", "New status (open, in_progress, blocked, deferred, closed)")
	updateCmd.Flags().StringVar(&updateKind, "kind", "", "New kind")
	updateCmd.Flags().IntVar(&updatePriority, "priority", 0, "New priority")
	updateCmd.Flags().StringVar(&updateAssignee, "assignee", "", "New assignee (empty clears)")
	updateCmd.Flags().StringVar(&updateDescription, "description", "", "New description")
	updateCmd.Flags().StringVar(&updateNotes, "notes", "", "New notes section")
	updateCmd.Flags().StringVar(&updateParent, "parent", "", "New parent issue (empty clears)")
	updateCmd.Flags().StringArrayVar(&updateAddLabels, "label", nil, "Add label (repeatable)")
	updateCmd.Flags().StringArrayVar(&updateRemoveLabels, "remove-label", nil, "Remove label (repeatable)")
	rootCmd.AddCommand(updateCmd)
}
