package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jlevy/tbd/internal/attic"
	"github.com/jlevy/tbd/internal/types"
)

var showCmd = &cobra.Command{
	Use:   "show ISSUE",
	Short: "Show one issue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkspace()
		id := w.resolve(args[0])
		issue, err := w.store.Get(id)
		if err != nil {
			fatal(err)
		}
		table := w.mappingTable()

		if jsonOutput {
			w.printJSON(w.issueJSON(table, issue))
			return
		}

		bold := color.New(color.Bold).SprintFunc()
		fmt.Printf("%s %s\n", bold(w.display(table, id)), issue.Title)
		fmt.Printf("  Status:   %s\n", colorStatus(issue.Status))
		fmt.Printf("  Kind:     %s\n", issue.Kind)
		fmt.Printf("  Priority: %s\n", colorPriority(issue.Priority))
		if issue.Assignee != nil {
			fmt.Printf("  Assignee: %s\n", *issue.Assignee)
		}
		if len(issue.Labels) > 0 {
			fmt.Printf("  Labels:   %s\n", strings.Join(issue.Labels, ", "))
		}
		if issue.Parent != nil {
			fmt.Printf("  Parent:   %s\n", w.display(table, *issue.Parent))
		}
		for _, dep := range issue.Dependencies {
			fmt.Printf("  Blocks:   %s\n", w.display(table, dep.Target))
		}
		fmt.Printf("  Created:  %s\n", issue.CreatedAt.Local().Format(time.RFC1123))
		fmt.Printf("  Updated:  %s\n", issue.UpdatedAt.Local().Format(time.RFC1123))
		if issue.ClosedAt != nil {
			fmt.Printf("  Closed:   %s\n", issue.ClosedAt.Local().Format(time.RFC1123))
		}
		fmt.Printf("  Internal: %s (v%d)\n", issue.ID, issue.Version)

		if issue.Description != "" {
			fmt.Printf("\n%s\n", issue.Description)
		}
		if issue.Notes != "" {
			fmt.Printf("\nNotes:\n%s\n", issue.Notes)
		}

		entries, err := attic.List(w.root, id)
		if err == nil && len(entries) > 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("\n%s %d archived conflict value(s); see 'tbd attic list %s'\n",
				yellow("!"), len(entries), args[0])
		}
	},
}

func colorStatus(s types.Status) string {
	switch s {
	case types.StatusOpen:
		return color.GreenString(string(s))
	case types.StatusInProgress:
		return color.CyanString(string(s))
	case types.StatusBlocked:
		return color.RedString(string(s))
	case types.StatusDeferred:
		return color.YellowString(string(s))
	case types.StatusClosed:
		return color.New(color.Faint).Sprint(string(s))
	}
	return string(s)
}

func colorPriority(p types.Priority) string {
	label := fmt.Sprintf("P%d", p)
	switch p {
	case 0:
		return color.RedString(label)
	case 1:
		return color.YellowString(label)
	default:
		return label
	}
}

func init() {
	rootCmd.AddCommand(showCmd)
}
