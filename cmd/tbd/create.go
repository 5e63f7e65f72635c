package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jlevy/tbd/internal/canonical"
	"github.com/jlevy/tbd/internal/identity"
	"github.com/jlevy/tbd/internal/types"
)

var (
	createKind        string
	createPriority    int
	createLabels      []string
	createAssignee    string
	createDescription string
	createParent      string
)

var createCmd = &cobra.Command{
	Use:   "create TITLE",
	Short: "Create a new issue",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkspace()
		title := strings.Join(args, " ")

		kind, err := types.ParseKind(createKind)
		if err != nil {
			fatal(err)
		}
		priority, err := types.ParsePriority(createPriority)
		if err != nil {
			fatal(err)
		}

		gen := identity.NewGenerator()
		id, err := gen.NewInternalID()
		if err != nil {
			fatal(err)
		}

		now := time.Now().UTC()
		issue := &types.Issue{
			ID:          id,
			Title:       title,
			Status:      types.StatusOpen,
			Kind:        kind,
			Priority:    priority,
			Labels:      canonical.SortedLabels(createLabels),
			CreatedAt:   now,
			UpdatedAt:   now,
			Version:     1,
			Description: createDescription,
		}
		if createAssignee != "" {
			issue.Assignee = &createAssignee
		}
		if createParent != "" {
			parent := w.resolve(createParent)
			issue.Parent = &parent
		}

		table := w.mappingTable()
		code, err := identity.NewShortCode(table)
		if err != nil {
			fatal(err)
		}
		if err := table.Add(code, id); err != nil {
			fatal(err)
		}
		if err := w.store.Put(issue); err != nil {
			fatal(err)
		}
		if err := table.Save(w.root); err != nil {
			fatal(err)
		}

		if jsonOutput {
			w.printJSON(w.issueJSON(table, issue))
			return
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Created issue: %s\n", green("✓"), w.display(table, id))
		fmt.Printf("  Title: %s\n", issue.Title)
		fmt.Printf("  Priority: P%d\n", issue.Priority)
		fmt.Printf("  Status: %s\n", issue.Status)
	},
}

func init() {
	createCmd.Flags().StringVarP(&createKind, "kind", "k", "task", "Issue kind (bug, feature, task, epic, chore)")
	createCmd.Flags().IntVarP(&createPriority, "priority", "p", 2, "Priority 0 (urgent) to 4 (someday)")
	createCmd.Flags().StringArrayVarP(&createLabels, "label", "l", nil, "Label (repeatable)")
	createCmd.Flags().StringVarP(&createAssignee, "assignee", "a", "", "Assignee")
	createCmd.Flags().StringVarP(&createDescription, "description", "d", "", "Description")
	createCmd.Flags().StringVar(&createParent, "parent", "", "Parent issue (epic)")
	rootCmd.AddCommand(createCmd)
}
