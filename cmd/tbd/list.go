package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jlevy/tbd/internal/debug"
	"github.com/jlevy/tbd/internal/index"
	"github.com/jlevy/tbd/internal/types"
)

var (
	listStatus   string
	listKind     string
	listAssignee string
	listLabel    string
	listPriority int
	listAll      bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List issues",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkspace()
		issues, problems, err := w.store.List()
		if err != nil {
			fatal(err)
		}
		for _, p := range problems {
			fmt.Fprintf(os.Stderr, "Warning: skipping %s: %v\n", p.Path, p.Err)
		}

		filter := index.Filter{Priority: -1}
		if cmd.Flags().Changed("status") {
			status, err := types.ParseStatus(listStatus)
			if err != nil {
				fatal(err)
			}
			filter.Status = status
		}
		if listKind != "" {
			kind, err := types.ParseKind(listKind)
			if err != nil {
				fatal(err)
			}
			filter.Kind = kind
		}
		if cmd.Flags().Changed("priority") {
			priority, err := types.ParsePriority(listPriority)
			if err != nil {
				fatal(err)
			}
			filter.Priority = int(priority)
		}
		filter.Assignee = listAssignee
		filter.Label = listLabel

		selected := queryIssues(w, issues, filter)
		if !listAll && filter.Status == "" {
			var open []*types.Issue
			for _, issue := range selected {
				if issue.Status != types.StatusClosed {
					open = append(open, issue)
				}
			}
			selected = open
		}

		table := w.mappingTable()
		if jsonOutput {
			out := make([]issueJSON, 0, len(selected))
			for _, issue := range selected {
				out = append(out, w.issueJSON(table, issue))
			}
			w.printJSON(out)
			return
		}
		if len(selected) == 0 {
			fmt.Println("No matching issues.")
			return
		}
		for _, issue := range selected {
			fmt.Printf("%-12s %s %-12s %-8s %s\n",
				w.display(table, issue.ID),
				colorPriority(issue.Priority),
				colorStatus(issue.Status),
				issue.Kind,
				issue.Title)
		}
	},
}

// queryIssues answers the filter through the derived cache, rebuilding it
// when the dataset changed underneath. A cache failure falls back to an
// in-memory scan; the cache is never load-bearing.
func queryIssues(w *workspace, issues []*types.Issue, filter index.Filter) []*types.Issue {
	byID := make(map[string]*types.Issue, len(issues))
	for _, issue := range issues {
		byID[issue.ID] = issue
	}

	idx, err := index.Open(w.indexPath())
	if err != nil {
		debug.Logf("list: index unavailable, scanning in memory: %v", err)
		return filterInMemory(issues, filter)
	}
	defer idx.Close()

	fp := index.Fingerprint(issues)
	if !idx.Fresh(fp) {
		if err := idx.Rebuild(issues, fp); err != nil {
			debug.Logf("list: index rebuild failed, scanning in memory: %v", err)
			return filterInMemory(issues, filter)
		}
	}
	ids, err := idx.IDs(filter)
	if err != nil {
		debug.Logf("list: index query failed, scanning in memory: %v", err)
		return filterInMemory(issues, filter)
	}

	out := make([]*types.Issue, 0, len(ids))
	for _, id := range ids {
		if issue, ok := byID[id]; ok {
			out = append(out, issue)
		}
	}
	return out
}

func filterInMemory(issues []*types.Issue, f index.Filter) []*types.Issue {
	var out []*types.Issue
	for _, issue := range issues {
		if f.Status != "" && issue.Status != f.Status {
			continue
		}
		if f.Kind != "" && issue.Kind != f.Kind {
			continue
		}
		if f.Assignee != "" && (issue.Assignee == nil || *issue.Assignee != f.Assignee) {
			continue
		}
		if f.Priority >= 0 && int(issue.Priority) != f.Priority {
			continue
		}
		if f.Label != "" {
			found := false
			for _, l := range issue.Labels {
				if l == f.Label {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, issue)
	}
	return out
}

func init() {
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "Filter by status")
	listCmd.Flags().StringVarP(&listKind, "kind", "k", "", "Filter by kind")
	listCmd.Flags().StringVarP(&listAssignee, "assignee", "a", "", "Filter by assignee")
	listCmd.Flags().StringVarP(&listLabel, "label", "l", "", "Filter by label")
	listCmd.Flags().IntVarP(&listPriority, "priority", "p", -1, "Filter by priority")
	listCmd.Flags().BoolVar(&listAll, "all", false, "Include closed issues")
	rootCmd.AddCommand(listCmd)
}
