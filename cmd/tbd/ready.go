package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "List open issues nothing is blocking",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkspace()
		issues, err := w.store.Ready()
		if err != nil {
			fatal(err)
		}
		table := w.mappingTable()

		if jsonOutput {
			out := make([]issueJSON, 0, len(issues))
			for _, issue := range issues {
				out = append(out, w.issueJSON(table, issue))
			}
			w.printJSON(out)
			return
		}
		if len(issues) == 0 {
			fmt.Println("Nothing is ready to work on.")
			return
		}
		for _, issue := range issues {
			fmt.Printf("%-12s %s %-8s %s\n",
				w.display(table, issue.ID),
				colorPriority(issue.Priority),
				issue.Kind,
				issue.Title)
		}
	},
}

func init() {
	rootCmd.AddCommand(readyCmd)
}
