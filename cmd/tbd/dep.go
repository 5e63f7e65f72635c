package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jlevy/tbd/internal/canonical"
	"github.com/jlevy/tbd/internal/types"
)

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Manage dependency edges",
}

var depAddCmd = &cobra.Command{
	Use:   "add BLOCKER BLOCKED",
	Short: "Record that BLOCKER blocks BLOCKED",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkspace()
		blocker := w.resolve(args[0])
		blocked := w.resolve(args[1])
		if blocker == blocked {
			fatalf("an issue cannot block itself")
		}
		if _, err := w.store.Get(blocked); err != nil {
			fatal(err)
		}
		issue, err := w.store.Get(blocker)
		if err != nil {
			fatal(err)
		}
		if issue.Blocks(blocked) {
			fmt.Printf("%s already blocks %s\n", args[0], args[1])
			return
		}
		issue.Dependencies = canonical.SortedDependencies(append(issue.Dependencies,
			types.Dependency{Relation: types.RelationBlocks, Target: blocked}))
		if err := w.store.Update(issue); err != nil {
			fatal(err)
		}
		table := w.mappingTable()
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s %s now blocks %s\n", green("✓"), w.display(table, blocker), w.display(table, blocked))
	},
}

var depRemoveCmd = &cobra.Command{
	Use:   "remove BLOCKER BLOCKED",
	Short: "Remove a blocks edge",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		w := openWorkspace()
		blocker := w.resolve(args[0])
		blocked := w.resolve(args[1])
		issue, err := w.store.Get(blocker)
		if err != nil {
			fatal(err)
		}
		var kept []types.Dependency
		for _, dep := range issue.Dependencies {
			if dep.Relation == types.RelationBlocks && dep.Target == blocked {
				continue
			}
			kept = append(kept, dep)
		}
		if len(kept) == len(issue.Dependencies) {
			fatalf("%s does not block %s", args[0], args[1])
		}
		issue.Dependencies = kept
		if err := w.store.Update(issue); err != nil {
			fatal(err)
		}
		table := w.mappingTable()
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s %s no longer blocks %s\n", green("✓"), w.display(table, blocker), w.display(table, blocked))
	},
}

func init() {
	depCmd.AddCommand(depAddCmd)
	depCmd.AddCommand(depRemoveCmd)
	rootCmd.AddCommand(depCmd)
}
