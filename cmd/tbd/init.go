package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jlevy/tbd/internal/config"
	"github.com/jlevy/tbd/internal/git"
	"github.com/jlevy/tbd/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the tbd dataset in this repository",
	Long: `Creates the data branch with an empty root commit, checks it out into a
hidden worktree, and writes the format marker and a default config file.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		w := prepareWorkspace()

		if err := config.CheckMeta(w.root); err == nil {
			fmt.Printf("Dataset already initialized on branch %q.\n", w.cfg.SyncBranch)
			return
		}

		fmt.Printf("→ Initializing dataset on branch %q\n", w.cfg.SyncBranch)
		if err := config.WriteMeta(w.root); err != nil {
			fatal(err)
		}
		for _, dir := range []string{store.IssuesDir, "mappings", "attic/conflicts"} {
			if err := os.MkdirAll(filepath.Join(w.root, dir), 0o755); err != nil {
				fatal(err)
			}
		}
		if err := w.mappingTable().Save(w.root); err != nil {
			fatal(err)
		}

		repo := git.NewRepo(w.runner, w.root)
		if err := repo.AddAll(w.ctx); err != nil {
			fatal(err)
		}
		if err := repo.Commit(w.ctx, "tbd: initialize dataset"); err != nil {
			fatal(err)
		}

		cfgPath, err := config.WriteDefault(mustGetwd())
		if err != nil {
			fatal(err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Initialized tbd dataset\n", green("✓"))
		fmt.Printf("  Branch:   %s\n", w.cfg.SyncBranch)
		fmt.Printf("  Worktree: %s\n", w.root)
		fmt.Printf("  Config:   %s\n", cfgPath)
	},
}

func mustGetwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		fatal(err)
	}
	return cwd
}

func init() {
	rootCmd.AddCommand(initCmd)
}
