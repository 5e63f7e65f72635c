package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jlevy/tbd/internal/config"
	"github.com/jlevy/tbd/internal/git"
	"github.com/jlevy/tbd/internal/identity"
	"github.com/jlevy/tbd/internal/mapping"
	"github.com/jlevy/tbd/internal/store"
	"github.com/jlevy/tbd/internal/syncbranch"
	"github.com/jlevy/tbd/internal/types"
)

// workspace bundles everything a command needs: settings, the git runner,
// and the data worktree.
type workspace struct {
	ctx    context.Context
	cfg    *config.Settings
	runner git.Runner
	root   string
	store  *store.Store
}

// openWorkspace locates the repository and data worktree and verifies the
// dataset format. Commands other than init go through here.
func openWorkspace() *workspace {
	w := prepareWorkspace()
	if err := config.CheckMeta(w.root); err != nil {
		fatal(err)
	}
	return w
}

// prepareWorkspace is openWorkspace without the format check; init uses it
// to set up a fresh dataset.
func prepareWorkspace() *workspace {
	ctx := context.Background()
	cwd, err := os.Getwd()
	if err != nil {
		fatal(err)
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		fatal(err)
	}
	runner := &git.CLI{}
	root, err := syncbranch.EnsureWorktree(ctx, runner, cwd, cfg.SyncBranch)
	if err != nil {
		fatalf("%v\nHint: tbd must run inside a git repository.", err)
	}
	return &workspace{
		ctx:    ctx,
		cfg:    cfg,
		runner: runner,
		root:   root,
		store:  store.New(root),
	}
}

func (w *workspace) mappingTable() *mapping.Table {
	t, err := mapping.Load(w.root)
	if err != nil {
		fatal(err)
	}
	return t
}

func (w *workspace) resolver() *identity.Resolver {
	return identity.NewResolver(w.cfg.Prefix, func() (identity.Mapping, error) {
		return mapping.Load(w.root)
	})
}

// resolve turns user input into an internal ID or exits.
func (w *workspace) resolve(input string) string {
	id, err := w.resolver().Resolve(input)
	if err != nil {
		fatal(err)
	}
	return id
}

// display renders an issue's external ID, falling back to the raw internal
// ID for unmapped records (doctor reports those).
func (w *workspace) display(table *mapping.Table, internalID string) string {
	if code, ok := table.Short(internalID); ok {
		return w.cfg.Prefix + "-" + code
	}
	return internalID
}

// indexPath is where the derived query cache lives: next to the hidden
// worktrees, never on the data branch.
func (w *workspace) indexPath() string {
	return filepath.Join(filepath.Dir(filepath.Dir(w.root)), "tbd-index.db")
}

// issueJSON is the JSON shape commands emit for one issue.
type issueJSON struct {
	ExternalID string `json:"external_id"`
	*types.Issue
}

func (w *workspace) printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(out))
}

func (w *workspace) issueJSON(table *mapping.Table, issue *types.Issue) issueJSON {
	return issueJSON{ExternalID: w.display(table, issue.ID), Issue: issue}
}
