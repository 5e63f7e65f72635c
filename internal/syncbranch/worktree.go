// Package syncbranch keeps the data branch in step with its remote. All
// file operations happen in a hidden worktree under the repository's git
// dir, so the user's checkout never sees the data branch.
package syncbranch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jlevy/tbd/internal/git"
)

// WorktreesDir is the directory under the git common dir holding hidden
// data-branch checkouts.
const WorktreesDir = "tbd-worktrees"

// WorktreePath returns where the branch's hidden worktree lives for the
// repository containing startDir.
func WorktreePath(ctx context.Context, runner git.Runner, startDir, branch string) (string, error) {
	common, err := git.NewRepo(runner, startDir).CommonDir(ctx)
	if err != nil {
		return "", fmt.Errorf("locating git dir: %w", err)
	}
	return filepath.Join(common, WorktreesDir, branch), nil
}

// EnsureWorktree creates the data branch (as an empty-rooted orphan) and
// its hidden worktree if either is missing, returning the worktree path.
func EnsureWorktree(ctx context.Context, runner git.Runner, startDir, branch string) (string, error) {
	path, err := WorktreePath(ctx, runner, startDir, branch)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(filepath.Join(path, ".git")); err == nil {
		return path, nil
	}

	repo := git.NewRepo(runner, startDir)
	if err := repo.EnsureBranch(ctx, branch); err != nil {
		return "", err
	}
	// A stale registration from a deleted worktree blocks re-adding.
	_ = repo.PruneWorktrees(ctx)
	if err := repo.AddWorktree(ctx, path, branch); err != nil {
		return "", fmt.Errorf("creating worktree for %s: %w", branch, err)
	}
	return path, nil
}
