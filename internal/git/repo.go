package git

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Repo is a set of git operations bound to one working directory.
type Repo struct {
	run Runner
	dir string
}

// NewRepo binds a runner to a directory.
func NewRepo(run Runner, dir string) *Repo {
	return &Repo{run: run, dir: dir}
}

// Dir returns the bound working directory.
func (r *Repo) Dir() string { return r.dir }

// At returns a Repo over the same runner bound to another directory.
func (r *Repo) At(dir string) *Repo {
	return &Repo{run: r.run, dir: dir}
}

// TopLevel returns the repository's working-tree root.
func (r *Repo) TopLevel(ctx context.Context) (string, error) {
	return r.run.Run(ctx, r.dir, "rev-parse", "--show-toplevel")
}

// CommonDir returns the shared .git directory, absolute.
func (r *Repo) CommonDir(ctx context.Context) (string, error) {
	out, err := r.run.Run(ctx, r.dir, "rev-parse", "--git-common-dir")
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(out) {
		out = filepath.Join(r.dir, out)
	}
	return filepath.Clean(out), nil
}

// HasRemote reports whether the named remote is configured.
func (r *Repo) HasRemote(ctx context.Context, name string) bool {
	_, err := r.run.Run(ctx, r.dir, "remote", "get-url", name)
	return err == nil
}

// BranchExists reports whether a local branch exists.
func (r *Repo) BranchExists(ctx context.Context, branch string) bool {
	_, err := r.run.Run(ctx, r.dir, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// RemoteBranchExists reports whether the remote-tracking ref exists locally.
func (r *Repo) RemoteBranchExists(ctx context.Context, remote, branch string) bool {
	_, err := r.run.Run(ctx, r.dir, "rev-parse", "--verify", "--quiet",
		fmt.Sprintf("refs/remotes/%s/%s", remote, branch))
	return err == nil
}

// EnsureBranch creates the branch from an empty root commit when missing.
// The data branch shares no history with the code branches.
func (r *Repo) EnsureBranch(ctx context.Context, branch string) error {
	if r.BranchExists(ctx, branch) {
		return nil
	}
	tree, err := r.run.Run(ctx, r.dir, "hash-object", "-t", "tree", "/dev/null")
	if err != nil {
		return fmt.Errorf("creating empty tree: %w", err)
	}
	commit, err := r.run.Run(ctx, r.dir, "commit-tree", tree, "-m", "tbd: initialize data branch")
	if err != nil {
		return fmt.Errorf("creating root commit: %w", err)
	}
	if _, err := r.run.Run(ctx, r.dir, "branch", branch, commit); err != nil {
		return fmt.Errorf("creating branch %s: %w", branch, err)
	}
	return nil
}

// AddWorktree checks the branch out into a linked worktree at path.
func (r *Repo) AddWorktree(ctx context.Context, path, branch string) error {
	_, err := r.run.Run(ctx, r.dir, "worktree", "add", path, branch)
	return err
}

// RemoveWorktree detaches a linked worktree.
func (r *Repo) RemoveWorktree(ctx context.Context, path string) error {
	_, err := r.run.Run(ctx, r.dir, "worktree", "remove", "--force", path)
	return err
}

// PruneWorktrees drops stale worktree registrations.
func (r *Repo) PruneWorktrees(ctx context.Context) error {
	_, err := r.run.Run(ctx, r.dir, "worktree", "prune")
	return err
}

// RevParse resolves a ref to a commit hash.
func (r *Repo) RevParse(ctx context.Context, ref string) (string, error) {
	return r.run.Run(ctx, r.dir, "rev-parse", "--verify", ref)
}

// StatusPorcelain returns machine-readable status output; empty means clean.
func (r *Repo) StatusPorcelain(ctx context.Context) (string, error) {
	return r.run.Run(ctx, r.dir, "status", "--porcelain")
}

// AddAll stages every change in the worktree.
func (r *Repo) AddAll(ctx context.Context) error {
	_, err := r.run.Run(ctx, r.dir, "add", "-A")
	return err
}

// Commit records staged changes. Completing an in-progress merge commit
// goes through here too.
func (r *Repo) Commit(ctx context.Context, message string) error {
	_, err := r.run.Run(ctx, r.dir, "commit", "-m", message)
	return err
}

// FetchBranch updates the remote-tracking ref for one branch.
func (r *Repo) FetchBranch(ctx context.Context, remote, branch string) error {
	_, err := r.run.Run(ctx, r.dir, "fetch", remote, branch)
	return err
}

// PushBranch publishes the branch, setting upstream on first push.
func (r *Repo) PushBranch(ctx context.Context, remote, branch string) error {
	_, err := r.run.Run(ctx, r.dir, "push", "--set-upstream", remote, branch)
	return err
}

// IsPushRejected reports whether an error is a non-fast-forward rejection,
// the retryable case where someone pushed between our fetch and push.
func IsPushRejected(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	out := cmdErr.Output
	return strings.Contains(out, "non-fast-forward") ||
		strings.Contains(out, "fetch first") ||
		strings.Contains(out, "[rejected]")
}

// MergeBase returns the best common ancestor of two refs.
func (r *Repo) MergeBase(ctx context.Context, a, b string) (string, error) {
	return r.run.Run(ctx, r.dir, "merge-base", a, b)
}

// MergeFFOnly fast-forwards to ref, failing if history has diverged.
func (r *Repo) MergeFFOnly(ctx context.Context, ref string) error {
	_, err := r.run.Run(ctx, r.dir, "merge", "--ff-only", ref)
	return err
}

// MergeOursNoCommit starts a merge commit with ref as second parent but
// keeps our tree and stops before committing. The caller overwrites files
// with field-merged content, stages, and commits to complete it.
func (r *Repo) MergeOursNoCommit(ctx context.Context, ref string) error {
	_, err := r.run.Run(ctx, r.dir, "merge", "--no-ff", "--no-commit", "-s", "ours", ref)
	return err
}

// AbortMerge abandons an in-progress merge.
func (r *Repo) AbortMerge(ctx context.Context) error {
	_, err := r.run.Run(ctx, r.dir, "merge", "--abort")
	return err
}

// ShowFile reads a file from a ref, byte-for-byte. The second return is
// false when the path does not exist at that ref.
func (r *Repo) ShowFile(ctx context.Context, ref, path string) ([]byte, bool, error) {
	if _, err := r.run.Run(ctx, r.dir, "cat-file", "-e", ref+":"+path); err != nil {
		return nil, false, nil
	}
	out, err := r.run.RunRaw(ctx, r.dir, "cat-file", "blob", ref+":"+path)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Change is one entry of a name-status diff.
type Change struct {
	Status byte // A, M, D, R
	Path   string
}

// DiffNameStatus lists paths that differ between two refs.
func (r *Repo) DiffNameStatus(ctx context.Context, from, to string) ([]Change, error) {
	out, err := r.run.Run(ctx, r.dir, "diff", "--name-status", from, to)
	if err != nil {
		return nil, err
	}
	var changes []Change
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 2 {
			continue
		}
		// Renames carry old and new paths; the new path is what matters.
		changes = append(changes, Change{Status: parts[0][0], Path: parts[len(parts)-1]})
	}
	return changes, nil
}
