package syncbranch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jlevy/tbd/internal/attic"
	"github.com/jlevy/tbd/internal/debug"
	"github.com/jlevy/tbd/internal/git"
	"github.com/jlevy/tbd/internal/mapping"
	"github.com/jlevy/tbd/internal/merge"
	"github.com/jlevy/tbd/internal/store"
	"github.com/jlevy/tbd/internal/types"
)

// maxPushRetries bounds how often a rejected push triggers re-fetch,
// re-merge, and another attempt.
const maxPushRetries = 3

// Options tune one sync run.
type Options struct {
	NoPush bool
	DryRun bool
}

// Counts tallies record-level changes in one direction.
type Counts struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

// Failure is a per-record problem that did not abort the run.
type Failure struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
}

// Summary reports what one sync run did.
type Summary struct {
	AlreadyInSync     bool     `json:"already_in_sync"`
	Committed         bool     `json:"committed"`
	FastForwarded     bool     `json:"fast_forwarded"`
	Merged            bool     `json:"merged"`
	Pushed            bool     `json:"pushed"`
	Unavailable       bool     `json:"unavailable"`
	DryRun            bool     `json:"dry_run"`
	Sent              Counts   `json:"sent"`
	Received          Counts   `json:"received"`
	ConflictsResolved int      `json:"conflicts_resolved"`
	AtticPaths        []string `json:"attic_paths,omitempty"`
	Failures          []Failure `json:"failures,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
}

// Orchestrator drives the sync protocol inside the hidden worktree.
type Orchestrator struct {
	repo   *git.Repo
	root   string
	branch string
	remote string
	now    func() time.Time
}

// New builds an orchestrator over an existing data worktree.
func New(runner git.Runner, worktree, branch, remote string) *Orchestrator {
	return &Orchestrator{
		repo:   git.NewRepo(runner, worktree),
		root:   worktree,
		branch: branch,
		remote: remote,
		now:    time.Now,
	}
}

func (o *Orchestrator) remoteRef() string {
	return o.remote + "/" + o.branch
}

// Sync runs the full protocol: commit local changes, fetch, reconcile with
// the remote tip, and push. Without a reachable remote it degrades to a
// local commit and flags the summary unavailable.
func (o *Orchestrator) Sync(ctx context.Context, opts Options) (*Summary, error) {
	sum := &Summary{DryRun: opts.DryRun}

	status, err := o.repo.StatusPorcelain(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking worktree status: %w", err)
	}
	dirty := strings.TrimSpace(status) != ""

	if opts.DryRun {
		if dirty {
			sum.Sent = countPorcelain(status)
		}
		sum.AlreadyInSync = !dirty
		return sum, nil
	}

	if dirty {
		n := countPorcelainFiles(status)
		debug.Logf("sync: committing %d dirty files on %s", n, o.branch)
		if err := o.repo.AddAll(ctx); err != nil {
			return nil, fmt.Errorf("staging changes: %w", err)
		}
		if err := o.repo.Commit(ctx, fmt.Sprintf("tbd: sync %d files", n)); err != nil {
			return nil, fmt.Errorf("committing changes: %w", err)
		}
		sum.Committed = true
	}

	if !o.repo.HasRemote(ctx, o.remote) {
		sum.Unavailable = true
		sum.Warnings = append(sum.Warnings,
			fmt.Sprintf("no remote %q configured; changes stay local (%v)", o.remote, types.ErrSyncUnavailable))
		return sum, nil
	}

	if err := o.repo.FetchBranch(ctx, o.remote, o.branch); err != nil {
		if !isMissingRemoteRef(err) {
			sum.Unavailable = true
			sum.Warnings = append(sum.Warnings,
				fmt.Sprintf("fetch failed, changes stay local (%v): %v", types.ErrSyncUnavailable, err))
			return sum, nil
		}
		// Branch not on the remote yet; the push below publishes it.
	}

	if err := o.reconcile(ctx, sum); err != nil {
		return sum, err
	}
	if sum.AlreadyInSync || opts.NoPush {
		return sum, nil
	}
	if err := o.pushWithRetry(ctx, sum); err != nil {
		return sum, err
	}
	return sum, nil
}

// reconcile brings the local branch up to date with the fetched remote tip:
// no-op, fast-forward, or a field-level merge commit.
func (o *Orchestrator) reconcile(ctx context.Context, sum *Summary) error {
	localTip, err := o.repo.RevParse(ctx, "HEAD")
	if err != nil {
		return fmt.Errorf("resolving local tip: %w", err)
	}

	if !o.repo.RemoteBranchExists(ctx, o.remote, o.branch) {
		sum.Sent = Counts{New: o.countLocalIssues()}
		return nil
	}
	remoteTip, err := o.repo.RevParse(ctx, o.remoteRef())
	if err != nil {
		return fmt.Errorf("resolving remote tip: %w", err)
	}

	if localTip == remoteTip {
		sum.AlreadyInSync = !sum.Committed && !sum.Merged
		return nil
	}

	base, err := o.repo.MergeBase(ctx, localTip, remoteTip)
	if err != nil {
		return fmt.Errorf("finding merge base: %w", err)
	}

	switch base {
	case remoteTip:
		// Local is strictly ahead.
		changes, err := o.repo.DiffNameStatus(ctx, remoteTip, localTip)
		if err != nil {
			return err
		}
		sum.Sent = countIssueChanges(changes)
		return nil
	case localTip:
		debug.Logf("sync: fast-forwarding %s to %s", o.branch, remoteTip)
		if err := o.repo.MergeFFOnly(ctx, o.remoteRef()); err != nil {
			return fmt.Errorf("fast-forwarding: %w", err)
		}
		changes, err := o.repo.DiffNameStatus(ctx, localTip, remoteTip)
		if err != nil {
			return err
		}
		sum.Received = countIssueChanges(changes)
		sum.FastForwarded = true
		return nil
	default:
		if err := o.mergeDiverged(ctx, sum, base, localTip, remoteTip); err != nil {
			return err
		}
		changes, err := o.repo.DiffNameStatus(ctx, remoteTip, "HEAD")
		if err != nil {
			return err
		}
		sum.Sent = countIssueChanges(changes)
		return nil
	}
}

// mergeDiverged builds a merge commit whose tree is the field-level merge
// of both sides. git records the parents; the content decisions are ours.
func (o *Orchestrator) mergeDiverged(ctx context.Context, sum *Summary, base, localTip, remoteTip string) error {
	debug.Logf("sync: merging %s (base %s, local %s, remote %s)", o.branch, base, localTip, remoteTip)

	remoteChanges, err := o.repo.DiffNameStatus(ctx, base, remoteTip)
	if err != nil {
		return err
	}
	localChanges, err := o.repo.DiffNameStatus(ctx, base, localTip)
	if err != nil {
		return err
	}
	localChanged := make(map[string]bool, len(localChanges))
	for _, ch := range localChanges {
		localChanged[ch.Path] = true
	}

	if err := o.repo.MergeOursNoCommit(ctx, o.remoteRef()); err != nil {
		return fmt.Errorf("starting merge: %w", err)
	}

	st := store.New(o.root)
	for _, ch := range remoteChanges {
		switch {
		case isIssuePath(ch.Path):
			o.mergeIssueFile(ctx, sum, st, ch, base, remoteTip, localChanged[ch.Path])
		case ch.Path == mapping.FileName:
			o.mergeMapping(ctx, sum, remoteTip)
		default:
			// Attic entries, meta.yml: append-only or local-authoritative;
			// take the remote copy only where we did not touch it.
			if !localChanged[ch.Path] {
				o.takeRemoteFile(ctx, sum, ch, remoteTip)
			}
		}
	}

	if err := o.repo.AddAll(ctx); err != nil {
		o.abort(ctx)
		return fmt.Errorf("staging merge result: %w", err)
	}
	if err := o.repo.Commit(ctx, fmt.Sprintf("tbd: merge %s", o.remoteRef())); err != nil {
		o.abort(ctx)
		return fmt.Errorf("committing merge: %w", err)
	}
	sum.Merged = true
	return nil
}

func (o *Orchestrator) mergeIssueFile(ctx context.Context, sum *Summary, st *store.Store, ch git.Change, base, remoteTip string, changedLocally bool) {
	path := ch.Path
	fail := func(err error) {
		sum.Failures = append(sum.Failures, Failure{Path: path, Err: err})
	}

	remoteData, remoteOK, err := o.repo.ShowFile(ctx, remoteTip, path)
	if err != nil {
		fail(err)
		return
	}

	if !changedLocally {
		if !remoteOK {
			if err := os.Remove(filepath.Join(o.root, path)); err != nil && !errors.Is(err, os.ErrNotExist) {
				fail(err)
				return
			}
			sum.Received.Deleted++
			return
		}
		issue, err := store.Parse(remoteData)
		if err != nil {
			fail(fmt.Errorf("%w: remote record unreadable: %v", types.ErrSyncConflict, err))
			return
		}
		existed := st.Exists(issue.ID)
		if err := st.Put(issue); err != nil {
			fail(err)
			return
		}
		if existed {
			sum.Received.Updated++
		} else {
			sum.Received.New++
		}
		return
	}

	// Both sides touched the record.
	localData, localErr := os.ReadFile(filepath.Join(o.root, path))
	localOK := localErr == nil

	switch {
	case !remoteOK && !localOK:
		return
	case !remoteOK:
		// Remote deleted, local edited: the edit survives.
		return
	case !localOK:
		// Local deleted, remote edited: the edit survives.
		issue, err := store.Parse(remoteData)
		if err != nil {
			fail(fmt.Errorf("%w: remote record unreadable: %v", types.ErrSyncConflict, err))
			return
		}
		if err := st.Put(issue); err != nil {
			fail(err)
			return
		}
		sum.Received.New++
		return
	}

	localIssue, err := store.Parse(localData)
	if err != nil {
		fail(fmt.Errorf("%w: local record unreadable: %v", types.ErrSyncConflict, err))
		return
	}
	remoteIssue, err := store.Parse(remoteData)
	if err != nil {
		fail(fmt.Errorf("%w: remote record unreadable: %v", types.ErrSyncConflict, err))
		return
	}
	var baseIssue *types.Issue
	if baseData, ok, err := o.repo.ShowFile(ctx, base, path); err == nil && ok {
		baseIssue, _ = store.Parse(baseData)
	}

	res, err := merge.Issues(baseIssue, localIssue, remoteIssue)
	if err != nil {
		fail(fmt.Errorf("%w: %v", types.ErrSyncConflict, err))
		return
	}
	if err := st.Put(res.Issue); err != nil {
		fail(err)
		return
	}
	for _, c := range res.Conflicts {
		entry := attic.FromConflict(res.Issue.ID, c, o.now())
		atticPath, err := attic.Append(o.root, entry)
		if err != nil {
			fail(err)
			continue
		}
		sum.AtticPaths = append(sum.AtticPaths, atticPath)
		sum.ConflictsResolved++
	}
	sum.Received.Updated++
}

func (o *Orchestrator) mergeMapping(ctx context.Context, sum *Summary, remoteTip string) {
	fail := func(err error) {
		sum.Failures = append(sum.Failures, Failure{Path: mapping.FileName, Err: err})
	}
	local, err := mapping.Load(o.root)
	if err != nil {
		fail(err)
		return
	}
	remoteData, ok, err := o.repo.ShowFile(ctx, remoteTip, mapping.FileName)
	if err != nil {
		fail(err)
		return
	}
	if ok {
		remote, err := mapping.Parse(remoteData)
		if err != nil {
			fail(err)
			return
		}
		if err := local.Merge(remote); err != nil {
			fail(err)
			return
		}
	}
	if err := local.Save(o.root); err != nil {
		fail(err)
	}
}

func (o *Orchestrator) takeRemoteFile(ctx context.Context, sum *Summary, ch git.Change, remoteTip string) {
	path := filepath.Join(o.root, ch.Path)
	data, ok, err := o.repo.ShowFile(ctx, remoteTip, ch.Path)
	if err != nil {
		sum.Failures = append(sum.Failures, Failure{Path: ch.Path, Err: err})
		return
	}
	if !ok {
		_ = os.Remove(path)
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		sum.Failures = append(sum.Failures, Failure{Path: ch.Path, Err: err})
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		sum.Failures = append(sum.Failures, Failure{Path: ch.Path, Err: err})
	}
}

// pushWithRetry pushes the branch, and on a non-fast-forward rejection
// re-fetches, re-merges, and tries again a bounded number of times.
func (o *Orchestrator) pushWithRetry(ctx context.Context, sum *Summary) error {
	attempt := func() error {
		if err := o.repo.PushBranch(ctx, o.remote, o.branch); err != nil {
			if !git.IsPushRejected(err) {
				return backoff.Permanent(err)
			}
			debug.Logf("sync: push rejected, re-reconciling %s", o.branch)
			if err := o.repo.FetchBranch(ctx, o.remote, o.branch); err != nil {
				return backoff.Permanent(err)
			}
			if err := o.reconcile(ctx, sum); err != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxPushRetries), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		if git.IsPushRejected(err) {
			return fmt.Errorf("%w: pushing %s rejected after %d attempts: %v",
				types.ErrSyncConflict, o.branch, maxPushRetries+1, err)
		}
		return fmt.Errorf("pushing %s: %w", o.branch, err)
	}
	sum.Pushed = true
	return nil
}

func (o *Orchestrator) abort(ctx context.Context) {
	if err := o.repo.AbortMerge(ctx); err != nil {
		debug.Logf("sync: merge abort failed: %v", err)
	}
}

func (o *Orchestrator) countLocalIssues() int {
	entries, err := os.ReadDir(filepath.Join(o.root, store.IssuesDir))
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			n++
		}
	}
	return n
}

func isIssuePath(path string) bool {
	return strings.HasPrefix(path, store.IssuesDir+"/") && strings.HasSuffix(path, ".md")
}

func countIssueChanges(changes []git.Change) Counts {
	var c Counts
	for _, ch := range changes {
		if !isIssuePath(ch.Path) {
			continue
		}
		switch ch.Status {
		case 'A':
			c.New++
		case 'D':
			c.Deleted++
		default:
			c.Updated++
		}
	}
	return c
}

// countPorcelain tallies issue files from `status --porcelain` output. The
// runner trims leading whitespace, so the two status columns are parsed as a
// single field rather than by fixed offset.
func countPorcelain(status string) Counts {
	var c Counts
	for _, line := range strings.Split(status, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		code, path := fields[0], fields[len(fields)-1]
		if !isIssuePath(path) {
			continue
		}
		switch {
		case code == "??" || strings.ContainsRune(code, 'A'):
			c.New++
		case strings.ContainsRune(code, 'D'):
			c.Deleted++
		default:
			c.Updated++
		}
	}
	return c
}

// countPorcelainFiles counts every dirty path, issue file or not; it feeds
// the sync commit message.
func countPorcelainFiles(status string) int {
	n := 0
	for _, line := range strings.Split(status, "\n") {
		if len(strings.Fields(line)) >= 2 {
			n++
		}
	}
	return n
}

func isMissingRemoteRef(err error) bool {
	var cmdErr *git.CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	return strings.Contains(cmdErr.Output, "couldn't find remote ref")
}
