package syncbranch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jlevy/tbd/internal/attic"
	"github.com/jlevy/tbd/internal/git"
	"github.com/jlevy/tbd/internal/mapping"
	"github.com/jlevy/tbd/internal/store"
	"github.com/jlevy/tbd/internal/types"
)

// fakeRunner answers git invocations from a canned script keyed by the
// joined argument list. A key may carry a queue of responses for calls that
// must answer differently across attempts; unknown invocations fail the
// test immediately.
type fakeRunner struct {
	t         *testing.T
	responses map[string]response
	queued    map[string][]response
	calls     []string
}

type response struct {
	out string
	err error
}

func (f *fakeRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := f.RunRaw(ctx, dir, args...)
	return strings.TrimSpace(string(out)), err
}

func (f *fakeRunner) RunRaw(_ context.Context, _ string, args ...string) ([]byte, error) {
	key := strings.Join(args, " ")
	f.calls = append(f.calls, key)
	if q := f.queued[key]; len(q) > 0 {
		r := q[0]
		f.queued[key] = q[1:]
		return []byte(r.out), r.err
	}
	r, ok := f.responses[key]
	if !ok {
		f.t.Fatalf("unexpected git invocation: git %s", key)
	}
	return []byte(r.out), r.err
}

func (f *fakeRunner) called(key string) int {
	n := 0
	for _, c := range f.calls {
		if c == key {
			n++
		}
	}
	return n
}

func newOrchestrator(t *testing.T, responses map[string]response) (*Orchestrator, *fakeRunner) {
	t.Helper()
	run := &fakeRunner{t: t, responses: responses, queued: map[string][]response{}}
	o := New(run, t.TempDir(), "tbd-sync", "origin")
	o.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return o, run
}

const issueFile = "issues/1aaaaaaaaaaaaaaaaaaaaaaaaa.md"

func rejectedPush() response {
	return response{err: &git.CommandError{
		Args:   []string{"push", "--set-upstream", "origin", "tbd-sync"},
		Err:    errors.New("exit status 1"),
		Output: "! [rejected] tbd-sync -> tbd-sync (non-fast-forward)",
	}}
}

func TestSyncAlreadyInSyncIsIdempotent(t *testing.T) {
	o, _ := newOrchestrator(t, map[string]response{
		"status --porcelain":                                     {},
		"remote get-url origin":                                  {out: "git@example.com:acme/repo.git"},
		"fetch origin tbd-sync":                                  {},
		"rev-parse --verify HEAD":                                {out: "aaa111"},
		"rev-parse --verify --quiet refs/remotes/origin/tbd-sync": {},
		"rev-parse --verify origin/tbd-sync":                     {out: "aaa111"},
	})

	for i := 0; i < 2; i++ {
		sum, err := o.Sync(context.Background(), Options{})
		if err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
		if !sum.AlreadyInSync {
			t.Errorf("run %d: AlreadyInSync = false, want true", i+1)
		}
		if sum.Committed || sum.Merged || sum.Pushed {
			t.Errorf("run %d: summary reports work on a no-op: %+v", i+1, sum)
		}
	}
}

func TestSyncCommitsDirtyWorktreeAndPushes(t *testing.T) {
	o, run := newOrchestrator(t, map[string]response{
		"status --porcelain":                                     {out: " M " + issueFile},
		"add -A":                                                 {},
		"commit -m tbd: sync 1 files":                            {},
		"remote get-url origin":                                  {out: "git@example.com:acme/repo.git"},
		"fetch origin tbd-sync":                                  {},
		"rev-parse --verify HEAD":                                {out: "bbb222"},
		"rev-parse --verify --quiet refs/remotes/origin/tbd-sync": {},
		"rev-parse --verify origin/tbd-sync":                     {out: "aaa111"},
		"merge-base bbb222 aaa111":                               {out: "aaa111"},
		"diff --name-status aaa111 bbb222":                       {out: "M\t" + issueFile},
		"push --set-upstream origin tbd-sync":                    {},
	})

	sum, err := o.Sync(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Committed {
		t.Error("Committed = false, want true")
	}
	if !sum.Pushed {
		t.Error("Pushed = false, want true")
	}
	if sum.Sent.Updated != 1 {
		t.Errorf("Sent.Updated = %d, want 1", sum.Sent.Updated)
	}
	if run.called("commit -m tbd: sync 1 files") != 1 {
		t.Error("local changes were not committed with the file count")
	}
}

func TestSyncCommitMessageCountsAllFiles(t *testing.T) {
	o, run := newOrchestrator(t, map[string]response{
		"status --porcelain":          {out: " M " + issueFile + "\n M mappings/ids.yml\n"},
		"add -A":                      {},
		"commit -m tbd: sync 2 files": {},
		"remote get-url origin":       {err: errors.New("exit status 2")},
	})

	if _, err := o.Sync(context.Background(), Options{}); err != nil {
		t.Fatal(err)
	}
	if run.called("commit -m tbd: sync 2 files") != 1 {
		t.Errorf("commit message did not count both dirty files; calls: %v", run.calls)
	}
}

func TestSyncNoPushSkipsPush(t *testing.T) {
	o, run := newOrchestrator(t, map[string]response{
		"status --porcelain":                                     {out: " M " + issueFile},
		"add -A":                                                 {},
		"commit -m tbd: sync 1 files":                            {},
		"remote get-url origin":                                  {out: "git@example.com:acme/repo.git"},
		"fetch origin tbd-sync":                                  {},
		"rev-parse --verify HEAD":                                {out: "bbb222"},
		"rev-parse --verify --quiet refs/remotes/origin/tbd-sync": {},
		"rev-parse --verify origin/tbd-sync":                     {out: "aaa111"},
		"merge-base bbb222 aaa111":                               {out: "aaa111"},
		"diff --name-status aaa111 bbb222":                       {out: "M\t" + issueFile},
	})

	sum, err := o.Sync(context.Background(), Options{NoPush: true})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Pushed {
		t.Error("Pushed = true with NoPush set")
	}
	if run.called("push --set-upstream origin tbd-sync") != 0 {
		t.Error("push was invoked despite NoPush")
	}
}

func TestSyncWithoutRemoteStaysLocal(t *testing.T) {
	o, _ := newOrchestrator(t, map[string]response{
		"status --porcelain":          {out: " M " + issueFile},
		"add -A":                      {},
		"commit -m tbd: sync 1 files": {},
		"remote get-url origin":       {err: errors.New("exit status 2")},
	})

	sum, err := o.Sync(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Committed {
		t.Error("Committed = false, want true")
	}
	if !sum.Unavailable {
		t.Error("Unavailable = false, want true")
	}
	if len(sum.Warnings) != 1 || !strings.Contains(sum.Warnings[0], types.ErrSyncUnavailable.Error()) {
		t.Errorf("warnings = %v, want one mentioning sync unavailability", sum.Warnings)
	}
}

func TestSyncFetchFailureStaysLocal(t *testing.T) {
	o, _ := newOrchestrator(t, map[string]response{
		"status --porcelain":    {},
		"remote get-url origin": {out: "git@example.com:acme/repo.git"},
		"fetch origin tbd-sync": {err: &git.CommandError{
			Args:   []string{"fetch", "origin", "tbd-sync"},
			Err:    errors.New("exit status 128"),
			Output: "fatal: unable to access 'https://example.com/': Could not resolve host",
		}},
	})

	sum, err := o.Sync(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Unavailable {
		t.Error("Unavailable = false, want true")
	}
}

func TestSyncFirstPushPublishesBranch(t *testing.T) {
	// The remote exists but the data branch does not yet: fetch reports a
	// missing ref and the run proceeds straight to the publishing push.
	o, _ := newOrchestrator(t, map[string]response{
		"status --porcelain":    {},
		"remote get-url origin": {out: "git@example.com:acme/repo.git"},
		"fetch origin tbd-sync": {err: &git.CommandError{
			Args:   []string{"fetch", "origin", "tbd-sync"},
			Err:    errors.New("exit status 128"),
			Output: "fatal: couldn't find remote ref tbd-sync",
		}},
		"rev-parse --verify HEAD": {out: "aaa111"},
		"rev-parse --verify --quiet refs/remotes/origin/tbd-sync": {
			err: errors.New("exit status 1"),
		},
		"push --set-upstream origin tbd-sync": {},
	})

	sum, err := o.Sync(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Pushed {
		t.Error("Pushed = false, want true")
	}
	if sum.AlreadyInSync {
		t.Error("AlreadyInSync = true on a first publish")
	}
}

func TestSyncFastForwardsWhenBehind(t *testing.T) {
	o, _ := newOrchestrator(t, map[string]response{
		"status --porcelain":                                     {},
		"remote get-url origin":                                  {out: "git@example.com:acme/repo.git"},
		"fetch origin tbd-sync":                                  {},
		"rev-parse --verify HEAD":                                {out: "aaa111"},
		"rev-parse --verify --quiet refs/remotes/origin/tbd-sync": {},
		"rev-parse --verify origin/tbd-sync":                     {out: "bbb222"},
		"merge-base aaa111 bbb222":                               {out: "aaa111"},
		"merge --ff-only origin/tbd-sync":                        {},
		"diff --name-status aaa111 bbb222":                       {out: "A\t" + issueFile},
		"push --set-upstream origin tbd-sync":                    {},
	})

	sum, err := o.Sync(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !sum.FastForwarded {
		t.Error("FastForwarded = false, want true")
	}
	if sum.Received.New != 1 {
		t.Errorf("Received.New = %d, want 1", sum.Received.New)
	}
}

func TestSyncMergesDivergedHistories(t *testing.T) {
	baseTime := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	id := "1aaaaaaaaaaaaaaaaaaaaaaaaa"
	path := "issues/" + id + ".md"

	record := func(title string, version int, updated time.Time) *types.Issue {
		return &types.Issue{
			ID: id, Title: title, Status: types.StatusOpen, Kind: types.KindTask,
			Priority: 2, CreatedAt: baseTime, UpdatedAt: updated, Version: version,
		}
	}
	base := record("Base title", 1, baseTime)
	local := record("Local title", 2, baseTime.Add(2*time.Minute))
	remote := record("Remote title", 2, baseTime.Add(time.Minute))

	remoteID := "1bbbbbbbbbbbbbbbbbbbbbbbbb"

	o, run := newOrchestrator(t, map[string]response{
		"status --porcelain":                                     {},
		"remote get-url origin":                                  {out: "git@example.com:acme/repo.git"},
		"fetch origin tbd-sync":                                  {},
		"rev-parse --verify HEAD":                                {out: "bbb222"},
		"rev-parse --verify --quiet refs/remotes/origin/tbd-sync": {},
		"rev-parse --verify origin/tbd-sync":                     {out: "ccc333"},
		"merge-base bbb222 ccc333":                               {out: "aaa111"},
		"diff --name-status aaa111 ccc333":                       {out: "M\t" + path + "\nM\tmappings/ids.yml"},
		"diff --name-status aaa111 bbb222":                       {out: "M\t" + path},
		"merge --no-ff --no-commit -s ours origin/tbd-sync":      {},
		"cat-file -e ccc333:" + path:                             {},
		"cat-file blob ccc333:" + path:                           {out: string(store.Serialize(remote))},
		"cat-file -e aaa111:" + path:                             {},
		"cat-file blob aaa111:" + path:                           {out: string(store.Serialize(base))},
		"cat-file -e ccc333:mappings/ids.yml":                    {},
		"cat-file blob ccc333:mappings/ids.yml":                  {out: "z9pl: " + remoteID + "\n"},
		"add -A":                                                 {},
		"commit -m tbd: merge origin/tbd-sync":                   {},
		"diff --name-status ccc333 HEAD":                         {out: "M\t" + path},
		"push --set-upstream origin tbd-sync":                    {},
	})

	st := store.New(o.root)
	if err := st.Put(local); err != nil {
		t.Fatal(err)
	}
	table := mapping.New()
	if err := table.Add("x7kq", id); err != nil {
		t.Fatal(err)
	}
	if err := table.Save(o.root); err != nil {
		t.Fatal(err)
	}

	sum, err := o.Sync(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Merged || !sum.Pushed {
		t.Errorf("Merged=%v Pushed=%v, want both", sum.Merged, sum.Pushed)
	}
	if len(sum.Failures) != 0 {
		t.Fatalf("failures: %+v", sum.Failures)
	}
	if sum.ConflictsResolved != 1 || len(sum.AtticPaths) != 1 {
		t.Errorf("ConflictsResolved=%d AtticPaths=%v, want exactly one archived conflict",
			sum.ConflictsResolved, sum.AtticPaths)
	}
	if sum.Received.Updated != 1 {
		t.Errorf("Received.Updated = %d, want 1", sum.Received.Updated)
	}

	merged, err := st.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if merged.Title != "Local title" {
		t.Errorf("merged title = %q, want the newer local edit to win", merged.Title)
	}
	if merged.Version != 3 {
		t.Errorf("merged version = %d, want 3", merged.Version)
	}

	stored, err := attic.Read(sum.AtticPaths[0])
	if err != nil {
		t.Fatal(err)
	}
	if stored.Field != "title" || stored.LostValue != "Remote title" {
		t.Errorf("attic entry = %+v, want the losing remote title", stored.Entry)
	}

	after, err := mapping.Load(o.root)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := after.Internal("x7kq"); !ok {
		t.Error("local mapping entry lost during merge")
	}
	if got, ok := after.Internal("z9pl"); !ok || got != remoteID {
		t.Errorf("remote mapping entry not unioned: got %q, %v", got, ok)
	}

	if run.called("merge --no-ff --no-commit -s ours origin/tbd-sync") != 1 {
		t.Error("diverged histories did not go through the ours-merge")
	}
}

func TestSyncRetriesRejectedPush(t *testing.T) {
	o, run := newOrchestrator(t, map[string]response{
		"status --porcelain":                                     {out: " M " + issueFile},
		"add -A":                                                 {},
		"commit -m tbd: sync 1 files":                            {},
		"remote get-url origin":                                  {out: "git@example.com:acme/repo.git"},
		"fetch origin tbd-sync":                                  {},
		"rev-parse --verify HEAD":                                {out: "bbb222"},
		"rev-parse --verify --quiet refs/remotes/origin/tbd-sync": {},
		"merge-base bbb222 aaa111":                               {out: "aaa111"},
		"diff --name-status aaa111 bbb222":                       {out: "M\t" + issueFile},
	})
	// First push loses the race; the re-fetch finds the remote already at
	// our tip and the second push lands.
	run.queued["rev-parse --verify origin/tbd-sync"] = []response{{out: "aaa111"}, {out: "bbb222"}}
	run.queued["push --set-upstream origin tbd-sync"] = []response{rejectedPush(), {}}

	sum, err := o.Sync(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Pushed {
		t.Error("Pushed = false after a successful retry")
	}
	if got := run.called("push --set-upstream origin tbd-sync"); got != 2 {
		t.Errorf("push invoked %d times, want 2", got)
	}
}

func TestSyncExhaustedPushRetriesIsConflict(t *testing.T) {
	o, _ := newOrchestrator(t, map[string]response{
		"status --porcelain":                                     {},
		"remote get-url origin":                                  {out: "git@example.com:acme/repo.git"},
		"fetch origin tbd-sync":                                  {},
		"rev-parse --verify HEAD":                                {out: "bbb222"},
		"rev-parse --verify --quiet refs/remotes/origin/tbd-sync": {},
		"rev-parse --verify origin/tbd-sync":                     {out: "aaa111"},
		"merge-base bbb222 aaa111":                               {out: "aaa111"},
		"diff --name-status aaa111 bbb222":                       {out: "M\t" + issueFile},
		"push --set-upstream origin tbd-sync":                    rejectedPush(),
	})

	_, err := o.Sync(context.Background(), Options{})
	if err == nil {
		t.Fatal("Sync succeeded with every push rejected")
	}
	if !errors.Is(err, types.ErrSyncConflict) {
		t.Errorf("err = %v, want ErrSyncConflict after retries run out", err)
	}
}

func TestSyncDryRunTouchesNothing(t *testing.T) {
	o, run := newOrchestrator(t, map[string]response{
		"status --porcelain": {out: "?? " + issueFile + "\n M issues/2aaaaaaaaaaaaaaaaaaaaaaaaa.md"},
	})

	sum, err := o.Sync(context.Background(), Options{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if !sum.DryRun {
		t.Error("DryRun = false, want true")
	}
	if sum.Sent.New != 1 || sum.Sent.Updated != 1 {
		t.Errorf("Sent = %+v, want one new and one updated", sum.Sent)
	}
	if len(run.calls) != 1 {
		t.Errorf("dry run issued %d git commands, want just the status check: %v", len(run.calls), run.calls)
	}
}

func TestCountPorcelainSurvivesTrimmedStatus(t *testing.T) {
	// The runner trims stdout, so the first line loses its leading status
	// column padding. Counting must not depend on fixed offsets.
	status := strings.TrimSpace(
		" M " + issueFile + "\n" +
			" D issues/2aaaaaaaaaaaaaaaaaaaaaaaaa.md\n" +
			"?? issues/3aaaaaaaaaaaaaaaaaaaaaaaaa.md\n")
	got := countPorcelain(status)
	want := Counts{New: 1, Updated: 1, Deleted: 1}
	if got != want {
		t.Errorf("countPorcelain = %+v, want %+v", got, want)
	}
	if n := countPorcelainFiles(status); n != 3 {
		t.Errorf("countPorcelainFiles = %d, want 3", n)
	}
}

func TestTakeRemoteFilePreservesBytes(t *testing.T) {
	content := "format: tbd\nformat_version: v1.0.0" // no trailing newline
	o, _ := newOrchestrator(t, map[string]response{
		"cat-file -e ccc333:meta.yml":   {},
		"cat-file blob ccc333:meta.yml": {out: content},
	})

	sum := &Summary{}
	o.takeRemoteFile(context.Background(), sum, git.Change{Status: 'M', Path: "meta.yml"}, "ccc333")
	if len(sum.Failures) != 0 {
		t.Fatalf("failures: %+v", sum.Failures)
	}
	data, err := os.ReadFile(filepath.Join(o.root, "meta.yml"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != content {
		t.Errorf("file = %q, want the remote blob byte-for-byte %q", data, content)
	}
}
