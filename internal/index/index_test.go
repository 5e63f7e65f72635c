package index

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jlevy/tbd/internal/types"
)

func fixture() []*types.Issue {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	alice := "alice"
	closed := now.Add(time.Hour)
	return []*types.Issue{
		{
			ID: "1aaaaaaaaaaaaaaaaaaaaaaaaa", Title: "Open bug", Status: types.StatusOpen,
			Kind: types.KindBug, Priority: 1, Assignee: &alice,
			Labels:    []string{"backend", "urgent"},
			CreatedAt: now, UpdatedAt: now, Version: 1,
		},
		{
			ID: "1bbbbbbbbbbbbbbbbbbbbbbbbb", Title: "Closed task", Status: types.StatusClosed,
			Kind: types.KindTask, Priority: 2, ClosedAt: &closed,
			CreatedAt: now, UpdatedAt: closed, Version: 2,
			Dependencies: []types.Dependency{
				{Relation: types.RelationBlocks, Target: "1aaaaaaaaaaaaaaaaaaaaaaaaa"},
			},
		},
		{
			ID: "1ccccccccccccccccccccccccc", Title: "Open feature", Status: types.StatusOpen,
			Kind: types.KindFeature, Priority: 2,
			Labels:    []string{"backend"},
			CreatedAt: now, UpdatedAt: now, Version: 1,
		},
	}
}

func openIndex(t *testing.T) *Index {
	t.Helper()
	x, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { x.Close() })
	return x
}

func anyFilter() Filter { return Filter{Priority: -1} }

func TestRebuildAndQuery(t *testing.T) {
	x := openIndex(t)
	issues := fixture()
	fp := Fingerprint(issues)

	if x.Fresh(fp) {
		t.Fatal("empty index claims to be fresh")
	}
	if err := x.Rebuild(issues, fp); err != nil {
		t.Fatal(err)
	}
	if !x.Fresh(fp) {
		t.Fatal("rebuilt index not fresh for its own fingerprint")
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", anyFilter(), []string{
			"1aaaaaaaaaaaaaaaaaaaaaaaaa", "1bbbbbbbbbbbbbbbbbbbbbbbbb", "1ccccccccccccccccccccccccc",
		}},
		{"open", func() Filter { f := anyFilter(); f.Status = types.StatusOpen; return f }(), []string{
			"1aaaaaaaaaaaaaaaaaaaaaaaaa", "1ccccccccccccccccccccccccc",
		}},
		{"by kind", func() Filter { f := anyFilter(); f.Kind = types.KindBug; return f }(), []string{
			"1aaaaaaaaaaaaaaaaaaaaaaaaa",
		}},
		{"by assignee", func() Filter { f := anyFilter(); f.Assignee = "alice"; return f }(), []string{
			"1aaaaaaaaaaaaaaaaaaaaaaaaa",
		}},
		{"by label", func() Filter { f := anyFilter(); f.Label = "backend"; return f }(), []string{
			"1aaaaaaaaaaaaaaaaaaaaaaaaa", "1ccccccccccccccccccccccccc",
		}},
		{"by priority", func() Filter { f := anyFilter(); f.Priority = 2; return f }(), []string{
			"1bbbbbbbbbbbbbbbbbbbbbbbbb", "1ccccccccccccccccccccccccc",
		}},
		{"combined", func() Filter {
			f := anyFilter()
			f.Status = types.StatusOpen
			f.Label = "backend"
			f.Priority = 2
			return f
		}(), []string{"1ccccccccccccccccccccccccc"}},
		{"no match", func() Filter { f := anyFilter(); f.Assignee = "nobody"; return f }(), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := x.IDs(tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("IDs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRebuildReplacesStaleRows(t *testing.T) {
	x := openIndex(t)
	issues := fixture()
	if err := x.Rebuild(issues, Fingerprint(issues)); err != nil {
		t.Fatal(err)
	}

	trimmed := issues[:1]
	fp := Fingerprint(trimmed)
	if x.Fresh(fp) {
		t.Fatal("index fresh for a fingerprint it was never built from")
	}
	if err := x.Rebuild(trimmed, fp); err != nil {
		t.Fatal(err)
	}
	if !x.Fresh(fp) {
		t.Fatal("index not fresh after rebuild")
	}

	got, err := x.IDs(anyFilter())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != trimmed[0].ID {
		t.Errorf("IDs = %v, want only %s", got, trimmed[0].ID)
	}
}

func TestFingerprintTracksContent(t *testing.T) {
	issues := fixture()
	fp1 := Fingerprint(issues)

	edited := fixture()
	edited[0].Title = "Renamed"
	if Fingerprint(edited) == fp1 {
		t.Error("fingerprint unchanged after a content edit")
	}

	// Version alone does not change queryable content, but the fingerprint
	// follows the canonical hash, which excludes it.
	bumped := fixture()
	bumped[0].Version++
	if Fingerprint(bumped) != fp1 {
		t.Error("fingerprint changed on a version-only bump")
	}
}

func TestOpenOnDisk(t *testing.T) {
	path := t.TempDir() + "/cache/tbd-index.db"
	x, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer x.Close()

	issues := fixture()
	if err := x.Rebuild(issues, Fingerprint(issues)); err != nil {
		t.Fatal(err)
	}
	got, err := x.IDs(anyFilter())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(issues) {
		t.Errorf("got %d ids, want %d", len(got), len(issues))
	}
}
