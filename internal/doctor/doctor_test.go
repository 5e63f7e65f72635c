package doctor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jlevy/tbd/internal/config"
	"github.com/jlevy/tbd/internal/mapping"
	"github.com/jlevy/tbd/internal/store"
	"github.com/jlevy/tbd/internal/types"
)

func newDataset(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := config.WriteMeta(root); err != nil {
		t.Fatal(err)
	}
	return root
}

func putIssue(t *testing.T, root string, issue *types.Issue) {
	t.Helper()
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		issue.UpdatedAt = issue.CreatedAt
	}
	if issue.Status == "" {
		issue.Status = types.StatusOpen
	}
	if issue.Kind == "" {
		issue.Kind = types.KindTask
	}
	if issue.Version == 0 {
		issue.Version = 1
	}
	if err := store.New(root).Put(issue); err != nil {
		t.Fatal(err)
	}
}

func mapIssue(t *testing.T, root, code, id string) {
	t.Helper()
	table, err := mapping.Load(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := table.Add(code, id); err != nil {
		t.Fatal(err)
	}
	if err := table.Save(root); err != nil {
		t.Fatal(err)
	}
}

const (
	idA = "1aaaaaaaaaaaaaaaaaaaaaaaaa"
	idB = "1bbbbbbbbbbbbbbbbbbbbbbbbb"
	idC = "1ccccccccccccccccccccccccc"
)

func TestHealthyDataset(t *testing.T) {
	root := newDataset(t)
	putIssue(t, root, &types.Issue{ID: idA, Title: "Fine"})
	mapIssue(t, root, "x7kq", idA)

	report, err := Run(root, false)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Healthy() {
		t.Errorf("findings on a healthy dataset: %+v", report.Findings)
	}
	if report.Checked != 1 {
		t.Errorf("Checked = %d, want 1", report.Checked)
	}
}

func TestMissingMetaIsAnError(t *testing.T) {
	report, err := Run(t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}
	if report.Healthy() {
		t.Fatal("missing meta.yml not reported")
	}
	if report.Findings[0].Check != "format" {
		t.Errorf("first finding = %+v, want a format check", report.Findings[0])
	}
}

func TestUnmappedIssueReportedAndFixed(t *testing.T) {
	root := newDataset(t)
	putIssue(t, root, &types.Issue{ID: idA, Title: "No short code"})

	report, err := Run(root, false)
	if err != nil {
		t.Fatal(err)
	}
	if report.Healthy() {
		t.Fatal("unmapped issue not reported")
	}
	f := report.Findings[0]
	if f.Check != "unmapped-issue" || !f.Fixable || f.Fixed {
		t.Errorf("finding = %+v, want an unfixed fixable unmapped-issue", f)
	}

	report, err = Run(root, true)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Healthy() {
		t.Errorf("fix run left findings: %+v", report.Findings)
	}
	if !report.Findings[0].Fixed {
		t.Errorf("finding not marked fixed: %+v", report.Findings[0])
	}

	// The repair persisted.
	table, err := mapping.Load(root)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := table.Short(idA); !ok {
		t.Error("repaired mapping was not saved")
	}

	report, err = Run(root, false)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Healthy() {
		t.Errorf("findings after repair: %+v", report.Findings)
	}
}

func TestDanglingReferencesAreWarnings(t *testing.T) {
	root := newDataset(t)
	parent := idB
	putIssue(t, root, &types.Issue{
		ID:    idA,
		Title: "Dangling edges",
		Dependencies: []types.Dependency{
			{Relation: types.RelationBlocks, Target: idB},
		},
		Parent: &parent,
	})
	mapIssue(t, root, "x7kq", idA)

	report, err := Run(root, false)
	if err != nil {
		t.Fatal(err)
	}
	checks := map[string]Severity{}
	for _, f := range report.Findings {
		checks[f.Check] = f.Severity
	}
	if checks["dangling-dependency"] != SeverityWarning {
		t.Errorf("dangling-dependency = %q, want warning", checks["dangling-dependency"])
	}
	if checks["dangling-parent"] != SeverityWarning {
		t.Errorf("dangling-parent = %q, want warning", checks["dangling-parent"])
	}
}

func TestParentCycleReportedOnce(t *testing.T) {
	root := newDataset(t)
	a, b := idA, idB
	putIssue(t, root, &types.Issue{ID: idA, Title: "A", Parent: &b})
	putIssue(t, root, &types.Issue{ID: idB, Title: "B", Parent: &a})
	putIssue(t, root, &types.Issue{ID: idC, Title: "Tail into the loop", Parent: &a})
	mapIssue(t, root, "x7kq", idA)
	mapIssue(t, root, "z9pl", idB)
	mapIssue(t, root, "m3rt", idC)

	report, err := Run(root, false)
	if err != nil {
		t.Fatal(err)
	}
	var cycles []Finding
	for _, f := range report.Findings {
		if f.Check == "parent-cycle" {
			cycles = append(cycles, f)
		}
	}
	if len(cycles) != 1 {
		t.Fatalf("parent-cycle findings = %d, want 1: %+v", len(cycles), report.Findings)
	}
	if cycles[0].Severity != SeverityWarning {
		t.Errorf("severity = %q, want warning", cycles[0].Severity)
	}
}

func TestSelfParentIsACycle(t *testing.T) {
	root := newDataset(t)
	self := idA
	putIssue(t, root, &types.Issue{ID: idA, Title: "Own parent", Parent: &self})
	mapIssue(t, root, "x7kq", idA)

	report, err := Run(root, false)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range report.Findings {
		if f.Check == "parent-cycle" {
			found = true
		}
	}
	if !found {
		t.Errorf("self-parent not reported: %+v", report.Findings)
	}
}

func TestUnreadableRecordReported(t *testing.T) {
	root := newDataset(t)
	dir := filepath.Join(root, store.IssuesDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, idA+".md")
	if err := os.WriteFile(bad, []byte("not a record\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := Run(root, false)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range report.Findings {
		if f.Check == "record" && f.Severity == SeverityError {
			found = true
		}
	}
	if !found {
		t.Errorf("unreadable record not reported: %+v", report.Findings)
	}
}
