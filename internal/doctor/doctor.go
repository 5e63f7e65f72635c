// Package doctor checks a dataset for internal consistency and repairs the
// cases where the fix is unambiguous.
package doctor

import (
	"fmt"
	"strings"

	"github.com/jlevy/tbd/internal/config"
	"github.com/jlevy/tbd/internal/identity"
	"github.com/jlevy/tbd/internal/mapping"
	"github.com/jlevy/tbd/internal/store"
	"github.com/jlevy/tbd/internal/types"
)

// Severity grades a finding.
type Severity string

// Severity levels.
const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Finding is one detected inconsistency.
type Finding struct {
	Check    string   `json:"check"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail"`
	Fixable  bool     `json:"fixable"`
	Fixed    bool     `json:"fixed"`
}

// Report is the outcome of a doctor run.
type Report struct {
	Findings []Finding `json:"findings"`
	Checked  int       `json:"checked"`
}

// Healthy reports whether nothing was found (or everything found was fixed).
func (r *Report) Healthy() bool {
	for _, f := range r.Findings {
		if !f.Fixed {
			return false
		}
	}
	return true
}

// Run checks the dataset under root. With fix set, safe repairs are applied:
// currently that is minting a short code for an unmapped issue. Structural
// damage is only ever reported.
func Run(root string, fix bool) (*Report, error) {
	report := &Report{}

	if err := config.CheckMeta(root); err != nil {
		report.Findings = append(report.Findings, Finding{
			Check:    "format",
			Severity: SeverityError,
			Detail:   err.Error(),
		})
		return report, nil
	}

	table, err := mapping.Load(root)
	if err != nil {
		// A mapping that will not even load blocks every other check that
		// needs it, but record scanning can still proceed.
		report.Findings = append(report.Findings, Finding{
			Check:    "mapping",
			Severity: SeverityError,
			Detail:   err.Error(),
		})
		table = mapping.New()
	}

	st := store.New(root)
	issues, problems, err := st.List()
	if err != nil {
		return nil, err
	}
	report.Checked = len(issues)

	for _, p := range problems {
		report.Findings = append(report.Findings, Finding{
			Check:    "record",
			Severity: SeverityError,
			Detail:   fmt.Sprintf("%s: %v", p.Path, p.Err),
		})
	}

	known := make(map[string]bool, len(issues))
	for _, issue := range issues {
		known[issue.ID] = true
	}

	mappingDirty := false
	for _, issue := range issues {
		if _, ok := table.Short(issue.ID); !ok {
			f := Finding{
				Check:    "unmapped-issue",
				Severity: SeverityError,
				Detail:   fmt.Sprintf("issue %s has no short code", issue.ID),
				Fixable:  true,
			}
			if fix {
				code, err := identity.NewShortCode(table)
				if err == nil {
					err = table.Add(code, issue.ID)
				}
				if err != nil {
					f.Detail += fmt.Sprintf(" (repair failed: %v)", err)
				} else {
					f.Fixed = true
					f.Detail += fmt.Sprintf(" (assigned %q)", code)
					mappingDirty = true
				}
			}
			report.Findings = append(report.Findings, f)
		}

		for _, dep := range issue.Dependencies {
			if !known[dep.Target] {
				report.Findings = append(report.Findings, Finding{
					Check:    "dangling-dependency",
					Severity: SeverityWarning,
					Detail:   fmt.Sprintf("issue %s blocks missing issue %s", issue.ID, dep.Target),
				})
			}
		}
		if issue.Parent != nil && !known[*issue.Parent] {
			report.Findings = append(report.Findings, Finding{
				Check:    "dangling-parent",
				Severity: SeverityWarning,
				Detail:   fmt.Sprintf("issue %s has missing parent %s", issue.ID, *issue.Parent),
			})
		}
	}

	for _, f := range parentCycles(issues, known) {
		report.Findings = append(report.Findings, f)
	}

	// Mapping entries whose issue file is gone are expected: the mapping is
	// append-only so deleted issues keep their entry. Only a mapped ID that
	// collides with a different live record is reported, and that already
	// surfaces as a record-check integrity error.

	if mappingDirty {
		if err := table.Save(root); err != nil {
			return nil, fmt.Errorf("%w: saving repaired mapping: %v", types.ErrIntegrity, err)
		}
	}
	return report, nil
}

// parentCycles walks every parent chain and reports each loop once. Chains
// into a missing parent stop there; dangling parents are reported separately.
func parentCycles(issues []*types.Issue, known map[string]bool) []Finding {
	parents := make(map[string]string, len(issues))
	for _, issue := range issues {
		if issue.Parent != nil && known[*issue.Parent] {
			parents[issue.ID] = *issue.Parent
		}
	}

	var findings []Finding
	inCycle := map[string]bool{}
	for _, issue := range issues {
		if inCycle[issue.ID] {
			continue
		}
		index := map[string]int{issue.ID: 0}
		path := []string{issue.ID}
		cur := issue.ID
		for {
			next, ok := parents[cur]
			if !ok {
				break
			}
			if at, seen := index[next]; seen {
				cycle := path[at:]
				dup := false
				for _, id := range cycle {
					dup = dup || inCycle[id]
					inCycle[id] = true
				}
				if !dup {
					findings = append(findings, Finding{
						Check:    "parent-cycle",
						Severity: SeverityWarning,
						Detail:   fmt.Sprintf("parent chain loops: %s", strings.Join(append(cycle, next), " -> ")),
					})
				}
				break
			}
			index[next] = len(path)
			path = append(path, next)
			cur = next
		}
	}
	return findings
}
