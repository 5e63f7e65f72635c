// Package merge resolves divergent copies of an issue field by field.
// One-side changes are taken outright. Scalar fields that changed on both
// sides resolve by last-write-wins on updated_at, remote winning ties; the
// losing value is reported as a conflict so the caller can archive it.
// Labels and dependencies merge by union and never drop anything.
package merge

import (
	"fmt"
	"time"

	"github.com/jlevy/tbd/internal/canonical"
	"github.com/jlevy/tbd/internal/types"
)

// Winner names the side whose value survived a scalar conflict.
type Winner string

// Winner values.
const (
	WinnerLocal  Winner = "local"
	WinnerRemote Winner = "remote"
)

// Conflict records one scalar field where both sides changed to different
// values. The loser's value is preserved here verbatim.
type Conflict struct {
	Field           string
	Winner          Winner
	WinnerValue     any
	LostValue       any
	LocalVersion    int
	RemoteVersion   int
	LocalUpdatedAt  time.Time
	RemoteUpdatedAt time.Time
}

// Result is the outcome of merging one issue.
type Result struct {
	Issue     *types.Issue
	Conflicts []Conflict
}

type scalarField struct {
	name string
	// repr is a comparable rendering of the field value, with nil
	// distinguished from empty.
	repr  func(*types.Issue) string
	value func(*types.Issue) any
	copy  func(dst, src *types.Issue)
}

var scalarFields = []scalarField{
	{
		name:  "title",
		repr:  func(i *types.Issue) string { return i.Title },
		value: func(i *types.Issue) any { return i.Title },
		copy:  func(dst, src *types.Issue) { dst.Title = src.Title },
	},
	{
		name:  "description",
		repr:  func(i *types.Issue) string { return i.Description },
		value: func(i *types.Issue) any { return i.Description },
		copy:  func(dst, src *types.Issue) { dst.Description = src.Description },
	},
	{
		name:  "notes",
		repr:  func(i *types.Issue) string { return i.Notes },
		value: func(i *types.Issue) any { return i.Notes },
		copy:  func(dst, src *types.Issue) { dst.Notes = src.Notes },
	},
	{
		name:  "status",
		repr:  func(i *types.Issue) string { return string(i.Status) },
		value: func(i *types.Issue) any { return string(i.Status) },
		copy:  func(dst, src *types.Issue) { dst.Status = src.Status },
	},
	{
		name:  "kind",
		repr:  func(i *types.Issue) string { return string(i.Kind) },
		value: func(i *types.Issue) any { return string(i.Kind) },
		copy:  func(dst, src *types.Issue) { dst.Kind = src.Kind },
	},
	{
		name:  "priority",
		repr:  func(i *types.Issue) string { return fmt.Sprintf("%d", i.Priority) },
		value: func(i *types.Issue) any { return int(i.Priority) },
		copy:  func(dst, src *types.Issue) { dst.Priority = src.Priority },
	},
	{
		name:  "assignee",
		repr:  func(i *types.Issue) string { return reprOptString(i.Assignee) },
		value: func(i *types.Issue) any { return optStringValue(i.Assignee) },
		copy:  func(dst, src *types.Issue) { dst.Assignee = cloneString(src.Assignee) },
	},
	{
		name:  "parent",
		repr:  func(i *types.Issue) string { return reprOptString(i.Parent) },
		value: func(i *types.Issue) any { return optStringValue(i.Parent) },
		copy:  func(dst, src *types.Issue) { dst.Parent = cloneString(src.Parent) },
	},
	{
		name:  "created_at",
		repr:  func(i *types.Issue) string { return i.CreatedAt.UTC().Format(time.RFC3339Nano) },
		value: func(i *types.Issue) any { return i.CreatedAt.UTC().Format(time.RFC3339Nano) },
		copy:  func(dst, src *types.Issue) { dst.CreatedAt = src.CreatedAt },
	},
	{
		name:  "closed_at",
		repr:  func(i *types.Issue) string { return reprOptTime(i.ClosedAt) },
		value: func(i *types.Issue) any { return optTimeValue(i.ClosedAt) },
		copy:  func(dst, src *types.Issue) { dst.ClosedAt = cloneTime(src.ClosedAt) },
	},
}

// Issues merges local and remote against their common base. A nil base
// means no common ancestor is known; every differing field then resolves
// as a two-sided change.
func Issues(base, local, remote *types.Issue) (*Result, error) {
	if local.ID != remote.ID {
		return nil, fmt.Errorf("%w: merging issues with different ids %s and %s", types.ErrIntegrity, local.ID, remote.ID)
	}
	if base != nil && base.ID != local.ID {
		return nil, fmt.Errorf("%w: merge base id %s does not match %s", types.ErrIntegrity, base.ID, local.ID)
	}

	if canonical.Equal(local, remote) {
		out := local.Clone()
		out.Version = max(local.Version, remote.Version)
		return &Result{Issue: out}, nil
	}

	if base == nil {
		base = &types.Issue{ID: local.ID}
	}

	localWins := local.UpdatedAt.After(remote.UpdatedAt)
	winner, loser := remote, local
	winnerTag := WinnerRemote
	if localWins {
		winner, loser = local, remote
		winnerTag = WinnerLocal
	}

	out := &types.Issue{ID: local.ID}
	var conflicts []Conflict
	for _, f := range scalarFields {
		lr, rr, br := f.repr(local), f.repr(remote), f.repr(base)
		switch {
		case lr == rr:
			f.copy(out, local)
		case rr == br:
			f.copy(out, local)
		case lr == br:
			f.copy(out, remote)
		default:
			f.copy(out, winner)
			conflicts = append(conflicts, Conflict{
				Field:           f.name,
				Winner:          winnerTag,
				WinnerValue:     f.value(winner),
				LostValue:       f.value(loser),
				LocalVersion:    local.Version,
				RemoteVersion:   remote.Version,
				LocalUpdatedAt:  local.UpdatedAt.UTC(),
				RemoteUpdatedAt: remote.UpdatedAt.UTC(),
			})
		}
	}

	out.Labels = canonical.SortedLabels(append(append([]string{}, local.Labels...), remote.Labels...))
	out.Dependencies = canonical.SortedDependencies(append(append([]types.Dependency{}, local.Dependencies...), remote.Dependencies...))

	out.UpdatedAt = local.UpdatedAt.UTC()
	if remote.UpdatedAt.After(local.UpdatedAt) {
		out.UpdatedAt = remote.UpdatedAt.UTC()
	}
	out.Version = max(local.Version, remote.Version) + 1

	// A closed status can win while the matching closed_at lost.
	if out.Status == types.StatusClosed && out.ClosedAt == nil {
		t := out.UpdatedAt
		out.ClosedAt = &t
	}
	return &Result{Issue: out, Conflicts: conflicts}, nil
}

func reprOptString(v *string) string {
	if v == nil {
		return "\x00"
	}
	return "s:" + *v
}

func optStringValue(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func reprOptTime(v *time.Time) string {
	if v == nil {
		return "\x00"
	}
	return v.UTC().Format(time.RFC3339Nano)
}

func optTimeValue(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC().Format(time.RFC3339Nano)
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}
