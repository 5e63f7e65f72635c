// Package types defines the core data structures for the tbd issue tracker.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the workflow state of an issue.
type Status string

// Status values.
const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusDeferred   Status = "deferred"
	StatusClosed     Status = "closed"
)

var validStatuses = map[Status]bool{
	StatusOpen:       true,
	StatusInProgress: true,
	StatusBlocked:    true,
	StatusDeferred:   true,
	StatusClosed:     true,
}

// ParseStatus validates a raw string and returns the typed status.
// Input is case-normalized; invalid values return a Validation error.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !validStatuses[st] {
		return "", fmt.Errorf("%w: invalid status %q (want open, in_progress, blocked, deferred, or closed)", ErrValidation, s)
	}
	return st, nil
}

// Kind classifies the work an issue represents.
type Kind string

// Kind values.
const (
	KindBug     Kind = "bug"
	KindFeature Kind = "feature"
	KindTask    Kind = "task"
	KindEpic    Kind = "epic"
	KindChore   Kind = "chore"
)

var validKinds = map[Kind]bool{
	KindBug:     true,
	KindFeature: true,
	KindTask:    true,
	KindEpic:    true,
	KindChore:   true,
}

// ParseKind validates a raw string and returns the typed kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !validKinds[k] {
		return "", fmt.Errorf("%w: invalid kind %q (want bug, feature, task, epic, or chore)", ErrValidation, s)
	}
	return k, nil
}

// Priority is an urgency level from 0 (most urgent) to 4 (least urgent).
type Priority int

// PriorityBounds delimit the valid priority range.
const (
	MinPriority Priority = 0
	MaxPriority Priority = 4
)

// ParsePriority validates an integer priority.
func ParsePriority(n int) (Priority, error) {
	p := Priority(n)
	if p < MinPriority || p > MaxPriority {
		return 0, fmt.Errorf("%w: priority %d out of range [%d,%d]", ErrValidation, n, MinPriority, MaxPriority)
	}
	return p, nil
}

// RelationBlocks is the only dependency relation: the owning issue blocks Target.
const RelationBlocks = "blocks"

// Dependency is one edge in the dependency set. The owning issue blocks
// Target; Target is not ready while the owner is not closed.
type Dependency struct {
	Relation string `yaml:"relation" json:"relation"`
	Target   string `yaml:"target" json:"target"`
}

// Issue is a tracked work item. The internal ID is the primary key and is
// immutable for the life of the record. The human-facing short code lives in
// the ID mapping, never in the issue itself.
type Issue struct {
	ID           string       `yaml:"id" json:"id"`
	Title        string       `yaml:"title" json:"title"`
	Status       Status       `yaml:"status" json:"status"`
	Kind         Kind         `yaml:"kind" json:"kind"`
	Priority     Priority     `yaml:"priority" json:"priority"`
	Assignee     *string      `yaml:"assignee" json:"assignee"`
	Labels       []string     `yaml:"labels" json:"labels"`
	Dependencies []Dependency `yaml:"dependencies" json:"dependencies"`
	Parent       *string      `yaml:"parent" json:"parent"`
	CreatedAt    time.Time    `yaml:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `yaml:"updated_at" json:"updated_at"`
	ClosedAt     *time.Time   `yaml:"closed_at" json:"closed_at"`
	Version      int          `yaml:"version" json:"version"`

	// Body fields, stored below the front matter.
	Description string `yaml:"-" json:"description"`
	Notes       string `yaml:"-" json:"notes"`
}

// InternalIDLength is the fixed length of internal IDs: 10 base-36 chars of
// millisecond timestamp plus 16 random base-36 chars.
const InternalIDLength = 26

// IsInternalID reports whether s has the shape of an internal ID.
func IsInternalID(s string) bool {
	if len(s) != InternalIDLength {
		return false
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}

// Validate checks structural invariants. It never mutates the issue.
func (i *Issue) Validate() error {
	if !IsInternalID(i.ID) {
		return fmt.Errorf("%w: malformed internal id %q", ErrValidation, i.ID)
	}
	if strings.TrimSpace(i.Title) == "" {
		return fmt.Errorf("%w: issue %s has empty title", ErrValidation, i.ID)
	}
	if !validStatuses[i.Status] {
		return fmt.Errorf("%w: issue %s has invalid status %q", ErrValidation, i.ID, i.Status)
	}
	if !validKinds[i.Kind] {
		return fmt.Errorf("%w: issue %s has invalid kind %q", ErrValidation, i.ID, i.Kind)
	}
	if i.Priority < MinPriority || i.Priority > MaxPriority {
		return fmt.Errorf("%w: issue %s has priority %d out of range", ErrValidation, i.ID, i.Priority)
	}
	if i.CreatedAt.IsZero() {
		return fmt.Errorf("%w: issue %s has zero created_at", ErrValidation, i.ID)
	}
	if i.UpdatedAt.IsZero() {
		return fmt.Errorf("%w: issue %s has zero updated_at", ErrValidation, i.ID)
	}
	if i.Version < 1 {
		return fmt.Errorf("%w: issue %s has version %d (must be >= 1)", ErrValidation, i.ID, i.Version)
	}
	if i.Status == StatusClosed && i.ClosedAt == nil {
		return fmt.Errorf("%w: issue %s is closed without closed_at", ErrValidation, i.ID)
	}
	for _, d := range i.Dependencies {
		if d.Relation != RelationBlocks {
			return fmt.Errorf("%w: issue %s has unknown dependency relation %q", ErrValidation, i.ID, d.Relation)
		}
		if !IsInternalID(d.Target) {
			return fmt.Errorf("%w: issue %s has malformed dependency target %q", ErrValidation, i.ID, d.Target)
		}
	}
	if i.Parent != nil && !IsInternalID(*i.Parent) {
		return fmt.Errorf("%w: issue %s has malformed parent %q", ErrValidation, i.ID, *i.Parent)
	}
	return nil
}

// Clone returns a deep copy of the issue.
func (i *Issue) Clone() *Issue {
	out := *i
	if i.Assignee != nil {
		v := *i.Assignee
		out.Assignee = &v
	}
	if i.Parent != nil {
		v := *i.Parent
		out.Parent = &v
	}
	if i.ClosedAt != nil {
		v := *i.ClosedAt
		out.ClosedAt = &v
	}
	out.Labels = append([]string(nil), i.Labels...)
	out.Dependencies = append([]Dependency(nil), i.Dependencies...)
	return &out
}

// Blocks reports whether the issue carries a blocks edge to target.
func (i *Issue) Blocks(target string) bool {
	for _, d := range i.Dependencies {
		if d.Relation == RelationBlocks && d.Target == target {
			return true
		}
	}
	return false
}
