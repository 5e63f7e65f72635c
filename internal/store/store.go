// Package store reads and writes issue records. Each issue lives in its own
// markdown file under issues/, YAML front matter in a fixed field order
// followed by the description and an optional notes section. Writing the
// same issue twice produces the same bytes.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jlevy/tbd/internal/types"
)

// IssuesDir is the record directory relative to the data root.
const IssuesDir = "issues"

const notesHeading = "## Notes"

// Problem is a per-file failure found while scanning the record directory.
type Problem struct {
	Path string
	Err  error
}

// Store is a record store rooted at a data directory.
type Store struct {
	root string
	now  func() time.Time
}

// New opens a store over the given data root.
func New(root string) *Store {
	return NewAt(root, time.Now)
}

// NewAt is New with an injectable clock, for tests.
func NewAt(root string, now func() time.Time) *Store {
	return &Store{root: root, now: now}
}

// Root returns the data root the store operates on.
func (s *Store) Root() string { return s.root }

// Path returns the record file path for an internal ID.
func (s *Store) Path(internalID string) string {
	return filepath.Join(s.root, IssuesDir, internalID+".md")
}

// Get loads one issue by internal ID.
func (s *Store) Get(internalID string) (*types.Issue, error) {
	data, err := os.ReadFile(s.Path(internalID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: issue %s", types.ErrNotFound, internalID)
		}
		return nil, fmt.Errorf("reading issue %s: %w", internalID, err)
	}
	issue, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("issue %s: %w", internalID, err)
	}
	if issue.ID != internalID {
		return nil, fmt.Errorf("%w: file %s.md contains id %s", types.ErrIntegrity, internalID, issue.ID)
	}
	return issue, nil
}

// Exists reports whether a record file exists for the internal ID.
func (s *Store) Exists(internalID string) bool {
	_, err := os.Stat(s.Path(internalID))
	return err == nil
}

// Put validates the issue and writes it verbatim, without touching version
// or timestamps. Merge, import and attic-restore go through Put so the
// caller controls that metadata.
func (s *Store) Put(issue *types.Issue) error {
	if err := issue.Validate(); err != nil {
		return err
	}
	return s.writeFile(s.Path(issue.ID), Serialize(issue))
}

// Update bumps version and updated_at, then writes. This is the path for
// every user-initiated edit.
func (s *Store) Update(issue *types.Issue) error {
	issue.Version++
	issue.UpdatedAt = s.now().UTC()
	return s.Put(issue)
}

// Remove deletes a record file.
func (s *Store) Remove(internalID string) error {
	err := os.Remove(s.Path(internalID))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: issue %s", types.ErrNotFound, internalID)
	}
	return err
}

// List loads every record under issues/, sorted by internal ID. Files that
// fail to parse or validate are reported as problems; the scan keeps going.
func (s *Store) List() ([]*types.Issue, []Problem, error) {
	dir := filepath.Join(s.root, IssuesDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("reading issues dir: %w", err)
	}

	var issues []*types.Issue
	var problems []Problem
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".md") {
			continue
		}
		id := strings.TrimSuffix(name, ".md")
		issue, err := s.Get(id)
		if err != nil {
			problems = append(problems, Problem{Path: filepath.Join(dir, name), Err: err})
			continue
		}
		issues = append(issues, issue)
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i].ID < issues[j].ID })
	return issues, problems, nil
}

// Ready returns open issues with no unresolved incoming blocks edge. An
// edge {blocks, target} on issue A blocks target until A is closed.
func (s *Store) Ready() ([]*types.Issue, error) {
	issues, _, err := s.List()
	if err != nil {
		return nil, err
	}

	blocked := map[string]bool{}
	for _, issue := range issues {
		if issue.Status == types.StatusClosed {
			continue
		}
		for _, dep := range issue.Dependencies {
			if dep.Relation == types.RelationBlocks {
				blocked[dep.Target] = true
			}
		}
	}

	var ready []*types.Issue
	for _, issue := range issues {
		if issue.Status == types.StatusOpen && !blocked[issue.ID] {
			ready = append(ready, issue)
		}
	}
	return ready, nil
}

func (s *Store) writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating issues dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".issue-*.md")
	if err != nil {
		return fmt.Errorf("creating temp record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing record: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing record: %w", err)
	}
	return nil
}
