// Package attic archives values that lost a merge conflict. Entries are
// append-only YAML files under attic/conflicts/{internal_id}/; nothing in
// the attic is ever rewritten or removed.
package attic

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jlevy/tbd/internal/merge"
	"github.com/jlevy/tbd/internal/types"
)

// Dir is the archive directory relative to the data root.
const Dir = "attic/conflicts"

const stampLayout = "20060102T150405.000000000Z"

// Entry is one archived conflict loser.
type Entry struct {
	IssueID         string    `yaml:"issue_id"`
	Field           string    `yaml:"field"`
	Winner          string    `yaml:"winner"`
	WinnerValue     any       `yaml:"winner_value"`
	LostValue       any       `yaml:"lost_value"`
	LocalVersion    int       `yaml:"local_version"`
	RemoteVersion   int       `yaml:"remote_version"`
	LocalUpdatedAt  time.Time `yaml:"local_updated_at"`
	RemoteUpdatedAt time.Time `yaml:"remote_updated_at"`
	ArchivedAt      time.Time `yaml:"archived_at"`
}

// Stored is an entry paired with its file location.
type Stored struct {
	Entry
	Path string
}

// FromConflict converts a merge conflict into an archive entry.
func FromConflict(issueID string, c merge.Conflict, archivedAt time.Time) Entry {
	return Entry{
		IssueID:         issueID,
		Field:           c.Field,
		Winner:          string(c.Winner),
		WinnerValue:     c.WinnerValue,
		LostValue:       c.LostValue,
		LocalVersion:    c.LocalVersion,
		RemoteVersion:   c.RemoteVersion,
		LocalUpdatedAt:  c.LocalUpdatedAt,
		RemoteUpdatedAt: c.RemoteUpdatedAt,
		ArchivedAt:      archivedAt.UTC(),
	}
}

// Append writes an entry under root and returns its path. Existing entries
// are never overwritten; a filename collision gets a numeric suffix.
func Append(root string, e Entry) (string, error) {
	dir := filepath.Join(root, Dir, e.IssueID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating attic dir: %w", err)
	}

	stamp := e.ArchivedAt.UTC().Format(stampLayout)
	name := fmt.Sprintf("%s_%s.yml", stamp, e.Field)
	path := filepath.Join(dir, name)
	for n := 2; ; n++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			break
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%s.%d.yml", stamp, e.Field, n))
	}

	data, err := yaml.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encoding attic entry: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing attic entry: %w", err)
	}
	return path, nil
}

// Read loads one entry file.
func Read(path string) (*Stored, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: attic entry %s", types.ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading attic entry: %w", err)
	}
	var e Entry
	if err := yaml.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: attic entry %s: %v", types.ErrIntegrity, path, err)
	}
	return &Stored{Entry: e, Path: path}, nil
}

// List returns the archived entries for one issue, oldest first. No
// directory means no conflicts yet.
func List(root, issueID string) ([]*Stored, error) {
	return scan(filepath.Join(root, Dir, issueID))
}

// ListAll returns every archived entry under root, grouped by the directory
// scan order (issue ID, then timestamp).
func ListAll(root string) ([]*Stored, error) {
	base := filepath.Join(root, Dir)
	dirs, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading attic: %w", err)
	}
	var all []*Stored
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		entries, err := scan(filepath.Join(base, d.Name()))
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}

func scan(dir string) ([]*Stored, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading attic dir: %w", err)
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		if !f.IsDir() && filepath.Ext(f.Name()) == ".yml" {
			names = append(names, f.Name())
		}
	}
	sort.Strings(names)

	entries := make([]*Stored, 0, len(names))
	for _, name := range names {
		e, err := Read(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
