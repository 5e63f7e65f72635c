// Package index maintains a derived SQLite cache of issue metadata and
// dependency edges for fast querying on large datasets. It is never a
// source of truth: the record store can rebuild it from scratch at any
// time, and a fingerprint mismatch means it is stale.
package index

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/jlevy/tbd/internal/canonical"
	"github.com/jlevy/tbd/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS issues (
	id        TEXT PRIMARY KEY,
	title     TEXT NOT NULL,
	status    TEXT NOT NULL,
	kind      TEXT NOT NULL,
	priority  INTEGER NOT NULL,
	assignee  TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	closed_at  TEXT
);
CREATE TABLE IF NOT EXISTS labels (
	issue_id TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
	label    TEXT NOT NULL,
	PRIMARY KEY (issue_id, label)
);
CREATE TABLE IF NOT EXISTS deps (
	issue_id TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
	relation TEXT NOT NULL,
	target   TEXT NOT NULL,
	PRIMARY KEY (issue_id, relation, target)
);
CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status);
CREATE INDEX IF NOT EXISTS idx_deps_target ON deps(target);
`

// Index is an open cache database.
type Index struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the cache at path.
func Open(path string) (*Index, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("creating index dir: %w", err)
		}
		path = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)"
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index schema: %w", err)
	}
	return &Index{db: db, path: path}, nil
}

// Close releases the database.
func (x *Index) Close() error {
	return x.db.Close()
}

// Fingerprint digests a dataset: the content hash of every issue in ID
// order. Same fingerprint, same queryable state.
func Fingerprint(issues []*types.Issue) string {
	h := sha256.New()
	for _, issue := range issues {
		fmt.Fprintf(h, "%s:%s\n", issue.ID, canonical.Hash(issue))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Fresh reports whether the cache was last rebuilt from a dataset with the
// given fingerprint.
func (x *Index) Fresh(fingerprint string) bool {
	var got string
	err := x.db.QueryRow(`SELECT value FROM meta WHERE key = 'fingerprint'`).Scan(&got)
	return err == nil && got == fingerprint
}

// Rebuild drops the cached rows and reloads them from the given issues.
func (x *Index) Rebuild(issues []*types.Issue, fingerprint string) error {
	tx, err := x.db.Begin()
	if err != nil {
		return fmt.Errorf("starting rebuild: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM deps`, `DELETE FROM labels`, `DELETE FROM issues`} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("clearing index: %w", err)
		}
	}

	insertIssue, err := tx.Prepare(`INSERT INTO issues
		(id, title, status, kind, priority, assignee, created_at, updated_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insertIssue.Close()
	insertLabel, err := tx.Prepare(`INSERT INTO labels (issue_id, label) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer insertLabel.Close()
	insertDep, err := tx.Prepare(`INSERT INTO deps (issue_id, relation, target) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insertDep.Close()

	for _, issue := range issues {
		var closedAt any
		if issue.ClosedAt != nil {
			closedAt = issue.ClosedAt.UTC().Format(time.RFC3339Nano)
		}
		var assignee any
		if issue.Assignee != nil {
			assignee = *issue.Assignee
		}
		if _, err := insertIssue.Exec(
			issue.ID, issue.Title, string(issue.Status), string(issue.Kind), int(issue.Priority),
			assignee,
			issue.CreatedAt.UTC().Format(time.RFC3339Nano),
			issue.UpdatedAt.UTC().Format(time.RFC3339Nano),
			closedAt,
		); err != nil {
			return fmt.Errorf("indexing issue %s: %w", issue.ID, err)
		}
		for _, label := range canonical.SortedLabels(issue.Labels) {
			if _, err := insertLabel.Exec(issue.ID, label); err != nil {
				return fmt.Errorf("indexing labels for %s: %w", issue.ID, err)
			}
		}
		for _, dep := range canonical.SortedDependencies(issue.Dependencies) {
			if _, err := insertDep.Exec(issue.ID, dep.Relation, dep.Target); err != nil {
				return fmt.Errorf("indexing deps for %s: %w", issue.ID, err)
			}
		}
	}

	if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES ('fingerprint', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, fingerprint); err != nil {
		return fmt.Errorf("stamping fingerprint: %w", err)
	}
	return tx.Commit()
}

// Filter narrows a query; zero values mean "any".
type Filter struct {
	Status   types.Status
	Kind     types.Kind
	Assignee string
	Label    string
	Priority int // -1 means any
}

// IDs returns matching issue IDs in ID order (creation order).
func (x *Index) IDs(f Filter) ([]string, error) {
	query := `SELECT DISTINCT i.id FROM issues i`
	var args []any
	where := " WHERE 1=1"
	if f.Label != "" {
		query += ` JOIN labels l ON l.issue_id = i.id`
		where += ` AND l.label = ?`
		args = append(args, f.Label)
	}
	if f.Status != "" {
		where += ` AND i.status = ?`
		args = append(args, string(f.Status))
	}
	if f.Kind != "" {
		where += ` AND i.kind = ?`
		args = append(args, string(f.Kind))
	}
	if f.Assignee != "" {
		where += ` AND i.assignee = ?`
		args = append(args, f.Assignee)
	}
	if f.Priority >= 0 {
		where += ` AND i.priority = ?`
		args = append(args, f.Priority)
	}

	rows, err := x.db.Query(query+where+` ORDER BY i.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
