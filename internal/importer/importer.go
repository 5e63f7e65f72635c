// Package importer loads issues from another tracker's export. Foreign
// human-readable IDs are preserved as short codes when they fit the code
// alphabet, so existing cross-references keep working. Re-importing the
// same export is a no-op: a foreign code already present in the mapping
// means the issue was imported before.
package importer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jlevy/tbd/internal/identity"
	"github.com/jlevy/tbd/internal/mapping"
	"github.com/jlevy/tbd/internal/store"
	"github.com/jlevy/tbd/internal/types"
)

// Record is one issue to import, with the foreign system's short ID when
// it has one.
type Record struct {
	Issue        *types.Issue
	ForeignShort string
}

// Failure is one record that could not be imported.
type Failure struct {
	Line int    `json:"line"`
	Err  error  `json:"-"`
	Msg  string `json:"error"`
}

// Result summarizes an import run.
type Result struct {
	Imported int               `json:"imported"`
	Skipped  int               `json:"skipped"`
	Assigned map[string]string `json:"assigned"` // internal ID -> short code
	Failures []Failure         `json:"failures,omitempty"`
}

// ReadJSONL decodes an export stream: one JSON issue per line, optionally
// carrying "external_id" with the foreign short ID.
func ReadJSONL(r io.Reader) ([]Record, []Failure, error) {
	type line struct {
		types.Issue
		ExternalID string `json:"external_id"`
	}

	var records []Record
	var failures []Failure
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var l line
		if err := json.Unmarshal([]byte(text), &l); err != nil {
			err = fmt.Errorf("%w: line %d: %v", types.ErrValidation, n, err)
			failures = append(failures, Failure{Line: n, Err: err, Msg: err.Error()})
			continue
		}
		issue := l.Issue
		records = append(records, Record{Issue: &issue, ForeignShort: l.ExternalID})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading import stream: %w", err)
	}
	return records, failures, nil
}

// Import writes the records into the store and mapping. The caller saves
// the mapping afterwards.
func Import(st *store.Store, table *mapping.Table, gen *identity.Generator, records []Record) (*Result, error) {
	res := &Result{Assigned: map[string]string{}}

	for i, rec := range records {
		lineNo := i + 1
		fail := func(err error) {
			res.Failures = append(res.Failures, Failure{Line: lineNo, Err: err, Msg: err.Error()})
		}

		issue := rec.Issue.Clone()
		code := NormalizeForeignCode(rec.ForeignShort)

		// Idempotence is a mapping lookup, not a content comparison.
		if code != "" && table.HasShort(code) {
			res.Skipped++
			continue
		}
		if types.IsInternalID(issue.ID) && st.Exists(issue.ID) {
			res.Skipped++
			continue
		}

		if !types.IsInternalID(issue.ID) {
			id, err := gen.NewInternalID()
			if err != nil {
				return res, err
			}
			issue.ID = id
		}
		applyDefaults(issue)
		if err := issue.Validate(); err != nil {
			fail(err)
			continue
		}

		if code == "" {
			c, err := identity.NewShortCode(table)
			if err != nil {
				return res, err
			}
			code = c
		}
		if err := table.Add(code, issue.ID); err != nil {
			fail(err)
			continue
		}
		if err := st.Put(issue); err != nil {
			fail(err)
			continue
		}
		res.Assigned[issue.ID] = code
		res.Imported++
	}
	return res, nil
}

// NormalizeForeignCode reduces a foreign ID like "TEST-001" to a usable
// short code ("001"). Codes with characters outside the base-36 alphabet
// are rejected; the importer mints a fresh code instead.
func NormalizeForeignCode(foreign string) string {
	code := strings.ToLower(strings.TrimSpace(foreign))
	if i := strings.LastIndex(code, "-"); i >= 0 {
		code = code[i+1:]
	}
	if !identity.ValidShortCode(code) {
		return ""
	}
	return code
}

func applyDefaults(issue *types.Issue) {
	now := time.Now().UTC()
	if issue.Status == "" {
		issue.Status = types.StatusOpen
	}
	if issue.Kind == "" {
		issue.Kind = types.KindTask
	}
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	}
	if issue.UpdatedAt.IsZero() {
		issue.UpdatedAt = issue.CreatedAt
	}
	if issue.Version < 1 {
		issue.Version = 1
	}
	if issue.Status == types.StatusClosed && issue.ClosedAt == nil {
		t := issue.UpdatedAt
		issue.ClosedAt = &t
	}
}
