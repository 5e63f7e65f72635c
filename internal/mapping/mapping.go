// Package mapping maintains the short-code table stored at mappings/ids.yml.
// The file is a flat map of short code to internal ID. Entries are
// append-only: once a short code is assigned it is never reused or rebound.
package mapping

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jlevy/tbd/internal/types"
)

// FileName is the mapping file path relative to the data root.
const FileName = "mappings/ids.yml"

// Table is an in-memory short<->internal mapping.
type Table struct {
	shortToInternal map[string]string
	internalToShort map[string]string
}

// New returns an empty table.
func New() *Table {
	return &Table{
		shortToInternal: map[string]string{},
		internalToShort: map[string]string{},
	}
}

// Load reads the mapping file under root. A missing file is an empty table,
// not an error: a fresh data branch starts with no mappings.
func Load(root string) (*Table, error) {
	data, err := os.ReadFile(filepath.Join(root, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("reading mapping file: %w", err)
	}
	return Parse(data)
}

// Parse decodes mapping file contents.
func Parse(data []byte) (*Table, error) {
	t := New()
	var flat map[string]string
	if err := yaml.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("%w: mapping file is not valid YAML: %v", types.ErrIntegrity, err)
	}
	for code, internal := range flat {
		if err := t.Add(code, internal); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Save writes the table under root atomically (temp file then rename).
// Keys are emitted in sorted order so the file diffs cleanly.
func (t *Table) Save(root string) error {
	path := filepath.Join(root, FileName)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating mappings dir: %w", err)
	}

	codes := make([]string, 0, len(t.shortToInternal))
	for code := range t.shortToInternal {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var b strings.Builder
	for _, code := range codes {
		line, err := yaml.Marshal(map[string]string{code: t.shortToInternal[code]})
		if err != nil {
			return fmt.Errorf("encoding mapping entry: %w", err)
		}
		b.Write(line)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".ids-*.yml")
	if err != nil {
		return fmt.Errorf("creating temp mapping file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing mapping file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing mapping file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing mapping file: %w", err)
	}
	return nil
}

// Add registers a short code for an internal ID. Rebinding an existing short
// code to a different internal ID, or assigning a second short code to an
// internal ID, is an integrity error.
func (t *Table) Add(code, internalID string) error {
	code = strings.ToLower(code)
	if code == "" || internalID == "" {
		return fmt.Errorf("%w: empty mapping entry", types.ErrValidation)
	}
	if existing, ok := t.shortToInternal[code]; ok && existing != internalID {
		return fmt.Errorf("%w: short code %q maps to both %s and %s", types.ErrIntegrity, code, existing, internalID)
	}
	if existing, ok := t.internalToShort[internalID]; ok && existing != code {
		return fmt.Errorf("%w: internal id %s has short codes %q and %q", types.ErrIntegrity, internalID, existing, code)
	}
	t.shortToInternal[code] = internalID
	t.internalToShort[internalID] = code
	return nil
}

// Internal returns the internal ID for a short code.
func (t *Table) Internal(code string) (string, bool) {
	id, ok := t.shortToInternal[strings.ToLower(code)]
	return id, ok
}

// Short returns the short code assigned to an internal ID.
func (t *Table) Short(internalID string) (string, bool) {
	code, ok := t.internalToShort[internalID]
	return code, ok
}

// HasShort reports whether a short code is already assigned.
func (t *Table) HasShort(code string) bool {
	_, ok := t.shortToInternal[strings.ToLower(code)]
	return ok
}

// Len is the number of assigned short codes.
func (t *Table) Len() int {
	return len(t.shortToInternal)
}

// Codes returns all short codes in sorted order.
func (t *Table) Codes() []string {
	codes := make([]string, 0, len(t.shortToInternal))
	for code := range t.shortToInternal {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Merge unions another table into this one. Entries present on either side
// survive. The same short code bound to two different internal IDs means the
// append-only invariant was broken somewhere; that surfaces as an integrity
// error rather than a silent pick.
func (t *Table) Merge(other *Table) error {
	for _, code := range other.Codes() {
		internal, _ := other.Internal(code)
		if err := t.Add(code, internal); err != nil {
			return err
		}
	}
	return nil
}
