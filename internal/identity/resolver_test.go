package identity

import (
	"errors"
	"strings"
	"testing"

	"github.com/jlevy/tbd/internal/types"
)

type fakeMapping struct {
	byShort map[string]string
	byID    map[string]string
}

func (f *fakeMapping) HasShort(code string) bool { _, ok := f.byShort[code]; return ok }
func (f *fakeMapping) Len() int                  { return len(f.byShort) }
func (f *fakeMapping) Internal(code string) (string, bool) {
	id, ok := f.byShort[code]
	return id, ok
}
func (f *fakeMapping) Short(id string) (string, bool) {
	code, ok := f.byID[id]
	return code, ok
}

func newTestResolver(m *fakeMapping) *Resolver {
	return NewResolver("tbd", func() (Mapping, error) { return m, nil })
}

func TestResolveForms(t *testing.T) {
	internal := "0abc1def2g" + strings.Repeat("x", 16)
	m := &fakeMapping{
		byShort: map[string]string{"x7kq": internal},
		byID:    map[string]string{internal: "x7kq"},
	}
	r := newTestResolver(m)

	for _, input := range []string{
		"x7kq",
		"X7KQ",
		"tbd-x7kq",
		"TBD-x7kq",
		"bd-x7kq",
		" x7kq ",
		internal,
		strings.ToUpper(internal),
	} {
		got, err := r.Resolve(input)
		if err != nil {
			t.Errorf("Resolve(%q) error: %v", input, err)
			continue
		}
		if got != internal {
			t.Errorf("Resolve(%q) = %q, want %q", input, got, internal)
		}
	}
}

func TestResolveNotFound(t *testing.T) {
	r := newTestResolver(&fakeMapping{byShort: map[string]string{}, byID: map[string]string{}})
	for _, input := range []string{"zzzz", "tbd-zzzz", ""} {
		if _, err := r.Resolve(input); !errors.Is(err, types.ErrNotFound) {
			t.Errorf("Resolve(%q) error = %v, want ErrNotFound", input, err)
		}
	}
}

func TestDisplay(t *testing.T) {
	internal := "0abc1def2g" + strings.Repeat("x", 16)
	m := &fakeMapping{
		byShort: map[string]string{"x7kq": internal},
		byID:    map[string]string{internal: "x7kq"},
	}
	r := newTestResolver(m)

	got, err := r.Display(internal)
	if err != nil {
		t.Fatalf("Display: %v", err)
	}
	if got != "tbd-x7kq" {
		t.Errorf("Display = %q, want tbd-x7kq", got)
	}
}

func TestDisplayMissingMappingIsIntegrityError(t *testing.T) {
	r := newTestResolver(&fakeMapping{byShort: map[string]string{}, byID: map[string]string{}})
	if _, err := r.Display("0abc1def2g" + strings.Repeat("x", 16)); !errors.Is(err, types.ErrIntegrity) {
		t.Errorf("Display on unmapped id: error = %v, want ErrIntegrity", err)
	}
}

func TestInvalidateReloads(t *testing.T) {
	internal := "0abc1def2g" + strings.Repeat("x", 16)
	loads := 0
	r := NewResolver("tbd", func() (Mapping, error) {
		loads++
		return &fakeMapping{
			byShort: map[string]string{"x7kq": internal},
			byID:    map[string]string{internal: "x7kq"},
		}, nil
	})

	if _, err := r.Resolve("x7kq"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve("x7kq"); err != nil {
		t.Fatal(err)
	}
	if loads != 1 {
		t.Errorf("mapping loaded %d times, want 1 (cached)", loads)
	}
	r.Invalidate()
	if _, err := r.Resolve("x7kq"); err != nil {
		t.Fatal(err)
	}
	if loads != 2 {
		t.Errorf("mapping loaded %d times after Invalidate, want 2", loads)
	}
}
