package identity

import (
	"fmt"
	"strings"

	"github.com/jlevy/tbd/internal/types"
)

// LegacyPrefix is the alternate display prefix accepted on input for
// references created before the rename.
const LegacyPrefix = "bd"

// Mapping is the bidirectional short<->internal view the resolver needs.
type Mapping interface {
	ShortTable
	// Internal returns the internal ID assigned to a short code.
	Internal(code string) (string, bool)
	// Short returns the short code assigned to an internal ID.
	Short(internalID string) (string, bool)
}

// Resolver turns user-typed identifiers into canonical internal IDs. The
// mapping is loaded lazily through the supplied loader and cached on the
// resolver instance; Invalidate drops the cache so the next resolution
// re-reads from disk. No module-level state is involved, so independent
// resolvers never contaminate each other.
type Resolver struct {
	prefix string
	load   func() (Mapping, error)
	cached Mapping
}

// NewResolver builds a resolver for the given display prefix.
func NewResolver(prefix string, load func() (Mapping, error)) *Resolver {
	return &Resolver{prefix: strings.ToLower(prefix), load: load}
}

// Invalidate drops the cached mapping.
func (r *Resolver) Invalidate() {
	r.cached = nil
}

func (r *Resolver) mapping() (Mapping, error) {
	if r.cached == nil {
		m, err := r.load()
		if err != nil {
			return nil, fmt.Errorf("loading id mapping: %w", err)
		}
		r.cached = m
	}
	return r.cached, nil
}

// Resolve accepts a bare short code, a prefixed short code (current or
// legacy prefix), or a full internal ID, and returns the internal ID.
// Input is case-normalized. Unresolvable input yields a NotFound error.
func (r *Resolver) Resolve(input string) (string, error) {
	text := strings.ToLower(strings.TrimSpace(input))
	if text == "" {
		return "", fmt.Errorf("%w: empty issue reference", types.ErrNotFound)
	}

	if types.IsInternalID(text) {
		return text, nil
	}

	code := text
	for _, p := range []string{r.prefix + "-", LegacyPrefix + "-"} {
		if strings.HasPrefix(text, p) {
			code = strings.TrimPrefix(text, p)
			break
		}
	}

	m, err := r.mapping()
	if err != nil {
		return "", err
	}
	if internal, ok := m.Internal(code); ok {
		return internal, nil
	}
	return "", fmt.Errorf("%w: no issue matching %q", types.ErrNotFound, input)
}

// Display formats an internal ID as its external ID ("{prefix}-{short}").
// A missing mapping entry is a data-integrity bug: the caller gets an error,
// never a fabricated or truncated code.
func (r *Resolver) Display(internalID string) (string, error) {
	m, err := r.mapping()
	if err != nil {
		return "", err
	}
	short, ok := m.Short(internalID)
	if !ok {
		return "", fmt.Errorf("%w: internal id %s has no mapping entry (run doctor --fix)", types.ErrIntegrity, internalID)
	}
	return r.prefix + "-" + short, nil
}
