// Package identity generates and resolves the dual identifiers of an issue:
// the immutable, time-sortable internal ID and the short human-typable code
// kept in the ID mapping.
package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Internal ID shape: 10 base-36 chars hold the 48-bit unix-millisecond
// timestamp (zero-padded, so lexicographic order is creation order),
// followed by 16 random base-36 chars.
const (
	timestampChars = 10
	randomChars    = 16
	internalIDLen  = timestampChars + randomChars
)

// Generator mints internal IDs. It is owned by the caller and threaded
// through explicitly; IDs from a single generator are strictly increasing
// even for repeated calls within one millisecond tick.
//
// Not safe for concurrent use.
type Generator struct {
	now      func() time.Time
	lastMS   int64
	lastRand []byte // base36 digit values, len randomChars
}

// NewGenerator returns a generator using the wall clock.
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// NewGeneratorAt returns a generator with an injected clock, for tests.
func NewGeneratorAt(now func() time.Time) *Generator {
	return &Generator{now: now}
}

// NewInternalID returns a fresh internal ID. Within the same millisecond the
// previous random suffix is incremented instead of redrawn, which keeps the
// sequence strictly increasing under rapid calls.
func (g *Generator) NewInternalID() (string, error) {
	ms := g.now().UnixMilli() & ((1 << 48) - 1)

	if ms == g.lastMS && g.lastRand != nil {
		if err := incrementBase36(g.lastRand); err != nil {
			return "", fmt.Errorf("id generation: %w", err)
		}
	} else {
		suffix, err := randomBase36Digits(randomChars)
		if err != nil {
			return "", fmt.Errorf("id generation: %w", err)
		}
		g.lastMS = ms
		g.lastRand = suffix
	}

	return encodeTimestamp(ms) + digitsToString(g.lastRand), nil
}

// encodeTimestamp renders a 48-bit millisecond count as 10 zero-padded
// base-36 characters.
func encodeTimestamp(ms int64) string {
	var buf [timestampChars]byte
	for i := timestampChars - 1; i >= 0; i-- {
		buf[i] = base36Alphabet[ms%36]
		ms /= 36
	}
	return string(buf[:])
}

// DecodeTimestamp recovers the creation time embedded in an internal ID.
func DecodeTimestamp(id string) (time.Time, error) {
	if len(id) != internalIDLen {
		return time.Time{}, fmt.Errorf("malformed internal id %q", id)
	}
	var ms int64
	for _, c := range id[:timestampChars] {
		v := strings.IndexRune(base36Alphabet, c)
		if v < 0 {
			return time.Time{}, fmt.Errorf("malformed internal id %q", id)
		}
		ms = ms*36 + int64(v)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func randomBase36Digits(n int) ([]byte, error) {
	max := big.NewInt(36)
	out := make([]byte, n)
	for i := range out {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v.Int64())
	}
	return out, nil
}

// incrementBase36 adds one to a little-endian-from-the-right digit string.
// Overflow of the whole suffix within a single millisecond would need 36^16
// calls; treat it as impossible but fail loudly rather than wrap to an
// earlier ID.
func incrementBase36(digits []byte) error {
	for i := len(digits) - 1; i >= 0; i-- {
		digits[i]++
		if digits[i] < 36 {
			return nil
		}
		digits[i] = 0
	}
	return fmt.Errorf("random suffix overflow")
}

func digitsToString(digits []byte) string {
	buf := make([]byte, len(digits))
	for i, d := range digits {
		buf[i] = base36Alphabet[d]
	}
	return string(buf)
}
