package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// DefaultShortLength is the short-code length for small projects.
const DefaultShortLength = 4

// shortRetriesPerLength bounds collision retries before widening the code.
const shortRetriesPerLength = 16

// widenThreshold is the mapping size at which 4-char codes give way to
// 5-char codes; every further 36x multiple adds another character.
const widenThreshold = 50_000

// ShortTable is the view of the ID mapping the generator needs.
type ShortTable interface {
	// HasShort reports whether a short code is already assigned.
	HasShort(code string) bool
	// Len returns the number of assigned codes.
	Len() int
}

// ShortLengthFor computes the code length appropriate for a mapping of the
// given size. Length escalates before the space gets crowded enough for
// collisions to dominate.
func ShortLengthFor(size int) int {
	length := DefaultShortLength
	threshold := widenThreshold
	for size >= threshold {
		length++
		threshold *= 36
	}
	return length
}

// NewShortCode returns a base-36 code absent from the mapping. Codes start
// at the adaptive length for the current mapping size; after a bounded
// number of collisions the length widens and the search restarts.
func NewShortCode(table ShortTable) (string, error) {
	length := ShortLengthFor(table.Len())
	for ; length <= internalIDLen; length++ {
		for attempt := 0; attempt < shortRetriesPerLength; attempt++ {
			code, err := randomShort(length)
			if err != nil {
				return "", fmt.Errorf("short code generation: %w", err)
			}
			if !table.HasShort(code) {
				return code, nil
			}
		}
	}
	return "", fmt.Errorf("short code generation: space exhausted")
}

// ValidShortCode reports whether a code is usable as-is: non-empty,
// lowercase base-36, and not shaped like an internal ID.
func ValidShortCode(code string) bool {
	if code == "" || len(code) >= internalIDLen {
		return false
	}
	for _, c := range code {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}

func randomShort(length int) (string, error) {
	max := big.NewInt(36)
	buf := make([]byte, length)
	for i := range buf {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = base36Alphabet[v.Int64()]
	}
	return string(buf), nil
}
