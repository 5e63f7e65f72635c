// Package canonical produces the single deterministic serialization of an
// issue and the content hash derived from it. The hash is the authoritative
// "did this change" signal for sync: two clones holding logically equal
// records must hash identically regardless of field order, label order, or
// edit counters.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jlevy/tbd/internal/types"
)

// Encode returns the canonical JSON form of an issue:
//   - keys lexicographically sorted at every level
//   - labels sorted (unordered set)
//   - dependencies sorted by target (the relation is a set)
//   - explicit null for set-but-empty optionals (assignee, closed_at, parent)
//   - CRLF normalized to LF in all text fields
//   - timestamps RFC3339-nano in UTC
//   - version excluded, so re-saving identical content hashes identically
func Encode(issue *types.Issue) []byte {
	var b strings.Builder
	b.WriteByte('{')

	writeKey(&b, "assignee", false)
	writeOptString(&b, issue.Assignee)

	writeKey(&b, "closed_at", true)
	writeOptTime(&b, issue.ClosedAt)

	writeKey(&b, "created_at", true)
	writeTime(&b, issue.CreatedAt)

	writeKey(&b, "dependencies", true)
	writeDependencies(&b, issue.Dependencies)

	writeKey(&b, "description", true)
	writeString(&b, normalizeText(issue.Description))

	writeKey(&b, "id", true)
	writeString(&b, issue.ID)

	writeKey(&b, "kind", true)
	writeString(&b, string(issue.Kind))

	writeKey(&b, "labels", true)
	writeLabels(&b, issue.Labels)

	writeKey(&b, "notes", true)
	writeString(&b, normalizeText(issue.Notes))

	writeKey(&b, "parent", true)
	writeOptString(&b, issue.Parent)

	writeKey(&b, "priority", true)
	b.WriteString(strconv.Itoa(int(issue.Priority)))

	writeKey(&b, "status", true)
	writeString(&b, string(issue.Status))

	writeKey(&b, "title", true)
	writeString(&b, normalizeText(issue.Title))

	writeKey(&b, "updated_at", true)
	writeTime(&b, issue.UpdatedAt)

	b.WriteByte('}')
	return []byte(b.String())
}

// Hash returns the 256-bit content digest of the canonical form, hex-encoded.
func Hash(issue *types.Issue) string {
	sum := sha256.Sum256(Encode(issue))
	return hex.EncodeToString(sum[:])
}

// Equal reports whether two issues hold identical semantic content.
func Equal(a, b *types.Issue) bool {
	return Hash(a) == Hash(b)
}

// SortedLabels returns the label set sorted and deduplicated.
func SortedLabels(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	out := append([]string(nil), labels...)
	sort.Strings(out)
	dedup := out[:1]
	for _, l := range out[1:] {
		if l != dedup[len(dedup)-1] {
			dedup = append(dedup, l)
		}
	}
	return dedup
}

// SortedDependencies returns the dependency set sorted by target and
// deduplicated.
func SortedDependencies(deps []types.Dependency) []types.Dependency {
	if len(deps) == 0 {
		return nil
	}
	out := append([]types.Dependency(nil), deps...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Target != out[j].Target {
			return out[i].Target < out[j].Target
		}
		return out[i].Relation < out[j].Relation
	})
	dedup := out[:1]
	for _, d := range out[1:] {
		last := dedup[len(dedup)-1]
		if d != last {
			dedup = append(dedup, d)
		}
	}
	return dedup
}

func normalizeText(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

func writeKey(b *strings.Builder, key string, comma bool) {
	if comma {
		b.WriteByte(',')
	}
	writeString(b, key)
	b.WriteByte(':')
}

func writeString(b *strings.Builder, s string) {
	// json.Marshal of a string never fails and gives us stable escaping.
	enc, _ := json.Marshal(s)
	b.Write(enc)
}

// writeOptString distinguishes the intentionally-empty optional (explicit
// null) from a present value. A missing key would be a different, third
// encoding; canonical form always writes the key.
func writeOptString(b *strings.Builder, s *string) {
	if s == nil {
		b.WriteString("null")
		return
	}
	writeString(b, normalizeText(*s))
}

func writeTime(b *strings.Builder, t time.Time) {
	writeString(b, t.UTC().Format(time.RFC3339Nano))
}

func writeOptTime(b *strings.Builder, t *time.Time) {
	if t == nil {
		b.WriteString("null")
		return
	}
	writeTime(b, *t)
}

func writeLabels(b *strings.Builder, labels []string) {
	b.WriteByte('[')
	for i, l := range SortedLabels(labels) {
		if i > 0 {
			b.WriteByte(',')
		}
		writeString(b, l)
	}
	b.WriteByte(']')
}

func writeDependencies(b *strings.Builder, deps []types.Dependency) {
	b.WriteByte('[')
	for i, d := range SortedDependencies(deps) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(`{"relation":`)
		writeString(b, d.Relation)
		b.WriteString(`,"target":`)
		writeString(b, d.Target)
		b.WriteByte('}')
	}
	b.WriteByte(']')
}

