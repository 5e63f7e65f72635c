package store

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jlevy/tbd/internal/canonical"
	"github.com/jlevy/tbd/internal/types"
)

const frontMatterDelim = "---\n"

// Serialize renders an issue as a record file: YAML front matter with keys
// in a fixed order, then the description, then the notes section. The same
// issue always produces the same bytes.
func Serialize(issue *types.Issue) []byte {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, value *yaml.Node) {
		doc.Content = append(doc.Content, scalarNode(key), value)
	}

	add("assignee", optStringNode(issue.Assignee))
	add("closed_at", optTimeNode(issue.ClosedAt))
	add("created_at", timeNode(issue.CreatedAt))
	add("dependencies", depsNode(canonical.SortedDependencies(issue.Dependencies)))
	add("id", scalarNode(issue.ID))
	add("kind", scalarNode(string(issue.Kind)))
	add("labels", labelsNode(canonical.SortedLabels(issue.Labels)))
	add("parent", optStringNode(issue.Parent))
	add("priority", scalarNode(int(issue.Priority)))
	add("status", scalarNode(string(issue.Status)))
	add("title", scalarNode(issue.Title))
	add("updated_at", timeNode(issue.UpdatedAt))
	add("version", scalarNode(issue.Version))

	var fm bytes.Buffer
	enc := yaml.NewEncoder(&fm)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		// All node values come from validated issue fields.
		panic(fmt.Sprintf("encoding front matter: %v", err))
	}
	enc.Close()

	var b bytes.Buffer
	b.WriteString(frontMatterDelim)
	b.Write(fm.Bytes())
	b.WriteString(frontMatterDelim)

	if issue.Description != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(issue.Description, "\n"))
		b.WriteString("\n")
	}
	if issue.Notes != "" {
		b.WriteString("\n")
		b.WriteString(notesHeading)
		b.WriteString("\n\n")
		b.WriteString(strings.Trim(issue.Notes, "\n"))
		b.WriteString("\n")
	}
	return b.Bytes()
}

// Parse reads a record file back into an issue. The result is structurally
// parsed but not validated; callers run Validate where it matters.
func Parse(data []byte) (*types.Issue, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, frontMatterDelim) {
		return nil, fmt.Errorf("%w: record has no front matter", types.ErrValidation)
	}
	rest := text[len(frontMatterDelim):]
	var fm, body string
	switch end := strings.Index(rest, "\n"+frontMatterDelim); {
	case end >= 0:
		fm = rest[:end+1]
		body = strings.TrimLeft(rest[end+1+len(frontMatterDelim):], "\n")
	case strings.HasSuffix(rest, "\n---"):
		// A body-less record may arrive with its final newline stripped.
		fm = rest[:len(rest)-len("---")]
	default:
		return nil, fmt.Errorf("%w: unterminated front matter", types.ErrValidation)
	}

	var issue types.Issue
	if err := yaml.Unmarshal([]byte(fm), &issue); err != nil {
		return nil, fmt.Errorf("%w: bad front matter: %v", types.ErrValidation, err)
	}
	issue.CreatedAt = issue.CreatedAt.UTC()
	issue.UpdatedAt = issue.UpdatedAt.UTC()
	if issue.ClosedAt != nil {
		t := issue.ClosedAt.UTC()
		issue.ClosedAt = &t
	}

	issue.Description, issue.Notes = splitBody(body)
	return &issue, nil
}

func splitBody(body string) (description, notes string) {
	marker := notesHeading + "\n"
	switch {
	case body == notesHeading:
		return "", ""
	case strings.HasPrefix(body, marker):
		return "", strings.Trim(body[len(marker):], "\n")
	}
	if i := strings.Index(body, "\n"+marker); i >= 0 {
		return strings.TrimRight(body[:i], "\n"), strings.Trim(body[i+1+len(marker):], "\n")
	}
	return strings.TrimRight(body, "\n"), ""
}

func scalarNode(v any) *yaml.Node {
	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		panic(fmt.Sprintf("encoding scalar %v: %v", v, err))
	}
	return n
}

func optStringNode(v *string) *yaml.Node {
	if v == nil {
		return nullNode()
	}
	return scalarNode(*v)
}

// timeNode emits a plain (unquoted) scalar so the value resolves as a YAML
// timestamp and decodes straight into time.Time.
func timeNode(t time.Time) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: t.UTC().Format(time.RFC3339Nano)}
}

func optTimeNode(t *time.Time) *yaml.Node {
	if t == nil {
		return nullNode()
	}
	return timeNode(*t)
}

func nullNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
}

func labelsNode(labels []string) *yaml.Node {
	if len(labels) == 0 {
		return &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle, Tag: "!!seq"}
	}
	return scalarNode(labels)
}

func depsNode(deps []types.Dependency) *yaml.Node {
	if len(deps) == 0 {
		return &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle, Tag: "!!seq"}
	}
	return scalarNode(deps)
}
