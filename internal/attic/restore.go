package attic

import (
	"fmt"
	"time"

	"github.com/jlevy/tbd/internal/store"
	"github.com/jlevy/tbd/internal/types"
)

// Restore re-applies an archived value to the live issue as a fresh edit
// (version bump, new updated_at). The attic entry itself stays in place.
func Restore(st *store.Store, entryPath string) (*types.Issue, error) {
	stored, err := Read(entryPath)
	if err != nil {
		return nil, err
	}
	issue, err := st.Get(stored.IssueID)
	if err != nil {
		return nil, err
	}
	if err := applyField(issue, stored.Field, stored.LostValue); err != nil {
		return nil, err
	}
	if err := st.Update(issue); err != nil {
		return nil, err
	}
	return issue, nil
}

func applyField(issue *types.Issue, field string, value any) error {
	switch field {
	case "title":
		s, err := stringValue(field, value)
		if err != nil {
			return err
		}
		issue.Title = s
	case "description":
		s, err := stringValue(field, value)
		if err != nil {
			return err
		}
		issue.Description = s
	case "notes":
		s, err := stringValue(field, value)
		if err != nil {
			return err
		}
		issue.Notes = s
	case "status":
		s, err := stringValue(field, value)
		if err != nil {
			return err
		}
		status, err := types.ParseStatus(s)
		if err != nil {
			return err
		}
		issue.Status = status
		if status == types.StatusClosed && issue.ClosedAt == nil {
			t := time.Now().UTC()
			issue.ClosedAt = &t
		}
		if status != types.StatusClosed {
			issue.ClosedAt = nil
		}
	case "kind":
		s, err := stringValue(field, value)
		if err != nil {
			return err
		}
		kind, err := types.ParseKind(s)
		if err != nil {
			return err
		}
		issue.Kind = kind
	case "priority":
		n, ok := value.(int)
		if !ok {
			return fmt.Errorf("%w: attic priority value %v is not an integer", types.ErrIntegrity, value)
		}
		p, err := types.ParsePriority(n)
		if err != nil {
			return err
		}
		issue.Priority = p
	case "assignee":
		issue.Assignee = optString(value)
	case "parent":
		p := optString(value)
		if p != nil && !types.IsInternalID(*p) {
			return fmt.Errorf("%w: attic parent value %q is not an internal id", types.ErrIntegrity, *p)
		}
		issue.Parent = p
	case "closed_at":
		t, err := optTime(field, value)
		if err != nil {
			return err
		}
		issue.ClosedAt = t
		if t == nil && issue.Status == types.StatusClosed {
			issue.Status = types.StatusOpen
		}
	case "created_at":
		t, err := optTime(field, value)
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("%w: attic created_at value is null", types.ErrIntegrity)
		}
		issue.CreatedAt = *t
	default:
		return fmt.Errorf("%w: attic entry for unknown field %q", types.ErrIntegrity, field)
	}
	return nil
}

func stringValue(field string, value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: attic %s value %v is not a string", types.ErrIntegrity, field, value)
	}
	return s, nil
}

func optString(value any) *string {
	if value == nil {
		return nil
	}
	if s, ok := value.(string); ok {
		return &s
	}
	return nil
}

func optTime(field string, value any) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("%w: attic %s value %v is not a timestamp", types.ErrIntegrity, field, value)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("%w: attic %s value %q: %v", types.ErrIntegrity, field, s, err)
	}
	u := t.UTC()
	return &u, nil
}
