package cache

import "fmt"

// Op is a mutation kind.
type Op string

const (
	OpSet    Op = "set"
	OpDelete Op = "delete"
)

// Mutation is one optimistic write.
type Mutation struct {
	ID         string         `json:"id"`
	Op         Op             `json:"op"`
	Collection string         `json:"collection"`
	DocumentID string         `json:"document_id"`
	Data       map[string]any `json:"data,omitempty"`
}

// Validate checks the mutation shape. A set without a document id is valid;
// the reconciler assigns one.
func (m Mutation) Validate() error {
	if m.Collection == "" {
		return fmt.Errorf("%w: empty collection", ErrInvalidMutation)
	}
	switch m.Op {
	case OpSet:
		if m.Data == nil {
			return fmt.Errorf("%w: set without data", ErrInvalidMutation)
		}
	case OpDelete:
		if m.DocumentID == "" {
			return fmt.Errorf("%w: delete without document id", ErrInvalidMutation)
		}
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidMutation, m.Op)
	}
	return nil
}
