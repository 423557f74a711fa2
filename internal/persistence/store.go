package persistence

import (
	"context"
	"errors"

	"github.com/petrijr/flux/pkg/api"
)

// ErrStateNotFound is returned when a workflow state is not found.
var ErrStateNotFound = errors.New("workflow state not found")

// Store persists workflow state snapshots by ID.
//
// Save and Load must be individually atomic for a given ID. The engine does
// no locking of its own.
type Store interface {
	// Save inserts or replaces the state with the same ID.
	Save(ctx context.Context, state *api.WorkflowState) error
	// Load returns ErrStateNotFound for unknown IDs.
	Load(ctx context.Context, id string) (*api.WorkflowState, error)
	// List returns states matching the filter ordered by creation time.
	List(ctx context.Context, filter api.ListFilter) ([]*api.WorkflowState, error)
	// Delete removes a state. Unknown IDs are not an error.
	Delete(ctx context.Context, id string) error
}

// Initializer is implemented by stores that need to prepare their backend
// (schema, indexes, connectivity checks). Init must be idempotent.
type Initializer interface {
	Init(ctx context.Context) error
}

// matches reports whether s passes the name/status parts of filter.
func matches(s *api.WorkflowState, filter api.ListFilter) bool {
	if filter.Name != "" && s.Name != filter.Name {
		return false
	}
	if filter.Status != "" && s.Status != filter.Status {
		return false
	}
	return true
}

// page applies Offset and Limit to an already ordered slice.
func page(states []*api.WorkflowState, filter api.ListFilter) []*api.WorkflowState {
	if filter.Offset > 0 {
		if filter.Offset >= len(states) {
			return []*api.WorkflowState{}
		}
		states = states[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(states) {
		states = states[:filter.Limit]
	}
	return states
}
