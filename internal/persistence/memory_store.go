package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/petrijr/flux/internal/wfcontext"
	"github.com/petrijr/flux/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe Store backed by a map.
// States are deep-copied on the way in and out so callers never share
// mutable data with the store.
type InMemoryStore struct {
	mu     sync.RWMutex
	states map[string]*api.WorkflowState
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		states: make(map[string]*api.WorkflowState),
	}
}

// Ensure InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) Save(ctx context.Context, state *api.WorkflowState) error {
	cp := wfcontext.CloneState(state)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state.ID] = cp
	return nil
}

func (s *InMemoryStore) Load(ctx context.Context, id string) (*api.WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[id]
	if !ok {
		return nil, ErrStateNotFound
	}
	return wfcontext.CloneState(state), nil
}

func (s *InMemoryStore) List(ctx context.Context, filter api.ListFilter) ([]*api.WorkflowState, error) {
	s.mu.RLock()
	result := make([]*api.WorkflowState, 0, len(s.states))
	for _, state := range s.states {
		if matches(state, filter) {
			result = append(result, wfcontext.CloneState(state))
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return page(result, filter), nil
}

func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, id)
	return nil
}
