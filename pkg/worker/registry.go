package worker

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/petrijr/flux/pkg/api"
)

var (
	// ErrWorkflowNotRegistered is returned when a task names a definition
	// the registry does not know.
	ErrWorkflowNotRegistered = errors.New("workflow not registered")

	// ErrAlreadyRegistered is returned when a definition name is reused.
	ErrAlreadyRegistered = errors.New("workflow already registered")
)

// Registry maps workflow names to definitions. Tasks only carry names, so
// every worker resolving a task needs the definitions registered up front.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]api.WorkflowDefinition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]api.WorkflowDefinition),
	}
}

// Register adds def. Names must be unique.
func (r *Registry) Register(def api.WorkflowDefinition) error {
	if def.Name == "" {
		return errors.New("workflow name must not be empty")
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("workflow %q: %w", def.Name, api.ErrEmptyWorkflow)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[def.Name]; exists {
		return fmt.Errorf("%w: %q", ErrAlreadyRegistered, def.Name)
	}
	r.byName[def.Name] = def
	return nil
}

// Get returns the definition registered under name.
func (r *Registry) Get(name string) (api.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.byName[name]
	if !ok {
		return api.WorkflowDefinition{}, fmt.Errorf("%w: %q", ErrWorkflowNotRegistered, name)
	}
	return def, nil
}

// Names returns the registered workflow names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
