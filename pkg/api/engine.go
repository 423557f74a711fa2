package api

import "context"

// Engine runs workflow definitions and persists their progress.
//
// All entry points run the step loop synchronously in the calling
// goroutine. Concurrent Signal/Resume/RetryStep calls against the same
// workflow ID must be serialized by the caller.
type Engine interface {
	// Execute creates a new workflow instance and runs it until it
	// completes, suspends or fails. Only ErrInvalidInput (and
	// ErrEmptyWorkflow for a definition without steps) is returned as an
	// error; step and engine failures are reported through the Result.
	Execute(ctx context.Context, def WorkflowDefinition, input any) (*Result, error)

	// Resume continues a persisted workflow from opts.FromStep or from its
	// current step. It returns (nil, nil) if the workflow does not exist.
	Resume(ctx context.Context, def WorkflowDefinition, id string, opts ResumeOptions) (*Result, error)

	// Signal delivers a named signal to a suspended workflow and continues
	// it from the next step. It returns (nil, nil) if the workflow does
	// not exist.
	Signal(ctx context.Context, def WorkflowDefinition, id string, name string, payload any) (*Result, error)

	// RetryStep re-enters the step loop at the named step, ignoring its
	// recorded status. It returns (nil, nil) if the workflow does not exist.
	RetryStep(ctx context.Context, def WorkflowDefinition, id string, stepName string) (*Result, error)

	// Get returns the persisted state, or (nil, nil) if absent.
	Get(ctx context.Context, id string) (*WorkflowState, error)

	// List returns persisted states matching the filter.
	List(ctx context.Context, filter ListFilter) ([]*WorkflowState, error)

	// Delete removes a persisted workflow. Deleting an unknown ID is not an error.
	Delete(ctx context.Context, id string) error

	// Init prepares the storage backend (schema creation etc.).
	Init(ctx context.Context) error

	// Close releases storage resources.
	Close() error
}
