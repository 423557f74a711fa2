package api

import (
	"context"
	"encoding/gob"
	"errors"
	"time"
)

func init() {
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register([]map[string]any{})
	gob.Register(time.Time{})
}

// Status represents the lifecycle state of a workflow instance.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusPaused     Status = "paused"
	StatusSuspended  Status = "suspended"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRolledBack
}

// StepStatus represents the state of a single step execution slot.
type StepStatus string

const (
	StepPending      StepStatus = "pending"
	StepRunning      StepStatus = "running"
	StepCompleted    StepStatus = "completed"
	StepFailed       StepStatus = "failed"
	StepSkipped      StepStatus = "skipped"
	StepSuspended    StepStatus = "suspended"
	StepCompensating StepStatus = "compensating"
	StepCompensated  StepStatus = "compensated"
)

// StepFunc is the body of a step. Returning nil completes the step,
// returning the error produced by WaitForSignal suspends the workflow and
// any other error is a step failure subject to the retry policy.
//
// The context carries the step timeout; handlers that block should observe
// ctx.Done(). A handler that outlives its timeout is not stopped, and the
// engine keeps reading wc while it persists the step outcome. Once
// ctx.Done() fires a handler must return without touching wc (Data,
// History or any other field); writing to it afterwards is a data race and
// may crash the process with a concurrent map write.
type StepFunc func(ctx context.Context, wc *WorkflowContext) error

// CompensateFunc undoes the effect of a previously completed step.
type CompensateFunc func(ctx context.Context, wc *WorkflowContext) error

// ConditionFunc decides whether a step runs at all.
type ConditionFunc func(wc *WorkflowContext) bool

// StepDefinition describes a named step.
type StepDefinition struct {
	Name string
	Fn   StepFunc

	// Retries overrides the engine default number of retries after the
	// first attempt. nil means "use the engine default".
	Retries *int

	// Timeout bounds each attempt. Zero means "use the engine default".
	Timeout time.Duration

	// When, if set and returning false, marks the step skipped.
	When ConditionFunc

	// Commit marks a step whose effect is not meant to be reversed or
	// skipped on replay. The engine treats it as an annotation.
	Commit bool

	// Compensate is invoked during rollback if the step completed.
	Compensate CompensateFunc
}

// WorkflowDefinition describes a workflow as an ordered sequence of steps.
// Definitions are immutable once built and may be shared across executions.
type WorkflowDefinition struct {
	Name  string
	Steps []StepDefinition

	// ValidateInput, if set, guards Engine.Execute.
	ValidateInput func(input any) bool

	index map[string]int
}

// NewWorkflowDefinition builds a definition and its step name index.
// It rejects empty workflows and duplicate step names.
func NewWorkflowDefinition(name string, steps []StepDefinition, validate func(any) bool) (WorkflowDefinition, error) {
	if len(steps) == 0 {
		return WorkflowDefinition{}, ErrEmptyWorkflow
	}
	index := make(map[string]int, len(steps))
	for i, s := range steps {
		if _, dup := index[s.Name]; dup {
			return WorkflowDefinition{}, &DuplicateStepError{Step: s.Name}
		}
		index[s.Name] = i
	}
	cp := make([]StepDefinition, len(steps))
	copy(cp, steps)
	return WorkflowDefinition{
		Name:          name,
		Steps:         cp,
		ValidateInput: validate,
		index:         index,
	}, nil
}

// StepIndex returns the position of the named step.
func (d WorkflowDefinition) StepIndex(name string) (int, bool) {
	if d.index != nil {
		i, ok := d.index[name]
		return i, ok
	}
	// Hand-assembled definitions have no index.
	for i, s := range d.Steps {
		if s.Name == name {
			return i, true
		}
	}
	return -1, false
}

// StepExecution records what happened to one step of one workflow instance.
type StepExecution struct {
	Name        string
	Status      StepStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
	Duration    time.Duration
	Error       string
	Retries     int

	// WaitingFor holds the expected signal name while Status is suspended.
	WaitingFor string

	// Output holds the signal payload once a suspended step is resumed.
	Output any
}

// WorkflowContext is the live, mutable state of a single engine call.
// Data is shared by reference across all step handlers of that call.
type WorkflowContext struct {
	ID          string
	Name        string
	Input       any
	Data        map[string]any
	Status      Status
	CurrentStep int
	History     []StepExecution
	CreatedAt   time.Time
}

// Step returns the execution slot of the named step, or nil.
func (wc *WorkflowContext) Step(name string) *StepExecution {
	for i := range wc.History {
		if wc.History[i].Name == name {
			return &wc.History[i]
		}
	}
	return nil
}

// WorkflowState is the durable snapshot of a WorkflowContext.
type WorkflowState struct {
	ID          string
	Name        string
	Input       any
	Data        map[string]any
	Status      Status
	CurrentStep int
	History     []StepExecution
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// Result is returned to callers of Execute, Resume, Signal and RetryStep.
type Result struct {
	ID       string
	Name     string
	Status   Status
	Data     map[string]any
	History  []StepExecution
	Duration time.Duration
	Error    string
}

// Failed reports whether the workflow ended in failed or rolled_back.
func (r *Result) Failed() bool {
	return r.Status == StatusFailed || r.Status == StatusRolledBack
}

// StepResult is passed to Observer.OnStepComplete.
type StepResult struct {
	Status   StepStatus
	Retries  int
	Duration time.Duration
}

// ListFilter selects persisted workflow states.
// Zero values mean "no filter" for that field.
type ListFilter struct {
	Name   string
	Status Status
	Limit  int
	Offset int
}

// ResumeOptions controls Engine.Resume.
type ResumeOptions struct {
	// FromStep, if set, is the index to continue from instead of the
	// persisted CurrentStep.
	FromStep *int
}

// FromStep is a convenience constructor for ResumeOptions.
func FromStep(i int) ResumeOptions {
	return ResumeOptions{FromStep: &i}
}

// waitForSignalError is returned by steps that want to park the workflow
// until an external signal with the given name arrives.
type waitForSignalError struct {
	Name string
}

func (e *waitForSignalError) Error() string {
	return "waiting for signal: " + e.Name
}

// WaitForSignal returns the wait directive for the given signal name.
// A step returns it instead of completing:
//
//	func(ctx context.Context, wc *api.WorkflowContext) error {
//	    return api.WaitForSignal("approved")
//	}
func WaitForSignal(name string) error {
	return &waitForSignalError{Name: name}
}

// IsWaitForSignal returns (signalName, true) if err is a wait directive.
func IsWaitForSignal(err error) (string, bool) {
	var w *waitForSignalError
	if errors.As(err, &w) {
		return w.Name, true
	}
	return "", false
}

// WaitForSignalStep returns a step that only waits for the named signal.
// Its payload becomes the step's Output once Engine.Signal is delivered.
func WaitForSignalStep(name string) StepFunc {
	return func(ctx context.Context, wc *WorkflowContext) error {
		return WaitForSignal(name)
	}
}
