package api

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned by Engine.Execute when the definition's
	// input validator rejects the input. No state is created.
	ErrInvalidInput = errors.New("invalid workflow input")

	// ErrEmptyWorkflow is returned when a workflow has no steps.
	ErrEmptyWorkflow = errors.New("workflow must have at least one step")

	// ErrDuplicateStep is returned when two steps share a name.
	ErrDuplicateStep = errors.New("duplicate step name")

	// ErrStepTimeout is recorded when a step attempt exceeds its timeout.
	ErrStepTimeout = errors.New("step timed out")

	// ErrInvalidStepIndex is returned by Resume for an out of range FromStep.
	ErrInvalidStepIndex = errors.New("invalid step index")

	// ErrNotSuspended is returned by Signal for a workflow that is not
	// waiting for a signal.
	ErrNotSuspended = errors.New("workflow is not suspended")

	// ErrSignalMismatch is returned by Signal when the signal name does not
	// match the one the workflow waits for.
	ErrSignalMismatch = errors.New("signal mismatch")

	// ErrStepNotFound is returned by RetryStep for an unknown step name.
	ErrStepNotFound = errors.New("step not found")

	// ErrInvalidTransition is returned by the state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDefinitionMismatch is returned when a persisted workflow does not
	// belong to the definition passed in.
	ErrDefinitionMismatch = errors.New("workflow definition mismatch")
)

// DuplicateStepError names the offending step.
type DuplicateStepError struct {
	Step string
}

func (e *DuplicateStepError) Error() string {
	return fmt.Sprintf("duplicate step name %q", e.Step)
}

func (e *DuplicateStepError) Unwrap() error { return ErrDuplicateStep }

// StepError is a handler failure, recorded after retries are exhausted.
type StepError struct {
	Step    string
	Attempt int
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed after %d attempt(s): %v", e.Step, e.Attempt+1, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// CompensationError is a failure of a compensate handler during rollback.
// It is fatal: the workflow ends failed instead of rolled_back.
type CompensationError struct {
	Step string
	Err  error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation of step %q failed: %v", e.Step, e.Err)
}

func (e *CompensationError) Unwrap() error { return e.Err }

// SignalMismatchError names both the expected and the received signal.
type SignalMismatchError struct {
	Expected string
	Received string
}

func (e *SignalMismatchError) Error() string {
	return fmt.Sprintf("signal mismatch: expected %q, received %q", e.Expected, e.Received)
}

func (e *SignalMismatchError) Unwrap() error { return ErrSignalMismatch }

// TransitionError describes a rejected status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
