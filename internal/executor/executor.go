// Package executor runs a single step with its retry, timeout and skip
// policy. It mutates only the execution slot it is given; persistence and
// tracing belong to the engine.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/petrijr/flux/pkg/api"
)

// Outcome is the exhaustive result of running one step.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeSkipped
	OutcomeSuspended
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSuspended:
		return "suspended"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result describes how a step ended.
type Result struct {
	Outcome Outcome

	// Signal is set for OutcomeSuspended.
	Signal string

	// Err is a *api.StepError for OutcomeFailed.
	Err error

	Duration time.Duration
}

// Success reports whether the workflow may continue with the next step.
func (r Result) Success() bool {
	return r.Outcome == OutcomeCompleted || r.Outcome == OutcomeSkipped
}

// RetryFunc is notified before the executor sleeps ahead of attempt.
type RetryFunc func(attempt int, err error, delay time.Duration)

// Defaults used when an Executor field is left zero.
const (
	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = 10 * time.Second
)

// Executor holds the engine-wide step defaults.
type Executor struct {
	// DefaultRetries applies to steps without their own Retries.
	DefaultRetries int

	// DefaultTimeout applies to steps without their own Timeout.
	// Zero or negative disables the timeout.
	DefaultTimeout time.Duration

	// BackoffBase and BackoffMax shape the delay between attempts:
	// min(BackoffBase * 2^attempt, BackoffMax).
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Execute runs step against wc and records progress in slot.
func (x *Executor) Execute(
	ctx context.Context,
	step api.StepDefinition,
	wc *api.WorkflowContext,
	slot *api.StepExecution,
	onRetry RetryFunc,
) Result {
	skip, err := x.shouldSkip(step, wc)
	if err != nil {
		return x.fail(step, slot, time.Now().UTC(), 0, err)
	}
	if skip {
		slot.Status = api.StepSkipped
		slot.Duration = 0
		return Result{Outcome: OutcomeSkipped}
	}

	start := time.Now().UTC()
	slot.Status = api.StepRunning
	slot.StartedAt = &start
	slot.CompletedAt = nil
	slot.Error = ""
	slot.WaitingFor = ""

	maxRetries := x.DefaultRetries
	if step.Retries != nil {
		maxRetries = *step.Retries
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = x.DefaultTimeout
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		slot.Retries = attempt

		err := x.attempt(ctx, step, wc, timeout)
		if err == nil {
			end := time.Now().UTC()
			slot.Status = api.StepCompleted
			slot.CompletedAt = &end
			slot.Duration = end.Sub(start)
			return Result{Outcome: OutcomeCompleted, Duration: slot.Duration}
		}

		if sig, ok := api.IsWaitForSignal(err); ok {
			slot.Status = api.StepSuspended
			slot.WaitingFor = sig
			slot.Duration = time.Since(start)
			return Result{Outcome: OutcomeSuspended, Signal: sig, Duration: slot.Duration}
		}

		lastErr = err
		if attempt == maxRetries || ctx.Err() != nil {
			break
		}

		delay := x.backoff(attempt)
		if onRetry != nil {
			onRetry(attempt+1, err, delay)
		}
		if !sleep(ctx, delay) {
			break
		}
	}

	return x.fail(step, slot, start, slot.Retries, lastErr)
}

func (x *Executor) fail(step api.StepDefinition, slot *api.StepExecution, start time.Time, attempt int, err error) Result {
	end := time.Now().UTC()
	if slot.StartedAt == nil {
		slot.StartedAt = &start
	}
	slot.Status = api.StepFailed
	slot.Error = err.Error()
	slot.CompletedAt = &end
	slot.Duration = end.Sub(start)
	return Result{
		Outcome:  OutcomeFailed,
		Err:      &api.StepError{Step: step.Name, Attempt: attempt, Err: err},
		Duration: slot.Duration,
	}
}

func (x *Executor) shouldSkip(step api.StepDefinition, wc *api.WorkflowContext) (skip bool, err error) {
	if step.When == nil {
		return false, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("when predicate panicked: %v", r)
		}
	}()
	return !step.When(wc), nil
}

// attempt runs the handler once, racing it against the timeout. A handler
// that ignores its context keeps running after a timeout; only its result
// is discarded, and it must not touch wc from then on (see api.StepFunc).
func (x *Executor) attempt(ctx context.Context, step api.StepDefinition, wc *api.WorkflowContext, timeout time.Duration) error {
	stepCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("step %q panicked: %v", step.Name, r)
			}
		}()
		done <- step.Fn(stepCtx, wc)
	}()

	select {
	case err := <-done:
		if err != nil && timedOut(ctx, stepCtx) {
			return fmt.Errorf("%w after %s", api.ErrStepTimeout, timeout)
		}
		return err
	case <-stepCtx.Done():
		if timedOut(ctx, stepCtx) {
			return fmt.Errorf("%w after %s", api.ErrStepTimeout, timeout)
		}
		return ctx.Err()
	}
}

func timedOut(parent, stepCtx context.Context) bool {
	return parent.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded)
}

func (x *Executor) backoff(attempt int) time.Duration {
	base := x.BackoffBase
	if base <= 0 {
		base = DefaultBackoffBase
	}
	limit := x.BackoffMax
	if limit <= 0 {
		limit = DefaultBackoffMax
	}
	d := base
	for i := 0; i < attempt && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		d = limit
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
