package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/petrijr/flux/internal/executor"
	"github.com/petrijr/flux/internal/statemachine"
	"github.com/petrijr/flux/internal/wfcontext"
	"github.com/petrijr/flux/pkg/api"
)

// run is the per-call state of one Execute/Resume/Signal/RetryStep.
type run struct {
	e   *engineImpl
	def api.WorkflowDefinition
	wc  *api.WorkflowContext
	sm  *statemachine.Machine

	started     time.Time
	completedAt *time.Time
	errMsg      string
}

func (e *engineImpl) newRun(def api.WorkflowDefinition, wc *api.WorkflowContext) *run {
	r := &run{
		e:       e,
		def:     def,
		wc:      wc,
		started: time.Now(),
	}
	r.sm = statemachine.New(wc.Status, func(from, to api.Status) {
		wfcontext.UpdateStatus(wc, to)
		e.logger.Debug("workflow status changed",
			slog.String("workflow", wc.Name),
			slog.String("workflow_id", wc.ID),
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)
	})
	return r
}

// guard runs fn and converts a panic into a failed result.
func (r *run) guard(ctx context.Context, fn func() *api.Result) (res *api.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			res = r.fault(ctx, fmt.Errorf("engine panic: %v", rec))
		}
	}()
	return fn()
}

// reenter moves a restored workflow back to running and continues the
// loop at from.
func (r *run) reenter(ctx context.Context, from int) *api.Result {
	switch st := r.sm.Status(); st {
	case api.StatusSuspended, api.StatusPaused, api.StatusPending:
		if err := r.sm.Transition(api.StatusRunning); err != nil {
			return r.fault(ctx, err)
		}
	case api.StatusFailed:
		if err := r.sm.Transition(api.StatusPending); err != nil {
			return r.fault(ctx, err)
		}
		if err := r.sm.Transition(api.StatusRunning); err != nil {
			return r.fault(ctx, err)
		}
	default:
		r.e.logger.DebugContext(ctx, "replaying workflow",
			slog.String("workflow", r.wc.Name),
			slog.String("workflow_id", r.wc.ID),
			slog.String("status", string(st)),
			slog.Int("from_step", from),
		)
		r.sm.ForceStatus(api.StatusRunning)
	}
	r.errMsg = ""
	r.completedAt = nil

	r.emit(ctx, api.EventWorkflowResume, from, "")
	if err := r.save(ctx); err != nil {
		return r.fault(ctx, err)
	}
	return r.loop(ctx, from)
}

func (r *run) loop(ctx context.Context, from int) *api.Result {
	wc := r.wc
	for i := from; i < len(r.def.Steps); i++ {
		step := r.def.Steps[i]
		wfcontext.AdvanceStep(wc, i)
		wfcontext.SetStepName(wc, i, step.Name)
		slot := &wc.History[i]

		r.emit(ctx, api.EventStepStart, i, step.Name)
		r.e.notify(ctx, "OnStepStart", func(o api.Observer) { o.OnStepStart(ctx, step.Name, wc) })

		res := r.e.exec.Execute(ctx, step, wc, slot, func(attempt int, err error, delay time.Duration) {
			r.e.emit(ctx, api.TraceEvent{
				Type:         api.EventStepRetry,
				Timestamp:    time.Now().UTC(),
				WorkflowID:   wc.ID,
				WorkflowName: wc.Name,
				Step:         step.Name,
				StepIndex:    i,
				Attempt:      attempt,
				Error:        err.Error(),
				DurationMs:   delay.Milliseconds(),
			})
		})

		switch res.Outcome {
		case executor.OutcomeSuspended:
			if err := r.sm.Transition(api.StatusSuspended); err != nil {
				return r.fault(ctx, err)
			}
			if err := r.save(ctx); err != nil {
				return r.fault(ctx, err)
			}
			r.emit(ctx, api.EventWorkflowSuspend, i, step.Name)
			return r.result()

		case executor.OutcomeFailed:
			r.e.emit(ctx, api.TraceEvent{
				Type:         api.EventStepError,
				Timestamp:    time.Now().UTC(),
				WorkflowID:   wc.ID,
				WorkflowName: wc.Name,
				Step:         step.Name,
				StepIndex:    i,
				Attempt:      slot.Retries,
				Status:       string(slot.Status),
				Error:        slot.Error,
				DurationMs:   res.Duration.Milliseconds(),
			})
			r.e.notify(ctx, "OnStepError", func(o api.Observer) { o.OnStepError(ctx, step.Name, wc, res.Err) })
			return r.rollback(ctx, i, res.Err)

		default:
			typ := api.EventStepComplete
			if res.Outcome == executor.OutcomeSkipped {
				typ = api.EventStepSkip
			}
			r.e.emit(ctx, api.TraceEvent{
				Type:         typ,
				Timestamp:    time.Now().UTC(),
				WorkflowID:   wc.ID,
				WorkflowName: wc.Name,
				Step:         step.Name,
				StepIndex:    i,
				Attempt:      slot.Retries,
				Status:       string(slot.Status),
				DurationMs:   res.Duration.Milliseconds(),
			})
			sr := api.StepResult{Status: slot.Status, Retries: slot.Retries, Duration: slot.Duration}
			r.e.notify(ctx, "OnStepComplete", func(o api.Observer) { o.OnStepComplete(ctx, step.Name, wc, sr) })
			if err := r.save(ctx); err != nil {
				return r.fault(ctx, err)
			}
		}
	}

	if err := r.sm.Transition(api.StatusCompleted); err != nil {
		return r.fault(ctx, err)
	}
	now := time.Now().UTC()
	r.completedAt = &now
	if err := r.save(ctx); err != nil {
		return r.fault(ctx, err)
	}
	r.emit(ctx, api.EventWorkflowComplete, wc.CurrentStep, "")
	r.e.notify(ctx, "OnWorkflowComplete", func(o api.Observer) { o.OnWorkflowComplete(ctx, wc) })
	return r.result()
}

// rollback compensates completed steps before failed in reverse order.
func (r *run) rollback(ctx context.Context, failed int, cause error) *api.Result {
	// Compensation runs even if the caller's context is already done.
	cctx := context.WithoutCancel(ctx)

	compensated := 0
	for j := failed - 1; j >= 0; j-- {
		step := r.def.Steps[j]
		slot := &r.wc.History[j]
		if step.Compensate == nil || slot.Status != api.StepCompleted {
			continue
		}

		slot.Status = api.StepCompensating
		r.emit(ctx, api.EventStepCompensate, j, step.Name)
		if err := r.save(ctx); err != nil {
			return r.fault(ctx, err)
		}

		if err := compensate(cctx, step, r.wc); err != nil {
			cerr := &api.CompensationError{Step: step.Name, Err: err}
			r.e.logger.ErrorContext(ctx, "compensation failed",
				slog.String("workflow", r.wc.Name),
				slog.String("workflow_id", r.wc.ID),
				slog.String("step", step.Name),
				slog.Any("error", err),
			)
			return r.finishFailed(ctx, api.StatusFailed, cerr)
		}
		slot.Status = api.StepCompensated
		compensated++
	}

	status := api.StatusFailed
	if compensated > 0 {
		status = api.StatusRolledBack
	}
	return r.finishFailed(ctx, status, cause)
}

func compensate(ctx context.Context, step api.StepDefinition, wc *api.WorkflowContext) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("compensate %q panicked: %v", step.Name, rec)
		}
	}()
	return step.Compensate(ctx, wc)
}

// finishFailed ends the call in failed or rolled_back.
func (r *run) finishFailed(ctx context.Context, status api.Status, cause error) *api.Result {
	if err := r.sm.Transition(status); err != nil {
		return r.fault(ctx, err)
	}
	now := time.Now().UTC()
	r.completedAt = &now
	r.errMsg = cause.Error()
	if err := r.save(ctx); err != nil {
		return r.fault(ctx, err)
	}
	r.emitError(ctx)
	r.e.notify(ctx, "OnWorkflowError", func(o api.Observer) { o.OnWorkflowError(ctx, r.wc, cause) })
	return r.result()
}

// fault handles engine-level failures (storage errors, invalid transitions,
// panics). The workflow is forced to failed and a result is still returned.
func (r *run) fault(ctx context.Context, err error) *api.Result {
	r.e.logger.ErrorContext(ctx, "workflow engine fault",
		slog.String("workflow", r.wc.Name),
		slog.String("workflow_id", r.wc.ID),
		slog.Int("step_index", r.wc.CurrentStep),
		slog.Any("error", err),
	)

	r.sm.ForceStatus(api.StatusFailed)
	now := time.Now().UTC()
	r.completedAt = &now
	r.errMsg = err.Error()
	if serr := r.save(ctx); serr != nil {
		r.e.logger.ErrorContext(ctx, "failed to persist faulted workflow",
			slog.String("workflow_id", r.wc.ID),
			slog.Any("error", serr),
		)
	}
	r.emitError(ctx)
	r.e.notify(ctx, "OnWorkflowError", func(o api.Observer) { o.OnWorkflowError(ctx, r.wc, err) })
	return r.result()
}

func (r *run) save(ctx context.Context) error {
	st := wfcontext.ToState(r.wc)
	st.CompletedAt = r.completedAt
	st.Error = r.errMsg
	if err := r.e.store.Save(context.WithoutCancel(ctx), st); err != nil {
		return fmt.Errorf("save workflow %s: %w", r.wc.ID, err)
	}
	return nil
}

func (r *run) emit(ctx context.Context, typ api.EventType, stepIndex int, step string) {
	r.e.emit(ctx, api.TraceEvent{
		Type:         typ,
		Timestamp:    time.Now().UTC(),
		WorkflowID:   r.wc.ID,
		WorkflowName: r.wc.Name,
		Step:         step,
		StepIndex:    stepIndex,
		Status:       string(r.wc.Status),
	})
}

func (r *run) emitError(ctx context.Context) {
	r.e.emit(ctx, api.TraceEvent{
		Type:         api.EventWorkflowError,
		Timestamp:    time.Now().UTC(),
		WorkflowID:   r.wc.ID,
		WorkflowName: r.wc.Name,
		StepIndex:    r.wc.CurrentStep,
		Status:       string(r.wc.Status),
		Error:        r.errMsg,
		DurationMs:   time.Since(r.started).Milliseconds(),
	})
}

func (r *run) result() *api.Result {
	st := wfcontext.ToState(r.wc)
	return &api.Result{
		ID:       st.ID,
		Name:     st.Name,
		Status:   st.Status,
		Data:     st.Data,
		History:  st.History,
		Duration: time.Since(r.started),
		Error:    r.errMsg,
	}
}
