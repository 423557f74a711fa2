package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/petrijr/flux/internal/executor"
	"github.com/petrijr/flux/internal/persistence"
	"github.com/petrijr/flux/internal/trace"
	"github.com/petrijr/flux/internal/wfcontext"
	"github.com/petrijr/flux/pkg/api"
)

// engineImpl is a synchronous, in-process engine. Every entry point runs
// the step loop in the calling goroutine.
type engineImpl struct {
	store    persistence.Store
	exec     *executor.Executor
	observer api.Observer
	sink     api.TraceSink
	logger   *slog.Logger
}

// Config describes how to construct an engineImpl.
// External callers use the constructors in package flux.
type Config struct {
	Store     persistence.Store
	Executor  executor.Executor
	Observer  api.Observer
	TraceSink api.TraceSink
	Logger    *slog.Logger
}

// NewInMemoryEngine returns an engine over a fresh InMemoryStore with
// zero retries and no step timeout.
func NewInMemoryEngine() api.Engine {
	return NewEngine(persistence.NewInMemoryStore())
}

// NewEngine returns an engine over store with default settings.
func NewEngine(store persistence.Store) api.Engine {
	return NewEngineWithConfig(Config{Store: store})
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	return newEngine(cfg)
}

func newEngine(cfg Config) *engineImpl {
	store := cfg.Store
	if store == nil {
		store = persistence.NewInMemoryStore()
	}
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	sink := cfg.TraceSink
	if sink == nil {
		sink = trace.Noop{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	x := cfg.Executor
	return &engineImpl{
		store:    store,
		exec:     &x,
		observer: obs,
		sink:     sink,
		logger:   logger,
	}
}

func (e *engineImpl) Execute(ctx context.Context, def api.WorkflowDefinition, input any) (*api.Result, error) {
	if err := validateInput(def, input); err != nil {
		return nil, err
	}
	if len(def.Steps) == 0 {
		return nil, api.ErrEmptyWorkflow
	}

	wc := wfcontext.Create(def.Name, input, len(def.Steps))
	for i, s := range def.Steps {
		wfcontext.SetStepName(wc, i, s.Name)
	}
	r := e.newRun(def, wc)

	return r.guard(ctx, func() *api.Result {
		if err := r.save(ctx); err != nil {
			return r.fault(ctx, err)
		}
		if err := r.sm.Transition(api.StatusRunning); err != nil {
			return r.fault(ctx, err)
		}
		r.emit(ctx, api.EventWorkflowStart, 0, "")
		if err := r.save(ctx); err != nil {
			return r.fault(ctx, err)
		}
		return r.loop(ctx, 0)
	}), nil
}

// validateInput runs the definition's validator. A panicking validator
// rejects the input.
func validateInput(def api.WorkflowDefinition, input any) (err error) {
	if def.ValidateInput == nil {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w for workflow %q: validator panicked: %v", api.ErrInvalidInput, def.Name, rec)
		}
	}()
	if !def.ValidateInput(input) {
		return fmt.Errorf("%w for workflow %q", api.ErrInvalidInput, def.Name)
	}
	return nil
}

func (e *engineImpl) Resume(ctx context.Context, def api.WorkflowDefinition, id string, opts api.ResumeOptions) (*api.Result, error) {
	r, err := e.load(ctx, def, id)
	if r == nil || err != nil {
		return nil, err
	}

	from := r.wc.CurrentStep
	if opts.FromStep != nil {
		from = *opts.FromStep
		if from < 0 || from >= len(def.Steps) {
			return nil, fmt.Errorf("%w: %d (workflow has %d steps)", api.ErrInvalidStepIndex, from, len(def.Steps))
		}
	}

	return r.guard(ctx, func() *api.Result {
		wfcontext.ResetFrom(r.wc, from)
		return r.reenter(ctx, from)
	}), nil
}

func (e *engineImpl) Signal(ctx context.Context, def api.WorkflowDefinition, id string, name string, payload any) (*api.Result, error) {
	r, err := e.load(ctx, def, id)
	if r == nil || err != nil {
		return nil, err
	}

	if r.sm.Status() != api.StatusSuspended {
		return nil, fmt.Errorf("%w: workflow %s is %s", api.ErrNotSuspended, id, r.sm.Status())
	}
	k := -1
	for i := range r.wc.History {
		if r.wc.History[i].Status == api.StepSuspended {
			k = i
			break
		}
	}
	if k < 0 {
		return nil, fmt.Errorf("%w: workflow %s has no suspended step", api.ErrNotSuspended, id)
	}
	slot := &r.wc.History[k]
	if slot.WaitingFor != name {
		return nil, &api.SignalMismatchError{Expected: slot.WaitingFor, Received: name}
	}

	return r.guard(ctx, func() *api.Result {
		now := time.Now().UTC()
		slot.Output = payload
		slot.Status = api.StepCompleted
		slot.CompletedAt = &now
		if slot.StartedAt != nil {
			slot.Duration = now.Sub(*slot.StartedAt)
		}
		slot.WaitingFor = ""
		return r.reenter(ctx, k+1)
	}), nil
}

func (e *engineImpl) RetryStep(ctx context.Context, def api.WorkflowDefinition, id string, stepName string) (*api.Result, error) {
	r, err := e.load(ctx, def, id)
	if r == nil || err != nil {
		return nil, err
	}

	i, ok := def.StepIndex(stepName)
	if !ok {
		return nil, fmt.Errorf("%w: %q in workflow %q", api.ErrStepNotFound, stepName, def.Name)
	}

	return r.guard(ctx, func() *api.Result {
		wfcontext.ResetFrom(r.wc, i)
		return r.reenter(ctx, i)
	}), nil
}

func (e *engineImpl) Get(ctx context.Context, id string) (*api.WorkflowState, error) {
	st, err := e.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrStateNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return st, nil
}

func (e *engineImpl) List(ctx context.Context, filter api.ListFilter) ([]*api.WorkflowState, error) {
	return e.store.List(ctx, filter)
}

func (e *engineImpl) Delete(ctx context.Context, id string) error {
	return e.store.Delete(ctx, id)
}

func (e *engineImpl) Init(ctx context.Context) error {
	if in, ok := e.store.(persistence.Initializer); ok {
		return in.Init(ctx)
	}
	return nil
}

func (e *engineImpl) Close() error {
	if c, ok := e.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// RecoverStuck marks workflows left in running (for example after a crash
// mid-call) as failed, so they can be re-entered with Resume or RetryStep.
// It returns the number of workflows updated.
func (e *engineImpl) RecoverStuck(ctx context.Context) (int, error) {
	states, err := e.store.List(ctx, api.ListFilter{Status: api.StatusRunning})
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, st := range states {
		now := time.Now().UTC()
		st.Status = api.StatusFailed
		st.Error = "interrupted while running"
		st.UpdatedAt = now
		st.CompletedAt = &now
		if err := e.store.Save(ctx, st); err != nil {
			return recovered, fmt.Errorf("recover workflow %s: %w", st.ID, err)
		}
		e.logger.WarnContext(ctx, "recovered stuck workflow",
			slog.String("workflow", st.Name),
			slog.String("workflow_id", st.ID),
			slog.Int("step_index", st.CurrentStep),
		)
		recovered++
	}
	return recovered, nil
}

// load restores a persisted workflow into a run. A missing workflow yields
// (nil, nil).
func (e *engineImpl) load(ctx context.Context, def api.WorkflowDefinition, id string) (*run, error) {
	st, err := e.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrStateNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load workflow %s: %w", id, err)
	}
	if st.Name != def.Name || len(st.History) != len(def.Steps) {
		return nil, fmt.Errorf("%w: workflow %s is %q with %d steps, definition is %q with %d steps",
			api.ErrDefinitionMismatch, id, st.Name, len(st.History), def.Name, len(def.Steps))
	}

	r := e.newRun(def, wfcontext.Restore(st))
	r.completedAt = st.CompletedAt
	r.errMsg = st.Error
	return r, nil
}

// emit sends an event to the trace sink. Sink failures are logged only.
func (e *engineImpl) emit(ctx context.Context, ev api.TraceEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.WarnContext(ctx, "trace sink panicked",
				slog.String("event", string(ev.Type)),
				slog.Any("panic", rec),
			)
		}
	}()
	if err := e.sink.Emit(ctx, ev); err != nil {
		e.logger.WarnContext(ctx, "trace sink failed",
			slog.String("event", string(ev.Type)),
			slog.String("workflow_id", ev.WorkflowID),
			slog.Any("error", err),
		)
	}
}

// notify invokes an observer callback. Panics are logged only.
func (e *engineImpl) notify(ctx context.Context, callback string, fn func(api.Observer)) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.WarnContext(ctx, "observer panicked",
				slog.String("callback", callback),
				slog.Any("panic", rec),
			)
		}
	}()
	fn(e.observer)
}
