package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/petrijr/flux/internal/taskqueue"
	"github.com/petrijr/flux/pkg/api"
)

var (
	// ErrWorkflowNotFound is returned when a task targets a workflow ID that
	// has no persisted state.
	ErrWorkflowNotFound = errors.New("workflow not found")

	errUnknownTaskType = errors.New("unknown task type")
)

// dequeueRetryDelay throttles Run while the queue itself is failing.
const dequeueRetryDelay = 100 * time.Millisecond

// Config tunes task redelivery.
type Config struct {
	// MaxAttempts is the total number of deliveries of a task whose handler
	// fails with a transient error. Values below 1 mean a single attempt.
	MaxAttempts int

	// Backoff is the delay before the first redelivery. It doubles for each
	// further attempt.
	Backoff time.Duration

	// Registry resolves workflow names. A fresh registry is created if nil.
	Registry *Registry

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// OnResult, if set, is called after every handled task with the engine
	// result (nil when the call returned no result) and the handler error.
	OnResult func(task taskqueue.Task, res *api.Result, err error)
}

// Worker pulls tasks from a Queue and turns them into Engine calls.
type Worker struct {
	engine   api.Engine
	queue    taskqueue.Queue
	registry *Registry
	cfg      Config
	logger   *slog.Logger
}

// New creates a Worker with a single delivery attempt per task.
func New(engine api.Engine, queue taskqueue.Queue) *Worker {
	return NewWithConfig(engine, queue, Config{})
}

// NewWithConfig creates a Worker using cfg.
func NewWithConfig(engine api.Engine, queue taskqueue.Queue, cfg Config) *Worker {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	reg := cfg.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		engine:   engine,
		queue:    queue,
		registry: reg,
		cfg:      cfg,
		logger:   logger,
	}
}

// Register adds definitions to the worker's registry.
func (w *Worker) Register(defs ...api.WorkflowDefinition) error {
	for _, def := range defs {
		if err := w.registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns the registry used to resolve workflow names.
func (w *Worker) Registry() *Registry {
	return w.registry
}

// EnqueueExecute enqueues a task that starts a new instance of the named
// workflow. It does NOT run the workflow itself; that is done by ProcessOne.
func (w *Worker) EnqueueExecute(ctx context.Context, workflowName string, input any) error {
	return w.EnqueueExecuteAt(ctx, workflowName, input, time.Time{})
}

// EnqueueExecuteAt is EnqueueExecute with a NotBefore time.
func (w *Worker) EnqueueExecuteAt(ctx context.Context, workflowName string, input any, at time.Time) error {
	if _, err := w.registry.Get(workflowName); err != nil {
		return err
	}
	return w.queue.Enqueue(ctx, taskqueue.Task{
		Type:         taskqueue.TaskTypeExecute,
		WorkflowName: workflowName,
		Payload:      input,
		NotBefore:    at,
	})
}

// EnqueueSignal enqueues delivery of a named signal to a workflow.
func (w *Worker) EnqueueSignal(ctx context.Context, workflowID, name string, payload any) error {
	return w.EnqueueSignalAt(ctx, workflowID, name, payload, time.Time{})
}

// EnqueueSignalAt enqueues a signal that is delivered no earlier than at.
func (w *Worker) EnqueueSignalAt(ctx context.Context, workflowID, name string, payload any, at time.Time) error {
	return w.queue.Enqueue(ctx, taskqueue.Task{
		Type:       taskqueue.TaskTypeSignal,
		WorkflowID: workflowID,
		SignalName: name,
		Payload:    payload,
		NotBefore:  at,
	})
}

// EnqueueResume enqueues a Resume call for a workflow.
func (w *Worker) EnqueueResume(ctx context.Context, workflowID string, opts api.ResumeOptions) error {
	return w.queue.Enqueue(ctx, taskqueue.Task{
		Type:       taskqueue.TaskTypeResume,
		WorkflowID: workflowID,
		FromStep:   opts.FromStep,
	})
}

// EnqueueRetryStep enqueues a RetryStep call for a workflow.
func (w *Worker) EnqueueRetryStep(ctx context.Context, workflowID, stepName string) error {
	return w.queue.Enqueue(ctx, taskqueue.Task{
		Type:       taskqueue.TaskTypeRetryStep,
		WorkflowID: workflowID,
		StepName:   stepName,
	})
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false: no task was obtained (ctx cancelled or dequeue failed).
//   - processed == true: a task was handled. err is nil on success or when
//     the task was re-queued for another attempt.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	res, err := w.handle(ctx, *task)
	if w.cfg.OnResult != nil {
		w.cfg.OnResult(*task, res, err)
	}
	if err == nil {
		if res != nil {
			w.logger.DebugContext(ctx, "task processed",
				slog.String("task_id", task.ID),
				slog.String("type", string(task.Type)),
				slog.String("workflow_id", res.ID),
				slog.String("status", string(res.Status)),
			)
		}
		return true, nil
	}

	if retryable(err) && task.Attempts+1 < w.cfg.MaxAttempts {
		next := *task
		next.Attempts++
		next.NotBefore = time.Now().Add(w.backoff(task.Attempts))
		if qerr := w.queue.Enqueue(context.WithoutCancel(ctx), next); qerr != nil {
			return true, errors.Join(err, fmt.Errorf("requeue task %s: %w", task.ID, qerr))
		}
		w.logger.WarnContext(ctx, "task failed, requeued",
			slog.String("task_id", task.ID),
			slog.String("type", string(task.Type)),
			slog.Int("attempt", next.Attempts),
			slog.Any("error", err),
		)
		return true, nil
	}
	return true, err
}

// Run calls ProcessOne until ctx is cancelled. Handler errors are logged
// and do not stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		processed, err := w.ProcessOne(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if !processed {
			w.logger.ErrorContext(ctx, "dequeue failed", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(dequeueRetryDelay):
			}
			continue
		}
		w.logger.ErrorContext(ctx, "worker task failed", slog.Any("error", err))
	}
}

func (w *Worker) handle(ctx context.Context, task taskqueue.Task) (*api.Result, error) {
	def, err := w.resolve(ctx, task)
	if err != nil {
		return nil, err
	}

	var res *api.Result
	switch task.Type {
	case taskqueue.TaskTypeExecute:
		return w.engine.Execute(ctx, def, task.Payload)
	case taskqueue.TaskTypeSignal:
		res, err = w.engine.Signal(ctx, def, task.WorkflowID, task.SignalName, task.Payload)
	case taskqueue.TaskTypeResume:
		res, err = w.engine.Resume(ctx, def, task.WorkflowID, api.ResumeOptions{FromStep: task.FromStep})
	case taskqueue.TaskTypeRetryStep:
		res, err = w.engine.RetryStep(ctx, def, task.WorkflowID, task.StepName)
	default:
		return nil, fmt.Errorf("%w %q", errUnknownTaskType, task.Type)
	}
	if err == nil && res == nil {
		// The state vanished between resolve and the engine call.
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, task.WorkflowID)
	}
	return res, err
}

// resolve finds the definition for a task, falling back to the persisted
// state's name for tasks that target an existing workflow.
func (w *Worker) resolve(ctx context.Context, task taskqueue.Task) (api.WorkflowDefinition, error) {
	name := task.WorkflowName
	if name == "" && task.WorkflowID != "" {
		st, err := w.engine.Get(ctx, task.WorkflowID)
		if err != nil {
			return api.WorkflowDefinition{}, err
		}
		if st == nil {
			return api.WorkflowDefinition{}, fmt.Errorf("%w: %s", ErrWorkflowNotFound, task.WorkflowID)
		}
		name = st.Name
	}
	return w.registry.Get(name)
}

func (w *Worker) backoff(attempt int) time.Duration {
	d := w.cfg.Backoff
	for i := 0; i < attempt && d < time.Minute; i++ {
		d *= 2
	}
	return d
}

// retryable reports whether a failed task may succeed on redelivery. A
// signal that overtook its workflow's suspension is the common case.
func retryable(err error) bool {
	permanent := []error{
		api.ErrInvalidInput,
		api.ErrEmptyWorkflow,
		api.ErrSignalMismatch,
		api.ErrStepNotFound,
		api.ErrInvalidStepIndex,
		api.ErrDefinitionMismatch,
		ErrWorkflowNotRegistered,
		ErrWorkflowNotFound,
		errUnknownTaskType,
	}
	for _, p := range permanent {
		if errors.Is(err, p) {
			return false
		}
	}
	return true
}
