package flux

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/petrijr/flux/internal/taskqueue"
	"github.com/petrijr/flux/pkg/worker"
)

// ErrRunnerStarted is returned by StartWorkers when workers are already
// running.
var ErrRunnerStarted = errors.New("flux: LocalRunner already started")

// LocalRunner bundles an in-memory Engine, an in-memory task queue, and a
// Worker to provide a simple "local runner" for development and tests.
//
// Typical usage:
//
//	runner := flux.NewLocalRunner()
//	def := flux.New("my-flow").Step(...).MustBuild()
//	_ = runner.Register(def)
//
//	// Synchronous run (no queue/worker involved):
//	res, err := runner.Engine.Execute(ctx, def, input)
//
//	// Asynchronous run:
//	_ = runner.StartWorkers(ctx, 2)
//	_ = runner.ExecuteAsync(ctx, def.Name, input)
//	...
//	_ = runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory workflow engine used by this runner.
	Engine Engine

	// Queue is the in-memory task queue used by the Worker.
	Queue taskqueue.Queue

	// Worker processes tasks from Queue using Engine.
	Worker *worker.Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory engine and
// queue. Options apply to the engine; WithWorkerConfig tunes the worker.
func NewLocalRunner(opts ...Option) *LocalRunner {
	o := buildOptions(opts)
	eng := newEngine(nil, o)
	q := taskqueue.NewInMemoryQueue(1024)

	return &LocalRunner{
		Engine: eng,
		Queue:  q,
		Worker: worker.NewWithConfig(eng, q, o.worker),
	}
}

// Register adds definitions so queued tasks can name them.
func (r *LocalRunner) Register(defs ...WorkflowDefinition) error {
	return r.Worker.Register(defs...)
}

// StartWorkers starts concurrency goroutines that run the worker loop until
// Stop is called or ctx is cancelled.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrRunnerStarted
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			return r.Worker.Run(gctx)
		})
	}

	r.cancel = cancel
	r.group = g
	r.running = true
	return nil
}

// Stop cancels the worker goroutines and waits for them to exit. Calling
// Stop on a runner that is not running is a no-op.
func (r *LocalRunner) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel, g := r.cancel, r.group
	r.running = false
	r.cancel = nil
	r.group = nil
	r.mu.Unlock()

	cancel()
	return g.Wait()
}

// ExecuteAsync enqueues a task to start the named workflow.
func (r *LocalRunner) ExecuteAsync(ctx context.Context, workflowName string, input any) error {
	return r.Worker.EnqueueExecute(ctx, workflowName, input)
}

// SignalAsync enqueues delivery of a signal to a workflow.
func (r *LocalRunner) SignalAsync(ctx context.Context, workflowID, name string, payload any) error {
	return r.Worker.EnqueueSignal(ctx, workflowID, name, payload)
}

// SignalAsyncAt enqueues a signal delivered no earlier than at.
func (r *LocalRunner) SignalAsyncAt(ctx context.Context, workflowID, name string, payload any, at time.Time) error {
	return r.Worker.EnqueueSignalAt(ctx, workflowID, name, payload, at)
}

// ResumeAsync enqueues a Resume call.
func (r *LocalRunner) ResumeAsync(ctx context.Context, workflowID string, opts ResumeOptions) error {
	return r.Worker.EnqueueResume(ctx, workflowID, opts)
}

// RetryStepAsync enqueues a RetryStep call.
func (r *LocalRunner) RetryStepAsync(ctx context.Context, workflowID, stepName string) error {
	return r.Worker.EnqueueRetryStep(ctx, workflowID, stepName)
}
