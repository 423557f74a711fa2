// Package taskqueue carries engine invocations between producers and
// workers. A Task names one engine call (execute, signal, resume or
// retry-step) together with the data needed to make it.
package taskqueue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrQueueClosed is returned by Enqueue after the queue has been closed.
var ErrQueueClosed = errors.New("taskqueue: queue closed")

// TaskType identifies which engine call the worker should make.
type TaskType string

const (
	TaskTypeExecute   TaskType = "execute"
	TaskTypeSignal    TaskType = "signal"
	TaskTypeResume    TaskType = "resume"
	TaskTypeRetryStep TaskType = "retry-step"
)

// Task is a unit of work for the worker.
type Task struct {
	ID   string
	Type TaskType

	// WorkflowName selects the definition. Required for execute tasks; for
	// the others the worker falls back to the persisted state's name.
	WorkflowName string

	// WorkflowID targets an existing workflow (signal, resume, retry-step).
	WorkflowID string

	// SignalName is the signal delivered by signal tasks.
	SignalName string

	// StepName is the step re-entered by retry-step tasks.
	StepName string

	// FromStep overrides the re-entry index of resume tasks.
	FromStep *int

	// Payload is the workflow input for execute tasks and the signal
	// payload for signal tasks. Concrete types must be gob-registered for
	// the persistent queues.
	Payload any

	EnqueuedAt time.Time

	// NotBefore is the earliest time the task may be dequeued. Zero means
	// immediately.
	NotBefore time.Time

	// Attempts counts previous failed deliveries of this task.
	Attempts int
}

// Ready reports whether t may be processed at now.
func (t Task) Ready(now time.Time) bool {
	return t.NotBefore.IsZero() || !t.NotBefore.After(now)
}

// Queue is an async task queue.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next ready task, blocking until one
	// is available or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued, including tasks
	// whose NotBefore lies in the future.
	Len() int
}

// prepare fills in the ID and EnqueuedAt of a task about to be queued.
func prepare(t *Task, now time.Time) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = now
	}
}
