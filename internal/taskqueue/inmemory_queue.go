package taskqueue

import (
	"context"
	"sync"
	"time"
)

// InMemoryQueue is a Queue backed by a buffered channel. Tasks with a
// future NotBefore are held on a timer and delivered to the channel once
// they become ready. It is safe for concurrent use.
type InMemoryQueue struct {
	ch chan Task

	mu      sync.Mutex
	delayed map[string]*time.Timer
	closed  bool
}

// NewInMemoryQueue creates a new queue with the given capacity.
// For tests and small deployments, a modest capacity (e.g. 1024) is fine.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemoryQueue{
		ch:      make(chan Task, capacity),
		delayed: make(map[string]*time.Timer),
	}
}

// Ensure InMemoryQueue implements Queue.
var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	now := time.Now()
	prepare(&t, now)

	if !t.Ready(now) {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.closed {
			return ErrQueueClosed
		}
		q.delayed[t.ID] = time.AfterFunc(t.NotBefore.Sub(now), func() {
			q.mu.Lock()
			delete(q.delayed, t.ID)
			q.mu.Unlock()
			q.ch <- t
		})
		return nil
	}

	select {
	case q.ch <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	select {
	case t := <-q.ch:
		return &t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ch) + len(q.delayed)
}

// Close cancels delayed tasks that have not yet been delivered. Tasks
// already in the channel stay dequeueable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, tm := range q.delayed {
		tm.Stop()
		delete(q.delayed, id)
	}
	q.closed = true
	return nil
}
