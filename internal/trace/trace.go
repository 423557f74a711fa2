// Package trace provides api.TraceSink implementations.
//
// Sinks receive low-volume lifecycle events from the engine. The engine
// logs and drops any error a sink returns, so a failing sink never changes
// a workflow's outcome.
package trace

import (
	"context"
	"errors"
	"sync"

	"github.com/petrijr/flux/pkg/api"
)

// Noop discards every event.
type Noop struct{}

func (Noop) Emit(context.Context, api.TraceEvent) error { return nil }

// Memory keeps events in memory. Useful in tests.
type Memory struct {
	mu     sync.Mutex
	events []api.TraceEvent
}

// NewMemory creates an empty Memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Emit(_ context.Context, ev api.TraceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded events, optionally filtered by type.
func (m *Memory) Events(types ...api.EventType) []api.TraceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]api.TraceEvent, 0, len(m.events))
	for _, ev := range m.events {
		if len(types) == 0 || hasType(types, ev.Type) {
			out = append(out, ev)
		}
	}
	return out
}

// Types returns the recorded event types in emission order.
func (m *Memory) Types() []api.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]api.EventType, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Type
	}
	return out
}

// Reset drops all recorded events.
func (m *Memory) Reset() {
	m.mu.Lock()
	m.events = nil
	m.mu.Unlock()
}

// Multi fans an event out to several sinks. Every sink is called even when
// an earlier one fails; the errors are joined.
type Multi []api.TraceSink

// NewMulti drops nil sinks and returns the rest as one sink.
func NewMulti(sinks ...api.TraceSink) Multi {
	out := make(Multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m Multi) Emit(ctx context.Context, ev api.TraceEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func hasType(types []api.EventType, t api.EventType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}
