package trace

import (
	"context"
	"errors"
	"testing"

	"github.com/petrijr/flux/pkg/api"
)

type failingSink struct{ calls int }

func (f *failingSink) Emit(context.Context, api.TraceEvent) error {
	f.calls++
	return errors.New("sink down")
}

func TestMemory_RecordsAndFilters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Emit(ctx, api.TraceEvent{Type: api.EventWorkflowStart, WorkflowID: "wf-1"})
	_ = m.Emit(ctx, api.TraceEvent{Type: api.EventStepStart, WorkflowID: "wf-1", Step: "a"})
	_ = m.Emit(ctx, api.TraceEvent{Type: api.EventStepComplete, WorkflowID: "wf-1", Step: "a"})

	if got := len(m.Events()); got != 3 {
		t.Fatalf("expected 3 events, got %d", got)
	}
	steps := m.Events(api.EventStepStart, api.EventStepComplete)
	if len(steps) != 2 || steps[0].Step != "a" {
		t.Fatalf("unexpected filtered events: %+v", steps)
	}
	types := m.Types()
	if types[0] != api.EventWorkflowStart || types[2] != api.EventStepComplete {
		t.Fatalf("unexpected order: %v", types)
	}

	m.Reset()
	if len(m.Events()) != 0 {
		t.Fatalf("expected empty after Reset")
	}
}

func TestMulti_CallsEverySinkAndJoinsErrors(t *testing.T) {
	bad := &failingSink{}
	good := NewMemory()
	sink := NewMulti(bad, nil, good)

	err := sink.Emit(context.Background(), api.TraceEvent{Type: api.EventStepStart})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if bad.calls != 1 || len(good.Events()) != 1 {
		t.Fatalf("expected both sinks to be called (bad=%d good=%d)", bad.calls, len(good.Events()))
	}
}

func TestNoop(t *testing.T) {
	if err := (Noop{}).Emit(context.Background(), api.TraceEvent{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
