package trace

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/petrijr/flux/pkg/api"
)

func TestSQLiteSink_AppendAndList(t *testing.T) {
	db, err := sql.Open("sqlite", "file:trace_sink?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()

	sink, err := NewSQLiteSink(db)
	if err != nil {
		t.Fatalf("NewSQLiteSink failed: %v", err)
	}
	if _, err := NewSQLiteSink(db); err != nil {
		t.Fatalf("schema init must be idempotent: %v", err)
	}

	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	_ = sink.Emit(ctx, api.TraceEvent{Type: api.EventWorkflowStart, Timestamp: at, WorkflowID: "wf-1", WorkflowName: "orders"})
	_ = sink.Emit(ctx, api.TraceEvent{Type: api.EventStepError, Timestamp: at, WorkflowID: "wf-1", Step: "charge", StepIndex: 1, Error: "declined"})
	_ = sink.Emit(ctx, api.TraceEvent{Type: api.EventWorkflowStart, WorkflowID: "wf-2"})

	events, err := sink.List(ctx, "wf-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != api.EventWorkflowStart || !events[0].Timestamp.Equal(at) {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Step != "charge" || events[1].StepIndex != 1 || events[1].Error != "declined" {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
}
