package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/petrijr/flux/internal/executor"
	"github.com/petrijr/flux/internal/persistence"
	"github.com/petrijr/flux/internal/trace"
	"github.com/petrijr/flux/pkg/api"
)

type engineFactory func(t *testing.T, cfg Config) *engineImpl

var dbSeq atomic.Int64

func inMemoryFactory(t *testing.T, cfg Config) *engineImpl {
	t.Helper()
	cfg.Store = persistence.NewInMemoryStore()
	return testEngine(cfg)
}

func sqliteFactory(t *testing.T, cfg Config) *engineImpl {
	t.Helper()
	db := openSQLite(t)
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	cfg.Store = store
	return testEngine(cfg)
}

func factories() map[string]engineFactory {
	return map[string]engineFactory{
		"in-memory": inMemoryFactory,
		"sqlite":    sqliteFactory,
	}
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", fmt.Sprintf("file:flux_engine_%d?mode=memory&cache=shared", dbSeq.Add(1)))
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// testEngine fills in fast executor defaults and a silent logger.
func testEngine(cfg Config) *engineImpl {
	if cfg.Executor == (executor.Executor{}) {
		cfg.Executor = executor.Executor{
			DefaultTimeout: 2 * time.Second,
			BackoffBase:    time.Millisecond,
			BackoffMax:     2 * time.Millisecond,
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.TraceSink == nil {
		cfg.TraceSink = trace.NewMemory()
	}
	return newEngine(cfg)
}

func mustDef(t *testing.T, name string, steps ...api.StepDefinition) api.WorkflowDefinition {
	t.Helper()
	def, err := api.NewWorkflowDefinition(name, steps, nil)
	if err != nil {
		t.Fatalf("NewWorkflowDefinition failed: %v", err)
	}
	return def
}

func ok(name string) api.StepDefinition {
	return api.StepDefinition{
		Name: name,
		Fn:   func(ctx context.Context, wc *api.WorkflowContext) error { return nil },
	}
}

func failing(name string, msg string) api.StepDefinition {
	return api.StepDefinition{
		Name: name,
		Fn:   func(ctx context.Context, wc *api.WorkflowContext) error { return errors.New(msg) },
	}
}

func intPtr(i int) *int { return &i }

func mustExecute(t *testing.T, e api.Engine, def api.WorkflowDefinition, input any) *api.Result {
	t.Helper()
	res, err := e.Execute(context.Background(), def, input)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res == nil {
		t.Fatalf("Execute returned nil result")
	}
	return res
}

func stepStatuses(h []api.StepExecution) []api.StepStatus {
	out := make([]api.StepStatus, len(h))
	for i, se := range h {
		out[i] = se.Status
	}
	return out
}

func assertStatuses(t *testing.T, h []api.StepExecution, want ...api.StepStatus) {
	t.Helper()
	got := stepStatuses(h)
	if len(got) != len(want) {
		t.Fatalf("expected %d slots, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slot %d: expected %s, got %s (all: %v)", i, want[i], got[i], got)
		}
	}
}

func memorySink(e *engineImpl) *trace.Memory {
	return e.sink.(*trace.Memory)
}
