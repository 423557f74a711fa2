package flux

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/petrijr/flux/pkg/worker"
)

func approvalDef() WorkflowDefinition {
	return New("approval").
		Step("submit", func(ctx context.Context, wc *WorkflowContext) error {
			wc.Data["submitted"] = wc.Input
			return nil
		}).
		Step("wait", WaitForSignalStep("approve")).
		Step("record", func(ctx context.Context, wc *WorkflowContext) error {
			wc.Data["approvedBy"] = wc.Step("wait").Output
			return nil
		}).
		MustBuild()
}

func TestLocalRunner_AsyncExecuteAndSignal(t *testing.T) {
	ctx := context.Background()
	runner := NewLocalRunner(testOptions(WithWorkerConfig(worker.Config{MaxAttempts: 5, Backoff: 5 * time.Millisecond}))...)
	def := approvalDef()
	if err := runner.Register(def); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := runner.StartWorkers(ctx, 2); err != nil {
		t.Fatalf("StartWorkers failed: %v", err)
	}
	t.Cleanup(func() { _ = runner.Stop() })

	if err := runner.ExecuteAsync(ctx, def.Name, "doc-1"); err != nil {
		t.Fatalf("ExecuteAsync failed: %v", err)
	}

	var id string
	waitFor(t, "workflow to suspend", func() bool {
		states, err := runner.Engine.List(ctx, ListFilter{Name: def.Name, Status: StatusSuspended})
		if err != nil || len(states) != 1 {
			return false
		}
		id = states[0].ID
		return true
	})

	if err := runner.SignalAsync(ctx, id, "approve", "alice"); err != nil {
		t.Fatalf("SignalAsync failed: %v", err)
	}
	waitFor(t, "workflow to complete", func() bool {
		st, err := runner.Engine.Get(ctx, id)
		return err == nil && st != nil && st.Status == StatusCompleted
	})

	st, _ := runner.Engine.Get(ctx, id)
	if st.Data["approvedBy"] != "alice" || st.Data["submitted"] != "doc-1" {
		t.Fatalf("unexpected data %v", st.Data)
	}
}

func TestLocalRunner_RetryStepAsync(t *testing.T) {
	ctx := context.Background()
	runner := NewLocalRunner(testOptions()...)

	fail := true
	def := New("fragile").
		Step("call", func(ctx context.Context, wc *WorkflowContext) error {
			if fail {
				return errors.New("boom")
			}
			return nil
		}).
		MustBuild()
	if err := runner.Register(def); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	res, err := runner.Engine.Execute(ctx, def, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}

	// Mutated before workers start, so no data race with the step.
	fail = false
	if err := runner.RetryStepAsync(ctx, res.ID, "call"); err != nil {
		t.Fatalf("RetryStepAsync failed: %v", err)
	}
	if err := runner.StartWorkers(ctx, 1); err != nil {
		t.Fatalf("StartWorkers failed: %v", err)
	}
	t.Cleanup(func() { _ = runner.Stop() })

	waitFor(t, "retried workflow to complete", func() bool {
		st, err := runner.Engine.Get(ctx, res.ID)
		return err == nil && st != nil && st.Status == StatusCompleted
	})
}

func TestLocalRunner_StartStop(t *testing.T) {
	ctx := context.Background()
	runner := NewLocalRunner(testOptions()...)

	if err := runner.Stop(); err != nil {
		t.Fatalf("Stop on idle runner failed: %v", err)
	}
	if err := runner.StartWorkers(ctx, 0); err != nil {
		t.Fatalf("StartWorkers failed: %v", err)
	}
	if err := runner.StartWorkers(ctx, 1); !errors.Is(err, ErrRunnerStarted) {
		t.Fatalf("expected ErrRunnerStarted, got %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- runner.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stop failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return")
	}

	// Restart after stop.
	if err := runner.StartWorkers(ctx, 1); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	_ = runner.Stop()
}
