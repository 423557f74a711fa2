package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/petrijr/flux/pkg/api"
)

func approvalDefinition(t *testing.T) api.WorkflowDefinition {
	return mustDef(t, "approval",
		api.StepDefinition{Name: "wait", Fn: api.WaitForSignalStep("proceed")},
		api.StepDefinition{
			Name: "finish",
			Fn: func(ctx context.Context, wc *api.WorkflowContext) error {
				payload := wc.History[0].Output.(map[string]any)
				value := wc.Input.(map[string]any)["value"].(int)
				wc.Data["result"] = value * payload["multiplier"].(int)
				return nil
			},
		},
	)
}

func TestSignal_SuspendThenResume(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e := factory(t, Config{})
			def := approvalDefinition(t)

			res := mustExecute(t, e, def, map[string]any{"value": 10})
			if res.Status != api.StatusSuspended {
				t.Fatalf("expected suspended, got %s (%s)", res.Status, res.Error)
			}
			if res.History[0].WaitingFor != "proceed" {
				t.Fatalf("expected waitingFor=proceed, got %q", res.History[0].WaitingFor)
			}
			if res.History[1].Status != api.StepPending {
				t.Fatalf("expected second step pending, got %s", res.History[1].Status)
			}

			final, err := e.Signal(ctx, def, res.ID, "proceed", map[string]any{"multiplier": 2})
			if err != nil {
				t.Fatalf("Signal failed: %v", err)
			}
			if final.Status != api.StatusCompleted {
				t.Fatalf("expected completed, got %s (%s)", final.Status, final.Error)
			}
			if final.Data["result"] != 20 {
				t.Fatalf("expected result 20, got %v", final.Data["result"])
			}
			if final.History[0].Status != api.StepCompleted || final.History[0].WaitingFor != "" {
				t.Fatalf("unexpected wait slot after signal: %+v", final.History[0])
			}

			types := memorySink(e).Types()
			if !containsType(types, api.EventWorkflowSuspend) || !containsType(types, api.EventWorkflowResume) {
				t.Fatalf("expected suspend and resume events, got %v", types)
			}
		})
	}
}

func TestSignal_MismatchKeepsWorkflowSuspended(t *testing.T) {
	ctx := context.Background()
	e := inMemoryFactory(t, Config{})
	def := approvalDefinition(t)
	res := mustExecute(t, e, def, map[string]any{"value": 10})

	out, err := e.Signal(ctx, def, res.ID, "cancel", nil)
	if out != nil {
		t.Fatalf("expected nil result on mismatch")
	}
	if !errors.Is(err, api.ErrSignalMismatch) {
		t.Fatalf("expected ErrSignalMismatch, got %v", err)
	}
	var sm *api.SignalMismatchError
	if !errors.As(err, &sm) || sm.Expected != "proceed" || sm.Received != "cancel" {
		t.Fatalf("expected SignalMismatchError naming both signals, got %v", err)
	}
	if !strings.Contains(err.Error(), "proceed") || !strings.Contains(err.Error(), "cancel") {
		t.Fatalf("error message should name both signals: %q", err.Error())
	}

	st, _ := e.Get(ctx, res.ID)
	if st.Status != api.StatusSuspended || st.History[0].WaitingFor != "proceed" {
		t.Fatalf("workflow should remain suspended, got %s", st.Status)
	}
}

func TestSignal_NotSuspended(t *testing.T) {
	ctx := context.Background()
	e := inMemoryFactory(t, Config{})
	def := approvalDefinition(t)
	res := mustExecute(t, e, def, map[string]any{"value": 10})

	if _, err := e.Signal(ctx, def, res.ID, "proceed", map[string]any{"multiplier": 3}); err != nil {
		t.Fatalf("first Signal failed: %v", err)
	}
	_, err := e.Signal(ctx, def, res.ID, "proceed", map[string]any{"multiplier": 3})
	if !errors.Is(err, api.ErrNotSuspended) {
		t.Fatalf("expected ErrNotSuspended on double signal, got %v", err)
	}
}

func TestSignal_UnknownWorkflowReturnsNil(t *testing.T) {
	e := inMemoryFactory(t, Config{})
	res, err := e.Signal(context.Background(), approvalDefinition(t), "missing", "proceed", nil)
	if res != nil || err != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", res, err)
	}
}

func TestSignal_SuspendAgainOnSecondWait(t *testing.T) {
	ctx := context.Background()
	e := inMemoryFactory(t, Config{})
	def := mustDef(t, "two-approvals",
		api.StepDefinition{Name: "manager", Fn: api.WaitForSignalStep("manager-ok")},
		api.StepDefinition{Name: "finance", Fn: api.WaitForSignalStep("finance-ok")},
		ok("done"),
	)

	res := mustExecute(t, e, def, nil)
	res, err := e.Signal(ctx, def, res.ID, "manager-ok", nil)
	if err != nil {
		t.Fatalf("Signal failed: %v", err)
	}
	if res.Status != api.StatusSuspended || res.History[1].WaitingFor != "finance-ok" {
		t.Fatalf("expected suspension on finance-ok, got %s %+v", res.Status, res.History[1])
	}
	res, err = e.Signal(ctx, def, res.ID, "finance-ok", "approved")
	if err != nil {
		t.Fatalf("Signal failed: %v", err)
	}
	if res.Status != api.StatusCompleted || res.History[1].Output != "approved" {
		t.Fatalf("expected completed with payload, got %s %v", res.Status, res.History[1].Output)
	}
}

func TestSignal_SurvivesEngineRestart(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	def := approvalDefinition(t)

	first := sqliteEngineOn(t, db)
	res := mustExecute(t, first, def, map[string]any{"value": 7})
	if res.Status != api.StatusSuspended {
		t.Fatalf("expected suspended, got %s", res.Status)
	}

	second := sqliteEngineOn(t, db)
	final, err := second.Signal(ctx, def, res.ID, "proceed", map[string]any{"multiplier": 3})
	if err != nil {
		t.Fatalf("Signal failed: %v", err)
	}
	if final.Status != api.StatusCompleted || final.Data["result"] != 21 {
		t.Fatalf("expected completed with 21, got %s %v", final.Status, final.Data["result"])
	}
}

func containsType(types []api.EventType, want api.EventType) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

func TestSignal_SuspendAfterFailedAttempt(t *testing.T) {
	for name, factory := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e := factory(t, Config{})

			calls := 0
			def := mustDef(t, "flaky-gate",
				api.StepDefinition{
					Name:    "gate",
					Retries: intPtr(2),
					Fn: func(ctx context.Context, wc *api.WorkflowContext) error {
						calls++
						if calls == 1 {
							return errors.New("not ready")
						}
						return api.WaitForSignal("go")
					},
				},
				api.StepDefinition{
					Name: "done",
					Fn: func(ctx context.Context, wc *api.WorkflowContext) error {
						wc.Data["done"] = true
						return nil
					},
				},
			)

			res := mustExecute(t, e, def, nil)
			if res.Status != api.StatusSuspended {
				t.Fatalf("expected suspended, got %s (%s)", res.Status, res.Error)
			}
			if res.History[0].Retries != 1 {
				t.Fatalf("expected 1 retry before suspending, got %d", res.History[0].Retries)
			}
			if res.History[0].WaitingFor != "go" {
				t.Fatalf("expected waitingFor=go, got %q", res.History[0].WaitingFor)
			}

			final, err := e.Signal(ctx, def, res.ID, "go", nil)
			if err != nil {
				t.Fatalf("Signal failed: %v", err)
			}
			if final.Status != api.StatusCompleted {
				t.Fatalf("expected completed, got %s (%s)", final.Status, final.Error)
			}
			if final.Data["done"] != true {
				t.Fatalf("expected done=true, got %v", final.Data["done"])
			}
			if calls != 2 {
				t.Fatalf("expected gate handler to run twice, got %d", calls)
			}
		})
	}
}
