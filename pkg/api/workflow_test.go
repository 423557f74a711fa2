package api

import (
	"context"
	"errors"
	"testing"
)

func noop(context.Context, *WorkflowContext) error { return nil }

func TestNewWorkflowDefinitionIndexesSteps(t *testing.T) {
	steps := []StepDefinition{{Name: "a", Fn: noop}, {Name: "b", Fn: noop}, {Name: "c", Fn: noop}}
	def, err := NewWorkflowDefinition("wf", steps, nil)
	if err != nil {
		t.Fatalf("NewWorkflowDefinition: %v", err)
	}

	for want, name := range []string{"a", "b", "c"} {
		got, ok := def.StepIndex(name)
		if !ok || got != want {
			t.Fatalf("StepIndex(%q) = %d, %v; want %d, true", name, got, ok, want)
		}
	}
	if _, ok := def.StepIndex("missing"); ok {
		t.Fatalf("expected missing step to be absent")
	}

	// The definition owns its step slice.
	steps[0].Name = "mutated"
	if def.Steps[0].Name != "a" {
		t.Fatalf("definition shares caller slice: %q", def.Steps[0].Name)
	}
}

func TestNewWorkflowDefinitionRejectsEmpty(t *testing.T) {
	_, err := NewWorkflowDefinition("wf", nil, nil)
	if !errors.Is(err, ErrEmptyWorkflow) {
		t.Fatalf("expected ErrEmptyWorkflow, got %v", err)
	}
}

func TestNewWorkflowDefinitionRejectsDuplicates(t *testing.T) {
	_, err := NewWorkflowDefinition("wf", []StepDefinition{
		{Name: "a", Fn: noop},
		{Name: "b", Fn: noop},
		{Name: "a", Fn: noop},
	}, nil)
	if !errors.Is(err, ErrDuplicateStep) {
		t.Fatalf("expected ErrDuplicateStep, got %v", err)
	}
	var dup *DuplicateStepError
	if !errors.As(err, &dup) || dup.Step != "a" {
		t.Fatalf("expected DuplicateStepError for %q, got %#v", "a", err)
	}
}

func TestStepIndexWithoutIndex(t *testing.T) {
	def := WorkflowDefinition{Name: "wf", Steps: []StepDefinition{{Name: "x"}, {Name: "y"}}}
	if i, ok := def.StepIndex("y"); !ok || i != 1 {
		t.Fatalf("StepIndex(y) = %d, %v", i, ok)
	}
	if i, ok := def.StepIndex("z"); ok || i != -1 {
		t.Fatalf("StepIndex(z) = %d, %v", i, ok)
	}
}

func TestStatusTerminal(t *testing.T) {
	cases := map[Status]bool{
		StatusPending:    false,
		StatusRunning:    false,
		StatusPaused:     false,
		StatusSuspended:  false,
		StatusFailed:     false,
		StatusCompleted:  true,
		StatusRolledBack: true,
	}
	for s, want := range cases {
		if got := s.Terminal(); got != want {
			t.Fatalf("%s.Terminal() = %v, want %v", s, got, want)
		}
	}
}

func TestResultFailed(t *testing.T) {
	for _, s := range []Status{StatusFailed, StatusRolledBack} {
		if !(&Result{Status: s}).Failed() {
			t.Fatalf("expected %s to be failed", s)
		}
	}
	if (&Result{Status: StatusSuspended}).Failed() {
		t.Fatalf("suspended is not failed")
	}
}

func TestWorkflowContextStep(t *testing.T) {
	wc := &WorkflowContext{History: []StepExecution{{Name: "a"}, {Name: "b", Status: StepCompleted}}}
	if s := wc.Step("b"); s == nil || s.Status != StepCompleted {
		t.Fatalf("Step(b) = %#v", s)
	}
	wc.Step("a").Output = 42
	if wc.History[0].Output != 42 {
		t.Fatalf("Step must return a pointer into History")
	}
	if wc.Step("c") != nil {
		t.Fatalf("expected nil for unknown step")
	}
}

func TestWaitForSignal(t *testing.T) {
	err := WaitForSignalStep("approve")(context.Background(), &WorkflowContext{})
	name, ok := IsWaitForSignal(err)
	if !ok || name != "approve" {
		t.Fatalf("IsWaitForSignal = %q, %v", name, ok)
	}

	wrapped := errors.Join(errors.New("other"), err)
	if name, ok := IsWaitForSignal(wrapped); !ok || name != "approve" {
		t.Fatalf("wrapped directive not detected: %q, %v", name, ok)
	}

	if _, ok := IsWaitForSignal(errors.New("boom")); ok {
		t.Fatalf("plain error must not be a wait directive")
	}
}

func TestFromStep(t *testing.T) {
	opts := FromStep(2)
	if opts.FromStep == nil || *opts.FromStep != 2 {
		t.Fatalf("FromStep(2) = %#v", opts)
	}
}
