package flux

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/petrijr/flux/pkg/api"
)

func TestBuilder_AppliesStepOptions(t *testing.T) {
	undo := func(ctx context.Context, wc *WorkflowContext) error { return nil }
	cond := func(wc *WorkflowContext) bool { return true }

	def, err := New("order").
		Validate(func(in any) bool { return in != nil }).
		Step("reserve", noop, Compensate(undo), WithRetries(2)).
		Commit("charge", noop, WithTimeout(time.Second)).
		Step("ship", noop, When(cond)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if def.Name != "order" || len(def.Steps) != 3 {
		t.Fatalf("unexpected definition %q with %d steps", def.Name, len(def.Steps))
	}
	if def.ValidateInput == nil || def.ValidateInput(nil) {
		t.Fatalf("expected input validator rejecting nil")
	}

	reserve, charge, ship := def.Steps[0], def.Steps[1], def.Steps[2]
	if reserve.Retries == nil || *reserve.Retries != 2 || reserve.Compensate == nil || reserve.Commit {
		t.Fatalf("unexpected reserve step %+v", reserve)
	}
	if !charge.Commit || charge.Timeout != time.Second || charge.Retries != nil {
		t.Fatalf("unexpected charge step %+v", charge)
	}
	if ship.When == nil || ship.Commit {
		t.Fatalf("unexpected ship step %+v", ship)
	}

	if i, ok := def.StepIndex("charge"); !ok || i != 1 {
		t.Fatalf("StepIndex(charge) = %d, %v", i, ok)
	}
	if _, ok := def.StepIndex("missing"); ok {
		t.Fatalf("StepIndex(missing) should not be found")
	}
}

func TestBuilder_Errors(t *testing.T) {
	cases := []struct {
		name string
		b    *FlowBuilder
		want error
	}{
		{"empty", New("empty"), api.ErrEmptyWorkflow},
		{"duplicate", New("dup").Step("a", noop).Step("a", noop), api.ErrDuplicateStep},
		{"empty step name", New("x").Step("", noop), ErrInvalidStep},
		{"nil handler", New("x").Step("a", nil), ErrInvalidStep},
		{"first error wins", New("x").Step("a", nil).Step("", noop), ErrInvalidStep},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.b.Build()
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestBuilder_DuplicateErrorNamesStep(t *testing.T) {
	_, err := New("dup").Step("charge", noop).Step("charge", noop).Build()
	var dup *api.DuplicateStepError
	if !errors.As(err, &dup) || dup.Step != "charge" {
		t.Fatalf("expected DuplicateStepError for charge, got %v", err)
	}
}

func TestBuilder_DefinitionIsImmutable(t *testing.T) {
	b := New("flow").Step("a", noop)
	def := b.MustBuild()

	b.Step("b", noop)
	if len(def.Steps) != 1 {
		t.Fatalf("definition changed after further builder calls: %d steps", len(def.Steps))
	}

	def2 := b.MustBuild()
	def2.Steps[0].Name = "mutated"
	if def.Steps[0].Name != "a" {
		t.Fatalf("definitions share step storage")
	}
}

func TestBuilder_MustBuildPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected MustBuild to panic")
		}
	}()
	New("empty").MustBuild()
}

func TestWithRetries_NegativeIsZero(t *testing.T) {
	def := New("flow").Step("a", noop, WithRetries(-3)).MustBuild()
	if r := def.Steps[0].Retries; r == nil || *r != 0 {
		t.Fatalf("expected retries 0, got %v", r)
	}
}
