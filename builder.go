package flux

import (
	"errors"
	"fmt"

	"github.com/petrijr/flux/pkg/api"
)

// ErrInvalidStep is returned by Build for a step with an empty name or a
// nil handler.
var ErrInvalidStep = errors.New("invalid step")

// FlowBuilder provides a fluent API for defining workflows:
//
//	def, err := flux.New("OnboardUser").
//	    Validate(func(in any) bool { _, ok := in.(Signup); return ok }).
//	    Step("createAccount", createAccount, flux.Compensate(deleteAccount)).
//	    Commit("sendWelcomeEmail", sendWelcomeEmail, flux.WithRetries(5)).
//	    Step("waitActivation", flux.WaitForSignalStep("activated")).
//	    Build()
//
// Errors found while adding steps are reported by Build.
type FlowBuilder struct {
	name     string
	validate func(any) bool
	steps    []api.StepDefinition
	err      error
}

// New creates a new workflow builder with the given name.
func New(name string) *FlowBuilder {
	return &FlowBuilder{name: name}
}

// Name returns the workflow name.
func (b *FlowBuilder) Name() string {
	return b.name
}

// Validate attaches an input guard checked by Engine.Execute.
func (b *FlowBuilder) Validate(pred func(input any) bool) *FlowBuilder {
	b.validate = pred
	return b
}

// Step appends a step to the workflow.
func (b *FlowBuilder) Step(name string, fn StepFunc, opts ...StepOption) *FlowBuilder {
	return b.add(name, fn, false, opts)
}

// Commit appends a step marked as a commit point: its effect is not meant
// to be reversed or skipped on replay.
func (b *FlowBuilder) Commit(name string, fn StepFunc, opts ...StepOption) *FlowBuilder {
	return b.add(name, fn, true, opts)
}

func (b *FlowBuilder) add(name string, fn StepFunc, commit bool, opts []StepOption) *FlowBuilder {
	if b.err != nil {
		return b
	}
	if name == "" {
		b.err = fmt.Errorf("%w: step %d has an empty name", ErrInvalidStep, len(b.steps))
		return b
	}
	if fn == nil {
		b.err = fmt.Errorf("%w: step %q has nil function", ErrInvalidStep, name)
		return b
	}

	step := api.StepDefinition{
		Name:   name,
		Fn:     fn,
		Commit: commit,
	}
	for _, opt := range opts {
		opt(&step)
	}
	b.steps = append(b.steps, step)
	return b
}

// Build returns the immutable workflow definition. It fails with
// api.ErrEmptyWorkflow if no steps were added, api.ErrDuplicateStep if
// two steps share a name, or ErrInvalidStep for a malformed step.
func (b *FlowBuilder) Build() (WorkflowDefinition, error) {
	if b.err != nil {
		return WorkflowDefinition{}, fmt.Errorf("workflow %q: %w", b.name, b.err)
	}
	def, err := api.NewWorkflowDefinition(b.name, b.steps, b.validate)
	if err != nil {
		return WorkflowDefinition{}, fmt.Errorf("workflow %q: %w", b.name, err)
	}
	return def, nil
}

// MustBuild is like Build but panics on error.
// Useful for package-level definitions.
func (b *FlowBuilder) MustBuild() WorkflowDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}
