package flux

import (
	"context"

	"github.com/petrijr/flux/pkg/api"
)

// WaitForSignal returns the directive a step returns to suspend the
// workflow until the named signal arrives.
func WaitForSignal(name string) error {
	return api.WaitForSignal(name)
}

// WaitForSignalStep is a step that only waits for the named signal. The
// payload is available afterwards as the step's Output.
func WaitForSignalStep(name string) StepFunc {
	return api.WaitForSignalStep(name)
}

// InputAs returns the workflow input as T.
func InputAs[T any](wc *WorkflowContext) (T, bool) {
	return api.InputAs[T](wc)
}

// TypedStep adapts a handler taking a typed input. The step fails if the
// input is not a T.
func TypedStep[T any](fn func(ctx context.Context, wc *WorkflowContext, in T) error) StepFunc {
	return api.TypedStep(fn)
}

// TypedCompensate is TypedStep for compensate handlers.
func TypedCompensate[T any](fn func(ctx context.Context, wc *WorkflowContext, in T) error) CompensateFunc {
	return api.TypedCompensate(fn)
}
