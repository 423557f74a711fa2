package api

import (
	"context"
	"fmt"
)

// InputAs returns the workflow input as T.
func InputAs[T any](wc *WorkflowContext) (T, bool) {
	v, ok := wc.Input.(T)
	return v, ok
}

// TypedStep wraps a function taking a strongly-typed input into a StepFunc.
// The step fails if the workflow input is not a T.
//
//	api.TypedStep(func(ctx context.Context, wc *api.WorkflowContext, in Order) error { ... })
func TypedStep[T any](fn func(ctx context.Context, wc *WorkflowContext, in T) error) StepFunc {
	return func(ctx context.Context, wc *WorkflowContext) error {
		in, ok := InputAs[T](wc)
		if !ok {
			var zero T
			return fmt.Errorf("typed step: expected input %T, got %T", zero, wc.Input)
		}
		return fn(ctx, wc, in)
	}
}

// TypedCompensate is the CompensateFunc counterpart of TypedStep.
func TypedCompensate[T any](fn func(ctx context.Context, wc *WorkflowContext, in T) error) CompensateFunc {
	return CompensateFunc(TypedStep(fn))
}
