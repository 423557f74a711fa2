// Package api contains the core building blocks used by the flux workflow
// engine: the workflow data model, the Engine interface, lifecycle observers
// and trace events.
//
// Most users interact with the higher-level flux package, which re-exports
// selected types and helpers from this package. The api package is intended
// for advanced use cases, custom integrations, or contributors extending the
// engine itself.
//
// # Workflow Definitions
//
// A WorkflowDefinition is a named, ordered list of StepDefinitions plus an
// optional input validator. Definitions are immutable once built and are
// passed to every Engine call; the engine never stores them.
//
// # Steps
//
// A step is a StepFunc operating on a *WorkflowContext. It completes by
// returning nil, fails by returning an error, or parks the workflow by
// returning WaitForSignal(name). Each step carries its own policy:
//
//   - Retries and Timeout for automatic retry with exponential backoff
//   - When, a predicate that skips the step
//   - Compensate, the saga undo handler run on rollback
//   - Commit, an annotation for effects that must not be reversed
//
// # State
//
// WorkflowContext is the live state of one engine call; its Data map is
// shared by all handlers of that call. WorkflowState is the durable snapshot
// persisted after every transition, and Result is what callers get back.
//
// # Observability
//
// Observer receives synchronous lifecycle callbacks (step start, complete,
// error, workflow complete, error). TraceSink receives TraceEvents on a
// best-effort basis. Neither can alter a workflow's outcome.
package api
