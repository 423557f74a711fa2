// Package worker drives flux workflows from a task queue.
//
// A Worker dequeues tasks and turns each one into a single Engine call:
//
//   - execute:    Engine.Execute with the task payload as input
//   - signal:     Engine.Signal with the task's signal name and payload
//   - resume:     Engine.Resume, optionally from an explicit step index
//   - retry-step: Engine.RetryStep for a named step
//
// Tasks carry workflow names, not definitions, so a Worker resolves them
// through a Registry. Tasks that target an existing workflow may omit the
// name; the worker then reads it from the persisted state.
//
// # Redelivery
//
// A task whose handler fails with a transient error (for example a signal
// that arrived before its workflow suspended, or a storage failure) is
// re-enqueued with exponential backoff until Config.MaxAttempts deliveries
// have been made. Errors that cannot succeed on retry, such as an unknown
// workflow, a signal mismatch or rejected input, are returned immediately.
//
// Workflow outcomes are not task errors: a workflow that ends failed or
// rolled_back still counts as a successfully processed task.
//
// # Usage
//
// Most applications use flux.LocalRunner or flux.NewSQLiteBundle, which
// wire an engine, a queue and workers together. The worker package is
// useful when embedding the worker loop in an existing service.
package worker
