// Package flux provides a lightweight, embeddable workflow engine for Go.
//
// A workflow is a named, ordered sequence of steps run against an input.
// The engine persists progress after every step and supports three control
// patterns:
//
//   - automatic retry with a per-attempt timeout and capped exponential backoff
//   - saga-style compensation: when a step fails for good, completed steps
//     with a compensate handler are undone in reverse order
//   - suspend and resume through named external signals
//
// # Defining workflows
//
// FlowBuilder produces an immutable WorkflowDefinition:
//
//	def := flux.New("order").
//	    Validate(func(in any) bool { _, ok := in.(Order); return ok }).
//	    Step("reserve", reserve, flux.Compensate(release)).
//	    Commit("charge", charge, flux.WithRetries(5), flux.WithTimeout(2*time.Second)).
//	    Step("approve", flux.WaitForSignalStep("approved")).
//	    Step("ship", ship, flux.When(needsShipping)).
//	    MustBuild()
//
// A step is a StepFunc. It reads the input and earlier results from the
// WorkflowContext and stores its own results in wc.Data. Returning
// WaitForSignal(name) suspends the workflow; any other error is a step
// failure subject to retries.
//
// # Running workflows
//
// Every Engine call runs the step loop synchronously in the calling
// goroutine:
//
//	eng := flux.NewInMemoryEngine()
//	res, err := eng.Execute(ctx, def, order)       // runs until completed, suspended or failed
//	res, err = eng.Signal(ctx, def, res.ID, "approved", "alice")
//	res, err = eng.RetryStep(ctx, def, res.ID, "charge")
//	res, err = eng.Resume(ctx, def, res.ID, flux.FromStep(1))
//
// Step failures are reported through Result.Status (failed or rolled_back)
// and Result.Error, not as Go errors. Errors are reserved for misuse:
// rejected input, a bad step index, a wrong or unexpected signal.
//
// Engines can be backed by different storage systems: in-memory, SQLite,
// PostgreSQL, Redis and MongoDB. Trace events can be sent to a JSON lines
// file, a SQLite table or OpenTelemetry through a TraceSink.
//
// # Asynchronous execution
//
// LocalRunner and NewSQLiteBundle pair an engine with a task queue and a
// worker (package worker) so workflows can be started, signalled, resumed
// and retried from background goroutines.
package flux
