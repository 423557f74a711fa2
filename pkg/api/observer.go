package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives lifecycle callbacks from the engine.
//
// Callbacks run synchronously inside the step loop; implementations should
// be fast and non-blocking. A panicking observer is recovered and logged by
// the engine.
type Observer interface {
	// OnStepStart is called before a step is handed to the executor.
	OnStepStart(ctx context.Context, stepName string, wc *WorkflowContext)

	// OnStepComplete is called when a step completed or was skipped.
	OnStepComplete(ctx context.Context, stepName string, wc *WorkflowContext, res StepResult)

	// OnStepError is called when a step failed after exhausting retries.
	OnStepError(ctx context.Context, stepName string, wc *WorkflowContext, err error)

	// OnWorkflowComplete is called once the workflow reaches completed.
	OnWorkflowComplete(ctx context.Context, wc *WorkflowContext)

	// OnWorkflowError is called when the workflow ends failed or rolled_back.
	OnWorkflowError(ctx context.Context, wc *WorkflowContext, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnStepStart(ctx context.Context, stepName string, wc *WorkflowContext) {}
func (NoopObserver) OnStepComplete(ctx context.Context, stepName string, wc *WorkflowContext, res StepResult) {
}
func (NoopObserver) OnStepError(ctx context.Context, stepName string, wc *WorkflowContext, err error) {
}
func (NoopObserver) OnWorkflowComplete(ctx context.Context, wc *WorkflowContext)            {}
func (NoopObserver) OnWorkflowError(ctx context.Context, wc *WorkflowContext, err error) {}

// ObserverFuncs adapts a set of optional callbacks to Observer.
// Nil fields are skipped.
type ObserverFuncs struct {
	StepStart        func(ctx context.Context, stepName string, wc *WorkflowContext)
	StepComplete     func(ctx context.Context, stepName string, wc *WorkflowContext, res StepResult)
	StepError        func(ctx context.Context, stepName string, wc *WorkflowContext, err error)
	WorkflowComplete func(ctx context.Context, wc *WorkflowContext)
	WorkflowError    func(ctx context.Context, wc *WorkflowContext, err error)
}

func (f ObserverFuncs) OnStepStart(ctx context.Context, stepName string, wc *WorkflowContext) {
	if f.StepStart != nil {
		f.StepStart(ctx, stepName, wc)
	}
}

func (f ObserverFuncs) OnStepComplete(ctx context.Context, stepName string, wc *WorkflowContext, res StepResult) {
	if f.StepComplete != nil {
		f.StepComplete(ctx, stepName, wc, res)
	}
}

func (f ObserverFuncs) OnStepError(ctx context.Context, stepName string, wc *WorkflowContext, err error) {
	if f.StepError != nil {
		f.StepError(ctx, stepName, wc, err)
	}
}

func (f ObserverFuncs) OnWorkflowComplete(ctx context.Context, wc *WorkflowContext) {
	if f.WorkflowComplete != nil {
		f.WorkflowComplete(ctx, wc)
	}
}

func (f ObserverFuncs) OnWorkflowError(ctx context.Context, wc *WorkflowContext, err error) {
	if f.WorkflowError != nil {
		f.WorkflowError(ctx, wc, err)
	}
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, stepName string, wc *WorkflowContext) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, stepName, wc)
	}
}

func (c *CompositeObserver) OnStepComplete(ctx context.Context, stepName string, wc *WorkflowContext, res StepResult) {
	for _, o := range c.observers {
		o.OnStepComplete(ctx, stepName, wc, res)
	}
}

func (c *CompositeObserver) OnStepError(ctx context.Context, stepName string, wc *WorkflowContext, err error) {
	for _, o := range c.observers {
		o.OnStepError(ctx, stepName, wc, err)
	}
}

func (c *CompositeObserver) OnWorkflowComplete(ctx context.Context, wc *WorkflowContext) {
	for _, o := range c.observers {
		o.OnWorkflowComplete(ctx, wc)
	}
}

func (c *CompositeObserver) OnWorkflowError(ctx context.Context, wc *WorkflowContext, err error) {
	for _, o := range c.observers {
		o.OnWorkflowError(ctx, wc, err)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs workflow / step lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, stepName string, wc *WorkflowContext) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("workflow", wc.Name),
		slog.String("workflow_id", wc.ID),
		slog.String("step", stepName),
		slog.Int("step_index", wc.CurrentStep),
	)
}

func (o *LoggingObserver) OnStepComplete(ctx context.Context, stepName string, wc *WorkflowContext, res StepResult) {
	o.Logger.DebugContext(ctx, "step_complete",
		slog.String("workflow", wc.Name),
		slog.String("workflow_id", wc.ID),
		slog.String("step", stepName),
		slog.String("status", string(res.Status)),
		slog.Int("retries", res.Retries),
		slog.Duration("duration", res.Duration),
	)
}

func (o *LoggingObserver) OnStepError(ctx context.Context, stepName string, wc *WorkflowContext, err error) {
	o.Logger.ErrorContext(ctx, "step_error",
		slog.String("workflow", wc.Name),
		slog.String("workflow_id", wc.ID),
		slog.String("step", stepName),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnWorkflowComplete(ctx context.Context, wc *WorkflowContext) {
	o.Logger.InfoContext(ctx, "workflow_complete",
		slog.String("workflow", wc.Name),
		slog.String("workflow_id", wc.ID),
	)
}

func (o *LoggingObserver) OnWorkflowError(ctx context.Context, wc *WorkflowContext, err error) {
	o.Logger.ErrorContext(ctx, "workflow_error",
		slog.String("workflow", wc.Name),
		slog.String("workflow_id", wc.ID),
		slog.String("status", string(wc.Status)),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	workflowsCompleted atomic.Int64
	workflowsFailed    atomic.Int64
	workflowsRolled    atomic.Int64
	stepsCompleted     atomic.Int64
	stepsFailed        atomic.Int64
	totalStepDuration  atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	WorkflowsCompleted  int64
	WorkflowsFailed     int64
	WorkflowsRolledBack int64

	StepsCompleted  int64
	StepsFailed     int64
	AvgStepDuration time.Duration
}

func (m *BasicMetrics) OnStepComplete(ctx context.Context, stepName string, wc *WorkflowContext, res StepResult) {
	// Skipped steps don't count towards the average.
	if res.Status == StepCompleted {
		m.stepsCompleted.Add(1)
		m.totalStepDuration.Add(res.Duration.Nanoseconds())
	}
}

func (m *BasicMetrics) OnStepError(ctx context.Context, stepName string, wc *WorkflowContext, err error) {
	m.stepsFailed.Add(1)
}

func (m *BasicMetrics) OnWorkflowComplete(ctx context.Context, wc *WorkflowContext) {
	m.workflowsCompleted.Add(1)
}

func (m *BasicMetrics) OnWorkflowError(ctx context.Context, wc *WorkflowContext, err error) {
	if wc.Status == StatusRolledBack {
		m.workflowsRolled.Add(1)
		return
	}
	m.workflowsFailed.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	steps := m.stepsCompleted.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if steps > 0 {
		avg = time.Duration(totalNs / steps)
	}

	return BasicMetricsSnapshot{
		WorkflowsCompleted:  m.workflowsCompleted.Load(),
		WorkflowsFailed:     m.workflowsFailed.Load(),
		WorkflowsRolledBack: m.workflowsRolled.Load(),
		StepsCompleted:      steps,
		StepsFailed:         m.stepsFailed.Load(),
		AvgStepDuration:     avg,
	}
}
