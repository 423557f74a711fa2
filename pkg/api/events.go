package api

import (
	"context"
	"time"
)

// EventType identifies a trace event.
type EventType string

const (
	EventWorkflowStart    EventType = "workflow:start"
	EventWorkflowResume   EventType = "workflow:resume"
	EventWorkflowSuspend  EventType = "workflow:suspend"
	EventWorkflowComplete EventType = "workflow:complete"
	EventWorkflowError    EventType = "workflow:error"

	EventStepStart      EventType = "step:start"
	EventStepComplete   EventType = "step:complete"
	EventStepSkip       EventType = "step:skip"
	EventStepError      EventType = "step:error"
	EventStepRetry      EventType = "step:retry"
	EventStepCompensate EventType = "step:compensate"
)

// TraceEvent is a small append-only record of a workflow transition.
// Keep it low-volume: do NOT put step data or payloads here.
type TraceEvent struct {
	Type         EventType `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	WorkflowID   string    `json:"workflowId"`
	WorkflowName string    `json:"workflowName,omitempty"`
	Step         string    `json:"step,omitempty"`
	StepIndex    int       `json:"stepIndex"`
	Attempt      int       `json:"attempt,omitempty"`
	Status       string    `json:"status,omitempty"`
	Error        string    `json:"error,omitempty"`
	DurationMs   int64     `json:"durationMs,omitempty"`
}

// TraceSink receives trace events. The engine ignores (and logs) any error
// a sink returns; a sink can never change a workflow's outcome.
type TraceSink interface {
	Emit(ctx context.Context, ev TraceEvent) error
}
