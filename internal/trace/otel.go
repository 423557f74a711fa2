package trace

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/petrijr/flux/pkg/api"
)

// tracerName is the instrumentation scope name for flux tracing.
const tracerName = "github.com/petrijr/flux"

// OTelSink maps engine trace events onto OpenTelemetry spans.
//
// Each engine call (execute, resume, signal, retry) becomes one
// "flux.workflow" span, opened on workflow:start or workflow:resume and
// ended on workflow:complete, workflow:error or workflow:suspend. Step
// events are recorded as span events on the open span.
type OTelSink struct {
	tracer oteltrace.Tracer

	mu    sync.Mutex
	spans map[string]oteltrace.Span
}

// NewOTelSink uses the global TracerProvider.
func NewOTelSink() *OTelSink {
	return NewOTelSinkWithTracer(otel.Tracer(tracerName))
}

// NewOTelSinkWithTracer uses the given tracer.
func NewOTelSinkWithTracer(tracer oteltrace.Tracer) *OTelSink {
	return &OTelSink{
		tracer: tracer,
		spans:  make(map[string]oteltrace.Span),
	}
}

func (s *OTelSink) Emit(ctx context.Context, ev api.TraceEvent) error {
	switch ev.Type {
	case api.EventWorkflowStart, api.EventWorkflowResume:
		s.start(ctx, ev)
		return nil
	case api.EventWorkflowComplete, api.EventWorkflowError, api.EventWorkflowSuspend:
		s.end(ev)
		return nil
	}

	s.mu.Lock()
	span, ok := s.spans[ev.WorkflowID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	span.AddEvent(string(ev.Type), oteltrace.WithTimestamp(ev.Timestamp), oteltrace.WithAttributes(stepAttributes(ev)...))
	return nil
}

func (s *OTelSink) start(ctx context.Context, ev api.TraceEvent) {
	_, span := s.tracer.Start(ctx, "flux.workflow",
		oteltrace.WithTimestamp(ev.Timestamp),
		oteltrace.WithSpanKind(oteltrace.SpanKindInternal),
		oteltrace.WithAttributes(
			attribute.String("flux.workflow.id", ev.WorkflowID),
			attribute.String("flux.workflow.name", ev.WorkflowName),
			attribute.String("flux.workflow.entry", string(ev.Type)),
			attribute.Int("flux.workflow.step_index", ev.StepIndex),
		),
	)

	s.mu.Lock()
	if prev, ok := s.spans[ev.WorkflowID]; ok {
		prev.End()
	}
	s.spans[ev.WorkflowID] = span
	s.mu.Unlock()
}

func (s *OTelSink) end(ev api.TraceEvent) {
	s.mu.Lock()
	span, ok := s.spans[ev.WorkflowID]
	delete(s.spans, ev.WorkflowID)
	s.mu.Unlock()
	if !ok {
		return
	}

	span.SetAttributes(attribute.String("flux.workflow.status", ev.Status))
	switch ev.Type {
	case api.EventWorkflowError:
		span.RecordError(errors.New(ev.Error))
		span.SetStatus(codes.Error, ev.Error)
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End(oteltrace.WithTimestamp(ev.Timestamp))
}

func stepAttributes(ev api.TraceEvent) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("flux.step.name", ev.Step),
		attribute.Int("flux.step.index", ev.StepIndex),
	}
	if ev.Attempt > 0 {
		attrs = append(attrs, attribute.Int("flux.step.attempt", ev.Attempt))
	}
	if ev.Status != "" {
		attrs = append(attrs, attribute.String("flux.step.status", ev.Status))
	}
	if ev.Error != "" {
		attrs = append(attrs, attribute.String("flux.step.error", ev.Error))
	}
	if ev.DurationMs > 0 {
		attrs = append(attrs, attribute.Int64("flux.step.duration_ms", ev.DurationMs))
	}
	return attrs
}
