package telemetry

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/corestream/pipeline/scope"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// StepTelemetry implements exec.Telemetry by emitting one OTel span per step
// invocation: the span opens on the first item consumed or produced and
// closes when the executor reports the step complete, with item counts
// attached as attributes rather than one event per item to keep span size
// bounded on high-volume streams.
type StepTelemetry struct {
	tracer oteltrace.Tracer

	mu     sync.Mutex
	active map[string]*stepSpan
}

type stepSpan struct {
	span     oteltrace.Span
	consumed atomic.Int64
	produced atomic.Int64
}

// NewStepTelemetry creates a StepTelemetry that starts spans from tp. A nil
// tp falls back to the globally registered TracerProvider.
func NewStepTelemetry(tp oteltrace.TracerProvider) *StepTelemetry {
	return &StepTelemetry{
		tracer: Tracer(tp),
		active: make(map[string]*stepSpan),
	}
}

// runScopedKey disambiguates concurrently executing runs of the same step id
// using the PipelineContext bound to ctx, falling back to the bare step id
// when no scope is bound (e.g. in unit tests invoking the executor directly).
func runScopedKey(ctx context.Context, stepID string) string {
	if pc, ok := scope.Get(ctx); ok && pc.RunID != "" {
		return pc.RunID + ":" + stepID
	}
	return stepID
}

func (t *StepTelemetry) getOrStart(ctx context.Context, stepID string) *stepSpan {
	key := runScopedKey(ctx, stepID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.active[key]; ok {
		return s
	}
	_, span := t.tracer.Start(ctx, "pipeline.step."+stepID,
		oteltrace.WithAttributes(attribute.String("step.id", stepID)))
	s := &stepSpan{span: span}
	t.active[key] = s
	return s
}

func (t *StepTelemetry) OnItemConsumed(ctx context.Context, stepID string, _ any) {
	t.getOrStart(ctx, stepID).consumed.Add(1)
}

func (t *StepTelemetry) OnItemProduced(ctx context.Context, stepID string, _ any) {
	t.getOrStart(ctx, stepID).produced.Add(1)
}

func (t *StepTelemetry) OnStepCompletedSingle(ctx context.Context, stepID string, err error) {
	t.finish(ctx, stepID, err)
}

func (t *StepTelemetry) OnStepCompletedStream(ctx context.Context, stepID string, err error) {
	t.finish(ctx, stepID, err)
}

func (t *StepTelemetry) finish(ctx context.Context, stepID string, err error) {
	key := runScopedKey(ctx, stepID)

	t.mu.Lock()
	s, ok := t.active[key]
	if ok {
		delete(t.active, key)
	}
	t.mu.Unlock()

	if !ok {
		// The step produced no items before completing (e.g. an empty
		// stream); open and close a zero-activity span so the step still
		// shows up in traces.
		_, span := t.tracer.Start(ctx, "pipeline.step."+stepID,
			oteltrace.WithAttributes(attribute.String("step.id", stepID)))
		s = &stepSpan{span: span}
	}

	s.span.SetAttributes(
		attribute.Int64("step.items_consumed", s.consumed.Load()),
		attribute.Int64("step.items_produced", s.produced.Load()),
	)
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
