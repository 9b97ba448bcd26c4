package exec

import "context"

// Telemetry is the four non-blocking hook points the executor offers per
// step invocation. Implementations must not block the calling goroutine for
// any meaningful duration - they observe, they don't gate.
type Telemetry interface {
	OnItemConsumed(ctx context.Context, stepID string, item any)
	OnItemProduced(ctx context.Context, stepID string, item any)
	OnStepCompletedSingle(ctx context.Context, stepID string, err error)
	OnStepCompletedStream(ctx context.Context, stepID string, err error)
}

// NoopTelemetry implements Telemetry with no-ops. Used when the caller
// configures no telemetry adapter.
type NoopTelemetry struct{}

func (NoopTelemetry) OnItemConsumed(context.Context, string, any)          {}
func (NoopTelemetry) OnItemProduced(context.Context, string, any)          {}
func (NoopTelemetry) OnStepCompletedSingle(context.Context, string, error) {}
func (NoopTelemetry) OnStepCompletedStream(context.Context, string, error) {}

// MultiTelemetry fans every hook out to each of its members in order, e.g.
// combining an OTel span adapter with a Prometheus metrics adapter so a run
// gets both without either one knowing about the other.
type MultiTelemetry []Telemetry

func (m MultiTelemetry) OnItemConsumed(ctx context.Context, stepID string, item any) {
	for _, t := range m {
		t.OnItemConsumed(ctx, stepID, item)
	}
}

func (m MultiTelemetry) OnItemProduced(ctx context.Context, stepID string, item any) {
	for _, t := range m {
		t.OnItemProduced(ctx, stepID, item)
	}
}

func (m MultiTelemetry) OnStepCompletedSingle(ctx context.Context, stepID string, err error) {
	for _, t := range m {
		t.OnStepCompletedSingle(ctx, stepID, err)
	}
}

func (m MultiTelemetry) OnStepCompletedStream(ctx context.Context, stepID string, err error) {
	for _, t := range m {
		t.OnStepCompletedStream(ctx, stepID, err)
	}
}
