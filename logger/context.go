package logger

import "context"

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for fields automatically attached to every log record.
const (
	// ContextKeyRunID identifies the pipeline run (one Runner.Run invocation).
	ContextKeyRunID contextKey = "run_id"

	// ContextKeyPipelineID identifies the pipeline definition being executed.
	ContextKeyPipelineID contextKey = "pipeline_id"

	// ContextKeyStepID identifies the step currently executing.
	ContextKeyStepID contextKey = "step_id"

	// ContextKeySyntheticID identifies a synthetic step inserted by aspect expansion.
	ContextKeySyntheticID contextKey = "synthetic_id"

	// ContextKeyRuntime identifies the runtime placement a step resolved to.
	ContextKeyRuntime contextKey = "runtime"

	// ContextKeyCorrelationID is used for distributed tracing across connectors.
	ContextKeyCorrelationID contextKey = "correlation_id"

	// ContextKeyEnvironment identifies the deployment environment.
	ContextKeyEnvironment contextKey = "environment"
)

var allContextKeys = []contextKey{
	ContextKeyRunID,
	ContextKeyPipelineID,
	ContextKeyStepID,
	ContextKeySyntheticID,
	ContextKeyRuntime,
	ContextKeyCorrelationID,
	ContextKeyEnvironment,
}

// WithRunID returns a new context with the run ID set.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ContextKeyRunID, runID)
}

// WithPipelineID returns a new context with the pipeline ID set.
func WithPipelineID(ctx context.Context, pipelineID string) context.Context {
	return context.WithValue(ctx, ContextKeyPipelineID, pipelineID)
}

// WithStepID returns a new context with the current step ID set.
func WithStepID(ctx context.Context, stepID string) context.Context {
	return context.WithValue(ctx, ContextKeyStepID, stepID)
}

// WithSyntheticID returns a new context with the current synthetic step ID set.
func WithSyntheticID(ctx context.Context, syntheticID string) context.Context {
	return context.WithValue(ctx, ContextKeySyntheticID, syntheticID)
}

// WithRuntime returns a new context with the resolved runtime name set.
func WithRuntime(ctx context.Context, runtime string) context.Context {
	return context.WithValue(ctx, ContextKeyRuntime, runtime)
}

// WithCorrelationID returns a new context with the correlation ID set.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationID, correlationID)
}

// WithEnvironment returns a new context with the environment set.
func WithEnvironment(ctx context.Context, environment string) context.Context {
	return context.WithValue(ctx, ContextKeyEnvironment, environment)
}

// Fields holds all standard logging context fields.
type Fields struct {
	RunID         string
	PipelineID    string
	StepID        string
	SyntheticID   string
	Runtime       string
	CorrelationID string
	Environment   string
}

// WithFields returns a new context with multiple logging fields set at once.
// Only non-empty values are set.
func WithFields(ctx context.Context, f *Fields) context.Context {
	if f == nil {
		return ctx
	}
	if f.RunID != "" {
		ctx = WithRunID(ctx, f.RunID)
	}
	if f.PipelineID != "" {
		ctx = WithPipelineID(ctx, f.PipelineID)
	}
	if f.StepID != "" {
		ctx = WithStepID(ctx, f.StepID)
	}
	if f.SyntheticID != "" {
		ctx = WithSyntheticID(ctx, f.SyntheticID)
	}
	if f.Runtime != "" {
		ctx = WithRuntime(ctx, f.Runtime)
	}
	if f.CorrelationID != "" {
		ctx = WithCorrelationID(ctx, f.CorrelationID)
	}
	if f.Environment != "" {
		ctx = WithEnvironment(ctx, f.Environment)
	}
	return ctx
}

// ExtractFields extracts all logging fields present in a context.
func ExtractFields(ctx context.Context) Fields {
	f := Fields{}
	if v := ctx.Value(ContextKeyRunID); v != nil {
		f.RunID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyPipelineID); v != nil {
		f.PipelineID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyStepID); v != nil {
		f.StepID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeySyntheticID); v != nil {
		f.SyntheticID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyRuntime); v != nil {
		f.Runtime, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyCorrelationID); v != nil {
		f.CorrelationID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyEnvironment); v != nil {
		f.Environment, _ = v.(string)
	}
	return f
}
