package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()

	ctx = WithRunID(ctx, "run-123")
	ctx = WithPipelineID(ctx, "ingest-pipeline")
	ctx = WithStepID(ctx, "normalize")
	ctx = WithSyntheticID(ctx, "persistence.audit@before")
	ctx = WithRuntime(ctx, "ingest-runtime")
	ctx = WithCorrelationID(ctx, "corr-abc")
	ctx = WithEnvironment(ctx, "production")

	if v := ctx.Value(ContextKeyRunID); v != "run-123" {
		t.Errorf("RunID: expected run-123, got %v", v)
	}
	if v := ctx.Value(ContextKeyPipelineID); v != "ingest-pipeline" {
		t.Errorf("PipelineID: expected ingest-pipeline, got %v", v)
	}
	if v := ctx.Value(ContextKeyStepID); v != "normalize" {
		t.Errorf("StepID: expected normalize, got %v", v)
	}
	if v := ctx.Value(ContextKeySyntheticID); v != "persistence.audit@before" {
		t.Errorf("SyntheticID: expected persistence.audit@before, got %v", v)
	}
	if v := ctx.Value(ContextKeyRuntime); v != "ingest-runtime" {
		t.Errorf("Runtime: expected ingest-runtime, got %v", v)
	}
	if v := ctx.Value(ContextKeyCorrelationID); v != "corr-abc" {
		t.Errorf("CorrelationID: expected corr-abc, got %v", v)
	}
	if v := ctx.Value(ContextKeyEnvironment); v != "production" {
		t.Errorf("Environment: expected production, got %v", v)
	}
}

func TestWithFields(t *testing.T) {
	ctx := context.Background()

	fields := &Fields{
		RunID:         "run-123",
		PipelineID:    "ingest-pipeline",
		StepID:        "normalize",
		Runtime:       "ingest-runtime",
		CorrelationID: "corr-abc",
		Environment:   "production",
	}

	ctx = WithFields(ctx, fields)

	if v := ctx.Value(ContextKeyRunID); v != "run-123" {
		t.Errorf("RunID: expected run-123, got %v", v)
	}
	if v := ctx.Value(ContextKeyRuntime); v != "ingest-runtime" {
		t.Errorf("Runtime: expected ingest-runtime, got %v", v)
	}
}

func TestWithFields_Partial(t *testing.T) {
	ctx := context.Background()

	ctx = WithRunID(ctx, "existing-run")

	fields := &Fields{
		StepID: "normalize",
	}

	ctx = WithFields(ctx, fields)

	if v := ctx.Value(ContextKeyStepID); v != "normalize" {
		t.Errorf("StepID: expected normalize, got %v", v)
	}
	if v := ctx.Value(ContextKeyRunID); v != "existing-run" {
		t.Errorf("RunID should still be existing-run, got %v", v)
	}
}

func TestExtractFields(t *testing.T) {
	ctx := context.Background()
	ctx = WithRunID(ctx, "run-123")
	ctx = WithPipelineID(ctx, "ingest-pipeline")
	ctx = WithStepID(ctx, "normalize")

	fields := ExtractFields(ctx)

	if fields.RunID != "run-123" {
		t.Errorf("RunID: expected run-123, got %s", fields.RunID)
	}
	if fields.PipelineID != "ingest-pipeline" {
		t.Errorf("PipelineID: expected ingest-pipeline, got %s", fields.PipelineID)
	}
	if fields.StepID != "normalize" {
		t.Errorf("StepID: expected normalize, got %s", fields.StepID)
	}
	if fields.Runtime != "" {
		t.Errorf("Runtime: expected empty, got %s", fields.Runtime)
	}
}

func TestExtractFields_EmptyContext(t *testing.T) {
	ctx := context.Background()

	fields := ExtractFields(ctx)

	if fields.RunID != "" || fields.PipelineID != "" || fields.StepID != "" {
		t.Error("Expected all fields to be empty for empty context")
	}
}

func TestWithFields_Nil(t *testing.T) {
	ctx := context.Background()

	result := WithFields(ctx, nil)

	if result != ctx {
		t.Error("Expected original context when fields is nil")
	}
}

func TestContextHandler_ExtractsContextFields(t *testing.T) {
	var buf bytes.Buffer

	textHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	contextHandler := NewContextHandler(textHandler)
	logger := slog.New(contextHandler)

	ctx := context.Background()
	ctx = WithRunID(ctx, "run-123")
	ctx = WithPipelineID(ctx, "ingest-pipeline")
	ctx = WithStepID(ctx, "normalize")

	logger.InfoContext(ctx, "test message", "custom_field", "custom_value")

	output := buf.String()

	if !strings.Contains(output, "run_id=run-123") {
		t.Errorf("Expected run_id in output, got: %s", output)
	}
	if !strings.Contains(output, "pipeline_id=ingest-pipeline") {
		t.Errorf("Expected pipeline_id in output, got: %s", output)
	}
	if !strings.Contains(output, "step_id=normalize") {
		t.Errorf("Expected step_id in output, got: %s", output)
	}
	if !strings.Contains(output, "custom_field=custom_value") {
		t.Errorf("Expected custom_field in output, got: %s", output)
	}
}

func TestContextHandler_WithCommonFields(t *testing.T) {
	var buf bytes.Buffer

	textHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	contextHandler := NewContextHandler(textHandler,
		slog.String("service", "corestream"),
		slog.String("version", "1.0.0"),
	)
	logger := slog.New(contextHandler)

	logger.Info("test message")

	output := buf.String()

	if !strings.Contains(output, "service=corestream") {
		t.Errorf("Expected service in output, got: %s", output)
	}
	if !strings.Contains(output, "version=1.0.0") {
		t.Errorf("Expected version in output, got: %s", output)
	}
}

func TestContextHandler_ContextOverridesCommonFields(t *testing.T) {
	var buf bytes.Buffer

	textHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	contextHandler := NewContextHandler(textHandler,
		slog.String("runtime", "default-runtime"),
	)
	logger := slog.New(contextHandler)

	ctx := WithRuntime(context.Background(), "ingest-runtime")
	logger.InfoContext(ctx, "test message")

	output := buf.String()

	if !strings.Contains(output, "runtime=ingest-runtime") {
		t.Errorf("Expected runtime=ingest-runtime in output, got: %s", output)
	}
}

func TestContextHandler_EmptyContextValues(t *testing.T) {
	var buf bytes.Buffer

	textHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	contextHandler := NewContextHandler(textHandler)
	logger := slog.New(contextHandler)

	logger.Info("test message")

	output := buf.String()

	if strings.Contains(output, "run_id=") {
		t.Errorf("Should not include empty run_id, got: %s", output)
	}
	if strings.Contains(output, "step_id=") {
		t.Errorf("Should not include empty step_id, got: %s", output)
	}
}

func TestContextHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer

	textHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	contextHandler := NewContextHandler(textHandler)
	logger := slog.New(contextHandler).With("component", "test")

	ctx := WithRunID(context.Background(), "run-123")
	logger.InfoContext(ctx, "test message")

	output := buf.String()

	if !strings.Contains(output, "component=test") {
		t.Errorf("Expected component in output, got: %s", output)
	}
	if !strings.Contains(output, "run_id=run-123") {
		t.Errorf("Expected run_id in output, got: %s", output)
	}
}

func TestContextHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer

	textHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	contextHandler := NewContextHandler(textHandler)
	logger := slog.New(contextHandler).WithGroup("request")

	ctx := WithRunID(context.Background(), "run-123")
	logger.InfoContext(ctx, "test message", "path", "/api/v1")

	output := buf.String()

	if !strings.Contains(output, "request.path=/api/v1") {
		t.Errorf("Expected grouped path in output, got: %s", output)
	}
}

func TestContextHandler_Enabled(t *testing.T) {
	textHandler := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	contextHandler := NewContextHandler(textHandler)

	ctx := context.Background()

	if contextHandler.Enabled(ctx, slog.LevelDebug) {
		t.Error("Debug should not be enabled when level is Warn")
	}
	if !contextHandler.Enabled(ctx, slog.LevelWarn) {
		t.Error("Warn should be enabled")
	}
	if !contextHandler.Enabled(ctx, slog.LevelError) {
		t.Error("Error should be enabled")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestContextHandler_Unwrap(t *testing.T) {
	textHandler := slog.NewTextHandler(&bytes.Buffer{}, nil)
	contextHandler := NewContextHandler(textHandler)

	unwrapped := contextHandler.Unwrap()

	if unwrapped != textHandler {
		t.Error("Unwrap should return the inner handler")
	}
}
