package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestLogExporter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(NewLogExporter(logger)))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	tracer := Tracer(tp)

	ctx, parent := tracer.Start(context.Background(), "run")
	_, child := tracer.Start(ctx, "support-bug")
	child.SetAttributes(attribute.String("triage.node_id", "support-bug"))
	child.RecordError(errors.New("boom"))
	child.SetStatus(codes.Error, "boom")
	child.End()
	parent.End()

	out := buf.String()
	for _, want := range []string{
		`msg="span support-bug"`,
		"triage.node_id=support-bug",
		"status=error",
		"status_message=boom",
		"parent_id=" + parent.SpanContext().SpanID().String(),
		`msg="span run"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLogExporter_Disabled(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(NewLogExporter(logger)))
	_, span := Tracer(tp).Start(context.Background(), "quiet")
	span.End()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output below debug, got %q", buf.String())
	}
}

func TestNewTracerProvider(t *testing.T) {
	t.Run("log exporter", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

		tp, err := NewTracerProvider(context.Background(), Options{ServiceName: "triage-test", Logger: logger})
		if err != nil {
			t.Fatalf("NewTracerProvider() error = %v", err)
		}
		_, span := Tracer(tp).Start(context.Background(), "batched")
		span.End()

		// Shutdown flushes the batcher.
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
		if !strings.Contains(buf.String(), "span batched") {
			t.Errorf("span not exported: %q", buf.String())
		}
	})

	t.Run("otlp exporter", func(t *testing.T) {
		tp, err := NewTracerProvider(context.Background(), Options{Endpoint: "http://127.0.0.1:4318"})
		if err != nil {
			t.Fatalf("NewTracerProvider() error = %v", err)
		}
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	})
}

func TestSetupPropagation(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	SetupPropagation()
	fields := otel.GetTextMapPropagator().Fields()
	if !strings.Contains(strings.Join(fields, ","), "traceparent") {
		t.Errorf("Fields() = %v, want traceparent", fields)
	}
}
