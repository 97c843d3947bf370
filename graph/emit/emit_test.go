package emit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestEvent_IsError(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  bool
	}{
		{"node error", Event{Msg: MsgNodeError}, true},
		{"run error", Event{Msg: MsgRunError}, true},
		{"retry with error text", Event{Msg: MsgNodeRetry, Meta: map[string]interface{}{"error": "503"}}, false},
		{"node end", Event{Msg: MsgNodeEnd}, false},
		{"custom with error", Event{Msg: "custom", Meta: map[string]interface{}{"error": "x"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.IsError(); got != tt.want {
				t.Errorf("IsError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBufferedEmitter(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{RunID: "r1", Msg: MsgRunStart})
	b.Emit(Event{RunID: "r1", Step: 1, NodeID: "process-message", Msg: MsgNodeEnd})
	b.Emit(Event{RunID: "r1", Step: 2, NodeID: "process-support", Msg: MsgNodeEnd})
	b.Emit(Event{RunID: "r2", Step: 1, NodeID: "process-message", Msg: MsgNodeEnd})

	if got := len(b.GetHistory("r1")); got != 3 {
		t.Errorf("GetHistory(r1) has %d events, want 3", got)
	}

	min := 2
	filtered := b.GetHistoryWithFilter("r1", HistoryFilter{Msg: MsgNodeEnd, MinStep: &min})
	if len(filtered) != 1 || filtered[0].NodeID != "process-support" {
		t.Errorf("filtered = %+v", filtered)
	}

	if diff := cmp.Diff([]string{"process-message", "process-support"}, b.NodeSequence("r1")); diff != "" {
		t.Errorf("NodeSequence mismatch (-want +got):\n%s", diff)
	}

	if got := b.GetHistory("unknown"); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}

	b.Clear("r1")
	if len(b.GetHistory("r1")) != 0 || len(b.GetHistory("r2")) != 1 {
		t.Error("Clear(r1) removed the wrong events")
	}
	b.Clear("")
	if len(b.GetHistory("r2")) != 0 {
		t.Error("Clear(\"\") kept events")
	}
}

func TestMulti(t *testing.T) {
	a, b := NewBufferedEmitter(), NewBufferedEmitter()
	m := Multi(a, nil, b, NewNullEmitter())
	m.Emit(Event{RunID: "r", Msg: MsgRunStart})

	if len(a.GetHistory("r")) != 1 || len(b.GetHistory("r")) != 1 {
		t.Error("event not delivered to every emitter")
	}
}

func TestLogEmitter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := NewLogEmitter(logger)

	e.Emit(Event{RunID: "r1", Step: 1, NodeID: "process-message", Msg: MsgNodeRetry, Meta: map[string]interface{}{
		"attempt": 1,
		"error":   "status 503",
	}})
	e.Emit(Event{RunID: "r1", Msg: MsgRunError, Meta: map[string]interface{}{"error": "cancelled", "cancelled": true}})
	e.Emit(Event{RunID: "r1", Msg: MsgRunError, Meta: map[string]interface{}{"error": "node failed"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 log lines, got %d:\n%s", len(lines), buf.String())
	}

	var first map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}
	if first["level"] != "WARN" || first["msg"] != MsgNodeRetry || first["node_id"] != "process-message" {
		t.Errorf("unexpected retry line %v", first)
	}
	if first["error"] != "status 503" {
		t.Errorf("meta not logged: %v", first)
	}

	wantLevels := []string{"WARN", "INFO", "ERROR"}
	for i, line := range lines {
		var rec map[string]interface{}
		_ = json.Unmarshal([]byte(line), &rec)
		if rec["level"] != wantLevels[i] {
			t.Errorf("line %d level = %v, want %s", i, rec["level"], wantLevels[i])
		}
	}
}

func TestLogEmitter_SkipsDisabledLevels(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	e.Emit(Event{RunID: "r1", Step: 1, NodeID: "n", Msg: MsgNodeStart})
	if buf.Len() != 0 {
		t.Errorf("debug event logged at info level: %s", buf.String())
	}
}

func TestOTelEmitter(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	e := NewOTelEmitter(tp.Tracer("test"))
	e.Emit(Event{RunID: "run-001", Step: 1, NodeID: "process-message", Msg: MsgNodeEnd, Meta: map[string]interface{}{
		"duration_ms": int64(250),
		"attempt":     1,
	}})
	e.Emit(Event{RunID: "run-001", Step: 1, NodeID: "process-message", Msg: MsgNodeError, Meta: map[string]interface{}{
		"error": "status 401",
	}})

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}

	ok := spans[0]
	if ok.Name != MsgNodeEnd {
		t.Errorf("span name = %q", ok.Name)
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range ok.Attributes {
		attrs[kv.Key] = kv.Value
	}
	if attrs["triage.run_id"].AsString() != "run-001" {
		t.Errorf("run_id = %v", attrs["triage.run_id"])
	}
	if attrs["triage.node_id"].AsString() != "process-message" {
		t.Errorf("node_id = %v", attrs["triage.node_id"])
	}
	if attrs["triage.attempt"].AsInt64() != 1 {
		t.Errorf("attempt = %v", attrs["triage.attempt"])
	}
	if d := ok.EndTime.Sub(ok.StartTime); d.Milliseconds() != 250 {
		t.Errorf("span duration = %v, want 250ms", d)
	}

	failed := spans[1]
	if failed.Status.Code != codes.Error || failed.Status.Description != "status 401" {
		t.Errorf("status = %+v", failed.Status)
	}
}
