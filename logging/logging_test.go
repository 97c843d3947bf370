package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/dshills/support-triage/graph"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNew(t *testing.T) {
	t.Run("json with level filter", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New("warn", "json", &buf)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		logger.Info("hidden")
		logger.Warn("shown", slog.Int("n", 1))

		lines := decodeLines(t, &buf)
		if len(lines) != 1 {
			t.Fatalf("got %d lines, want 1: %s", len(lines), buf.String())
		}
		if lines[0]["msg"] != "shown" || lines[0]["n"] != float64(1) {
			t.Errorf("record = %v", lines[0])
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New("info", "text", &buf)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		logger.Info("hello", slog.String("k", "v"))
		if !strings.Contains(buf.String(), "msg=hello") || !strings.Contains(buf.String(), "k=v") {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("invalid", func(t *testing.T) {
		if _, err := New("info", "xml", &bytes.Buffer{}); err == nil {
			t.Error("expected error for unknown format")
		}
		if _, err := New("loud", "text", &bytes.Buffer{}); err == nil {
			t.Error("expected error for unknown level")
		}
	})
}

func TestContextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("debug", "json", &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := graph.WithRunInfo(context.Background(), "run-1", "support-bug")

	logger.InfoContext(ctx, "from context")
	logger.InfoContext(ctx, "explicit", slog.String("run_id", "run-2"))
	logger.With(slog.String("node_id", "other")).InfoContext(ctx, "with attrs")
	logger.Info("no context")

	lines := decodeLines(t, &buf)
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(lines))
	}
	if lines[0]["run_id"] != "run-1" || lines[0]["node_id"] != "support-bug" {
		t.Errorf("context record = %v", lines[0])
	}
	if lines[1]["run_id"] != "run-2" {
		t.Errorf("explicit run_id overridden: %v", lines[1])
	}
	if lines[2]["node_id"] != "other" || lines[2]["run_id"] != "run-1" {
		t.Errorf("With record = %v", lines[2])
	}
	if _, ok := lines[3]["run_id"]; ok {
		t.Errorf("record without context has run_id: %v", lines[3])
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"key sk-or-v1-abcdefghijklmnopqrstuvwxyz", "key sk-o...[REDACTED]"},
		{"Authorization: Bearer abc.def-123", "Authorization: Bearer [REDACTED]"},
		{"AIza" + strings.Repeat("x", 35), "AIza...[REDACTED]"},
		{"nothing secret here", "nothing secret here"},
	}
	for _, tt := range tests {
		if got := Redact(tt.in); got != tt.want {
			t.Errorf("Redact(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	var buf bytes.Buffer
	logger, err := New("info", "json", &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Error("call failed",
		slog.String("header", "Bearer secret-token"),
		slog.Any("error", errors.New("401 for key sk-abcdefghijklmnopqrstuv")),
	)
	out := buf.String()
	if strings.Contains(out, "secret-token") || strings.Contains(out, "abcdefghijklmnopqrstuv") {
		t.Errorf("secrets leaked: %s", out)
	}
}
