// Package logging builds the process logger: a text or JSON slog handler
// that redacts credentials and tags records with the run and node taken
// from the context.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/dshills/support-triage/graph"
)

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New returns a logger writing to w. format is "text" or "json".
func New(level, format string, w io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl, ReplaceAttr: redactAttr}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return slog.New(NewContextHandler(h)), nil
}

// ContextHandler adds run_id and node_id from the context to every record
// that does not already carry them.
type ContextHandler struct {
	inner   slog.Handler
	hasRun  bool
	hasNode bool
}

// NewContextHandler wraps inner.
func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

// Enabled implements slog.Handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
//
//nolint:gocritic // slog.Handler takes the record by value
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	hasRun, hasNode := h.hasRun, h.hasNode
	r.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "run_id":
			hasRun = true
		case "node_id":
			hasNode = true
		}
		return true
	})
	if !hasRun {
		if id := graph.RunIDFromContext(ctx); id != "" {
			r.AddAttrs(slog.String("run_id", id))
		}
	}
	if !hasNode {
		if id := graph.NodeIDFromContext(ctx); id != "" {
			r.AddAttrs(slog.String("node_id", id))
		}
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := &ContextHandler{inner: h.inner.WithAttrs(attrs), hasRun: h.hasRun, hasNode: h.hasNode}
	for _, a := range attrs {
		switch a.Key {
		case "run_id":
			c.hasRun = true
		case "node_id":
			c.hasNode = true
		}
	}
	return c
}

// WithGroup implements slog.Handler. Attributes added inside a group do not
// count as the top-level run_id or node_id.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name), hasRun: h.hasRun, hasNode: h.hasNode}
}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[a-zA-Z0-9_-]{16,}`),
	regexp.MustCompile(`AIza[a-zA-Z0-9_-]{35}`),
	regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),
}

// Redact masks API keys and bearer tokens in s.
func Redact(s string) string {
	for _, p := range secretPatterns {
		s = p.ReplaceAllStringFunc(s, func(match string) string {
			if strings.HasPrefix(match, "Bearer") {
				return "Bearer [REDACTED]"
			}
			return match[:4] + "...[REDACTED]"
		})
	}
	return s
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		if s := a.Value.String(); s != "" {
			if r := Redact(s); r != s {
				a.Value = slog.StringValue(r)
			}
		}
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			a.Value = slog.StringValue(Redact(err.Error()))
		}
	}
	return a
}
