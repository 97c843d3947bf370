package emit

import (
	"context"
	"log/slog"
	"sort"
)

// LogEmitter implements Emitter by writing events to a structured slog logger.
//
// Levels are derived from the event:
//   - run_error and node_error: Error
//   - node_retry: Warn
//   - run_start and run_end: Info
//   - everything else: Debug
//
// Example text output:
//
//	level=INFO msg=run_end run_id=6f1c... step=4 node_id="" duration_ms=812
//
// Usage:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	emitter := emit.NewLogEmitter(logger)
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates a LogEmitter. A nil logger uses slog.Default().
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit writes the event at a level chosen from its message.
func (l *LogEmitter) Emit(event Event) {
	level := levelFor(event)
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}

	attrs := make([]slog.Attr, 0, 3+len(event.Meta))
	attrs = append(attrs,
		slog.String("run_id", event.RunID),
		slog.Int("step", event.Step),
		slog.String("node_id", event.NodeID),
	)

	keys := make([]string, 0, len(event.Meta))
	for k := range event.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, event.Meta[k]))
	}

	l.logger.LogAttrs(ctx, level, event.Msg, attrs...)
}

func levelFor(event Event) slog.Level {
	switch event.Msg {
	case MsgRunError, MsgNodeError:
		if cancelled, _ := event.Meta["cancelled"].(bool); cancelled {
			return slog.LevelInfo
		}
		return slog.LevelError
	case MsgNodeRetry:
		return slog.LevelWarn
	case MsgRunStart, MsgRunEnd:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
