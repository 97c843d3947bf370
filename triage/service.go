package triage

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/support-triage/graph"
)

// DefaultSender is used when a message arrives without a sender.
const DefaultSender = "user@company.com"

// ErrEmptyMessage is returned by Submit for a message without text.
var ErrEmptyMessage = errors.New("message is required")

// Result is the outcome of one triage run.
type Result struct {
	RunID string `json:"runId"`
	State State  `json:"state"`

	// Trace lists the executed nodes in order.
	Trace []string `json:"trace"`

	Duration time.Duration `json:"-"`
}

// Service runs messages through the triage workflow. It is safe for
// concurrent use; every Submit owns its state.
type Service struct {
	engine *graph.Engine[State]
	logger *slog.Logger
	newID  func() string
}

// NewService creates a Service over engine. A nil logger uses slog.Default().
func NewService(engine *graph.Engine[State], logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, logger: logger, newID: uuid.NewString}
}

// Engine returns the underlying engine.
func (s *Service) Engine() *graph.Engine[State] { return s.engine }

// Submit triages msg. A missing sender defaults to DefaultSender; empty text
// fails with ErrEmptyMessage before any node runs.
//
// The returned Result carries the run ID even when err is non-nil.
func (s *Service) Submit(ctx context.Context, msg Message) (Result, error) {
	msg.Text = strings.TrimSpace(msg.Text)
	msg.Sender = strings.TrimSpace(msg.Sender)
	if msg.Text == "" {
		return Result{}, ErrEmptyMessage
	}
	if msg.Sender == "" {
		msg.Sender = DefaultSender
	}

	runID := s.newID()
	logger := s.logger.With(slog.String("run_id", runID))
	logger.InfoContext(ctx, "processing message", slog.String("sender", msg.Sender))

	start := time.Now()
	res, err := s.engine.Execute(ctx, runID, State{Message: msg})
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, graph.ErrCancelled) {
			logger.InfoContext(ctx, "run cancelled", slog.Any("error", err))
		} else {
			logger.ErrorContext(ctx, "run failed", slog.Any("error", err), slog.Duration("elapsed", elapsed))
		}
		return Result{RunID: runID, Trace: res.Trace, Duration: elapsed}, err
	}

	logger.InfoContext(ctx, "message triaged",
		slog.String("category", string(res.State.Category)),
		slog.Int("actions", len(res.State.Actions)),
		slog.Duration("elapsed", elapsed),
	)
	return Result{RunID: runID, State: res.State, Trace: res.Trace, Duration: elapsed}, nil
}
