// Package notify delivers the side effects of a triage run: tickets, chat
// posts, reply emails and forwards to a human inbox.
//
// Delivery is at-least-once. Every Notification carries an idempotency key
// derived from the run, the node and the kind of side effect; Dedup drops a
// notification whose key was already delivered, so a retried node does not
// open a second ticket.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Kinds of notification.
const (
	KindTicket  = "ticket"
	KindChat    = "chat"
	KindEmail   = "email"
	KindForward = "forward"
)

// Notification is one side effect to deliver.
type Notification struct {
	// ID uniquely identifies this delivery attempt's payload.
	ID string `json:"id"`

	// Key is the idempotency key, see IdempotencyKey.
	Key string `json:"key"`

	// Kind is one of the Kind* constants.
	Kind string `json:"kind"`

	// Target is the queue, channel or recipient.
	Target string `json:"target"`

	// Priority is free-form, e.g. "urgent" or "backlog".
	Priority string `json:"priority,omitempty"`

	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`

	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// IdempotencyKey builds the key identifying one side effect of one node in
// one run. A kind may be suffixed (e.g. "chat:feedback") when a node sends
// several notifications of the same kind.
func IdempotencyKey(runID, nodeID, kind string) string {
	return runID + "/" + nodeID + "/" + kind
}

// New fills ID and CreatedAt of a notification.
func New(key, kind, target, body string) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Key:       key,
		Kind:      kind,
		Target:    target,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
}

// Notifier delivers notifications. Implementations must respect ctx.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// DeliveryError reports a failed delivery.
type DeliveryError struct {
	Kind       string
	Target     string
	StatusCode int
	Cause      error
}

func (e *DeliveryError) Error() string {
	msg := fmt.Sprintf("deliver %s to %s", e.Kind, e.Target)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *DeliveryError) Unwrap() error { return e.Cause }

// Retryable reports whether delivery may succeed later: transport failures,
// rate limiting and server errors.
func (e *DeliveryError) Retryable() bool {
	if e.Cause != nil && (errors.Is(e.Cause, context.Canceled) || errors.Is(e.Cause, context.DeadlineExceeded)) {
		return true
	}
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// LogNotifier writes notifications to a logger. It is the default sink when
// no webhook is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs n at info level.
func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	attrs := []slog.Attr{
		slog.String("kind", n.Kind),
		slog.String("target", n.Target),
		slog.String("key", n.Key),
		slog.String("body", n.Body),
	}
	if n.Priority != "" {
		attrs = append(attrs, slog.String("priority", n.Priority))
	}
	if n.Subject != "" {
		attrs = append(attrs, slog.String("subject", n.Subject))
	}
	l.logger.LogAttrs(ctx, slog.LevelInfo, "notification", attrs...)
	return nil
}

// Multi delivers to every notifier in order and joins their errors.
func Multi(notifiers ...Notifier) Notifier {
	out := make(multi, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

type multi []Notifier

func (m multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
