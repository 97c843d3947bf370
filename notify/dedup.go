package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultDedupTTL is how long a delivered key is remembered.
const DefaultDedupTTL = 24 * time.Hour

// Dedup wraps a Notifier and drops notifications whose idempotency key was
// already delivered. A failed delivery releases its key so the retry of the
// node can deliver it again.
//
// Notifications without a key are always delivered.
type Dedup struct {
	next    Notifier
	keys    KeyStore
	ttl     time.Duration
	metrics *Metrics
	logger  *slog.Logger
}

// DedupOption configures a Dedup.
type DedupOption func(*Dedup)

// WithTTL sets how long keys are remembered.
func WithTTL(ttl time.Duration) DedupOption {
	return func(d *Dedup) { d.ttl = ttl }
}

// WithMetrics attaches delivery metrics.
func WithMetrics(m *Metrics) DedupOption {
	return func(d *Dedup) { d.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) DedupOption {
	return func(d *Dedup) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDedup creates a Dedup in front of next.
func NewDedup(next Notifier, keys KeyStore, opts ...DedupOption) *Dedup {
	d := &Dedup{next: next, keys: keys, ttl: DefaultDedupTTL, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify implements Notifier.
func (d *Dedup) Notify(ctx context.Context, n Notification) error {
	if n.Key == "" {
		return d.deliver(ctx, n)
	}

	claimed, err := d.keys.Claim(ctx, n.Key, d.ttl)
	if err != nil {
		// At-least-once: deliver even when the key store is down.
		d.logger.LogAttrs(ctx, slog.LevelWarn, "dedup key store unavailable",
			slog.String("key", n.Key),
			slog.Any("error", err),
		)
		return d.deliver(ctx, n)
	}
	if !claimed {
		d.metrics.record(n.Kind, "duplicate")
		d.logger.LogAttrs(ctx, slog.LevelDebug, "duplicate notification dropped", slog.String("key", n.Key))
		return nil
	}

	if err := d.deliver(ctx, n); err != nil {
		// The caller may be cancelled; release with a fresh context.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if rerr := d.keys.Release(releaseCtx, n.Key); rerr != nil {
			d.logger.LogAttrs(ctx, slog.LevelWarn, "failed to release dedup key",
				slog.String("key", n.Key),
				slog.Any("error", rerr),
			)
		}
		return err
	}
	return nil
}

func (d *Dedup) deliver(ctx context.Context, n Notification) error {
	if err := d.next.Notify(ctx, n); err != nil {
		d.metrics.record(n.Kind, "failed")
		return err
	}
	d.metrics.record(n.Kind, "delivered")
	return nil
}

// Metrics counts notifications (namespace "triage", subsystem "notify"):
//
//   - notifications_total (counter): by kind and outcome
//     (delivered, duplicate, failed).
//
// A nil *Metrics records nothing.
type Metrics struct {
	notifications *prometheus.CounterVec
}

// NewMetrics creates and registers notification metrics with registry.
// A nil registry uses prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	return &Metrics{
		notifications: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Notifications by kind and outcome",
		}, []string{"kind", "outcome"}),
	}
}

func (m *Metrics) record(kind, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, outcome).Inc()
}
