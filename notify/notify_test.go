package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/dshills/support-triage/graph"
	"github.com/dshills/support-triage/graph/tool"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIdempotencyKey(t *testing.T) {
	if got := IdempotencyKey("run-1", "bug-severity-high", KindTicket); got != "run-1/bug-severity-high/ticket" {
		t.Errorf("IdempotencyKey() = %q", got)
	}
}

func TestNew(t *testing.T) {
	n := New("k", KindChat, "#feedback", "hello")
	if n.ID == "" || n.CreatedAt.IsZero() {
		t.Errorf("expected ID and CreatedAt to be set: %+v", n)
	}
	if n.Key != "k" || n.Kind != KindChat || n.Target != "#feedback" || n.Body != "hello" {
		t.Errorf("unexpected notification %+v", n)
	}
	if other := New("k", KindChat, "#feedback", "hello"); other.ID == n.ID {
		t.Error("IDs should be unique")
	}
}

func TestDeliveryError_Retryable(t *testing.T) {
	tests := []struct {
		name string
		err  *DeliveryError
		want bool
	}{
		{"transport", &DeliveryError{Cause: errors.New("connection refused")}, true},
		{"rate limited", &DeliveryError{StatusCode: 429}, true},
		{"server error", &DeliveryError{StatusCode: 502}, true},
		{"bad request", &DeliveryError{StatusCode: 400}, false},
		{"deadline", &DeliveryError{StatusCode: 400, Cause: context.DeadlineExceeded}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := graph.IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	n := New("r/n/ticket", KindTicket, "support-queue", "printer on fire")
	n.Priority = "urgent"
	if err := l.Notify(context.Background(), n); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid log line: %v", err)
	}
	for key, want := range map[string]string{"msg": "notification", "kind": "ticket", "priority": "urgent", "key": "r/n/ticket"} {
		if rec[key] != want {
			t.Errorf("%s = %v, want %s", key, rec[key], want)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Notify(ctx, n); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestMulti(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	failing := &Recorder{Err: errors.New("down")}

	m := Multi(a, nil, failing, b)
	err := m.Notify(context.Background(), New("k", KindChat, "#dev", "x"))
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Errorf("expected joined error, got %v", err)
	}
	if len(a.Sent()) != 1 || len(b.Sent()) != 1 {
		t.Error("every healthy notifier should have received the notification")
	}
}

func TestWebhookNotifier(t *testing.T) {
	var got Notification
	var idemKey, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idemKey = r.Header.Get("Idempotency-Key")
		auth = r.Header.Get("Authorization")
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	w := NewWebhookNotifier(tool.NewHTTPTool(5*time.Second), srv.URL, map[string]string{"Authorization": "Bearer t"})
	n := New("run-1/feedback-negative/ticket", KindTicket, "product", "too slow")
	if err := w.Notify(context.Background(), n); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if diff := cmp.Diff(n.Key, idemKey); diff != "" {
		t.Errorf("Idempotency-Key mismatch (-want +got):\n%s", diff)
	}
	if auth != "Bearer t" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.ID != n.ID || got.Body != "too slow" {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestWebhookNotifier_Errors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		w := NewWebhookNotifier(tool.NewHTTPTool(time.Second), srv.URL, nil)
		err := w.Notify(context.Background(), New("k", KindChat, "#dev", "x"))

		var de *DeliveryError
		if !errors.As(err, &de) {
			t.Fatalf("expected *DeliveryError, got %v", err)
		}
		if de.StatusCode != http.StatusServiceUnavailable || !de.Retryable() {
			t.Errorf("unexpected error %+v", de)
		}
	})

	t.Run("transport error", func(t *testing.T) {
		mock := &tool.MockTool{ToolName: "http_request", Err: errors.New("dial tcp: refused")}
		w := NewWebhookNotifier(mock, "http://hooks.invalid", nil)
		err := w.Notify(context.Background(), New("k", KindChat, "#dev", "x"))
		if !graph.IsRetryable(err) {
			t.Errorf("transport errors should be retryable, got %v", err)
		}
	})
}

func TestDedup(t *testing.T) {
	rec := &Recorder{}
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	d := NewDedup(rec, NewMemoryKeyStore(), WithMetrics(metrics), WithLogger(quietLogger()))
	ctx := context.Background()

	n := New("run-1/bug-severity-high/ticket", KindTicket, "support-queue", "crash")
	for i := 0; i < 3; i++ {
		if err := d.Notify(ctx, n); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}
	}
	if len(rec.Sent()) != 1 {
		t.Errorf("expected a single delivery, got %d", len(rec.Sent()))
	}

	unkeyed := New("", KindChat, "#dev", "x")
	_ = d.Notify(ctx, unkeyed)
	_ = d.Notify(ctx, unkeyed)
	if len(rec.Sent()) != 3 {
		t.Errorf("notifications without a key are never deduplicated, got %d", len(rec.Sent()))
	}

	if got := testutil.ToFloat64(metrics.notifications.WithLabelValues(KindTicket, "duplicate")); got != 2 {
		t.Errorf("duplicates = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.notifications.WithLabelValues(KindTicket, "delivered")); got != 1 {
		t.Errorf("delivered = %v, want 1", got)
	}
}

// flaky fails its first deliveries with a retryable error.
type flaky struct {
	failures int32
	calls    atomic.Int32
}

func (f *flaky) Notify(ctx context.Context, n Notification) error {
	if f.calls.Add(1) <= f.failures {
		return &DeliveryError{Kind: n.Kind, Target: n.Target, StatusCode: 503}
	}
	return nil
}

func TestDedup_ReleasesKeyOnFailure(t *testing.T) {
	next := &flaky{failures: 1}
	d := NewDedup(next, NewMemoryKeyStore(), WithLogger(quietLogger()))
	n := New("run-1/feedback-negative/chat", KindChat, "#product", "x")

	if err := d.Notify(context.Background(), n); err == nil {
		t.Fatal("expected first delivery to fail")
	}
	if err := d.Notify(context.Background(), n); err != nil {
		t.Fatalf("retry should deliver, got %v", err)
	}
	if next.calls.Load() != 2 {
		t.Errorf("expected 2 delivery attempts, got %d", next.calls.Load())
	}
}

type brokenKeys struct{}

func (brokenKeys) Claim(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func (brokenKeys) Release(context.Context, string) error { return nil }

func TestDedup_KeyStoreDownStillDelivers(t *testing.T) {
	rec := &Recorder{}
	d := NewDedup(rec, brokenKeys{}, WithLogger(quietLogger()))
	if err := d.Notify(context.Background(), New("k", KindEmail, "a@meta.com", "hi")); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if len(rec.Sent()) != 1 {
		t.Error("notification lost when key store failed")
	}
}

func TestMemoryKeyStore_Expiry(t *testing.T) {
	ks := NewMemoryKeyStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ks.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := ks.Claim(ctx, "k", time.Minute); !ok {
		t.Fatal("first claim should succeed")
	}
	if ok, _ := ks.Claim(ctx, "k", time.Minute); ok {
		t.Error("second claim should fail while held")
	}

	now = now.Add(2 * time.Minute)
	if ok, _ := ks.Claim(ctx, "k", time.Minute); !ok {
		t.Error("claim should succeed after expiry")
	}

	if ok, _ := ks.Claim(ctx, "forever", 0); !ok {
		t.Fatal("claim without ttl should succeed")
	}
	now = now.Add(1000 * time.Hour)
	if ok, _ := ks.Claim(ctx, "forever", 0); ok {
		t.Error("keys without ttl never expire")
	}

	_ = ks.Release(ctx, "forever")
	if ok, _ := ks.Claim(ctx, "forever", 0); !ok {
		t.Error("released key should be claimable")
	}
}

func TestRedisKeyStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ks := NewRedisKeyStore(client, "")
	ctx := context.Background()

	if err := ks.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	ok, err := ks.Claim(ctx, "run-1/process-other/forward", time.Hour)
	if err != nil || !ok {
		t.Fatalf("Claim() = %v, %v", ok, err)
	}
	if !mr.Exists("triage:notify:run-1/process-other/forward") {
		t.Error("expected prefixed key in redis")
	}
	if ttl := mr.TTL("triage:notify:run-1/process-other/forward"); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}

	if ok, _ := ks.Claim(ctx, "run-1/process-other/forward", time.Hour); ok {
		t.Error("second claim should fail")
	}

	mr.FastForward(2 * time.Hour)
	if ok, _ := ks.Claim(ctx, "run-1/process-other/forward", time.Hour); !ok {
		t.Error("claim should succeed after ttl")
	}

	if err := ks.Release(ctx, "run-1/process-other/forward"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if mr.Exists("triage:notify:run-1/process-other/forward") {
		t.Error("key still present after Release")
	}

	t.Run("shared between replicas", func(t *testing.T) {
		a := NewDedup(&Recorder{}, NewRedisKeyStore(client, "app"), WithLogger(quietLogger()))
		recB := &Recorder{}
		b := NewDedup(recB, NewRedisKeyStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "app"), WithLogger(quietLogger()))

		n := New("run-9/compose-response/email", KindEmail, "a@meta.com", "hi")
		_ = a.Notify(ctx, n)
		_ = b.Notify(ctx, n)
		if len(recB.Sent()) != 0 {
			t.Error("second replica delivered a duplicate")
		}
	})

	t.Run("server down", func(t *testing.T) {
		down := NewRedisKeyStore(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1}), "")
		if _, err := down.Claim(ctx, "x", time.Minute); err == nil {
			t.Error("expected error when redis is unreachable")
		}
	})
}
