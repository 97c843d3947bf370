package notify

import (
	"context"
	"sync"
)

// Recorder is a Notifier that keeps every notification in memory. Tests and
// the demo use it to assert which side effects a run produced.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification

	// Err, if set, is returned instead of recording.
	Err error
}

// Notify records n.
func (r *Recorder) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns a copy of the recorded notifications.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// Keys returns the idempotency keys of the recorded notifications, in order.
func (r *Recorder) Keys() []string {
	sent := r.Sent()
	keys := make([]string, len(sent))
	for i, n := range sent {
		keys[i] = n.Key
	}
	return keys
}
