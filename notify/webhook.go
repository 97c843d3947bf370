package notify

import (
	"context"
	"fmt"

	"github.com/dshills/support-triage/graph/tool"
)

// WebhookNotifier POSTs each notification as JSON to a URL, e.g. a chat
// incoming-webhook or a ticketing bridge. The request goes through a
// tool.Tool so the transport can be swapped in tests.
//
// The idempotency key is sent in the Idempotency-Key header so receivers
// that support it can drop duplicates themselves.
type WebhookNotifier struct {
	http    tool.Tool
	url     string
	headers map[string]string
}

// NewWebhookNotifier creates a notifier posting to url through http, which is
// usually a *tool.HTTPTool.
func NewWebhookNotifier(http tool.Tool, url string, headers map[string]string) *WebhookNotifier {
	return &WebhookNotifier{http: http, url: url, headers: headers}
}

// Notify delivers n. Non-2xx responses become a *DeliveryError.
func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) error {
	headers := map[string]interface{}{"Idempotency-Key": n.Key}
	for k, v := range w.headers {
		headers[k] = v
	}

	out, err := w.http.Call(ctx, map[string]interface{}{
		"method":  "POST",
		"url":     w.url,
		"headers": headers,
		"json":    n,
	})
	if err != nil {
		return &DeliveryError{Kind: n.Kind, Target: n.Target, Cause: err}
	}

	status, _ := out["status_code"].(int)
	if status < 200 || status > 299 {
		body, _ := out["body"].(string)
		if len(body) > 200 {
			body = body[:200]
		}
		return &DeliveryError{Kind: n.Kind, Target: n.Target, StatusCode: status, Cause: fmt.Errorf("webhook response: %s", body)}
	}
	return nil
}
