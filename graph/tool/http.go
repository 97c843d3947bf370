package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseBody caps how much of a response body is read.
const maxResponseBody = 1 << 20

// HTTPTool is a tool for making HTTP requests.
//
// Input Parameters:
//   - method: HTTP method ("GET" or "POST", defaults to "GET")
//   - url: Target URL (required)
//   - headers: Optional map of HTTP headers
//   - body: Optional raw request body
//   - json: Optional value encoded as the JSON request body; sets Content-Type
//
// Output:
//   - status_code: HTTP status code (e.g., 200, 404)
//   - headers: Response headers as map
//   - body: Response body as string
//
// Non-2xx responses are not errors; callers inspect status_code.
//
// Example usage:
//
//	h := tool.NewHTTPTool(10 * time.Second)
//	result, err := h.Call(ctx, map[string]interface{}{
//	    "method": "POST",
//	    "url":    webhookURL,
//	    "json":   notification,
//	})
type HTTPTool struct {
	client *http.Client
}

// NewHTTPTool creates an HTTP tool. A zero timeout leaves the deadline to the
// caller's context.
func NewHTTPTool(timeout time.Duration) *HTTPTool {
	return NewHTTPToolWithClient(&http.Client{Timeout: timeout})
}

// NewHTTPToolWithClient creates an HTTP tool over a caller-supplied client,
// e.g. one with an instrumented transport.
func NewHTTPToolWithClient(client *http.Client) *HTTPTool {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTool{client: client}
}

// Name returns the tool identifier.
func (h *HTTPTool) Name() string {
	return "http_request"
}

// Call executes an HTTP request with the provided parameters.
func (h *HTTPTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	urlStr, err := StringParam(input, "url")
	if err != nil {
		return nil, err
	}

	method := http.MethodGet
	if m, ok := input["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	if method != http.MethodGet && method != http.MethodPost {
		return nil, fmt.Errorf("%w: unsupported HTTP method %s (supported: GET, POST)", ErrInvalidInput, method)
	}

	var body io.Reader
	contentType := ""
	if payload, ok := input["json"]; ok && payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: json body: %v", ErrInvalidInput, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	} else if bodyStr, ok := input["body"].(string); ok && bodyStr != "" {
		body = strings.NewReader(bodyStr)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if headers, ok := input["headers"].(map[string]interface{}); ok {
		for key, value := range headers {
			if valueStr, ok := value.(string); ok {
				req.Header.Set(key, valueStr)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	respHeaders := make(map[string]interface{}, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) == 1 {
			respHeaders[key] = values[0]
		} else {
			respHeaders[key] = values
		}
	}

	return map[string]interface{}{
		"status_code": resp.StatusCode,
		"headers":     respHeaders,
		"body":        string(respBody),
	}, nil
}
