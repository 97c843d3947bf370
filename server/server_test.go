package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/support-triage/classify"
	"github.com/dshills/support-triage/graph"
	"github.com/dshills/support-triage/graph/store"
	"github.com/dshills/support-triage/notify"
	"github.com/dshills/support-triage/triage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	server   *httptest.Server
	store    *store.MemStore[triage.State]
	costs    *graph.CostTracker
	notifier *notify.Recorder
}

func newFixture(t *testing.T, c classify.Classifier, exposeErrors bool) *fixture {
	t.Helper()
	f := &fixture{
		store:    store.NewMemStore[triage.State](),
		costs:    graph.NewCostTracker(),
		notifier: &notify.Recorder{},
	}

	g, err := triage.NewGraph(triage.Deps{Classifier: c, Notifier: f.notifier, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewGraph() error = %v", err)
	}
	engine, err := graph.New(g, graph.WithStore[triage.State](f.store))
	if err != nil {
		t.Fatalf("graph.New() error = %v", err)
	}

	registry := prometheus.NewRegistry()
	srv := New(triage.NewService(engine, discardLogger()), Options{
		Store:        f.store,
		Costs:        f.costs,
		Gatherer:     registry,
		Metrics:      NewMetrics(registry),
		ExposeErrors: exposeErrors,
		Logger:       discardLogger(),
	})
	f.server = httptest.NewServer(srv.Handler())
	t.Cleanup(f.server.Close)
	return f
}

func bugClassifier() *classify.Scripted {
	return classify.NewScripted().
		Reply("message_category", `{"type":"Support","reason":"crash"}`).
		Reply("support_type", `{"type":"Bug","reason":"crash"}`).
		Reply("bug_severity", `{"severity":"high","description":"Crash on save","reason":"data loss"}`)
}

func post(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func TestChat(t *testing.T) {
	for _, path := range []string{"/chat", "/support"} {
		t.Run(path, func(t *testing.T) {
			f := newFixture(t, bugClassifier(), false)

			resp, body := post(t, f.server.URL+path, `{"message":"The app crashes when I save","sender":"alice@meta.com"}`)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
			}

			var got ChatResponse
			if err := json.Unmarshal(body, &got); err != nil {
				t.Fatalf("invalid response: %v", err)
			}
			if !got.Success || got.RunID == "" {
				t.Errorf("response = %+v", got)
			}
			if got.OriginalMessage != "The app crashes when I save" || got.Sender != "alice@meta.com" {
				t.Errorf("echo fields = %q, %q", got.OriginalMessage, got.Sender)
			}
			if got.Response.Category != triage.CategorySupport || got.Response.Reply != triage.ReplyBug {
				t.Errorf("state = %+v", got.Response)
			}
			if got.Response.Support == nil || got.Response.Support.Bug.Severity != triage.SeverityHigh {
				t.Errorf("support = %+v", got.Response.Support)
			}
			if n := len(f.notifier.Sent()); n != 3 {
				t.Errorf("sent %d notifications, want 3", n)
			}

			resp, body = get(t, f.server.URL+"/runs/"+got.RunID)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("GET /runs status = %d, body = %s", resp.StatusCode, body)
			}
			var run RunResponse
			if err := json.Unmarshal(body, &run); err != nil {
				t.Fatalf("invalid run response: %v", err)
			}
			if len(run.Steps) != 5 || run.Steps[4].NodeID != triage.NodeComposeResponse {
				t.Errorf("steps = %+v", run.Steps)
			}
		})
	}
}

func TestChat_DefaultSender(t *testing.T) {
	c := classify.NewScripted().Reply("message_category", `{"type":"Spam","reason":"ad"}`)
	f := newFixture(t, c, false)

	resp, body := post(t, f.server.URL+"/chat", `{"message":"cheap watches"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	var got ChatResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if got.Sender != triage.DefaultSender {
		t.Errorf("Sender = %q, want %q", got.Sender, triage.DefaultSender)
	}
	if got.Response.Reply != "" {
		t.Errorf("spam got a reply: %q", got.Response.Reply)
	}
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		expose     bool
		wantStatus int
		wantError  string
		wantDetail bool
	}{
		{"invalid json", `{"message":`, false, http.StatusBadRequest, "Invalid JSON body", false},
		{"empty body", ``, false, http.StatusBadRequest, "Invalid JSON body", false},
		{"missing message", `{"sender":"a@meta.com"}`, false, http.StatusBadRequest, "Message is required", false},
		{"blank message", `{"message":"   "}`, false, http.StatusBadRequest, "Message is required", false},
		{"workflow failure hidden", `{"message":"hello"}`, false, http.StatusInternalServerError, "Internal server error", false},
		{"workflow failure exposed", `{"message":"hello"}`, true, http.StatusInternalServerError, "Internal server error", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Nothing scripted: the first classification fails permanently.
			f := newFixture(t, classify.NewScripted(), tt.expose)

			resp, body := post(t, f.server.URL+"/chat", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", resp.StatusCode, tt.wantStatus, body)
			}
			var got ErrorResponse
			if err := json.Unmarshal(body, &got); err != nil {
				t.Fatalf("invalid error body %q: %v", body, err)
			}
			if got.Error != tt.wantError {
				t.Errorf("error = %q, want %q", got.Error, tt.wantError)
			}
			if (got.Message != "") != tt.wantDetail {
				t.Errorf("message = %q, wantDetail %v", got.Message, tt.wantDetail)
			}
			if tt.wantDetail && !strings.Contains(got.Message, "message_category") {
				t.Errorf("message = %q, want the failing schema", got.Message)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	s := &Server{logger: discardLogger()}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"empty", triage.ErrEmptyMessage, http.StatusBadRequest},
		{"cancelled", &graph.CancelledError{NodeID: "process-message", Cause: context.Canceled}, http.StatusServiceUnavailable},
		{"run timeout", &graph.TimeoutError{Scope: graph.ScopeRun}, http.StatusGatewayTimeout},
		{"node timeout", &graph.NodeExecutionError{NodeID: "support-bug", Cause: &graph.TimeoutError{Scope: graph.ScopeNode}}, http.StatusInternalServerError},
		{"other", fmt.Errorf("wrapped: %w", errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.writeError(rec, httptest.NewRequest(http.MethodPost, "/chat", nil), "run-1", tt.err)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestInfoEndpoints(t *testing.T) {
	f := newFixture(t, bugClassifier(), false)

	t.Run("health", func(t *testing.T) {
		resp, body := get(t, f.server.URL+"/health")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var got HealthResponse
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatal(err)
		}
		if got.Status != "OK" || got.Message != "IT Support AI Agent is running" {
			t.Errorf("health = %+v", got)
		}
	})

	t.Run("graph", func(t *testing.T) {
		_, body := get(t, f.server.URL+"/graph")
		for _, want := range []string{"flowchart TD", "process_message -.-> process_feedback", "compose_response --> __end__"} {
			if !strings.Contains(string(body), want) {
				t.Errorf("graph missing %q:\n%s", want, body)
			}
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		resp, _ := get(t, f.server.URL+"/runs/nope")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("costs", func(t *testing.T) {
		f.costs.RecordLLMCall(graph.LLMCall{Model: "openai/gpt-4.1-mini", InputTokens: 100, OutputTokens: 20, RunID: "r", NodeID: "process-message"})
		_, body := get(t, f.server.URL+"/costs")
		var got graph.CostSummary
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatal(err)
		}
		if got.Calls != 1 || got.InputTokens != 100 || got.OutputTokens != 20 {
			t.Errorf("costs = %+v", got)
		}
	})

	t.Run("openapi", func(t *testing.T) {
		_, body := get(t, f.server.URL+"/openapi.json")
		var doc struct {
			OpenAPI string                     `json:"openapi"`
			Paths   map[string]json.RawMessage `json:"paths"`
		}
		if err := json.Unmarshal(body, &doc); err != nil {
			t.Fatalf("invalid OpenAPI document: %v", err)
		}
		if doc.OpenAPI != "3.1.0" {
			t.Errorf("openapi = %q", doc.OpenAPI)
		}
		for _, p := range []string{"/chat", "/support", "/health"} {
			if _, ok := doc.Paths[p]; !ok {
				t.Errorf("missing path %s", p)
			}
		}
	})

	t.Run("docs", func(t *testing.T) {
		resp, body := get(t, f.server.URL+"/docs")
		if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") || !strings.Contains(string(body), "/openapi.json") {
			t.Errorf("docs = %s", body)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		resp, _ := get(t, f.server.URL+"/chat")
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", resp.StatusCode)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		_, body := get(t, f.server.URL+"/metrics")
		if !strings.Contains(string(body), `triage_http_requests_total{code="200",method="get",route="/health"}`) {
			t.Errorf("metrics missing request counter:\n%s", body)
		}
	})
}

func TestRunHistoryDisabled(t *testing.T) {
	g, err := triage.NewGraph(triage.Deps{Classifier: classify.NewScripted(), Notifier: &notify.Recorder{}})
	if err != nil {
		t.Fatal(err)
	}
	engine, err := graph.New(g)
	if err != nil {
		t.Fatal(err)
	}
	srv := New(triage.NewService(engine, discardLogger()), Options{Logger: discardLogger()})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/abc", nil))
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "Run history is disabled") {
		t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/costs", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("costs status = %d", rec.Code)
	}
}
