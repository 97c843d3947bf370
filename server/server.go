// Package server exposes the triage workflow over HTTP.
//
// Routes:
//
//	POST /chat, POST /support   triage one message
//	GET  /health                liveness
//	GET  /graph                 workflow as a Mermaid flowchart
//	GET  /runs/{id}             recorded steps of a run
//	GET  /costs                 LLM token and cost totals
//	GET  /metrics               Prometheus exposition
//	GET  /docs, /openapi.json   API documentation
package server

import (
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dshills/support-triage/graph"
	"github.com/dshills/support-triage/graph/store"
	"github.com/dshills/support-triage/triage"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

//go:embed openapi.json
var openAPIDoc []byte

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message string `json:"message"`
	Sender  string `json:"sender,omitempty"`
}

// ChatResponse is the 200 body of POST /chat.
type ChatResponse struct {
	Success         bool         `json:"success"`
	Response        triage.State `json:"response"`
	OriginalMessage string       `json:"originalMessage"`
	Sender          string       `json:"sender"`
	RunID           string       `json:"runId"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	RunID   string `json:"runId,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// RunResponse is the body of GET /runs/{id}.
type RunResponse struct {
	RunID string                           `json:"runId"`
	Steps []store.StepRecord[triage.State] `json:"steps"`
}

// Options configures a Server. Every field is optional.
type Options struct {
	// Store backs GET /runs/{id}. Nil disables run history.
	Store store.Store[triage.State]

	Costs *graph.CostTracker

	// Gatherer backs GET /metrics. Nil uses prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Metrics records HTTP request counts and latencies.
	Metrics *Metrics

	// ExposeErrors includes error details in 500 responses.
	ExposeErrors bool

	Logger *slog.Logger
}

// Server is the HTTP API of the triage service.
type Server struct {
	svc          *triage.Service
	store        store.Store[triage.State]
	costs        *graph.CostTracker
	gatherer     prometheus.Gatherer
	metrics      *Metrics
	exposeErrors bool
	logger       *slog.Logger

	handler http.Handler
}

// New creates a Server over svc.
func New(svc *triage.Service, opts Options) *Server {
	s := &Server{
		svc:          svc,
		store:        opts.Store,
		costs:        opts.Costs,
		gatherer:     opts.Gatherer,
		metrics:      opts.Metrics,
		exposeErrors: opts.ExposeErrors,
		logger:       opts.Logger,
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	mux := http.NewServeMux()
	s.handle(mux, "POST /chat", "/chat", s.handleChat)
	s.handle(mux, "POST /support", "/support", s.handleChat)
	s.handle(mux, "GET /health", "/health", s.handleHealth)
	s.handle(mux, "GET /graph", "/graph", s.handleGraph)
	s.handle(mux, "GET /runs/{id}", "/runs/{id}", s.handleRun)
	s.handle(mux, "GET /costs", "/costs", s.handleCosts)
	s.handle(mux, "GET /openapi.json", "/openapi.json", s.handleOpenAPI)
	s.handle(mux, "GET /docs", "/docs", s.handleDocs)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.handler = otelhttp.NewHandler(s.logRequests(mux), "triagebot",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	return s
}

// Handler returns the root handler with tracing and access logging.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) handle(mux *http.ServeMux, pattern, route string, h http.HandlerFunc) {
	mux.Handle(pattern, s.metrics.instrument(route, h))
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON body"})
		return
	}

	res, err := s.svc.Submit(r.Context(), triage.Message{Sender: req.Sender, Text: req.Message})
	if err != nil {
		s.writeError(w, r, res.RunID, err)
		return
	}

	s.writeJSON(w, http.StatusOK, ChatResponse{
		Success:         true,
		Response:        res.State,
		OriginalMessage: res.State.Message.Text,
		Sender:          res.State.Message.Sender,
		RunID:           res.RunID,
	})
}

// writeError maps a Submit error to a status code.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, runID string, err error) {
	var timeout *graph.TimeoutError
	switch {
	case errors.Is(err, triage.ErrEmptyMessage):
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Message is required"})
	case errors.Is(err, graph.ErrCancelled):
		s.writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "Request cancelled", RunID: runID})
	case errors.As(err, &timeout) && timeout.Scope == graph.ScopeRun:
		s.writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{Error: "Request timed out", RunID: runID})
	default:
		s.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("run_id", runID),
			slog.Any("error", err),
		)
		resp := ErrorResponse{Error: "Internal server error", RunID: runID}
		if s.exposeErrors {
			resp.Message = err.Error()
		}
		s.writeJSON(w, http.StatusInternalServerError, resp)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "OK", Message: "IT Support AI Agent is running"})
}

func (s *Server) handleGraph(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, s.svc.Engine().Graph().Mermaid())
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Run history is disabled"})
		return
	}
	id := r.PathValue("id")
	steps, err := s.store.History(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Run not found", RunID: id})
	case err != nil:
		s.writeError(w, r, id, err)
	default:
		s.writeJSON(w, http.StatusOK, RunResponse{RunID: id, Steps: steps})
	}
}

func (s *Server) handleCosts(w http.ResponseWriter, _ *http.Request) {
	if s.costs == nil {
		s.writeJSON(w, http.StatusOK, graph.CostSummary{ByModel: map[string]float64{}, ByNode: map[string]float64{}})
		return
	}
	s.writeJSON(w, http.StatusOK, s.costs.Summary())
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(openAPIDoc)
}

const docsPage = `<!DOCTYPE html>
<html>
<head>
  <title>IT Support AI Agent API</title>
  <meta charset="utf-8">
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>SwaggerUIBundle({url: "/openapi.json", dom_id: "#swagger-ui"});</script>
</body>
</html>
`

func (s *Server) handleDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, docsPage)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", slog.Any("error", err))
	}
}

// statusWriter captures the response status for access logs.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.LogAttrs(r.Context(), slog.LevelDebug, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}
