package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dshills/support-triage/graph"
	"github.com/dshills/support-triage/graph/model"
)

// Classifier returns a JSON object conforming to schema for the given
// instruction and text. Implementations validate the reply before returning
// it, so callers may trust enumerated values.
type Classifier interface {
	Classify(ctx context.Context, instruction, text string, schema *Schema) (json.RawMessage, error)
}

// Decode runs a classification and unmarshals the validated reply into T.
func Decode[T any](ctx context.Context, c Classifier, instruction, text string, schema *Schema) (T, error) {
	var out T
	raw, err := c.Classify(ctx, instruction, text, schema)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &ClassificationError{Schema: schema.Name(), Reason: "cannot decode reply", Cause: err}
	}
	return out, nil
}

// LLMClassifier implements Classifier over a model.ChatModel.
//
// The schema document is appended to the instruction and the model is asked
// for a single JSON object. Completion failures keep the retryability of the
// provider error; replies that fail validation are always retryable, since a
// second sample at the same prompt often conforms.
//
// Usage:
//
//	chat, _ := openai.NewChatModel(model.Config{APIKey: key, BaseURL: base})
//	c := classify.NewLLMClassifier(chat,
//	    classify.WithRateLimit(5, 10),
//	    classify.WithCostTracker(costs),
//	)
type LLMClassifier struct {
	model     model.ChatModel
	modelName string
	limiter   *rate.Limiter
	costs     *graph.CostTracker
	metrics   *Metrics
	logger    *slog.Logger
}

// Option configures an LLMClassifier.
type Option func(*LLMClassifier)

// WithRateLimit caps completion calls to rps per second with the given burst.
// Callers wait for a slot; a context that ends while waiting aborts the call.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *LLMClassifier) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCostTracker records token usage of every call, attributed to the run
// and node found in the context.
func WithCostTracker(ct *graph.CostTracker) Option {
	return func(c *LLMClassifier) { c.costs = ct }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *LLMClassifier) { c.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *LLMClassifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithModelName names the model in cost records when the provider does not
// report it.
func WithModelName(name string) Option {
	return func(c *LLMClassifier) { c.modelName = name }
}

// NewLLMClassifier creates a classifier backed by m.
func NewLLMClassifier(m model.ChatModel, opts ...Option) *LLMClassifier {
	c := &LLMClassifier{model: m, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, instruction, text string, schema *Schema) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.metrics.observe(schema.Name(), "rate_limited", 0)
			// Wait refuses up front when the next slot lies past the deadline;
			// a later attempt with a fresh deadline can still get one.
			return nil, &ClassificationError{
				Schema:    schema.Name(),
				Reason:    "waiting for rate limiter",
				Cause:     err,
				Transient: ctx.Err() == nil,
			}
		}
	}

	messages := []model.Message{
		{Role: model.RoleSystem, Content: systemPrompt(instruction, schema)},
		{Role: model.RoleUser, Content: text},
	}

	start := time.Now()
	out, err := c.model.Chat(ctx, messages)
	latency := time.Since(start)
	if err != nil {
		c.metrics.observe(schema.Name(), "completion_error", latency)
		c.logger.LogAttrs(ctx, slog.LevelWarn, "classification call failed",
			slog.String("schema", schema.Name()),
			slog.String("run_id", graph.RunIDFromContext(ctx)),
			slog.String("node_id", graph.NodeIDFromContext(ctx)),
			slog.Any("error", err),
		)
		return nil, &ClassificationError{
			Schema:    schema.Name(),
			Reason:    "completion failed",
			Cause:     err,
			Transient: graph.IsRetryable(err),
		}
	}

	c.recordUsage(ctx, out)

	raw := extractJSON(out.Text)
	if err := schema.Validate(raw); err != nil {
		c.metrics.observe(schema.Name(), "invalid_reply", latency)
		c.logger.LogAttrs(ctx, slog.LevelWarn, "classification reply rejected",
			slog.String("schema", schema.Name()),
			slog.String("run_id", graph.RunIDFromContext(ctx)),
			slog.String("node_id", graph.NodeIDFromContext(ctx)),
			slog.Any("error", err),
		)
		return nil, err
	}

	c.metrics.observe(schema.Name(), "ok", latency)
	c.logger.LogAttrs(ctx, slog.LevelDebug, "classification",
		slog.String("schema", schema.Name()),
		slog.String("node_id", graph.NodeIDFromContext(ctx)),
		slog.String("reply", string(raw)),
	)
	return json.RawMessage(raw), nil
}

func (c *LLMClassifier) recordUsage(ctx context.Context, out model.ChatOut) {
	c.metrics.addTokens(out.Usage.InputTokens, out.Usage.OutputTokens)
	if c.costs == nil {
		return
	}
	name := out.Model
	if name == "" {
		name = c.modelName
	}
	c.costs.RecordLLMCall(graph.LLMCall{
		Model:        name,
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
		RunID:        graph.RunIDFromContext(ctx),
		NodeID:       graph.NodeIDFromContext(ctx),
	})
}

func systemPrompt(instruction string, schema *Schema) string {
	return fmt.Sprintf("%s\n\nYou answer with a single JSON object matching this JSON schema:\n%s\nReturn only the JSON object.",
		strings.TrimSpace(instruction), schema.Doc())
}

// extractJSON trims markdown fences and any prose around the outermost
// JSON object of a reply.
func extractJSON(text string) []byte {
	s := strings.TrimSpace(text)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return []byte(s)
}
