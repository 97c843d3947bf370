package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ModelPricing defines input and output token costs for LLM models.
// Prices are in USD per 1M tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Static pricing table, USD per 1M tokens. Update as providers change prices.
var defaultModelPricing = map[string]ModelPricing{
	"gpt-4.1":          {InputPer1M: 2.00, OutputPer1M: 8.00},
	"gpt-4.1-mini":     {InputPer1M: 0.40, OutputPer1M: 1.60},
	"gpt-4.1-nano":     {InputPer1M: 0.10, OutputPer1M: 0.40},
	"gpt-4o":           {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":      {InputPer1M: 0.15, OutputPer1M: 0.60},
	"claude-3-5-haiku": {InputPer1M: 0.80, OutputPer1M: 4.00},
	"claude-3-haiku":   {InputPer1M: 0.25, OutputPer1M: 1.25},
	"claude-sonnet-4":  {InputPer1M: 3.00, OutputPer1M: 15.00},
	"gemini-2.5-flash": {InputPer1M: 0.30, OutputPer1M: 2.50},
	"gemini-1.5-flash": {InputPer1M: 0.075, OutputPer1M: 0.30},
}

// LLMCall represents a single LLM API invocation with token usage and cost.
type LLMCall struct {
	Model        string    `json:"model"`
	InputTokens  int       `json:"inputTokens"`
	OutputTokens int       `json:"outputTokens"`
	CostUSD      float64   `json:"costUsd"`
	Timestamp    time.Time `json:"timestamp"`
	RunID        string    `json:"runId,omitempty"`
	NodeID       string    `json:"nodeId,omitempty"`
}

// CostSummary is a point-in-time snapshot of a CostTracker.
type CostSummary struct {
	Calls        int                `json:"calls"`
	InputTokens  int64              `json:"inputTokens"`
	OutputTokens int64              `json:"outputTokens"`
	TotalCostUSD float64            `json:"totalCostUsd"`
	ByModel      map[string]float64 `json:"byModel"`
	ByNode       map[string]float64 `json:"byNode"`
	Since        time.Time          `json:"since"`
}

// CostTracker accumulates token usage and cost of LLM calls made by nodes.
//
// One tracker is usually shared by every run of a process; each call is
// attributed to the run and node that made it. Only the most recent calls are
// kept in the history, totals cover everything since creation or Reset.
//
// Thread-safe.
type CostTracker struct {
	pricing      map[string]ModelPricing
	history      []LLMCall
	historyLimit int

	calls        int
	totalCost    float64
	modelCosts   map[string]float64
	nodeCosts    map[string]float64
	inputTokens  int64
	outputTokens int64
	since        time.Time

	mu      sync.RWMutex
	enabled bool
}

// NewCostTracker creates a tracker using the static pricing table.
func NewCostTracker() *CostTracker {
	pricing := make(map[string]ModelPricing, len(defaultModelPricing))
	for k, v := range defaultModelPricing {
		pricing[k] = v
	}
	return &CostTracker{
		pricing:      pricing,
		historyLimit: 1000,
		modelCosts:   make(map[string]float64),
		nodeCosts:    make(map[string]float64),
		since:        time.Now(),
		enabled:      true,
	}
}

// priceFor resolves a model name, ignoring a router prefix such as "openai/"
// and a dated suffix such as "-20240307".
func (ct *CostTracker) priceFor(model string) ModelPricing {
	name := model
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if p, ok := ct.pricing[name]; ok {
		return p
	}
	best := ""
	for known := range ct.pricing {
		if strings.HasPrefix(name, known) && len(known) > len(best) {
			best = known
		}
	}
	return ct.pricing[best]
}

// RecordLLMCall records one call. Unknown models are tracked at zero cost.
func (ct *CostTracker) RecordLLMCall(call LLMCall) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if !ct.enabled {
		return
	}

	pricing := ct.priceFor(call.Model)
	call.CostUSD = float64(call.InputTokens)/1_000_000.0*pricing.InputPer1M +
		float64(call.OutputTokens)/1_000_000.0*pricing.OutputPer1M
	if call.Timestamp.IsZero() {
		call.Timestamp = time.Now()
	}

	ct.history = append(ct.history, call)
	if len(ct.history) > ct.historyLimit {
		ct.history = ct.history[len(ct.history)-ct.historyLimit:]
	}

	ct.calls++
	ct.totalCost += call.CostUSD
	ct.modelCosts[call.Model] += call.CostUSD
	if call.NodeID != "" {
		ct.nodeCosts[call.NodeID] += call.CostUSD
	}
	ct.inputTokens += int64(call.InputTokens)
	ct.outputTokens += int64(call.OutputTokens)
}

// GetTotalCost returns the cumulative cost in USD.
func (ct *CostTracker) GetTotalCost() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.totalCost
}

// GetCallHistory returns a copy of the retained call history.
func (ct *CostTracker) GetCallHistory() []LLMCall {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	calls := make([]LLMCall, len(ct.history))
	copy(calls, ct.history)
	return calls
}

// CallsForRun returns the retained calls made by runID.
func (ct *CostTracker) CallsForRun(runID string) []LLMCall {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	var calls []LLMCall
	for _, c := range ct.history {
		if c.RunID == runID {
			calls = append(calls, c)
		}
	}
	return calls
}

// Summary returns totals broken down by model and by node.
func (ct *CostTracker) Summary() CostSummary {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	s := CostSummary{
		Calls:        ct.calls,
		InputTokens:  ct.inputTokens,
		OutputTokens: ct.outputTokens,
		TotalCostUSD: ct.totalCost,
		ByModel:      make(map[string]float64, len(ct.modelCosts)),
		ByNode:       make(map[string]float64, len(ct.nodeCosts)),
		Since:        ct.since,
	}
	for k, v := range ct.modelCosts {
		s.ByModel[k] = v
	}
	for k, v := range ct.nodeCosts {
		s.ByNode[k] = v
	}
	return s
}

// SetCustomPricing overrides or adds pricing for a model.
func (ct *CostTracker) SetCustomPricing(model string, inputPer1M, outputPer1M float64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.pricing[model] = ModelPricing{InputPer1M: inputPer1M, OutputPer1M: outputPer1M}
}

// Disable stops recording.
func (ct *CostTracker) Disable() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.enabled = false
}

// Enable resumes recording after Disable.
func (ct *CostTracker) Enable() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.enabled = true
}

// Reset clears history and totals.
func (ct *CostTracker) Reset() {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.history = nil
	ct.calls = 0
	ct.totalCost = 0
	ct.modelCosts = make(map[string]float64)
	ct.nodeCosts = make(map[string]float64)
	ct.inputTokens = 0
	ct.outputTokens = 0
	ct.since = time.Now()
}

func (ct *CostTracker) String() string {
	s := ct.Summary()
	models := make([]string, 0, len(s.ByModel))
	for m := range s.ByModel {
		models = append(models, m)
	}
	sort.Strings(models)
	return fmt.Sprintf("CostTracker{Calls: %d, TotalCost: $%.6f, InputTokens: %d, OutputTokens: %d, Models: %s}",
		s.Calls, s.TotalCostUSD, s.InputTokens, s.OutputTokens, strings.Join(models, ","))
}
