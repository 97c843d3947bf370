package graph

import (
	"math"
	"strings"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCostTracker_RecordLLMCall(t *testing.T) {
	ct := NewCostTracker()

	ct.RecordLLMCall(LLMCall{Model: "openai/gpt-4.1-mini", InputTokens: 1_000_000, OutputTokens: 500_000, RunID: "r1", NodeID: "process-message"})
	ct.RecordLLMCall(LLMCall{Model: "claude-3-5-haiku-20241022", InputTokens: 1000, OutputTokens: 0, RunID: "r2", NodeID: "process-support"})

	// 0.40 + 0.5*1.60
	wantFirst := 1.20
	// dated suffix resolves to claude-3-5-haiku: 0.001*0.80
	wantSecond := 0.0008

	if got := ct.GetTotalCost(); !approx(got, wantFirst+wantSecond) {
		t.Errorf("GetTotalCost() = %v, want %v", got, wantFirst+wantSecond)
	}

	calls := ct.CallsForRun("r1")
	if len(calls) != 1 || !approx(calls[0].CostUSD, wantFirst) {
		t.Fatalf("CallsForRun(r1) = %+v", calls)
	}
	if calls[0].Timestamp.IsZero() {
		t.Error("expected timestamp to be filled in")
	}

	s := ct.Summary()
	if s.Calls != 2 || s.InputTokens != 1_001_000 || s.OutputTokens != 500_000 {
		t.Errorf("unexpected summary %+v", s)
	}
	if !approx(s.ByNode["process-support"], wantSecond) {
		t.Errorf("ByNode = %v", s.ByNode)
	}
	if !strings.Contains(ct.String(), "Calls: 2") {
		t.Errorf("String() = %q", ct.String())
	}
}

func TestCostTracker_UnknownModelIsFree(t *testing.T) {
	ct := NewCostTracker()
	ct.RecordLLMCall(LLMCall{Model: "local/llama", InputTokens: 1000, OutputTokens: 1000})
	if ct.GetTotalCost() != 0 {
		t.Errorf("expected zero cost, got %v", ct.GetTotalCost())
	}
	if ct.Summary().Calls != 1 {
		t.Error("unknown models are still counted")
	}
}

func TestCostTracker_CustomPricingDisableReset(t *testing.T) {
	ct := NewCostTracker()
	ct.SetCustomPricing("llama", 1, 1)
	ct.RecordLLMCall(LLMCall{Model: "local/llama", InputTokens: 1_000_000})
	if ct.GetTotalCost() < 1 {
		t.Errorf("expected custom pricing to apply, got %v", ct.GetTotalCost())
	}

	ct.Disable()
	before := ct.Summary().Calls
	ct.RecordLLMCall(LLMCall{Model: "gpt-4o", InputTokens: 10})
	if ct.Summary().Calls != before {
		t.Error("disabled tracker recorded a call")
	}
	ct.Enable()

	ct.Reset()
	if ct.GetTotalCost() != 0 || len(ct.GetCallHistory()) != 0 {
		t.Error("Reset did not clear the tracker")
	}
}
