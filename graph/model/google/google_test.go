package google

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"

	"github.com/dshills/support-triage/graph/model"
)

func TestNewChatModel_RequiresKey(t *testing.T) {
	if _, err := NewChatModel(context.Background(), model.Config{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestConvertResponse(t *testing.T) {
	t.Run("joins text parts and reads usage", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []genai.Part{
					genai.Text(`{"category":`),
					genai.Text(`"support"}`),
				}},
			}},
			UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 12, CandidatesTokenCount: 4},
		}

		out := convertResponse(resp)
		if out.Text != `{"category":"support"}` {
			t.Errorf("Text = %q", out.Text)
		}
		if out.Usage.InputTokens != 12 || out.Usage.OutputTokens != 4 {
			t.Errorf("Usage = %+v, want 12/4", out.Usage)
		}
	})

	t.Run("tolerates empty responses", func(t *testing.T) {
		if out := convertResponse(nil); out.Text != "" {
			t.Errorf("expected empty text, got %q", out.Text)
		}
		if out := convertResponse(&genai.GenerateContentResponse{}); out.Text != "" {
			t.Errorf("expected empty text, got %q", out.Text)
		}
	})
}

func TestMapError(t *testing.T) {
	t.Run("googleapi errors keep their status", func(t *testing.T) {
		err := mapError(context.Background(), &googleapi.Error{Code: 429, Message: "quota"})

		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *model.APIError, got %T", err)
		}
		if apiErr.StatusCode != 429 || !apiErr.Retryable() {
			t.Errorf("expected retryable 429, got %d", apiErr.StatusCode)
		}
	})

	t.Run("cancellation passes through", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := mapError(ctx, errors.New("transport closed")); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("unknown failures are retryable transport errors", func(t *testing.T) {
		err := mapError(context.Background(), errors.New("dial tcp: refused"))
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || !apiErr.Retryable() {
			t.Errorf("expected retryable APIError, got %v", err)
		}
	})
}
