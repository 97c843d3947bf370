// Package google adapts Google's Gemini API to model.ChatModel.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dshills/support-triage/graph/model"
)

const providerName = "google"

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// ChatModel implements model.ChatModel for Gemini.
//
// System messages become the model's system instruction and the reply is
// requested as application/json. Call Close when done.
type ChatModel struct {
	client    *genai.Client
	modelName string
	cfg       model.Config
}

// NewChatModel creates a ChatModel. A "provider/" prefix on the model name
// is stripped.
func NewChatModel(ctx context.Context, cfg model.Config, opts ...option.ClientOption) (*ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	clientOpts := append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.BaseURL))
	}

	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &ChatModel{
		client:    client,
		modelName: model.StripProvider(cfg.Model),
		cfg:       cfg,
	}, nil
}

// Close releases the underlying client.
func (m *ChatModel) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Chat implements the model.ChatModel interface.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	system, conversation := model.SplitSystem(messages)
	if len(conversation) == 0 {
		return model.ChatOut{}, errors.New("google: at least one non-system message is required")
	}

	gm := m.client.GenerativeModel(m.modelName)
	gm.SetTemperature(float32(m.cfg.Temperature))
	gm.ResponseMIMEType = "application/json"
	if m.cfg.MaxTokens > 0 {
		gm.SetMaxOutputTokens(int32(m.cfg.MaxTokens))
	}
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	resp, err := gm.GenerateContent(ctx, convertParts(conversation)...)
	if err != nil {
		return model.ChatOut{}, mapError(ctx, err)
	}

	out := convertResponse(resp)
	out.Model = m.modelName
	return out, nil
}

func convertParts(messages []model.Message) []genai.Part {
	parts := make([]genai.Part, 0, len(messages))
	for _, msg := range messages {
		parts = append(parts, genai.Text(msg.Content))
	}
	return parts
}

func convertResponse(resp *genai.GenerateContentResponse) model.ChatOut {
	var out model.ChatOut
	if resp == nil {
		return out
	}

	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		var text strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
		out.Text = text.String()
	}

	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out
}

func mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return &model.APIError{Provider: providerName, StatusCode: gErr.Code, Message: gErr.Message, Cause: err}
	}

	// gax-go API errors expose the HTTP status through HTTPCode.
	var coded interface{ HTTPCode() int }
	if errors.As(err, &coded) && coded.HTTPCode() > 0 {
		return &model.APIError{Provider: providerName, StatusCode: coded.HTTPCode(), Message: err.Error(), Cause: err}
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &model.APIError{Provider: providerName, StatusCode: 400, Message: blocked.Error(), Cause: err}
	}

	return &model.APIError{Provider: providerName, Message: fmt.Sprintf("request failed: %v", err), Cause: err}
}
