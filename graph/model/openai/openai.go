// Package openai adapts OpenAI-compatible chat completion APIs, OpenRouter
// included, to model.ChatModel.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dshills/support-triage/graph/model"
)

const providerName = "openai"

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "openai/gpt-4.1-mini"

// ChatModel implements model.ChatModel over the official openai-go SDK.
//
// Responses are requested in JSON object mode. Retries are left to the
// workflow engine, so the SDK's own retry loop is disabled.
//
// Example usage:
//
//	m, err := openai.NewChatModel(model.Config{
//	    APIKey:  os.Getenv("OPENROUTER_API_KEY"),
//	    BaseURL: "https://openrouter.ai/api/v1",
//	    Model:   "openai/gpt-4.1-mini",
//	})
type ChatModel struct {
	client    openai.Client
	modelName string
	cfg       model.Config
}

// NewChatModel creates a ChatModel. BaseURL selects an OpenAI-compatible
// gateway; when it is empty the provider prefix is stripped from the model
// name since api.openai.com does not accept it.
func NewChatModel(cfg model.Config, opts ...option.RequestOption) (*ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	name := cfg.Model
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	} else {
		name = model.StripProvider(name)
	}
	reqOpts = append(reqOpts, opts...)

	return &ChatModel{
		client:    openai.NewClient(reqOpts...),
		modelName: name,
		cfg:       cfg,
	}, nil
}

// Chat implements the model.ChatModel interface.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.modelName),
		Messages: convertMessages(messages),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: openai.Ptr(shared.NewResponseFormatJSONObjectParam()),
		},
		Temperature: openai.Float(m.cfg.Temperature),
	}
	if m.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(m.cfg.MaxTokens))
	}

	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, mapError(ctx, err)
	}
	if len(completion.Choices) == 0 {
		return model.ChatOut{}, &model.APIError{Provider: providerName, Message: "response contained no choices"}
	}

	return model.ChatOut{
		Text:  completion.Choices[0].Message.Content,
		Model: completion.Model,
		Usage: model.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

// mapError converts SDK failures to *model.APIError. Context errors are
// returned untouched so the engine can tell cancellation from provider faults.
func mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &model.APIError{
			Provider:   providerName,
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Cause:      err,
		}
	}
	return &model.APIError{Provider: providerName, Message: fmt.Sprintf("request failed: %v", err), Cause: err}
}
