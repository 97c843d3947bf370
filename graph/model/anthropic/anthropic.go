// Package anthropic adapts Anthropic's Messages API to model.ChatModel.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/support-triage/graph/model"
)

const providerName = "anthropic"

const (
	// DefaultModel is used when Config.Model is empty.
	DefaultModel = "claude-3-5-haiku-latest"

	defaultMaxTokens = 1024
)

// ChatModel implements model.ChatModel for Anthropic's Claude API.
//
// System messages are extracted into the separate system parameter the
// Messages API expects. Claude has no JSON response mode; callers ask for
// JSON in the prompt and validate the reply.
//
// Example usage:
//
//	m, err := anthropic.NewChatModel(model.Config{
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	    Model:  "claude-3-5-haiku-latest",
//	})
type ChatModel struct {
	client    anthropic.Client
	modelName string
	cfg       model.Config
}

// NewChatModel creates a ChatModel. A "provider/" prefix on the model name
// is stripped.
func NewChatModel(cfg model.Config, opts ...option.RequestOption) (*ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	return &ChatModel{
		client:    anthropic.NewClient(reqOpts...),
		modelName: model.StripProvider(cfg.Model),
		cfg:       cfg,
	}, nil
}

// Chat implements the model.ChatModel interface.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	system, conversation := model.SplitSystem(messages)
	if len(conversation) == 0 {
		return model.ChatOut{}, errors.New("anthropic: at least one non-system message is required")
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(m.modelName),
		MaxTokens:   int64(m.cfg.MaxTokens),
		Messages:    convertMessages(conversation),
		Temperature: anthropic.Float(m.cfg.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, mapError(ctx, err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return model.ChatOut{
		Text:  text.String(),
		Model: string(msg.Model),
		Usage: model.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

func convertMessages(messages []model.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
			continue
		}
		out = append(out, anthropic.NewUserMessage(block))
	}
	return out
}

func mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &model.APIError{
			Provider:   providerName,
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Error(),
			Cause:      err,
		}
	}
	return &model.APIError{Provider: providerName, Message: fmt.Sprintf("request failed: %v", err), Cause: err}
}
