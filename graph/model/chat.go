// Package model provides LLM integration adapters.
package model

import (
	"context"
	"fmt"
	"strings"
)

// ChatModel defines the interface for LLM chat providers.
//
// Implementations convert Messages to the provider's request format, ask for
// a JSON object response when the provider supports it and report token usage
// so callers can track cost.
//
// Example usage:
//
//	m, err := openai.NewChatModel(model.Config{APIKey: key, Model: "openai/gpt-4.1-mini"})
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleSystem, Content: "Reply with a JSON object."},
//	    {Role: model.RoleUser, Content: "My laptop does not boot"},
//	})
//	fmt.Println(out.Text, out.Usage.InputTokens)
type ChatModel interface {
	// Chat sends messages to the LLM and returns its reply.
	// Provider failures are returned as *APIError.
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role identifies the message sender. Use the Role* constants.
	Role string

	// Content contains the message text.
	Content string
}

// Standard role constants for LLM conversations.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Usage reports the tokens consumed by one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ChatOut represents the output from an LLM chat completion.
type ChatOut struct {
	// Text contains the LLM's generated response.
	Text string

	// Model is the model that produced the response, as reported by the provider.
	Model string

	Usage Usage
}

// Config holds the settings shared by every provider adapter.
type Config struct {
	// APIKey authenticates against the provider.
	APIKey string

	// BaseURL overrides the provider endpoint (e.g. an OpenRouter gateway).
	BaseURL string

	// Model names the model, optionally prefixed with "provider/".
	Model string

	// Temperature controls sampling. Zero asks for deterministic output.
	Temperature float64

	// MaxTokens caps the reply length. Zero uses the adapter default.
	MaxTokens int
}

// APIError is a provider failure normalized across adapters.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
}

func (e *APIError) Unwrap() error { return e.Cause }

// Retryable reports whether another attempt may succeed: rate limits, request
// timeouts, server errors and failures that never reached the provider.
func (e *APIError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == 408, e.StatusCode == 409, e.StatusCode == 429:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// SplitSystem separates system messages from the conversation. Providers
// that take the system prompt as a separate parameter use it. Multiple system
// messages are joined with a blank line.
func SplitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(system, "\n\n"), rest
}

// StripProvider removes a "provider/" prefix from a model name. Gateways such as
// OpenRouter expect the prefix; direct provider APIs do not.
func StripProvider(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
