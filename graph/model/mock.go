package model

import (
	"context"
	"sync"
)

// MockChatModel is a test implementation of ChatModel.
//
// Responses are returned in order; once consumed, the last one repeats.
// Errs, when set, are returned in order before any response, which lets tests
// script "fail twice, then succeed":
//
//	mock := &MockChatModel{
//	    Errs:      []error{&APIError{Provider: "openai", StatusCode: 503}},
//	    Responses: []ChatOut{{Text: `{"category":"spam"}`}},
//	}
type MockChatModel struct {
	Responses []ChatOut

	// Err, if set, is returned by every call.
	Err error

	// Errs are returned one per call before Responses are used.
	Errs []error

	// Calls tracks the messages of every Chat invocation.
	Calls [][]Message

	mu        sync.Mutex
	callIndex int
	errIndex  int
}

// Chat implements the ChatModel interface.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, messages)

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if m.errIndex < len(m.Errs) {
		err := m.Errs[m.errIndex]
		m.errIndex++
		return ChatOut{}, err
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// Reset clears the call history and rewinds the scripted responses and errors.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = nil
	m.callIndex = 0
	m.errIndex = 0
}

// CallCount returns the number of times Chat has been called.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Calls)
}
