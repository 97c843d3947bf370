package tool

import (
	"context"
	"sync"
)

// MockTool is a test implementation of Tool.
//
// Responses are returned in order; once consumed, the last one repeats.
// Err, if set, is returned by every call. Every call is recorded.
//
//	mock := &MockTool{
//	    ToolName:  "help_center_search",
//	    Responses: []map[string]interface{}{{"answer": "Go to settings"}},
//	}
type MockTool struct {
	ToolName  string
	Responses []map[string]interface{}
	Err       error

	// Calls holds the input of every invocation.
	Calls []map[string]interface{}

	mu        sync.Mutex
	callIndex int
}

// Name implements the Tool interface.
func (m *MockTool) Name() string {
	return m.ToolName
}

// Call implements the Tool interface.
func (m *MockTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, input)

	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) == 0 {
		return map[string]interface{}{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// CallCount returns the number of times Call has been invoked.
func (m *MockTool) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Calls)
}
