// Package tool defines callable capabilities that workflow nodes use to reach
// outside the state: directory lookups, knowledge searches and HTTP calls.
package tool

import (
	"context"
	"errors"
	"fmt"
)

// Tool is an executable capability with structured input and output.
//
// Implementations should:
//   - Validate input parameters and return ErrInvalidInput for bad ones
//   - Respect context cancellation
//   - Return structured output as map[string]interface{}
//
// Example usage in a node:
//
//	out, err := directory.Call(ctx, map[string]interface{}{"email": s.Message.Sender})
//	if err != nil {
//	    return graph.Fail[State](err)
//	}
//	userID, _ := out["user_id"].(string)
type Tool interface {
	// Name returns the unique identifier for this tool, lowercase with underscores.
	Name() string

	// Call executes the tool with the provided input and returns the result.
	Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// ErrInvalidInput is returned when a tool is called with missing or
// malformed parameters.
var ErrInvalidInput = errors.New("invalid tool input")

// StringParam extracts a required, non-empty string parameter.
func StringParam(input map[string]interface{}, key string) (string, error) {
	v, ok := input[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s parameter required (string)", ErrInvalidInput, key)
	}
	return v, nil
}
