package graph

import (
	"encoding/json"
	"fmt"
)

// deepCopy returns an independent copy of state using a JSON round-trip.
//
// Nodes receive a copy so that writes through pointers or slices in the
// state they were handed cannot leak into the run's accumulated state.
// Only exported, JSON-serializable fields survive the copy.
func deepCopy[S any](state S) (S, error) {
	var zero S

	data, err := json.Marshal(state)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal state: %w", err)
	}

	var copied S
	if err := json.Unmarshal(data, &copied); err != nil {
		return zero, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return copied, nil
}
