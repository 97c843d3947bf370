package graph

import "context"

type ctxKey int

const (
	runIDKey ctxKey = iota
	nodeIDKey
)

func withRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

func withNodeID(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, nodeIDKey, nodeID)
}

// RunIDFromContext returns the ID of the run executing the current node.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// NodeIDFromContext returns the name of the node currently executing.
func NodeIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(nodeIDKey).(string)
	return id
}

// WithRunInfo attaches run and node identifiers to ctx. Nodes invoked by the
// engine already carry them; this is for calling node logic directly.
func WithRunInfo(ctx context.Context, runID, nodeID string) context.Context {
	return withNodeID(withRunID(ctx, runID), nodeID)
}
