package graph

import "context"

// Node represents a processing unit in the workflow graph.
// It receives state of type S and returns a NodeResult carrying a partial update.
//
// Nodes never decide where execution goes next; routing belongs to the edge
// rules registered on the Builder. A node may call external collaborators and
// may fail, in which case the engine applies the node's retry policy.
//
// Type parameter S is the state type shared across the workflow.
type Node[S any] interface {
	// Run executes the node's logic with the given context and state.
	// The state is a private copy; mutating it has no effect on the run.
	Run(ctx context.Context, state S) NodeResult[S]
}

// NodeResult represents the output of a node execution.
type NodeResult[S any] struct {
	// Delta is the partial state update produced by this node.
	// It is merged into the run state with the graph's reducer.
	Delta S

	// Err contains any error that occurred during node execution.
	// Errors exposing Retryable() bool are retried under the node's policy.
	Err error
}

// NodeFunc is a function adapter that implements the Node interface.
//
// Example:
//
//	classify := graph.NodeFunc[State](func(ctx context.Context, s State) graph.NodeResult[State] {
//	    return graph.NodeResult[State]{Delta: State{Category: "Support"}}
//	})
type NodeFunc[S any] func(ctx context.Context, state S) NodeResult[S]

// Run implements the Node interface for NodeFunc.
func (f NodeFunc[S]) Run(ctx context.Context, state S) NodeResult[S] {
	return f(ctx, state)
}

// Delta wraps a partial update in a successful NodeResult.
func Delta[S any](delta S) NodeResult[S] {
	return NodeResult[S]{Delta: delta}
}

// Fail wraps an error in a NodeResult.
func Fail[S any](err error) NodeResult[S] {
	return NodeResult[S]{Err: err}
}

// Reducer merges a node's partial update into the previous state.
//
// Reducers must be pure: the result depends only on prev and delta, and a zero
// delta must return prev unchanged.
type Reducer[S any] func(prev, delta S) S
