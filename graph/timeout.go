package graph

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// getNodeTimeout determines the timeout for a node based on precedence:
// 1. NodePolicy.Timeout (per-node override)
// 2. defaultTimeout (engine-wide default)
// 3. 0 (no timeout)
func getNodeTimeout(policy *NodePolicy, defaultTimeout time.Duration) time.Duration {
	if policy != nil && policy.Timeout > 0 {
		return policy.Timeout
	}
	if defaultTimeout > 0 {
		return defaultTimeout
	}
	return 0
}

// executeNodeWithTimeout runs one attempt of a node under its timeout.
//
// The node runs on its own goroutine so an attempt that ignores its context
// still cannot hold the run past the deadline; its late result is discarded.
// When the node's own deadline fires (and not the parent's), the attempt
// fails with a node-scoped *TimeoutError, which is retryable.
func executeNodeWithTimeout[S any](
	ctx context.Context,
	node Node[S],
	nodeID string,
	state S,
	timeout time.Duration,
) NodeResult[S] {
	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan NodeResult[S], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- NodeResult[S]{Err: fmt.Errorf("node %s panicked: %v", nodeID, r)}
			}
		}()
		done <- node.Run(attemptCtx, state)
	}()

	var result NodeResult[S]
	select {
	case result = <-done:
	case <-attemptCtx.Done():
		result = NodeResult[S]{Err: attemptCtx.Err()}
	}

	if result.Err != nil && timeout > 0 && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		result.Err = &TimeoutError{Scope: ScopeNode, NodeID: nodeID, Limit: timeout}
	}
	return result
}
