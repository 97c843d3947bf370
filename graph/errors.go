package graph

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors matched with errors.Is against the typed errors below.
var (
	// ErrInvalidGraph indicates Build rejected the topology.
	ErrInvalidGraph = errors.New("invalid graph")

	// ErrNodeFailed indicates a node returned an error after all attempts.
	ErrNodeFailed = errors.New("node execution failed")

	// ErrUnknownNode indicates execution reached a name with no registered node.
	ErrUnknownNode = errors.New("unknown node")

	// ErrDanglingNode indicates a node finished without an outgoing edge rule.
	ErrDanglingNode = errors.New("dangling node")

	// ErrStepLimitExceeded indicates the run exceeded its step limit.
	ErrStepLimitExceeded = errors.New("execution exceeded maximum steps limit")

	// ErrCancelled indicates the caller cancelled the run.
	ErrCancelled = errors.New("run cancelled")

	// ErrTimeout indicates a node timeout or the run wall-clock budget fired.
	ErrTimeout = errors.New("timeout exceeded")

	// ErrInvalidRetryPolicy indicates a RetryPolicy failed validation.
	ErrInvalidRetryPolicy = errors.New("invalid retry policy")
)

// ConstructionError lists every problem found while building a graph.
type ConstructionError struct {
	Problems []string
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("invalid graph: %d problem(s): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// Is reports whether target is ErrInvalidGraph.
func (e *ConstructionError) Is(target error) bool {
	return target == ErrInvalidGraph
}

// NodeExecutionError wraps the final error returned by a node.
type NodeExecutionError struct {
	NodeID   string
	Attempts int
	Cause    error
}

func (e *NodeExecutionError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("node %s failed after %d attempts: %v", e.NodeID, e.Attempts, e.Cause)
	}
	return fmt.Sprintf("node %s failed: %v", e.NodeID, e.Cause)
}

// Unwrap returns the node's error so callers can match domain errors.
func (e *NodeExecutionError) Unwrap() error { return e.Cause }

// Is reports whether target is ErrNodeFailed.
func (e *NodeExecutionError) Is(target error) bool { return target == ErrNodeFailed }

// UnknownNodeError is returned when execution reaches a name that is not registered.
// From is set when a router returned a destination it never declared.
type UnknownNodeError struct {
	NodeID string
	From   string
}

func (e *UnknownNodeError) Error() string {
	if e.From != "" {
		return fmt.Sprintf("router of %s returned undeclared destination %q", e.From, e.NodeID)
	}
	return fmt.Sprintf("node not found during execution: %s", e.NodeID)
}

// Is reports whether target is ErrUnknownNode.
func (e *UnknownNodeError) Is(target error) bool { return target == ErrUnknownNode }

// DanglingNodeError is returned when a node has no outgoing edge rule.
type DanglingNodeError struct {
	NodeID string
}

func (e *DanglingNodeError) Error() string {
	return "no outgoing edge from node: " + e.NodeID
}

// Is reports whether target is ErrDanglingNode.
func (e *DanglingNodeError) Is(target error) bool { return target == ErrDanglingNode }

// StepLimitExceededError carries the visit trace of a runaway run.
type StepLimitExceededError struct {
	Limit int
	Trace []string
}

func (e *StepLimitExceededError) Error() string {
	return fmt.Sprintf("workflow exceeded step limit of %d (trace: %s)", e.Limit, strings.Join(e.Trace, " -> "))
}

// Is reports whether target is ErrStepLimitExceeded.
func (e *StepLimitExceededError) Is(target error) bool { return target == ErrStepLimitExceeded }

// CancelledError reports that the caller's context ended the run.
type CancelledError struct {
	NodeID string
	Cause  error
}

func (e *CancelledError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("run cancelled at node %s: %v", e.NodeID, e.Cause)
	}
	return fmt.Sprintf("run cancelled: %v", e.Cause)
}

func (e *CancelledError) Unwrap() error { return e.Cause }

// Is reports whether target is ErrCancelled.
func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

// Timeout scopes.
const (
	ScopeNode = "node"
	ScopeRun  = "run"
)

// TimeoutError reports a per-node timeout or an exhausted run budget.
type TimeoutError struct {
	Scope  string
	NodeID string
	Limit  time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Scope == ScopeRun {
		return fmt.Sprintf("run exceeded wall-clock budget of %v", e.Limit)
	}
	return fmt.Sprintf("node %s exceeded timeout of %v", e.NodeID, e.Limit)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Retryable reports true for node timeouts. An exhausted run budget is final.
func (e *TimeoutError) Retryable() bool { return e.Scope == ScopeNode }

// EngineError represents a misconfiguration or infrastructure failure in the engine.
type EngineError struct {
	// Message is the human-readable error description.
	Message string

	// Code is a machine-readable error code (e.g. "STORE_ERROR").
	Code string

	Cause error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *EngineError) Unwrap() error { return e.Cause }

// IsRetryable reports whether err, or any error it wraps, declares itself retryable
// through a Retryable() bool method.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
