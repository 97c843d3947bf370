package graph

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/support-triage/graph/emit"
	"github.com/dshills/support-triage/graph/store"
)

// Engine executes runs over a built Graph.
//
// The Engine:
//   - Starts at the graph's entry node and follows one edge rule per step
//   - Merges each node's delta via the graph's reducer
//   - Bounds every run by a step limit, per-node timeouts and a run budget
//   - Retries retryable node failures with exponential backoff
//   - Records steps in an optional store and reports through an emitter
//
// An Engine holds no per-run state and is safe for concurrent use; each Run
// owns its own state value.
//
// Example:
//
//	g, err := builder.Build()
//	if err != nil {
//	    return err
//	}
//	engine, err := graph.New(g,
//	    graph.WithDefaultNodeTimeout(20*time.Second),
//	    graph.WithEmitter(emit.NewLogEmitter(logger)),
//	)
//	final, err := engine.Run(ctx, "run-001", State{Message: msg})
type Engine[S any] struct {
	graph    *Graph[S]
	opts     Options
	maxSteps int
	emitter  emit.Emitter
	store    store.Store[S]
	metrics  *PrometheusMetrics
}

// Result is the outcome of a successful run.
type Result[S any] struct {
	// State is the final accumulated state.
	State S

	// Trace lists the nodes executed, in order.
	Trace []string

	// Steps is the number of node executions.
	Steps int
}

// New creates an Engine for g.
func New[S any](g *Graph[S], options ...Option) (*Engine[S], error) {
	if g == nil {
		return nil, &EngineError{Message: "graph is required", Code: "MISSING_GRAPH"}
	}

	cfg := &engineConfig{opts: Options{Retry: RetryPolicy{MaxAttempts: 1}}}
	for _, opt := range options {
		if err := opt(cfg); err != nil {
			return nil, &EngineError{Message: "invalid option", Code: "INVALID_OPTION", Cause: err}
		}
	}

	e := &Engine[S]{
		graph:   g,
		opts:    cfg.opts,
		emitter: cfg.emitter,
		metrics: cfg.metrics,
	}
	if e.emitter == nil {
		e.emitter = emit.NewNullEmitter()
	}
	if cfg.store != nil {
		st, ok := cfg.store.(store.Store[S])
		if !ok {
			return nil, &EngineError{Message: "store state type does not match graph state type", Code: "INVALID_STORE"}
		}
		e.store = st
	}

	e.maxSteps = cfg.opts.MaxSteps
	if e.maxSteps == 0 {
		e.maxSteps = 3 * g.NodeCount()
	}
	return e, nil
}

// Graph returns the topology the engine executes.
func (e *Engine[S]) Graph() *Graph[S] { return e.graph }

// MaxSteps returns the effective step limit.
func (e *Engine[S]) MaxSteps() int { return e.maxSteps }

// Run executes the workflow from the entry node until End is reached.
//
// On failure the zero state is returned together with one of:
// *NodeExecutionError, *UnknownNodeError, *DanglingNodeError,
// *StepLimitExceededError, *CancelledError, *TimeoutError or *EngineError.
func (e *Engine[S]) Run(ctx context.Context, runID string, initial S) (S, error) {
	res, err := e.Execute(ctx, runID, initial)
	if err != nil {
		var zero S
		return zero, err
	}
	return res.State, nil
}

// Execute is Run returning the visit trace alongside the final state.
func (e *Engine[S]) Execute(ctx context.Context, runID string, initial S) (Result[S], error) {
	runCtx := withRunID(ctx, runID)
	if e.opts.RunWallClockBudget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, e.opts.RunWallClockBudget)
		defer cancel()
	}

	started := time.Now()
	e.metrics.RunStarted()
	e.emitter.Emit(emit.Event{RunID: runID, Msg: emit.MsgRunStart, Meta: map[string]interface{}{
		"entry":     e.graph.entry,
		"max_steps": e.maxSteps,
	}})

	res, err := e.loop(ctx, runCtx, runID, initial)

	meta := map[string]interface{}{
		"duration_ms": time.Since(started).Milliseconds(),
		"steps":       len(res.Trace),
		"trace":       res.Trace,
	}
	if err != nil {
		var cancelled *CancelledError
		meta["error"] = err.Error()
		meta["cancelled"] = errors.As(err, &cancelled)
		e.emitter.Emit(emit.Event{RunID: runID, Step: len(res.Trace), Msg: emit.MsgRunError, Meta: meta})
		e.metrics.RunFinished(outcomeOf(err))
		return Result[S]{Trace: res.Trace}, err
	}

	e.emitter.Emit(emit.Event{RunID: runID, Step: res.Steps, Msg: emit.MsgRunEnd, Meta: meta})
	e.metrics.RunFinished("completed")
	return res, nil
}

// loop drives the run. parent is the caller's context, runCtx adds the run
// budget; the two are told apart to classify why the run stopped.
func (e *Engine[S]) loop(parent, runCtx context.Context, runID string, initial S) (Result[S], error) {
	state := initial
	current := e.graph.entry
	trace := make([]string, 0, e.maxSteps)

	for step := 1; ; step++ {
		if current == End {
			return Result[S]{State: state, Trace: trace, Steps: len(trace)}, nil
		}

		if step > e.maxSteps {
			return Result[S]{Trace: trace}, &StepLimitExceededError{Limit: e.maxSteps, Trace: trace}
		}

		if err := e.interrupted(parent, runCtx, current); err != nil {
			return Result[S]{Trace: trace}, err
		}

		entry, ok := e.graph.nodes[current]
		if !ok {
			return Result[S]{Trace: trace}, &UnknownNodeError{NodeID: current}
		}

		delta, err := e.runNode(parent, runCtx, runID, step, current, entry, state)
		if err != nil {
			return Result[S]{Trace: trace}, err
		}

		state = e.graph.reducer(state, delta)
		trace = append(trace, current)

		if e.store != nil {
			if err := e.store.SaveStep(runCtx, runID, step, current, state); err != nil {
				if ierr := e.interrupted(parent, runCtx, current); ierr != nil {
					return Result[S]{Trace: trace}, ierr
				}
				return Result[S]{Trace: trace}, &EngineError{Message: "failed to save step", Code: "STORE_ERROR", Cause: err}
			}
		}

		next, err := e.resolve(current, state)
		if err != nil {
			return Result[S]{Trace: trace}, err
		}

		e.metrics.RecordRoute(current, next)
		e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: current, Msg: emit.MsgRoute, Meta: map[string]interface{}{
			"next": next,
		}})
		current = next
	}
}

// interrupted reports why the run must stop before executing nodeID, if it must.
func (e *Engine[S]) interrupted(parent, runCtx context.Context, nodeID string) error {
	if err := parent.Err(); err != nil {
		return &CancelledError{NodeID: nodeID, Cause: err}
	}
	if runCtx.Err() != nil {
		return &TimeoutError{Scope: ScopeRun, NodeID: nodeID, Limit: e.opts.RunWallClockBudget}
	}
	return nil
}

// runNode executes one node with its timeout and retry policy and returns its delta.
func (e *Engine[S]) runNode(parent, runCtx context.Context, runID string, step int, nodeID string, entry nodeEntry[S], state S) (S, error) {
	var zero S

	policy := e.opts.Retry
	if entry.policy != nil && entry.policy.RetryPolicy != nil {
		policy = *entry.policy.RetryPolicy
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	timeout := getNodeTimeout(entry.policy, e.opts.DefaultNodeTimeout)

	nodeCtx := withNodeID(runCtx, nodeID)
	started := time.Now()

	e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: emit.MsgNodeStart})

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		input, err := deepCopy(state)
		if err != nil {
			return zero, &EngineError{Message: "failed to copy state for node " + nodeID, Code: "STATE_COPY", Cause: err}
		}

		result := executeNodeWithTimeout(nodeCtx, entry.node, nodeID, input, timeout)
		if result.Err == nil {
			e.metrics.RecordStepLatency(nodeID, time.Since(started), "success")
			e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: emit.MsgNodeEnd, Meta: map[string]interface{}{
				"duration_ms": time.Since(started).Milliseconds(),
				"attempt":     attempt,
			}})
			return result.Delta, nil
		}
		lastErr = result.Err

		if err := e.interrupted(parent, runCtx, nodeID); err != nil {
			e.recordNodeFailure(runID, step, nodeID, attempt, started, err)
			return zero, err
		}

		if attempt == policy.MaxAttempts || !policy.shouldRetry(lastErr) {
			e.recordNodeFailure(runID, step, nodeID, attempt, started, lastErr)
			return zero, &NodeExecutionError{NodeID: nodeID, Attempts: attempt, Cause: lastErr}
		}

		delay := computeBackoff(attempt-1, policy.BaseDelay, policy.MaxDelay, nil)
		e.metrics.IncrementRetries(nodeID, retryReason(lastErr))
		e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: emit.MsgNodeRetry, Meta: map[string]interface{}{
			"attempt":  attempt,
			"error":    lastErr.Error(),
			"delay_ms": delay.Milliseconds(),
		}})

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-runCtx.Done():
			timer.Stop()
			err := e.interrupted(parent, runCtx, nodeID)
			e.recordNodeFailure(runID, step, nodeID, attempt, started, err)
			return zero, err
		}
	}

	// Unreachable: the loop returns on its last attempt.
	return zero, &NodeExecutionError{NodeID: nodeID, Attempts: policy.MaxAttempts, Cause: lastErr}
}

func (e *Engine[S]) recordNodeFailure(runID string, step int, nodeID string, attempt int, started time.Time, err error) {
	status := "error"
	if errors.Is(err, ErrTimeout) {
		status = "timeout"
	}
	var cancelled *CancelledError
	e.metrics.RecordStepLatency(nodeID, time.Since(started), status)
	e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: emit.MsgNodeError, Meta: map[string]interface{}{
		"duration_ms": time.Since(started).Milliseconds(),
		"attempt":     attempt,
		"error":       err.Error(),
		"retryable":   IsRetryable(err),
		"cancelled":   errors.As(err, &cancelled),
	}})
}

// resolve evaluates the outgoing rule of nodeID against the merged state.
func (e *Engine[S]) resolve(nodeID string, state S) (string, error) {
	rule, ok := e.graph.edges[nodeID]
	if !ok {
		return "", &DanglingNodeError{NodeID: nodeID}
	}
	if !rule.conditional() {
		return rule.to, nil
	}

	next := rule.route(state)
	if !rule.declares(next) {
		return "", &UnknownNodeError{NodeID: next, From: nodeID}
	}
	return next, nil
}

func retryReason(err error) string {
	if errors.Is(err, ErrTimeout) {
		return "timeout"
	}
	if IsRetryable(err) {
		return "transient"
	}
	return "error"
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrStepLimitExceeded):
		return "step_limit"
	case errors.Is(err, ErrNodeFailed):
		return "node_failed"
	default:
		return "error"
	}
}
