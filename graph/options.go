package graph

import (
	"fmt"
	"time"

	"github.com/dshills/support-triage/graph/emit"
	"github.com/dshills/support-triage/graph/store"
)

// Options configures Engine execution behavior.
//
// Zero values are valid: the engine picks a step limit from the graph size,
// applies no timeouts and makes a single attempt per node.
type Options struct {
	// MaxSteps bounds the number of node executions in one run.
	// If 0, the limit is 3 × the number of nodes in the graph.
	MaxSteps int

	// DefaultNodeTimeout bounds each node attempt unless the node's
	// policy sets its own timeout. 0 means no timeout.
	DefaultNodeTimeout time.Duration

	// RunWallClockBudget bounds the whole run. 0 means no budget.
	RunWallClockBudget time.Duration

	// Retry is applied to nodes without their own RetryPolicy.
	// A zero MaxAttempts is treated as 1.
	Retry RetryPolicy
}

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	engine, err := graph.New(g,
//	    graph.WithDefaultNodeTimeout(20*time.Second),
//	    graph.WithRunWallClockBudget(45*time.Second),
//	    graph.WithRetryPolicy(graph.DefaultRetryPolicy()),
//	)
type Option func(*engineConfig) error

// engineConfig collects options before they are applied to an Engine.
type engineConfig struct {
	opts    Options
	emitter emit.Emitter
	store   any
	metrics *PrometheusMetrics
}

// WithMaxSteps overrides the step limit. The limit guards against routers
// that cycle back to visited nodes with a state that never reaches End.
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 0 {
			return fmt.Errorf("max steps must be >= 0, got %d", n)
		}
		cfg.opts.MaxSteps = n
		return nil
	}
}

// WithDefaultNodeTimeout sets the per-attempt timeout for nodes without
// an explicit NodePolicy.Timeout.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return fmt.Errorf("node timeout must be >= 0, got %v", d)
		}
		cfg.opts.DefaultNodeTimeout = d
		return nil
	}
}

// WithRunWallClockBudget sets the maximum total execution time of a run.
// When exceeded, Run returns a run-scoped *TimeoutError.
func WithRunWallClockBudget(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return fmt.Errorf("run budget must be >= 0, got %v", d)
		}
		cfg.opts.RunWallClockBudget = d
		return nil
	}
}

// WithRetryPolicy sets the default retry policy for every node.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(cfg *engineConfig) error {
		if err := p.Validate(); err != nil {
			return err
		}
		cfg.opts.Retry = p
		return nil
	}
}

// WithOptions applies an Options struct wholesale.
func WithOptions(o Options) Option {
	return func(cfg *engineConfig) error {
		if o.Retry.MaxAttempts == 0 {
			o.Retry.MaxAttempts = 1
		}
		if err := o.Retry.Validate(); err != nil {
			return err
		}
		cfg.opts = o
		return nil
	}
}

// WithEmitter sends execution events to e.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *engineConfig) error {
		cfg.emitter = e
		return nil
	}
}

// WithStore records every merged step in st. The store is an audit trail;
// the engine never reads from it.
func WithStore[S any](st store.Store[S]) Option {
	return func(cfg *engineConfig) error {
		cfg.store = st
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.metrics = m
		return nil
	}
}
