package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultMemStoreRuns is the number of runs a MemStore keeps by default.
const DefaultMemStoreRuns = 1000

// MemStore is an in-memory implementation of Store[S].
//
// It keeps the most recent runs up to a limit and evicts the oldest run when
// a new one starts. Suitable for tests, development and single-process
// deployments that only need recent history.
//
// Thread-safe.
type MemStore[S any] struct {
	mu      sync.RWMutex
	steps   map[string][]StepRecord[S] // runID -> steps sorted by Step
	order   []string                   // runIDs, oldest first
	maxRuns int
	closed  bool
}

// NewMemStore creates an in-memory store keeping DefaultMemStoreRuns runs.
func NewMemStore[S any]() *MemStore[S] {
	return NewMemStoreWithLimit[S](DefaultMemStoreRuns)
}

// NewMemStoreWithLimit creates an in-memory store keeping at most maxRuns runs.
// maxRuns <= 0 disables eviction.
func NewMemStoreWithLimit[S any](maxRuns int) *MemStore[S] {
	return &MemStore[S]{
		steps:   make(map[string][]StepRecord[S]),
		maxRuns: maxRuns,
	}
}

// SaveStep records a step, replacing an earlier record of the same step.
func (m *MemStore[S]) SaveStep(_ context.Context, runID string, step int, nodeID string, state S) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	records, known := m.steps[runID]
	if !known {
		m.order = append(m.order, runID)
		m.evict()
	}

	rec := StepRecord[S]{Step: step, NodeID: nodeID, State: state, CreatedAt: time.Now()}
	i := sort.Search(len(records), func(i int) bool { return records[i].Step >= step })
	switch {
	case i < len(records) && records[i].Step == step:
		records[i] = rec
	default:
		records = append(records, StepRecord[S]{})
		copy(records[i+1:], records[i:])
		records[i] = rec
	}
	m.steps[runID] = records
	return nil
}

func (m *MemStore[S]) evict() {
	if m.maxRuns <= 0 {
		return
	}
	for len(m.order) > m.maxRuns {
		delete(m.steps, m.order[0])
		m.order = m.order[1:]
	}
}

// LoadLatest returns the highest recorded step of runID.
func (m *MemStore[S]) LoadLatest(_ context.Context, runID string) (state S, step int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return state, 0, ErrClosed
	}

	records := m.steps[runID]
	if len(records) == 0 {
		return state, 0, ErrNotFound
	}
	last := records[len(records)-1]
	return last.State, last.Step, nil
}

// History returns a copy of every recorded step of runID.
func (m *MemStore[S]) History(_ context.Context, runID string) ([]StepRecord[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	records := m.steps[runID]
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	out := make([]StepRecord[S], len(records))
	copy(out, records)
	return out, nil
}

// Runs returns the IDs of retained runs, oldest first.
func (m *MemStore[S]) Runs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Close marks the store closed. Calling Close twice is a no-op.
func (m *MemStore[S]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
