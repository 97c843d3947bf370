// Package store records the step-by-step history of workflow runs.
//
// Stores are an audit trail: the engine writes every merged step and never
// reads them back, so a restarted process does not resume earlier runs.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a run has no recorded steps.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Store persists the state after each step of a run.
//
// Type parameter S is the state type; SQL implementations require it to be
// JSON-serializable.
type Store[S any] interface {
	// SaveStep records the merged state after nodeID ran as step of runID.
	// Saving the same (runID, step) twice replaces the earlier record.
	SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error

	// LoadLatest returns the highest recorded step of runID.
	// Returns ErrNotFound if the run has no steps.
	LoadLatest(ctx context.Context, runID string) (state S, step int, err error)

	// History returns every recorded step of runID in step order.
	// Returns ErrNotFound if the run has no steps.
	History(ctx context.Context, runID string) ([]StepRecord[S], error)

	// Close releases resources. Further calls return ErrClosed.
	Close() error
}

// StepRecord is one recorded step of a run.
type StepRecord[S any] struct {
	Step      int       `json:"step"`
	NodeID    string    `json:"nodeId"`
	State     S         `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
}
