package emit

import "sync"

// BufferedEmitter implements Emitter by keeping events in memory per run.
//
// It backs tests and the demo, which inspect the exact node sequence of a run:
//
//	emitter := emit.NewBufferedEmitter()
//	engine, _ := graph.New(g, graph.WithEmitter(emitter))
//	_, _ = engine.Run(ctx, "run-001", initial)
//	fmt.Println(emitter.NodeSequence("run-001"))
//	emitter.Clear("run-001")
//
// Memory grows with every run until Clear is called.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // runID -> events
}

// HistoryFilter selects events. Set fields are combined with AND; zero
// fields match everything.
type HistoryFilter struct {
	NodeID  string
	Msg     string
	MinStep *int
	MaxStep *int
}

func (f HistoryFilter) matches(e Event) bool {
	switch {
	case f.NodeID != "" && e.NodeID != f.NodeID:
		return false
	case f.Msg != "" && e.Msg != f.Msg:
		return false
	case f.MinStep != nil && e.Step < *f.MinStep:
		return false
	case f.MaxStep != nil && e.Step > *f.MaxStep:
		return false
	}
	return true
}

// NewBufferedEmitter creates an empty BufferedEmitter. Safe for concurrent use.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit stores an event under its run ID.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// GetHistory returns a copy of every event of runID in emission order.
func (b *BufferedEmitter) GetHistory(runID string) []Event {
	return b.GetHistoryWithFilter(runID, HistoryFilter{})
}

// GetHistoryWithFilter returns a copy of the events of runID matching filter.
// The result is never nil.
func (b *BufferedEmitter) GetHistoryWithFilter(runID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, e := range b.events[runID] {
		if filter.matches(e) {
			result = append(result, e)
		}
	}
	return result
}

// NodeSequence returns the IDs of nodes that completed in runID, in order.
func (b *BufferedEmitter) NodeSequence(runID string) []string {
	var ids []string
	for _, e := range b.GetHistoryWithFilter(runID, HistoryFilter{Msg: MsgNodeEnd}) {
		ids = append(ids, e.NodeID)
	}
	return ids
}

// Clear drops the events of runID, or of every run when runID is empty.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if runID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, runID)
}
