package emit

// NullEmitter implements Emitter by discarding all events.
//
// Useful in tests and when event output is not wanted:
//
//	engine, _ := graph.New(g, graph.WithEmitter(emit.NewNullEmitter()))
type NullEmitter struct{}

// NewNullEmitter creates a new NullEmitter.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event.
func (n *NullEmitter) Emit(Event) {}
