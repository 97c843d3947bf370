package emit

// Event represents an observability event emitted during workflow execution.
//
// Events are emitted to an Emitter which can log them through slog, turn them
// into OpenTelemetry spans or buffer them for inspection.
type Event struct {
	// RunID identifies the workflow execution that emitted this event.
	RunID string

	// Step is the sequential step number in the workflow (1-indexed).
	// Zero for run-level events.
	Step int

	// NodeID identifies which node emitted this event.
	// Empty string for run-level events.
	NodeID string

	// Msg is one of the Msg* constants.
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "duration_ms": execution duration in milliseconds
	//   - "error": error text
	//   - "attempt": attempt number, 1-indexed
	//   - "next": destination chosen by the edge rule
	//   - "retryable": whether an error can be retried
	Meta map[string]interface{}
}

// Event messages emitted by the engine.
const (
	MsgRunStart  = "run_start"
	MsgNodeStart = "node_start"
	MsgNodeRetry = "node_retry"
	MsgNodeEnd   = "node_end"
	MsgNodeError = "node_error"
	MsgRoute     = "route"
	MsgRunEnd    = "run_end"
	MsgRunError  = "run_error"
)

// IsError reports whether the event describes a failure.
func (e Event) IsError() bool {
	if _, ok := e.Meta["error"]; ok {
		return e.Msg != MsgNodeRetry
	}
	return e.Msg == MsgNodeError || e.Msg == MsgRunError
}
