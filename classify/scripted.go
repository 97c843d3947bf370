package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Call records one request made to a Scripted classifier.
type Call struct {
	Schema      string
	Instruction string
	Text        string
}

// Scripted is a Classifier that replays canned replies per schema. It backs
// tests and the offline demo.
//
// Replies are validated like model output, so an out-of-enum reply fails the
// same way it would in production. Errors queued with Fail are returned
// before any reply; the last reply repeats once the queue is drained.
//
//	c := classify.NewScripted().
//	    Reply("message_category", `{"type":"Support","reason":"crash"}`).
//	    Fail("bug_severity", someTransientErr).
//	    Reply("bug_severity", `{"severity":"high","description":"crash on save","reason":"data loss"}`)
type Scripted struct {
	mu      sync.Mutex
	replies map[string][]string
	errs    map[string][]error
	served  map[string]int
	calls   []Call
}

// NewScripted creates an empty Scripted classifier.
func NewScripted() *Scripted {
	return &Scripted{
		replies: make(map[string][]string),
		errs:    make(map[string][]error),
		served:  make(map[string]int),
	}
}

// Reply queues JSON replies for schema.
func (s *Scripted) Reply(schema string, replies ...string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[schema] = append(s.replies[schema], replies...)
	return s
}

// Fail queues errors for schema, returned before any reply.
func (s *Scripted) Fail(schema string, errs ...error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[schema] = append(s.errs[schema], errs...)
	return s
}

// Classify implements Classifier.
func (s *Scripted) Classify(ctx context.Context, instruction, text string, schema *Schema) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	name := schema.Name()
	s.calls = append(s.calls, Call{Schema: name, Instruction: instruction, Text: text})

	if errs := s.errs[name]; len(errs) > 0 {
		s.errs[name] = errs[1:]
		s.mu.Unlock()
		return nil, errs[0]
	}

	replies := s.replies[name]
	if len(replies) == 0 {
		s.mu.Unlock()
		return nil, &ClassificationError{Schema: name, Reason: "no scripted reply", Cause: fmt.Errorf("schema %s not scripted", name)}
	}
	idx := s.served[name]
	if idx >= len(replies) {
		idx = len(replies) - 1
	}
	s.served[name]++
	reply := replies[idx]
	s.mu.Unlock()

	if err := schema.Validate([]byte(reply)); err != nil {
		return nil, err
	}
	return json.RawMessage(reply), nil
}

// Calls returns a copy of the recorded requests.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Schemas returns the schema names requested so far, in order.
func (s *Scripted) Schemas() []string {
	calls := s.Calls()
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Schema
	}
	return names
}
