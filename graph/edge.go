// Package graph provides the conditional workflow execution engine.
package graph

// End is the terminal sentinel. An edge pointing at End finishes the run.
const End = "__end__"

// Router inspects the merged state after a node and names the next node.
//
// Routers must be pure functions of the state: given the same state they
// return the same destination. The returned name must be one of the
// destinations declared when the conditional edge was added.
//
// Type parameter S is the state type to evaluate.
type Router[S any] func(state S) string

// edgeRule is the single outgoing rule of a node: either a fixed destination
// or a router together with every destination it may return.
type edgeRule[S any] struct {
	// to is the fixed destination; empty for conditional rules.
	to string

	// route picks the destination for conditional rules.
	route Router[S]

	// destinations lists what route may return, in declaration order.
	destinations []string
}

func (r edgeRule[S]) conditional() bool {
	return r.route != nil
}

// targets returns every destination this rule can lead to.
func (r edgeRule[S]) targets() []string {
	if r.conditional() {
		return r.destinations
	}
	return []string{r.to}
}

func (r edgeRule[S]) declares(name string) bool {
	for _, d := range r.destinations {
		if d == name {
			return true
		}
	}
	return false
}
