package graph

import (
	"fmt"
	"sort"
)

// Builder collects nodes and edge rules and validates them into an immutable Graph.
//
// Registration methods never fail; every problem is recorded and reported
// together by Build so the caller can fix the whole topology at once.
//
// Example:
//
//	b := graph.NewBuilder[State](merge)
//	b.AddNode("classify", classifyNode)
//	b.AddNode("reply", replyNode)
//	b.AddConditionalEdge("classify", routeCategory, "reply", graph.End)
//	b.AddEdge("reply", graph.End)
//	b.SetEntry("classify")
//	g, err := b.Build()
type Builder[S any] struct {
	reducer  Reducer[S]
	nodes    map[string]nodeEntry[S]
	order    []string
	edges    map[string]edgeRule[S]
	entry    string
	problems []string
}

type nodeEntry[S any] struct {
	node   Node[S]
	policy *NodePolicy
}

// nodeConfig is the non-generic part of a registration that options may touch.
type nodeConfig struct {
	policy *NodePolicy
}

// NodeOpt configures a node at registration time.
type NodeOpt func(*nodeConfig)

// WithNodePolicy attaches a timeout and retry policy to a node.
func WithNodePolicy(p NodePolicy) NodeOpt {
	return func(c *nodeConfig) {
		c.policy = &p
	}
}

// NewBuilder starts a graph whose deltas are merged with reducer.
func NewBuilder[S any](reducer Reducer[S]) *Builder[S] {
	return &Builder[S]{
		reducer: reducer,
		nodes:   make(map[string]nodeEntry[S]),
		edges:   make(map[string]edgeRule[S]),
	}
}

func (b *Builder[S]) problemf(format string, args ...any) {
	b.problems = append(b.problems, fmt.Sprintf(format, args...))
}

// AddNode registers a node under a unique name.
func (b *Builder[S]) AddNode(name string, node Node[S], opts ...NodeOpt) *Builder[S] {
	switch {
	case name == "":
		b.problemf("node name cannot be empty")
		return b
	case name == End:
		b.problemf("node name %q is reserved for the terminal sentinel", End)
		return b
	case node == nil:
		b.problemf("node %q is nil", name)
		return b
	}
	if _, exists := b.nodes[name]; exists {
		b.problemf("duplicate node %q", name)
		return b
	}

	cfg := nodeConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.policy != nil && cfg.policy.RetryPolicy != nil {
		if err := cfg.policy.RetryPolicy.Validate(); err != nil {
			b.problemf("node %q: %v", name, err)
		}
	}

	b.nodes[name] = nodeEntry[S]{node: node, policy: cfg.policy}
	b.order = append(b.order, name)
	return b
}

// AddEdge registers an unconditional edge. to may be End.
func (b *Builder[S]) AddEdge(from, to string) *Builder[S] {
	if to == "" {
		b.problemf("edge from %q has an empty destination", from)
		return b
	}
	b.addRule(from, edgeRule[S]{to: to})
	return b
}

// AddConditionalEdge registers a router for from. destinations must list every
// value the router can return; End is allowed.
func (b *Builder[S]) AddConditionalEdge(from string, route Router[S], destinations ...string) *Builder[S] {
	if route == nil {
		b.problemf("conditional edge from %q has a nil router", from)
		return b
	}
	if len(destinations) == 0 {
		b.problemf("conditional edge from %q declares no destinations", from)
		return b
	}
	dests := make([]string, len(destinations))
	copy(dests, destinations)
	b.addRule(from, edgeRule[S]{route: route, destinations: dests})
	return b
}

func (b *Builder[S]) addRule(from string, rule edgeRule[S]) {
	if from == "" {
		b.problemf("edge source cannot be empty")
		return
	}
	if _, exists := b.edges[from]; exists {
		b.problemf("node %q already has an outgoing edge rule", from)
		return
	}
	b.edges[from] = rule
}

// SetEntry names the node where every run starts.
func (b *Builder[S]) SetEntry(name string) *Builder[S] {
	b.entry = name
	return b
}

// Build validates the topology and returns an immutable Graph, or a
// *ConstructionError listing every problem found.
func (b *Builder[S]) Build() (*Graph[S], error) {
	problems := append([]string(nil), b.problems...)
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if b.reducer == nil {
		add("reducer is required")
	}

	switch {
	case b.entry == "":
		add("entry node not set")
	case b.entry == End:
		add("entry cannot be the terminal sentinel")
	default:
		if _, ok := b.nodes[b.entry]; !ok {
			add("entry node %q is not registered", b.entry)
		}
	}

	sources := make([]string, 0, len(b.edges))
	for from := range b.edges {
		sources = append(sources, from)
	}
	sort.Strings(sources)

	for _, from := range sources {
		if _, ok := b.nodes[from]; !ok {
			add("edge source %q is not registered", from)
		}
		for _, to := range b.edges[from].targets() {
			if to == End {
				continue
			}
			if _, ok := b.nodes[to]; !ok {
				add("edge %q -> %q points to an unregistered node", from, to)
			}
		}
	}

	for _, name := range b.order {
		if _, ok := b.edges[name]; !ok {
			add("node %q has no outgoing edge", name)
		}
	}

	if len(problems) > 0 {
		return nil, &ConstructionError{Problems: problems}
	}

	g := &Graph[S]{
		reducer: b.reducer,
		entry:   b.entry,
		nodes:   make(map[string]nodeEntry[S], len(b.nodes)),
		edges:   make(map[string]edgeRule[S], len(b.edges)),
		order:   append([]string(nil), b.order...),
	}
	for name, n := range b.nodes {
		g.nodes[name] = n
	}
	for from, rule := range b.edges {
		g.edges[from] = rule
	}
	return g, nil
}
