package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Graph is a validated, immutable workflow topology.
//
// A Graph is safe to share between any number of concurrent runs.
type Graph[S any] struct {
	reducer Reducer[S]
	entry   string
	nodes   map[string]nodeEntry[S]
	edges   map[string]edgeRule[S]
	order   []string
}

// Entry returns the name of the first node of every run.
func (g *Graph[S]) Entry() string { return g.entry }

// NodeCount returns the number of registered nodes.
func (g *Graph[S]) NodeCount() int { return len(g.nodes) }

// Nodes returns the registered node names in sorted order.
func (g *Graph[S]) Nodes() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasNode reports whether name is registered.
func (g *Graph[S]) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Successors returns every destination reachable in one step from name,
// in declaration order. End appears when the node can finish the run.
func (g *Graph[S]) Successors(name string) []string {
	rule, ok := g.edges[name]
	if !ok {
		return nil
	}
	return append([]string(nil), rule.targets()...)
}

// IsConditional reports whether name leaves through a router.
func (g *Graph[S]) IsConditional(name string) bool {
	rule, ok := g.edges[name]
	return ok && rule.conditional()
}

// Policy returns the node's policy, or nil when it uses engine defaults.
func (g *Graph[S]) Policy(name string) *NodePolicy {
	return g.nodes[name].policy
}

// Mermaid renders the topology as a Mermaid flowchart. Conditional edges are dashed.
func (g *Graph[S]) Mermaid() string {
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")
	sb.WriteString(fmt.Sprintf("    __start__([start]) --> %s\n", mermaidID(g.entry)))
	for _, from := range g.order {
		rule := g.edges[from]
		arrow := "-->"
		if rule.conditional() {
			arrow = "-.->"
		}
		for _, to := range rule.targets() {
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", mermaidID(from), arrow, mermaidID(to)))
		}
	}
	sb.WriteString(fmt.Sprintf("    %s([end])\n", mermaidID(End)))
	return sb.String()
}

func mermaidID(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}
