package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type testState struct {
	Visits []string `json:"visits"`
	Count  int      `json:"count"`
	Route  string   `json:"route"`
}

func testReducer(prev, delta testState) testState {
	if len(delta.Visits) > 0 {
		prev.Visits = append(append([]string(nil), prev.Visits...), delta.Visits...)
	}
	prev.Count += delta.Count
	if delta.Route != "" {
		prev.Route = delta.Route
	}
	return prev
}

// visit returns a node that records its name.
func visit(name string) Node[testState] {
	return NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
		return Delta(testState{Visits: []string{name}, Count: 1})
	})
}

func TestBuilder_Build(t *testing.T) {
	t.Run("valid linear graph", func(t *testing.T) {
		g, err := NewBuilder[testState](testReducer).
			AddNode("a", visit("a")).
			AddNode("b", visit("b")).
			AddEdge("a", "b").
			AddEdge("b", End).
			SetEntry("a").
			Build()
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if g.Entry() != "a" {
			t.Errorf("Entry() = %q, want a", g.Entry())
		}
		if g.NodeCount() != 2 {
			t.Errorf("NodeCount() = %d, want 2", g.NodeCount())
		}
		if diff := cmp.Diff([]string{"b"}, g.Successors("a")); diff != "" {
			t.Errorf("Successors(a) mismatch (-want +got):\n%s", diff)
		}
		if g.IsConditional("a") {
			t.Error("expected a to be unconditional")
		}
	})

	t.Run("valid conditional graph", func(t *testing.T) {
		route := func(s testState) string { return s.Route }
		g, err := NewBuilder[testState](testReducer).
			AddNode("classify", visit("classify")).
			AddNode("reply", visit("reply")).
			AddConditionalEdge("classify", route, "reply", End).
			AddEdge("reply", End).
			SetEntry("classify").
			Build()
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if !g.IsConditional("classify") {
			t.Error("expected classify to be conditional")
		}
		if diff := cmp.Diff([]string{"reply", End}, g.Successors("classify")); diff != "" {
			t.Errorf("Successors mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("reports every problem at once", func(t *testing.T) {
		_, err := NewBuilder[testState](nil).
			AddNode("a", visit("a")).
			AddNode("a", visit("a")).
			AddNode("", visit("x")).
			AddNode(End, visit("x")).
			AddNode("nilnode", nil).
			AddNode("dangling", visit("dangling")).
			AddEdge("a", "missing").
			AddEdge("ghost", End).
			SetEntry("nowhere").
			Build()

		var cerr *ConstructionError
		if !errors.As(err, &cerr) {
			t.Fatalf("expected *ConstructionError, got %T: %v", err, err)
		}
		if !errors.Is(err, ErrInvalidGraph) {
			t.Error("expected errors.Is(err, ErrInvalidGraph)")
		}

		wantFragments := []string{
			`duplicate node "a"`,
			"node name cannot be empty",
			"reserved for the terminal sentinel",
			`node "nilnode" is nil`,
			"reducer is required",
			`entry node "nowhere" is not registered`,
			`"a" -> "missing" points to an unregistered node`,
			`edge source "ghost" is not registered`,
			`node "dangling" has no outgoing edge`,
		}
		joined := strings.Join(cerr.Problems, "\n")
		for _, frag := range wantFragments {
			if !strings.Contains(joined, frag) {
				t.Errorf("missing problem %q in:\n%s", frag, joined)
			}
		}
	})

	t.Run("missing entry", func(t *testing.T) {
		_, err := NewBuilder[testState](testReducer).
			AddNode("a", visit("a")).
			AddEdge("a", End).
			Build()
		if !errors.Is(err, ErrInvalidGraph) || !strings.Contains(err.Error(), "entry node not set") {
			t.Errorf("expected entry problem, got %v", err)
		}
	})

	t.Run("entry cannot be End", func(t *testing.T) {
		_, err := NewBuilder[testState](testReducer).
			AddNode("a", visit("a")).
			AddEdge("a", End).
			SetEntry(End).
			Build()
		if err == nil || !strings.Contains(err.Error(), "entry cannot be the terminal sentinel") {
			t.Errorf("expected End entry problem, got %v", err)
		}
	})

	t.Run("second outgoing rule is rejected", func(t *testing.T) {
		_, err := NewBuilder[testState](testReducer).
			AddNode("a", visit("a")).
			AddEdge("a", End).
			AddConditionalEdge("a", func(testState) string { return End }, End).
			SetEntry("a").
			Build()
		if err == nil || !strings.Contains(err.Error(), "already has an outgoing edge rule") {
			t.Errorf("expected duplicate rule problem, got %v", err)
		}
	})

	t.Run("conditional edge needs router and destinations", func(t *testing.T) {
		_, err := NewBuilder[testState](testReducer).
			AddNode("a", visit("a")).
			AddNode("b", visit("b")).
			AddConditionalEdge("a", nil, End).
			AddConditionalEdge("b", func(testState) string { return End }).
			SetEntry("a").
			Build()
		if err == nil {
			t.Fatal("expected error")
		}
		for _, frag := range []string{"nil router", "declares no destinations"} {
			if !strings.Contains(err.Error(), frag) {
				t.Errorf("missing %q in %v", frag, err)
			}
		}
	})

	t.Run("invalid node retry policy", func(t *testing.T) {
		_, err := NewBuilder[testState](testReducer).
			AddNode("a", visit("a"), WithNodePolicy(NodePolicy{RetryPolicy: &RetryPolicy{MaxAttempts: 0}})).
			AddEdge("a", End).
			SetEntry("a").
			Build()
		if err == nil || !strings.Contains(err.Error(), "invalid retry policy") {
			t.Errorf("expected retry policy problem, got %v", err)
		}
	})
}

func TestBuilder_GraphIsIsolatedFromBuilder(t *testing.T) {
	b := NewBuilder[testState](testReducer).
		AddNode("a", visit("a")).
		AddEdge("a", End).
		SetEntry("a")

	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	b.AddNode("late", visit("late"))
	if g.HasNode("late") {
		t.Error("graph changed after Build")
	}
}

func TestGraph_Mermaid(t *testing.T) {
	g, err := NewBuilder[testState](testReducer).
		AddNode("process-message", visit("m")).
		AddNode("compose-response", visit("r")).
		AddConditionalEdge("process-message", func(testState) string { return End }, "compose-response", End).
		AddEdge("compose-response", End).
		SetEntry("process-message").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := `flowchart TD
    __start__([start]) --> process_message
    process_message -.-> compose_response
    process_message -.-> __end__
    compose_response --> __end__
    __end__([end])
`
	if diff := cmp.Diff(want, g.Mermaid()); diff != "" {
		t.Errorf("Mermaid() mismatch (-want +got):\n%s", diff)
	}
}
