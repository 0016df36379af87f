package dag

import (
	"context"
	"testing"
)

func noop(name string) *Node {
	return NewNode(name, func(ctx context.Context, args map[string]any) (any, error) {
		return nil, nil
	})
}

func TestGraph_AddEdge_DuplicateKwarg(t *testing.T) {
	g := NewGraph()
	a, b, c := noop("a"), noop("b"), noop("c")

	if err := g.AddEdge(a, c, "x", false, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddEdge(b, c, "x", false, nil); err != ErrDuplicateKwarg {
		t.Errorf("expected ErrDuplicateKwarg, got %v", err)
	}
}

func TestGraph_AddEdge_RejectsCycle(t *testing.T) {
	g := NewGraph()
	a, b := noop("a"), noop("b")

	if err := g.AddEdge(a, b, "x", false, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddEdge(b, a, "y", false, nil); err != ErrCyclicGraph {
		t.Errorf("expected ErrCyclicGraph, got %v", err)
	}
}

func TestGraph_Predecessors_DeduplicatesMultiEdge(t *testing.T) {
	g := NewGraph()
	a, b := noop("a"), noop("b")

	if err := g.AddEdge(a, b, "x", false, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddEdge(a, b, "y", false, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	preds := g.Predecessors(b)
	if len(preds) != 1 || preds[0] != a {
		t.Errorf("expected single distinct predecessor [a], got %v", preds)
	}
	if g.InDegree(b) != 1 {
		t.Errorf("expected InDegree 1 for multi-edge predecessor, got %d", g.InDegree(b))
	}
}

func TestGraph_BackwardReachable(t *testing.T) {
	g := NewGraph()
	a, b, c, d := noop("a"), noop("b"), noop("c"), noop("d")

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	must(g.AddEdge(a, b, "x", false, nil))
	must(g.AddEdge(b, c, "x", false, nil))
	g.AddNode(d) // unrelated node, not reachable from c

	flow, err := g.BackwardReachable([]*Node{c})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	nodes := flow.Nodes()
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes in flow graph, got %d", len(nodes))
	}
	for _, n := range nodes {
		if n == d {
			t.Error("unrelated node d should not be in the backward-reachable flow graph")
		}
	}
}

func TestGraph_BackwardReachable_MissingTarget(t *testing.T) {
	g := NewGraph()
	a := noop("a")
	g.AddNode(a)

	other := noop("other") // never added to g

	if _, err := g.BackwardReachable([]*Node{other}); err != ErrMissingTargetNode {
		t.Errorf("expected ErrMissingTargetNode, got %v", err)
	}
}

func TestGraph_BackwardReachable_EmptyTargetsReturnsWholeGraph(t *testing.T) {
	g := NewGraph()
	a, b := noop("a"), noop("b")
	if err := g.AddEdge(a, b, "x", false, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	flow, err := g.BackwardReachable(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(flow.Nodes()) != 2 {
		t.Errorf("expected whole graph (2 nodes), got %d", len(flow.Nodes()))
	}
}
