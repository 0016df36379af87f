package dag

import "context"

// Graph is an immutable-once-built, multi-edge directed acyclic graph
// of Nodes. Acyclicity and per-node kwarg uniqueness are enforced at
// construction time by AddNode/AddEdge; the executor trusts a Graph it
// is handed to already satisfy both.
type Graph struct {
	nodes []*Node
	out   map[*Node][]Edge
	in    map[*Node][]Edge
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		out: make(map[*Node][]Edge),
		in:  make(map[*Node][]Edge),
	}
}

// AddNode registers n with the graph. Adding the same node pointer
// twice is a no-op.
func (g *Graph) AddNode(n *Node) *Node {
	if _, ok := g.out[n]; ok {
		return n
	}
	g.nodes = append(g.nodes, n)
	g.out[n] = nil
	g.in[n] = nil
	return n
}

// AddEdge connects from -> to, binding from's (possibly extracted)
// result to the kwarg named kwargName on to's next invocation. If
// loop is true the edge also becomes a loop variable on to.
//
// AddEdge fails with ErrDuplicateKwarg if to already has an in-edge
// named kwargName, and with ErrCyclicGraph if the edge would create a
// cycle. On failure the graph is left unchanged.
func (g *Graph) AddEdge(from, to *Node, kwargName string, loop bool, extractor Extractor) error {
	for _, e := range g.in[to] {
		if e.KwargName == kwargName {
			return ErrDuplicateKwarg
		}
	}

	if g.canReach(to, from) {
		return ErrCyclicGraph
	}

	g.AddNode(from)
	g.AddNode(to)

	edge := Edge{From: from, To: to, KwargName: kwargName, Loop: loop, Extractor: extractor}
	g.out[from] = append(g.out[from], edge)
	g.in[to] = append(g.in[to], edge)
	if loop {
		to.loopVars = append(to.loopVars, loopVar{kwargName: kwargName, pred: from})
	}
	return nil
}

// canReach reports whether to is reachable from 'from' via existing
// edges — used to detect whether a candidate from->to edge would close
// a cycle.
func (g *Graph) canReach(from, to *Node) bool {
	if from == to {
		return true
	}
	visited := make(map[*Node]bool)
	stack := []*Node{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		if n == to {
			return true
		}
		for _, e := range g.out[n] {
			if !visited[e.To] {
				stack = append(stack, e.To)
			}
		}
	}
	return false
}

// AddOutput creates and wires a synthetic single-input node that
// applies extractor to from's result, for pulling one field out of a
// composite value without hand-writing a full node. Loop controls
// whether the synthetic edge is a loop edge.
func (g *Graph) AddOutput(from *Node, name string, extractor Extractor, loop bool) (*Node, error) {
	out := NewNode(name, func(ctx context.Context, args map[string]any) (any, error) {
		return args["value"], nil
	})
	if err := g.AddEdge(from, out, "value", loop, extractor); err != nil {
		return nil, err
	}
	return out, nil
}

// Nodes returns every node registered with the graph, in insertion
// order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Predecessors returns the distinct source nodes of n's in-edges.
func (g *Graph) Predecessors(n *Node) []*Node {
	seen := make(map[*Node]bool)
	var preds []*Node
	for _, e := range g.in[n] {
		if !seen[e.From] {
			seen[e.From] = true
			preds = append(preds, e.From)
		}
	}
	return preds
}

// Successors returns the distinct target nodes of n's out-edges.
func (g *Graph) Successors(n *Node) []*Node {
	seen := make(map[*Node]bool)
	var succs []*Node
	for _, e := range g.out[n] {
		if !seen[e.To] {
			seen[e.To] = true
			succs = append(succs, e.To)
		}
	}
	return succs
}

// InEdges returns every edge whose target is n, in insertion order.
func (g *Graph) InEdges(n *Node) []Edge {
	out := make([]Edge, len(g.in[n]))
	copy(out, g.in[n])
	return out
}

// InDegree returns the number of distinct predecessors of n (not the
// number of in-edges — a node with two edges from the same predecessor
// still has in-degree one for scheduling purposes, since the node only
// has to wait for that predecessor's single result to land).
func (g *Graph) InDegree(n *Node) int {
	return len(g.Predecessors(n))
}

// Copy returns a new Graph sharing no mutable state with g. Node
// pointers are shared (nodes are immutable identity values); edge
// slices are copied.
func (g *Graph) Copy() *Graph {
	cp := NewGraph()
	cp.nodes = append(cp.nodes, g.nodes...)
	for n, edges := range g.out {
		cp.out[n] = append([]Edge(nil), edges...)
	}
	for n, edges := range g.in {
		cp.in[n] = append([]Edge(nil), edges...)
	}
	return cp
}

// Remove returns a derived view of g with every node in dead (and its
// incident edges) removed. g itself is left untouched.
func (g *Graph) Remove(dead map[*Node]bool) *Graph {
	cp := NewGraph()
	for _, n := range g.nodes {
		if !dead[n] {
			cp.nodes = append(cp.nodes, n)
		}
	}
	for n, edges := range g.out {
		if dead[n] {
			continue
		}
		var kept []Edge
		for _, e := range edges {
			if !dead[e.To] {
				kept = append(kept, e)
			}
		}
		cp.out[n] = kept
	}
	for n, edges := range g.in {
		if dead[n] {
			continue
		}
		var kept []Edge
		for _, e := range edges {
			if !dead[e.From] {
				kept = append(kept, e)
			}
		}
		cp.in[n] = kept
	}
	return cp
}

// BackwardReachable returns the sub-graph of g induced by backward
// reachability from targets: targets themselves plus every node that
// can reach one of them. If targets is empty, g itself is returned
// (via Copy, so the caller always owns a fresh, mutation-safe view).
func (g *Graph) BackwardReachable(targets []*Node) (*Graph, error) {
	if len(targets) == 0 {
		return g.Copy(), nil
	}

	present := make(map[*Node]bool, len(g.nodes))
	for _, n := range g.nodes {
		present[n] = true
	}
	for _, t := range targets {
		if !present[t] {
			return nil, ErrMissingTargetNode
		}
	}

	relevant := make(map[*Node]bool)
	frontier := append([]*Node(nil), targets...)
	for len(frontier) > 0 {
		var next []*Node
		for _, n := range frontier {
			if relevant[n] {
				continue
			}
			relevant[n] = true
			next = append(next, g.Predecessors(n)...)
		}
		frontier = next
	}

	dead := make(map[*Node]bool)
	for _, n := range g.nodes {
		if !relevant[n] {
			dead[n] = true
		}
	}
	return g.Remove(dead), nil
}
