package dag

import (
	"errors"
	"fmt"
)

// Construction-time sentinel errors, returned synchronously from
// Graph.AddNode / Graph.AddEdge.
var (
	// ErrCyclicGraph is returned when adding an edge would introduce a
	// cycle. The offending edge is rejected; the graph is left as it
	// was before the call.
	ErrCyclicGraph = errors.New("dag: edge would introduce a cycle")

	// ErrDuplicateKwarg is returned when an edge's KwargName collides
	// with another in-edge already present on the target node.
	ErrDuplicateKwarg = errors.New("dag: duplicate kwarg name among node's in-edges")

	// ErrMissingTargetNode is returned when Run is given a target node
	// that is not present in the graph.
	ErrMissingTargetNode = errors.New("dag: target node not found in graph")
)

// Run-time sentinel errors, returned from Run.
var (
	// ErrCancelled is returned when a run is cancelled via its context
	// before completing. No partial scope is returned alongside it.
	ErrCancelled = errors.New("dag: run cancelled")
)

// NodeExecutionError wraps a failure from a node's user callable. The
// first such error in a run wins; it causes in-flight siblings to be
// cancelled and no further waves to be started.
type NodeExecutionError struct {
	Node  *Node
	Cause error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("dag: node %s failed: %v", e.Node.Name, e.Cause)
}

func (e *NodeExecutionError) Unwrap() error { return e.Cause }

// ScopeJoinUnsupported is returned when the executor must compute call
// scopes for a node whose predecessors' scope sets sit on unrelated
// branches. A true cross-join would be required; the executor refuses
// to guess and reports this instead.
type ScopeJoinUnsupported struct {
	Node *Node
}

func (e *ScopeJoinUnsupported) Error() string {
	return fmt.Sprintf("dag: node %s: cannot join unrelated predecessor scopes", e.Node.Name)
}

// errMissingBinding signals a scheduler bug: a node was scheduled
// before one of its predecessors wrote its scope entry. This should
// not happen for an acyclic graph with correctly computed reachability.
// It is returned from Run as an ordinary run error; the executor does
// not panic on it.
type errMissingBinding struct {
	node *Node
	pred *Node
}

func (e *errMissingBinding) Error() string {
	return fmt.Sprintf("dag: internal error: node %s missing binding from predecessor %s", e.node.Name, e.pred.Name)
}
