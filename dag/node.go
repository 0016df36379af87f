package dag

import (
	"context"
	"fmt"
)

// Callable is the user-supplied computation a Node wraps. It receives
// the resolved keyword arguments for one invocation and returns a
// result or an error. A Callable that wants to prune its branch
// returns an IgnoreResult value instead of an error.
type Callable func(ctx context.Context, args map[string]any) (any, error)

// LoopStrategy maps a tuple of sequences, one per loop variable, onto
// an ordered set of combinations. It must be a total, deterministic
// function of its inputs: it is never allowed to fail or to depend on
// anything but the sequences it is given, since its emission order is
// directly visible to callers via Scope.Collect.
type LoopStrategy func(seqs ...[]any) ([][]any, error)

// Product is the default LoopStrategy: the Cartesian product of the
// input sequences, emitted in the standard odometer order (the last
// sequence varies fastest).
func Product(seqs ...[]any) ([][]any, error) {
	if len(seqs) == 0 {
		return nil, fmt.Errorf("dag: loop strategy requires at least one sequence")
	}
	total := 1
	for _, s := range seqs {
		total *= len(s)
	}
	combos := make([][]any, 0, total)
	idx := make([]int, len(seqs))
	for total == 0 {
		return combos, nil
	}
	for {
		combo := make([]any, len(seqs))
		for i, s := range seqs {
			combo[i] = s[idx[i]]
		}
		combos = append(combos, combo)

		pos := len(seqs) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(seqs[pos]) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			break
		}
	}
	return combos, nil
}

// Zip combines the input sequences element-wise, truncating to the
// length of the shortest sequence.
func Zip(seqs ...[]any) ([][]any, error) {
	if len(seqs) == 0 {
		return nil, fmt.Errorf("dag: loop strategy requires at least one sequence")
	}
	n := len(seqs[0])
	for _, s := range seqs[1:] {
		if len(s) < n {
			n = len(s)
		}
	}
	combos := make([][]any, 0, n)
	for i := 0; i < n; i++ {
		combo := make([]any, len(seqs))
		for j, s := range seqs {
			combo[j] = s[i]
		}
		combos = append(combos, combo)
	}
	return combos, nil
}

// loopVar marks one in-edge of a node as a loop variable: the kwarg
// name the node sees, and the predecessor that edge comes from.
type loopVar struct {
	kwargName string
	pred      *Node
}

// Node wraps a user callable plus the per-node policy the executor
// consults when invoking it. Node identity is the pointer itself —
// Nodes are never compared structurally.
type Node struct {
	// Name is a display string; it need not be unique, but Graph
	// builders typically keep it so for readable dumps and errors.
	Name string

	fn              Callable
	isAsync         bool
	offloadToWorker bool
	loopStrategy    LoopStrategy
	soloRace        bool
	secret          bool
	loopVars        []loopVar
}

// NodeOption configures a Node at construction time.
type NodeOption func(*Node)

// Async marks the node's callable as suspending; the executor always
// invokes it on its own goroutine and waits for that goroutine to
// return, whether or not this option is set, since Go has no separate
// "coroutine" calling convention. The option exists so that callers
// can express the same intent as the spec's IsAsync flag.
func Async() NodeOption {
	return func(n *Node) { n.isAsync = true }
}

// OffloadToWorker routes a synchronous, blocking callable through the
// executor's bounded worker pool instead of running it inline on the
// node's own goroutine.
func OffloadToWorker() NodeOption {
	return func(n *Node) { n.offloadToWorker = true }
}

// WithLoopStrategy overrides the default Product strategy for fanning
// out this node's loop variables.
func WithLoopStrategy(s LoopStrategy) NodeOption {
	return func(n *Node) { n.loopStrategy = s }
}

// SoloRace switches a node from the default team race (fan-out calls
// share one post-barrier) to solo race, where every fan-out call drives
// its own independent sub-pipeline of descendants.
func SoloRace() NodeOption {
	return func(n *Node) { n.soloRace = true }
}

// Secret flags a node's bound value for redaction in Scope.Dump.
func Secret() NodeOption {
	return func(n *Node) { n.secret = true }
}

// NewNode constructs a Node around fn. The default policy is
// synchronous inline execution, Product loop strategy, and team race.
func NewNode(name string, fn Callable, opts ...NodeOption) *Node {
	n := &Node{
		Name:         name,
		fn:           fn,
		loopStrategy: Product,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Const returns a zero-input node that always returns value.
func Const(name string, value any) *Node {
	return NewNode(name, func(ctx context.Context, args map[string]any) (any, error) {
		return value, nil
	})
}

// SecretConst returns a zero-input node that always returns value and
// is redacted by Scope.Dump.
func SecretConst(name string, value any) *Node {
	return NewNode(name, func(ctx context.Context, args map[string]any) (any, error) {
		return value, nil
	}, Secret())
}

// IsAsync reports whether the node was constructed with Async().
func (n *Node) IsAsync() bool { return n.isAsync }

// OffloadsToWorker reports whether the node was constructed with
// OffloadToWorker().
func (n *Node) OffloadsToWorker() bool { return n.offloadToWorker }

// IsSoloRace reports whether the node races solo rather than as a team.
func (n *Node) IsSoloRace() bool { return n.soloRace }

// IsSecret reports whether the node's bound value is redacted on dump.
func (n *Node) IsSecret() bool { return n.secret }

// HasLoopVars reports whether the node fans out over any loop edges.
func (n *Node) HasLoopVars() bool { return len(n.loopVars) > 0 }

func (n *Node) String() string { return n.Name }

// invoke runs the node's callable directly (no worker offload, no
// goroutine management) and normalizes a panic in user code into an
// error, matching spec.md §4.2's "any exception is wrapped" rule for
// languages where panics and errors are distinct channels.
func (n *Node) invoke(ctx context.Context, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dag: node %s panicked: %v", n.Name, r)
		}
	}()
	return n.fn(ctx, args)
}
