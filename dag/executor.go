package dag

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/arnedepeuter/deppy-go/dag/audit"
	"github.com/arnedepeuter/deppy-go/dag/emit"
)

// Run executes g, restricted to the sub-graph backward-reachable from
// targets, and returns the root of the resulting scope tree.
//
// Nodes are dispatched in topological waves with maximum concurrency:
// a node starts as soon as every predecessor node has written its
// result, and unrelated branches of the graph run in parallel. Loop
// edges fan a node's calls out across its loop variable's sequence,
// birthing one child scope per call. A node's own results, and any
// fan-out it causes, live under a Scope tree rooted at the returned
// *Scope.
//
// Run fails fast: the first node to return an error (or an ambiguous
// scope join, see ScopeJoinUnsupported) cancels the run. In-flight
// calls are given their context's cancellation and Run waits for them
// to return before reporting the error; no partial scope tree is
// returned on failure.
func Run(ctx context.Context, g *Graph, targets []*Node, opts ...Option) (*Scope, error) {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	flow, err := g.BackwardReachable(targets)
	if err != nil {
		return nil, err
	}

	ec := newExecCtx(flow, cfg)
	group, gctx := errgroup.WithContext(ctx)
	ec.g = group

	ec.emitter.Emit(emit.Event{RunID: ec.runID, Msg: "run_start", Timestamp: time.Now(), Meta: map[string]any{
		"node_count": len(flow.Nodes()),
	}})

	ready := ec.initialReady()
	for _, n := range ready {
		n := n
		group.Go(func() error { return ec.runNode(gctx, n) })
	}

	runErr := group.Wait()
	if runErr != nil {
		if ctx.Err() != nil && (errors.Is(runErr, ctx.Err()) || !errors.As(runErr, new(*NodeExecutionError)) && !errors.As(runErr, new(*ScopeJoinUnsupported))) {
			runErr = ErrCancelled
		}
		ec.emitter.Emit(emit.Event{RunID: ec.runID, Msg: "run_end", Timestamp: time.Now(), Err: runErr})
		ec.saveAuditSummary(targets, runErr)
		return nil, runErr
	}

	ec.emitter.Emit(emit.Event{RunID: ec.runID, Msg: "run_end", Timestamp: time.Now()})
	ec.saveAuditSummary(targets, nil)
	return ec.root, nil
}

// saveAuditSummary persists a RunSummary for this run if the caller
// wired an audit.Store via WithAuditStore. A store failure is not a
// run failure: it is dropped, since audit persistence is observability,
// not a correctness requirement of Run.
func (ec *execCtx) saveAuditSummary(targets []*Node, runErr error) {
	if ec.auditStore == nil {
		return
	}
	names := make([]string, len(targets))
	for i, n := range targets {
		names[i] = n.Name
	}
	summary := audit.RunSummary{
		RunID:      ec.runID,
		Targets:    names,
		StartedAt:  ec.startedAt,
		FinishedAt: time.Now(),
		NodeCalls:  int(atomic.LoadInt64(&ec.nodeCalls)),
		ScopesBorn: int(atomic.LoadInt64(&ec.scopesBorn)),
		Succeeded:  runErr == nil,
	}
	if runErr != nil {
		summary.FailureError = runErr.Error()
	}
	_ = ec.auditStore.SaveRun(context.Background(), summary)
}

// execCtx holds the bookkeeping for one Run call: the frozen flow
// graph, the live in-degree/scope-map state the wave scheduler
// mutates as nodes complete, and the wiring (progress, metrics,
// emitter, worker pool) Options configured.
type execCtx struct {
	flowGraph *Graph
	root      *Scope

	nodeOrder        map[*Node]int
	secondOrderPreds map[*Node][]*Node
	mutexes          map[*Node]*sync.Mutex

	mu       sync.Mutex // guards inDegree and scopeMap
	inDegree map[*Node]int
	scopeMap map[*Node][]*Scope

	// privatelyOwned marks nodes whose execution is driven entirely by
	// a solo-race predecessor's private chain (see soloClosure) rather
	// than by the shared wave scheduler below.
	privatelyOwned map[*Node]bool
	decremented    map[*Node]*sync.Once

	g        *errgroup.Group
	runID    string
	progress Progress
	metrics  *PrometheusMetrics
	emitter  emit.Emitter
	pool     *workerPool

	// concurrency bounds the total number of in-flight node invocations
	// across the whole run, independent of per-node fan-out or the
	// OffloadToWorker pool. Nil means unbounded.
	concurrency *semaphore.Weighted

	auditStore audit.Store
	startedAt  time.Time
	nodeCalls  int64 // atomic
	scopesBorn int64 // atomic
}

func newExecCtx(flow *Graph, cfg *runConfig) *execCtx {
	nodes := flow.Nodes()

	ec := &execCtx{
		flowGraph:        flow,
		root:             NewScope(),
		nodeOrder:        make(map[*Node]int, len(nodes)),
		secondOrderPreds: make(map[*Node][]*Node, len(nodes)),
		mutexes:          make(map[*Node]*sync.Mutex, len(nodes)),
		inDegree:         make(map[*Node]int, len(nodes)),
		scopeMap:         make(map[*Node][]*Scope, len(nodes)),
		privatelyOwned:   make(map[*Node]bool),
		decremented:      make(map[*Node]*sync.Once),
		runID:            uuid.NewString(),
		progress:         cfg.progress,
		metrics:          cfg.metrics,
		emitter:          cfg.emitter,
		pool:             newWorkerPool(cfg.workerPoolSize),
		auditStore:       cfg.auditStore,
		startedAt:        time.Now(),
	}
	if cfg.maxConcurrent > 0 {
		ec.concurrency = semaphore.NewWeighted(int64(cfg.maxConcurrent))
	}

	for i, n := range nodes {
		ec.nodeOrder[n] = i
		ec.mutexes[n] = &sync.Mutex{}
		ec.inDegree[n] = flow.InDegree(n)
		ec.decremented[n] = &sync.Once{}
	}
	for _, n := range nodes {
		ec.secondOrderPreds[n] = secondOrderPredecessors(flow, n)
	}

	for _, n := range nodes {
		if n.HasLoopVars() && n.IsSoloRace() {
			for owned := range soloClosure(flow, n) {
				ec.privatelyOwned[owned] = true
			}
		}
	}

	return ec
}

// secondOrderPredecessors returns the distinct predecessors (other
// than n itself) of every successor of n. Two nodes that share a
// successor are each other's second-order predecessors, and both
// must hold the other's mutex while deciding whether that successor
// has become ready, so that concurrent siblings never race on the
// same in-degree counter.
func secondOrderPredecessors(flow *Graph, n *Node) []*Node {
	seen := map[*Node]bool{n: true}
	var out []*Node
	for _, succ := range flow.Successors(n) {
		for _, p := range flow.Predecessors(succ) {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// soloClosure returns the set of nodes reachable forward from a
// solo-race loop node sn along a chain of single-predecessor edges.
// These nodes have no dependency besides sn (or another node already
// in the closure), so each of sn's calls can drive its own copy of
// them independently, racing ahead of its siblings rather than
// waiting for the whole batch the way a team-race node would.
func soloClosure(flow *Graph, sn *Node) map[*Node]bool {
	owned := map[*Node]bool{sn: true}
	closure := map[*Node]bool{}
	queue := []*Node{sn}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, succ := range flow.Successors(cur) {
			if owned[succ] {
				continue
			}
			preds := flow.Predecessors(succ)
			if len(preds) == 1 && preds[0] == cur {
				owned[succ] = true
				closure[succ] = true
				queue = append(queue, succ)
			}
		}
	}
	return closure
}

// emitScopeBirth records a child scope's creation through both the
// Prometheus counter and the Emitter, and bumps the audit-summary
// scope count.
func (ec *execCtx) emitScopeBirth(nodeName string, s *Scope) {
	atomic.AddInt64(&ec.scopesBorn, 1)
	ec.metrics.recordScopeBirth()
	ec.emitter.Emit(emit.Event{RunID: ec.runID, NodeID: nodeName, ScopeID: s.ID(), Msg: "scope_birth", Timestamp: time.Now()})
}

// emitIgnoreResult records a result that pruned its branch through
// both the Prometheus counter and the Emitter.
func (ec *execCtx) emitIgnoreResult(nodeName string, s *Scope) {
	ec.metrics.recordIgnored(nodeName)
	ec.emitter.Emit(emit.Event{RunID: ec.runID, NodeID: nodeName, ScopeID: s.ID(), Msg: "ignore_result", Timestamp: time.Now()})
}

func (ec *execCtx) initialReady() []*Node {
	var ready []*Node
	for _, n := range ec.flowGraph.Nodes() {
		if ec.privatelyOwned[n] {
			continue
		}
		if len(ec.flowGraph.Predecessors(n)) == 0 {
			ready = append(ready, n)
		}
	}
	return ready
}

// getCallScopes implements the call-scope reconciliation rule: a node
// with several predecessors is invoked once per scope in the deepest
// related lineage among them. Predecessors whose scope sets are
// unrelated (neither a descendant of the other) make the node
// unschedulable and surface as ScopeJoinUnsupported.
func (ec *execCtx) getCallScopes(node *Node) ([]*Scope, error) {
	preds := ec.flowGraph.Predecessors(node)
	if len(preds) == 0 {
		return []*Scope{ec.root}, nil
	}

	ec.mu.Lock()
	defer ec.mu.Unlock()

	var scopes []*Scope
	for i, p := range preds {
		ps, ok := ec.scopeMap[p]
		if !ok {
			return nil, fmt.Errorf("dag: %w", &errMissingBinding{node: node, pred: p})
		}
		if i == 0 {
			scopes = ps
			continue
		}
		rep, repNew := scopes[0], ps[0]
		if !rep.IsRelated(repNew) {
			return nil, &ScopeJoinUnsupported{Node: node}
		}
		if repNew.PathLen() >= rep.PathLen() {
			scopes = ps
		}
	}
	return scopes, nil
}

// resolveArgs builds the keyword-argument map(s) node must be called
// with under scope, expanding any loop variables via the node's
// LoopStrategy. A non-loop node always yields exactly one call.
func (ec *execCtx) resolveArgs(node *Node, scope *Scope) ([]map[string]any, error) {
	base := make(map[string]any)
	for _, e := range ec.flowGraph.InEdges(node) {
		v, err := scope.GetInherited(e.From)
		if err != nil {
			return nil, fmt.Errorf("dag: %w", &errMissingBinding{node: node, pred: e.From})
		}
		ev, err := e.extract(v)
		if err != nil {
			return nil, fmt.Errorf("dag: extractor %s->%s(%s): %w", e.From.Name, node.Name, e.KwargName, err)
		}
		base[e.KwargName] = ev
	}

	if !node.HasLoopVars() {
		return []map[string]any{base}, nil
	}

	keys := make([]string, len(node.loopVars))
	seqs := make([][]any, len(node.loopVars))
	for i, lv := range node.loopVars {
		keys[i] = lv.kwargName
		seqs[i] = toAnySlice(base[lv.kwargName])
	}
	combos, err := node.loopStrategy(seqs...)
	if err != nil {
		return nil, fmt.Errorf("dag: loop strategy for %s: %w", node.Name, err)
	}

	calls := make([]map[string]any, len(combos))
	for i, combo := range combos {
		m := make(map[string]any, len(base))
		for k, v := range base {
			m[k] = v
		}
		for j, k := range keys {
			m[k] = combo[j]
		}
		calls[i] = m
	}
	return calls, nil
}

// toAnySlice coerces any concrete slice type into []any so loop
// strategies only ever deal with one shape of sequence.
func toAnySlice(v any) []any {
	if v == nil {
		return nil
	}
	if s, ok := v.([]any); ok {
		return s
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

type callUnit struct {
	scope *Scope
	args  map[string]any
}

// invokeAndSave resolves and runs every call node owes across scopes,
// waits for all of them, then saves results into the scope tree per
// §4.4.4: non-loop nodes write directly into their call scope, loop
// nodes birth a fan-out parent per call scope and one child per
// result. It returns the node's new live scope set, i.e. every scope
// that received a non-ignored result.
func (ec *execCtx) invokeAndSave(ctx context.Context, node *Node, scopes []*Scope) ([]*Scope, error) {
	var calls []callUnit
	for _, s := range scopes {
		argsList, err := ec.resolveArgs(node, s)
		if err != nil {
			return nil, err
		}
		for _, a := range argsList {
			calls = append(calls, callUnit{scope: s, args: a})
		}
	}

	ec.progress.OnScheduled(len(calls))
	results := make([]any, len(calls))

	ig, igctx := errgroup.WithContext(ctx)
	for i, c := range calls {
		i, c := i, c
		ig.Go(func() error {
			r, err := ec.invokeOne(igctx, node, c.args)
			if err != nil {
				return &NodeExecutionError{Node: node, Cause: err}
			}
			results[i] = r
			return nil
		})
	}
	if err := ig.Wait(); err != nil {
		return nil, err
	}
	ec.progress.OnCompleted(len(calls))

	return ec.saveResults(node, calls, results)
}

func (ec *execCtx) invokeOne(ctx context.Context, node *Node, args map[string]any) (any, error) {
	if ec.concurrency != nil {
		if err := ec.concurrency.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer ec.concurrency.Release(1)
	}

	atomic.AddInt64(&ec.nodeCalls, 1)
	start := time.Now()
	ec.metrics.incInflight()
	defer ec.metrics.decInflight()

	var (
		r   any
		err error
	)
	if node.OffloadsToWorker() {
		r, err = ec.pool.run(ctx, func() (any, error) { return node.invoke(ctx, args) })
	} else {
		r, err = node.invoke(ctx, args)
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	ec.metrics.recordLatency(node.Name, status, time.Since(start))
	return r, err
}

func (ec *execCtx) saveResults(node *Node, calls []callUnit, results []any) ([]*Scope, error) {
	var order []*Scope
	byScope := map[*Scope][]any{}
	seen := map[*Scope]bool{}
	for i, c := range calls {
		if !seen[c.scope] {
			seen[c.scope] = true
			order = append(order, c.scope)
		}
		byScope[c.scope] = append(byScope[c.scope], results[i])
	}

	var live []*Scope
	for _, s := range order {
		rs := byScope[s]
		if !node.HasLoopVars() {
			if err := s.Set(node, rs[0]); err != nil {
				return nil, err
			}
			if isIgnoreResult(rs[0]) {
				ec.emitIgnoreResult(node.Name, s)
			} else {
				live = append(live, s)
			}
			continue
		}

		parent := s.Birth()
		ec.emitScopeBirth(node.Name, parent)
		_ = parent.Set(ScopeNameKey, node.Name)
		for _, r := range rs {
			child := parent.Birth()
			ec.emitScopeBirth(node.Name, child)
			if err := child.Set(node, r); err != nil {
				return nil, err
			}
			if isIgnoreResult(r) {
				ec.emitIgnoreResult(node.Name, child)
			} else {
				live = append(live, child)
			}
		}
	}
	return live, nil
}

// runNode is the shared-scheduler entry point for one node: resolve
// its call scopes, invoke and save, then advance the frontier.
// Privately-owned nodes (see soloClosure) are never scheduled this
// way; they run exclusively via runPrivateChain.
func (ec *execCtx) runNode(ctx context.Context, node *Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ec.emitter.Emit(emit.Event{RunID: ec.runID, NodeID: node.Name, Msg: "node_start", Timestamp: time.Now()})

	scopes, err := ec.getCallScopes(node)
	if err != nil {
		return err
	}

	if node.IsSoloRace() && node.HasLoopVars() {
		return ec.runSoloNode(ctx, node, scopes)
	}

	live, err := ec.invokeAndSave(ctx, node, scopes)
	if err != nil {
		return err
	}
	ec.emitter.Emit(emit.Event{RunID: ec.runID, NodeID: node.Name, Msg: "node_end", Timestamp: time.Now()})

	qualified := ec.finishNode(node, live)
	for _, succ := range qualified {
		succ := succ
		ec.g.Go(func() error { return ec.runNode(ctx, succ) })
	}
	return nil
}

// runSoloNode invokes each of node's fan-out calls independently: as
// soon as one call's result lands, any successor reachable from node
// by nothing but a chain of single-predecessor edges (node's "solo
// closure") is driven from that single result, without waiting for
// node's other calls to finish. Successors with other predecessors
// still go through the normal shared frontier, fed once per call.
func (ec *execCtx) runSoloNode(ctx context.Context, node *Node, scopes []*Scope) error {
	var calls []callUnit
	for _, s := range scopes {
		argsList, err := ec.resolveArgs(node, s)
		if err != nil {
			return err
		}
		for _, a := range argsList {
			calls = append(calls, callUnit{scope: s, args: a})
		}
	}
	ec.progress.OnScheduled(len(calls))

	parents := map[*Scope]*Scope{} // call scope -> its node fan-out parent
	for _, s := range scopes {
		if _, ok := parents[s]; ok {
			continue
		}
		p := s.Birth()
		ec.emitScopeBirth(node.Name, p)
		_ = p.Set(ScopeNameKey, node.Name)
		parents[s] = p
	}

	succs := ec.flowGraph.Successors(node)

	sg, sgctx := errgroup.WithContext(ctx)
	for _, c := range calls {
		c := c
		sg.Go(func() error {
			r, err := ec.invokeOne(sgctx, node, c.args)
			if err != nil {
				return &NodeExecutionError{Node: node, Cause: err}
			}
			ec.progress.OnCompleted(1)

			child := parents[c.scope].Birth()
			ec.emitScopeBirth(node.Name, child)
			if err := child.Set(node, r); err != nil {
				return err
			}

			ec.mu.Lock()
			ec.scopeMap[node] = append(ec.scopeMap[node], child)
			ec.mu.Unlock()

			if isIgnoreResult(r) {
				ec.emitIgnoreResult(node.Name, child)
				return nil
			}

			for _, succ := range succs {
				succ := succ
				if ec.privatelyOwned[succ] {
					ec.g.Go(func() error { return ec.runPrivateChain(ctx, succ, child) })
					continue
				}
				if ec.noteSharedContribution(succ) {
					ec.g.Go(func() error { return ec.runNode(ctx, succ) })
				}
			}
			return nil
		})
	}
	if err := sg.Wait(); err != nil {
		return err
	}
	ec.emitter.Emit(emit.Event{RunID: ec.runID, NodeID: node.Name, Msg: "node_end", Timestamp: time.Now()})
	return nil
}

// runPrivateChain drives a privately-owned node from a single
// upstream scope, independent of the shared in-degree bookkeeping,
// and recurses into further privately-owned successors. A successor
// that leaves the closure (has a predecessor besides this chain)
// falls back to the shared frontier, fed once per private completion.
func (ec *execCtx) runPrivateChain(ctx context.Context, node *Node, parentScope *Scope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	live, err := ec.invokeAndSave(ctx, node, []*Scope{parentScope})
	if err != nil {
		return err
	}

	ec.mu.Lock()
	ec.scopeMap[node] = append(ec.scopeMap[node], live...)
	ec.mu.Unlock()

	for _, s := range live {
		s := s
		for _, succ := range ec.flowGraph.Successors(node) {
			succ := succ
			if ec.privatelyOwned[succ] {
				ec.g.Go(func() error { return ec.runPrivateChain(ctx, succ, s) })
				continue
			}
			if ec.noteSharedContribution(succ) {
				ec.g.Go(func() error { return ec.runNode(ctx, succ) })
			}
		}
	}
	return nil
}

// noteSharedContribution decrements succ's shared in-degree exactly
// once per owning private node (guarded by a sync.Once, since a
// private chain may complete several times for the same successor)
// and reports whether succ just became ready.
func (ec *execCtx) noteSharedContribution(succ *Node) bool {
	ready := false
	ec.decremented[succ].Do(func() {
		ec.mu.Lock()
		ec.inDegree[succ]--
		ready = ec.inDegree[succ] == 0
		ec.mu.Unlock()
	})
	return ready
}

// finishNode records node's live scope set and decrements the shared
// in-degree of its successors, guarded by the mutexes of node's
// second-order predecessors (acquired in a fixed global order so that
// two siblings racing to update a shared successor never deadlock).
// It returns the successors whose in-degree just reached zero.
func (ec *execCtx) finishNode(node *Node, live []*Scope) []*Node {
	locks := append([]*Node(nil), ec.secondOrderPreds[node]...)
	sort.Slice(locks, func(i, j int) bool { return ec.nodeOrder[locks[i]] < ec.nodeOrder[locks[j]] })
	for _, m := range locks {
		ec.mutexes[m].Lock()
	}
	defer func() {
		for i := len(locks) - 1; i >= 0; i-- {
			ec.mutexes[locks[i]].Unlock()
		}
	}()

	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.scopeMap[node] = live

	var qualified []*Node
	for _, succ := range ec.flowGraph.Successors(node) {
		if ec.privatelyOwned[succ] {
			continue
		}
		ec.inDegree[succ]--
		if ec.inDegree[succ] == 0 {
			qualified = append(qualified, succ)
		}
	}
	return qualified
}
