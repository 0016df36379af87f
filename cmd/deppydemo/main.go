// Command deppydemo builds a couple of small graphs and runs them,
// printing the resulting scope tree. It exists to exercise dag.Run end
// to end against a real binary rather than only in tests.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/arnedepeuter/deppy-go/dag"
	"github.com/arnedepeuter/deppy-go/dag/audit"
	"github.com/arnedepeuter/deppy-go/dag/emit"
)

func main() {
	scenario := flag.String("scenario", "chain", "scenario to run: chain, product, zip, ignore")
	redact := flag.Bool("redact", false, "redact secret-flagged values in the printed dump")
	showRuns := flag.Bool("show-runs", false, "print the audit log after running")
	flag.Parse()

	g, targets, err := buildScenario(*scenario)
	if err != nil {
		log.Fatalf("deppydemo: %v", err)
	}

	store := audit.NewMemStore()
	root, err := dag.Run(context.Background(), g, targets,
		dag.WithEmitter(emit.NewLogEmitter(os.Stderr, false)),
		dag.WithAuditStore(store),
	)
	if err != nil {
		log.Fatalf("deppydemo: run failed: %v", err)
	}

	dump := root.Dump(*redact)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dump); err != nil {
		log.Fatalf("deppydemo: encode dump: %v", err)
	}

	if *showRuns {
		printRuns(store)
	}
}

func printRuns(store audit.Store) {
	runs, err := store.ListRuns(context.Background(), 0)
	if err != nil {
		log.Fatalf("deppydemo: list runs: %v", err)
	}
	for _, r := range runs {
		fmt.Fprintf(os.Stderr, "run=%s targets=%v calls=%d scopes_born=%d succeeded=%v\n",
			r.RunID, r.Targets, r.NodeCalls, r.ScopesBorn, r.Succeeded)
	}
}

func buildScenario(name string) (*dag.Graph, []*dag.Node, error) {
	switch name {
	case "chain":
		return buildChain()
	case "product":
		return buildFanOut(dag.Product)
	case "zip":
		return buildFanOut(dag.Zip)
	case "ignore":
		return buildIgnorePruning()
	default:
		return nil, nil, fmt.Errorf("unknown scenario %q", name)
	}
}

// buildChain wires n1 = ()->"a", n2(dep) = "b:"+dep.
func buildChain() (*dag.Graph, []*dag.Node, error) {
	g := dag.NewGraph()

	n1 := dag.NewNode("n1", func(ctx context.Context, args map[string]any) (any, error) {
		return "a", nil
	})
	n2 := dag.NewNode("n2", func(ctx context.Context, args map[string]any) (any, error) {
		return "b:" + args["dep"].(string), nil
	})

	g.AddNode(n1)
	g.AddNode(n2)
	if err := g.AddEdge(n1, n2, "dep", false, nil); err != nil {
		return nil, nil, err
	}
	return g, []*dag.Node{n2}, nil
}

// buildFanOut wires L1=()->[1,2,3], L2=()->["a","b","c"], M(x,y)->(x,y)
// with loop edges on both, under the given fan-out strategy.
func buildFanOut(strategy dag.LoopStrategy) (*dag.Graph, []*dag.Node, error) {
	g := dag.NewGraph()

	l1 := dag.NewNode("L1", func(ctx context.Context, args map[string]any) (any, error) {
		return []any{1, 2, 3}, nil
	})
	l2 := dag.NewNode("L2", func(ctx context.Context, args map[string]any) (any, error) {
		return []any{"a", "b", "c"}, nil
	})
	m := dag.NewNode("M", func(ctx context.Context, args map[string]any) (any, error) {
		return [2]any{args["x"], args["y"]}, nil
	}, dag.WithLoopStrategy(strategy))

	g.AddNode(l1)
	g.AddNode(l2)
	g.AddNode(m)
	if err := g.AddEdge(l1, m, "x", true, nil); err != nil {
		return nil, nil, err
	}
	if err := g.AddEdge(l2, m, "y", true, nil); err != nil {
		return nil, nil, err
	}
	return g, []*dag.Node{m}, nil
}

// buildIgnorePruning wires L=()->[2,4,3], F(x)=IgnoreResult if x is
// odd else x (loop), G(x)=x+1.
func buildIgnorePruning() (*dag.Graph, []*dag.Node, error) {
	g := dag.NewGraph()

	l := dag.NewNode("L", func(ctx context.Context, args map[string]any) (any, error) {
		return []any{2, 4, 3}, nil
	})
	f := dag.NewNode("F", func(ctx context.Context, args map[string]any) (any, error) {
		x := args["x"].(int)
		if x%2 != 0 {
			return dag.IgnoreResult{Reason: "odd"}, nil
		}
		return x, nil
	}, dag.WithLoopStrategy(dag.Zip))
	gn := dag.NewNode("G", func(ctx context.Context, args map[string]any) (any, error) {
		return args["x"].(int) + 1, nil
	})

	g.AddNode(l)
	g.AddNode(f)
	g.AddNode(gn)
	if err := g.AddEdge(l, f, "x", true, nil); err != nil {
		return nil, nil, err
	}
	if err := g.AddEdge(f, gn, "x", false, nil); err != nil {
		return nil, nil, err
	}
	return g, []*dag.Node{gn, f}, nil
}
