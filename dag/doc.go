// Package dag implements a concurrent dataflow executor for declarative
// dependency graphs.
//
// A caller builds a Graph of Nodes connected by keyword-argument Edges,
// optionally marks some edges as loop edges, and hands the graph to Run.
// Run resolves each node's inputs from a hierarchical Scope, dispatches
// nodes in topological order with maximum concurrency, fans loop nodes
// out across their inputs, and returns the root of the resulting Scope
// tree for the caller to query.
package dag
