// Package graph builds the validated dependency graph of a pipeline.
//
// Two edge classes feed the same graph: data edges, derived from `step.*`
// traversals inside argument and environment expressions, and ordering-only
// edges from `depends_on`. Both participate in cycle detection and
// readiness, but only data edges force a dependent to be skipped when its
// prerequisite fails under a continue_on_failure policy.
package graph

import (
	"fmt"
	"sort"

	"github.com/vk/airpipe/internal/catalog"
)

// Node is one step in the dependency graph.
type Node struct {
	ID   string
	Step *catalog.Step

	// Deps are the prerequisite nodes, keyed by ID.
	Deps map[string]*Node

	// Dependents are the nodes waiting on this one, keyed by ID.
	Dependents map[string]*Node

	// DataDeps marks which entries in Deps carry data. The complement set
	// is ordering-only.
	DataDeps map[string]bool
}

// Graph is the validated DAG over a single pipeline's steps.
type Graph struct {
	Pipeline *catalog.Pipeline
	Nodes    map[string]*Node

	order []string
}

// TopologicalOrder returns the node IDs in an order consistent with every
// edge. Among mutually-ready siblings the order is deterministic (sorted)
// but carries no scheduling meaning.
func (g *Graph) TopologicalOrder() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// detectCycles checks for circular dependencies using depth-first search
// with a recursion stack. Every distinct cycle entry point produces its own
// finding so the caller can report them all at once.
func (g *Graph) detectCycles() []Finding {
	var findings []Finding
	visiting := make(map[string]bool)
	visited := make(map[string]bool)

	var visit func(node *Node) bool
	visit = func(node *Node) bool {
		visiting[node.ID] = true
		for _, depID := range sortedKeys(node.Deps) {
			dep := node.Deps[depID]
			if visiting[dep.ID] {
				findings = append(findings, Finding{
					Subject: node.ID,
					Detail:  fmt.Sprintf("cycle detected involving %q", dep.ID),
				})
				return true
			}
			if !visited[dep.ID] {
				if visit(dep) {
					return true
				}
			}
		}
		delete(visiting, node.ID)
		visited[node.ID] = true
		return false
	}

	for _, id := range sortedKeys(g.Nodes) {
		if visited[id] {
			continue
		}
		if visit(g.Nodes[id]) {
			// Retire every node stranded on the aborted walk so the same
			// cycle is reported once, not once per member.
			for member := range visiting {
				visited[member] = true
				delete(visiting, member)
			}
		}
	}
	return findings
}

// topologicalSort runs Kahn's algorithm over the validated graph. It is only
// called once cycle detection has passed.
func (g *Graph) topologicalSort() []string {
	inDegree := make(map[string]int, len(g.Nodes))
	for id, node := range g.Nodes {
		inDegree[id] = len(node.Deps)
	}

	var queue []string
	for _, id := range sortedKeys(g.Nodes) {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(g.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, depID := range sortedKeys(g.Nodes[id].Dependents) {
			inDegree[depID]--
			if inDegree[depID] == 0 {
				queue = append(queue, depID)
			}
		}
	}
	return order
}

func sortedKeys(m map[string]*Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
