// Package dependency holds the directed graph the resolution context uses to
// order unit start and stop.
package dependency

import (
	"sort"

	"kernelctl/internal/api"
)

// NodeID identifies a node in the graph.
type NodeID string

// Kind classifies graph nodes.
type Kind string

const (
	// KindUnit is a unit of work managed by a resolution context.
	KindUnit Kind = "unit"
	// KindExternal is a provider that is live in the registry but not owned
	// by the context building the graph.
	KindExternal Kind = "external"
)

// Node is a vertex with edges to the nodes it depends on.
type Node struct {
	ID           NodeID
	FriendlyName string
	Kind         Kind
	DependsOn    []NodeID
}

func (n *Node) name() string {
	if n.FriendlyName != "" {
		return n.FriendlyName
	}
	return string(n.ID)
}

// Graph is a dependency graph. It is not safe for concurrent use; callers
// serialize access.
type Graph struct {
	nodes      map[NodeID]*Node
	dependents map[NodeID]map[NodeID]struct{}
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		nodes:      make(map[NodeID]*Node),
		dependents: make(map[NodeID]map[NodeID]struct{}),
	}
}

// AddNode inserts or replaces a node. Duplicate edges are collapsed.
func (g *Graph) AddNode(n Node) {
	if old, ok := g.nodes[n.ID]; ok {
		g.unlink(old)
	}

	seen := make(map[NodeID]struct{}, len(n.DependsOn))
	deps := make([]NodeID, 0, len(n.DependsOn))
	for _, dep := range n.DependsOn {
		if _, dup := seen[dep]; dup {
			continue
		}
		seen[dep] = struct{}{}
		deps = append(deps, dep)
	}
	n.DependsOn = deps

	g.nodes[n.ID] = &n
	for _, dep := range deps {
		if g.dependents[dep] == nil {
			g.dependents[dep] = make(map[NodeID]struct{})
		}
		g.dependents[dep][n.ID] = struct{}{}
	}
}

// RemoveNode deletes a node and its outgoing edges. Edges pointing at it
// from other nodes are kept, so a later AddNode with the same ID reconnects.
func (g *Graph) RemoveNode(id NodeID) {
	n, ok := g.nodes[id]
	if !ok {
		return
	}
	g.unlink(n)
	delete(g.nodes, id)
}

func (g *Graph) unlink(n *Node) {
	for _, dep := range n.DependsOn {
		delete(g.dependents[dep], n.ID)
		if len(g.dependents[dep]) == 0 {
			delete(g.dependents, dep)
		}
	}
}

// Get returns the node with the given ID, or nil.
func (g *Graph) Get(id NodeID) *Node {
	return g.nodes[id]
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Dependencies returns the direct dependencies of id.
func (g *Graph) Dependencies(id NodeID) []NodeID {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return append([]NodeID(nil), n.DependsOn...)
}

// Dependents returns the nodes that directly depend on id, sorted.
func (g *Graph) Dependents(id NodeID) []NodeID {
	result := make([]NodeID, 0, len(g.dependents[id]))
	for dep := range g.dependents[id] {
		if _, ok := g.nodes[dep]; ok {
			result = append(result, dep)
		}
	}
	sortIDs(result)
	return result
}

// TransitiveDependents returns every node that depends on id directly or
// through other nodes, sorted. id itself is not included.
func (g *Graph) TransitiveDependents(id NodeID) []NodeID {
	visited := map[NodeID]bool{id: true}
	var result []NodeID

	queue := []NodeID{id}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dep := range g.Dependents(current) {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			result = append(result, dep)
			queue = append(queue, dep)
		}
	}

	sortIDs(result)
	return result
}

// Levels groups the given nodes so that every node comes after all of its
// dependencies within the subset. Edges leaving the subset are ignored.
// Nodes inside a level are sorted by ID. A cycle inside the subset fails
// with an *api.CycleError naming the nodes on the cycle.
func (g *Graph) Levels(subset []NodeID) ([][]NodeID, error) {
	in := make(map[NodeID]bool, len(subset))
	for _, id := range subset {
		if _, ok := g.nodes[id]; ok {
			in[id] = true
		}
	}

	indegree := make(map[NodeID]int, len(in))
	for id := range in {
		indegree[id] = 0
		for _, dep := range g.nodes[id].DependsOn {
			if in[dep] {
				indegree[id]++
			}
		}
	}

	var current []NodeID
	for id, d := range indegree {
		if d == 0 {
			current = append(current, id)
		}
	}

	var levels [][]NodeID
	placed := 0
	for len(current) > 0 {
		sortIDs(current)
		levels = append(levels, current)
		placed += len(current)

		var next []NodeID
		for _, id := range current {
			for dependent := range g.dependents[id] {
				if !in[dependent] {
					continue
				}
				indegree[dependent]--
				if indegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}

	if placed < len(in) {
		remaining := make(map[NodeID]bool)
		for id, d := range indegree {
			if d > 0 {
				remaining[id] = true
			}
		}
		return nil, &api.CycleError{Names: g.cycleNames(remaining)}
	}
	return levels, nil
}

// cycleNames walks dependency edges inside the unplaced set until a node
// repeats. Every unplaced node has an unplaced dependency, so the walk
// always closes a cycle.
func (g *Graph) cycleNames(remaining map[NodeID]bool) []string {
	start := make([]NodeID, 0, len(remaining))
	for id := range remaining {
		start = append(start, id)
	}
	sortIDs(start)

	pos := make(map[NodeID]int)
	var path []NodeID
	current := start[0]
	for {
		if i, seen := pos[current]; seen {
			cycle := path[i:]
			names := make([]string, 0, len(cycle)+1)
			for _, id := range cycle {
				names = append(names, g.nodes[id].name())
			}
			return append(names, names[0])
		}
		pos[current] = len(path)
		path = append(path, current)

		deps := append([]NodeID(nil), g.nodes[current].DependsOn...)
		sortIDs(deps)
		for _, dep := range deps {
			if remaining[dep] {
				current = dep
				break
			}
		}
	}
}

func sortIDs(ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
