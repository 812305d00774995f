// Package causalgraph holds the in-memory causal knowledge graph used by
// CausalFilter to rerank retrieved chunks.
//
// The graph models `pkg/memory/postgres/knowledge_graph.go`'s
// Neighbors/FindPath BFS style, adapted from a Postgres-table-backed graph to
// a plain in-process adjacency list: the spec calls for an immutable,
// atomically-swappable snapshot, which a SQL table does not give for free.
package causalgraph

import "sort"

// Edge is a directed causal link from one entity to another.
type Edge struct {
	From      string
	To        string
	Mechanism string
	SourceDoc string
}

// Graph is a directed graph over lowercase entity strings. It is a simple
// graph, not a multigraph: inserting an edge for a (from, to) pair already
// present overwrites its attributes, mirroring networkx's DiGraph.add_edge
// semantics (the original never constructs a MultiDiGraph).
//
// A Graph is immutable once built; construct it with [New] or [Load], mutate
// it only during the offline build pass via [Graph.AddEdge], then publish it
// for concurrent readers by swapping an [Atomic] pointer.
type Graph struct {
	adjacency map[string]map[string]Edge
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{adjacency: make(map[string]map[string]Edge)}
}

// AddEdge inserts or overwrites the directed edge from->to with the given
// mechanism and source document ID. Both endpoints are expected to already
// be lowercased by the caller.
func (g *Graph) AddEdge(from, to, mechanism, sourceDoc string) {
	if g.adjacency[from] == nil {
		g.adjacency[from] = make(map[string]Edge)
	}
	if g.adjacency[to] == nil {
		g.adjacency[to] = make(map[string]Edge)
	}
	g.adjacency[from][to] = Edge{From: from, To: to, Mechanism: mechanism, SourceDoc: sourceDoc}
}

// HasNode reports whether id appears as an endpoint of any edge in the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.adjacency[id]
	return ok
}

// Neighbors returns the outgoing edges from id, or nil if id has none.
func (g *Graph) Neighbors(id string) []Edge {
	out := g.adjacency[id]
	if len(out) == 0 {
		return nil
	}
	edges := make([]Edge, 0, len(out))
	for _, e := range out {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].To < edges[j].To })
	return edges
}

// Nodes returns every entity string appearing in the graph, sorted.
func (g *Graph) Nodes() []string {
	seen := make(map[string]struct{}, len(g.adjacency))
	for from, out := range g.adjacency {
		seen[from] = struct{}{}
		for to := range out {
			seen[to] = struct{}{}
		}
	}
	nodes := make([]string, 0, len(seen))
	for n := range seen {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}

// NodeCount returns the number of distinct entity nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.Nodes())
}

// HasPath reports whether a directed path from->to exists using at most
// maxHops edges, via bounded breadth-first search.
//
// The original's nx.has_path performs unbounded BFS; bounding it here guards
// against pathological graphs without changing behavior for the graphs the
// offline builder produces, where entity chains extracted from a single
// sentence rarely exceed a handful of hops.
func (g *Graph) HasPath(from, to string, maxHops int) bool {
	if from == to {
		return true
	}
	if !g.HasNode(from) || !g.HasNode(to) {
		return false
	}

	visited := map[string]struct{}{from: {}}
	frontier := []string{from}

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, node := range frontier {
			for neighbor := range g.adjacency[node] {
				if neighbor == to {
					return true
				}
				if _, ok := visited[neighbor]; ok {
					continue
				}
				visited[neighbor] = struct{}{}
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	return false
}
