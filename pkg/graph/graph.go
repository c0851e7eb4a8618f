// Package graph provides the immutable directed weighted graph that the
// influmax inference and selection pipeline runs over.
//
// The graph is built once from (source, target, weight) tuples with string
// node identities, and interns every external ID into a dense integer index
// so the solver can use flat slices instead of maps on its hot path.
//
// Edge semantics: a directed edge u→v with weight w means
// P(v activates | u active) = w. Weights are asymmetric; u→v and v→u are
// independent edges and in general carry different weights.
//
// Example:
//
//	b := graph.NewBuilder()
//	b.AddEdge("alice", "bob", 0.5)
//	b.AddEdge("bob", "alice", 0.3)
//
//	g, err := b.Build()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("%d nodes, %d edges\n", g.NodeCount(), g.EdgeCount())
//
// Node indices are assigned in sorted external-ID order, so two builds from
// the same edge set always produce the same indexing. That determinism is
// what makes seed selection reproducible run to run.
package graph

import (
	"errors"
	"fmt"
	"sort"
)

// Sentinel errors returned by Build.
var (
	// ErrWeightRange is returned when an edge weight falls outside [0, 1].
	ErrWeightRange = errors.New("graph: edge weight outside [0, 1]")

	// ErrDuplicateEdge is returned when the same directed edge is added twice.
	ErrDuplicateEdge = errors.New("graph: duplicate directed edge")

	// ErrEmptyNodeID is returned when an edge endpoint has an empty ID.
	ErrEmptyNodeID = errors.New("graph: empty node ID")
)

// Edge is a directed weighted edge between two dense node indices.
type Edge struct {
	From   int32
	To     int32
	Weight float64
}

// DiGraph is an immutable directed weighted graph.
//
// Internally it stores a flat edge slice plus, per node, the indices of its
// incoming and outgoing edges, and for every edge the index of its reverse
// edge (v→u for u→v) when one exists. The reverse index is what lets the
// belief propagation solver exclude the backward message in O(1).
type DiGraph struct {
	ids     []string         // dense index -> external ID, sorted
	index   map[string]int32 // external ID -> dense index
	edges   []Edge
	in      [][]int32 // node -> indices of incoming edges
	out     [][]int32 // node -> indices of outgoing edges
	reverse []int32   // edge -> index of the opposite-direction edge, or -1
}

// Builder accumulates nodes and edges for a DiGraph.
//
// Builders are not safe for concurrent use; construction is a single-threaded
// startup concern.
type Builder struct {
	nodes map[string]struct{}
	edges []rawEdge
}

type rawEdge struct {
	from, to string
	weight   float64
}

// NewBuilder returns an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{nodes: make(map[string]struct{})}
}

// AddNode registers a node without any edges. Adding a node that already
// exists is a no-op, so callers can register nodes and edges in any order.
func (b *Builder) AddNode(id string) {
	b.nodes[id] = struct{}{}
}

// AddEdge adds a directed edge from -> to. Unknown endpoints are created
// implicitly. Weight validation happens in Build, not here, so a loader can
// feed a whole file and get one error with full context.
func (b *Builder) AddEdge(from, to string, weight float64) {
	b.nodes[from] = struct{}{}
	b.nodes[to] = struct{}{}
	b.edges = append(b.edges, rawEdge{from: from, to: to, weight: weight})
}

// Build validates the accumulated edges and freezes them into a DiGraph.
//
// Validation is fail-fast: the first empty ID, out-of-range weight, or
// duplicate directed edge aborts construction with a wrapped sentinel error.
// Out-of-range weights are a data bug, not something to clamp away — the
// minimum-potential floor applied later by the model is a numerical guard,
// not an input sanitizer.
func (b *Builder) Build() (*DiGraph, error) {
	ids := make([]string, 0, len(b.nodes))
	for id := range b.nodes {
		if id == "" {
			return nil, ErrEmptyNodeID
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	index := make(map[string]int32, len(ids))
	for i, id := range ids {
		index[id] = int32(i)
	}

	g := &DiGraph{
		ids:     ids,
		index:   index,
		edges:   make([]Edge, 0, len(b.edges)),
		in:      make([][]int32, len(ids)),
		out:     make([][]int32, len(ids)),
		reverse: make([]int32, len(b.edges)),
	}

	// Directed pair -> edge index, for duplicate detection and reverse lookup.
	seen := make(map[[2]int32]int32, len(b.edges))

	for _, re := range b.edges {
		if re.weight < 0 || re.weight > 1 {
			return nil, fmt.Errorf("%w: %s→%s weight=%g", ErrWeightRange, re.from, re.to, re.weight)
		}
		u, v := index[re.from], index[re.to]
		key := [2]int32{u, v}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: %s→%s", ErrDuplicateEdge, re.from, re.to)
		}

		e := int32(len(g.edges))
		seen[key] = e
		g.edges = append(g.edges, Edge{From: u, To: v, Weight: re.weight})
		g.out[u] = append(g.out[u], e)
		g.in[v] = append(g.in[v], e)
	}

	for e := range g.edges {
		edge := g.edges[e]
		if rev, ok := seen[[2]int32{edge.To, edge.From}]; ok {
			g.reverse[e] = rev
		} else {
			g.reverse[e] = -1
		}
	}

	return g, nil
}

// NodeCount returns the number of nodes.
func (g *DiGraph) NodeCount() int { return len(g.ids) }

// EdgeCount returns the number of directed edges.
func (g *DiGraph) EdgeCount() int { return len(g.edges) }

// NodeID returns the external ID for a dense index.
func (g *DiGraph) NodeID(i int32) string { return g.ids[i] }

// Index returns the dense index for an external ID, or (-1, false) if the
// node does not exist.
func (g *DiGraph) Index(id string) (int32, bool) {
	i, ok := g.index[id]
	if !ok {
		return -1, false
	}
	return i, true
}

// Edge returns the edge at index e.
func (g *DiGraph) Edge(e int32) Edge { return g.edges[e] }

// In returns the indices of edges arriving at node i. The returned slice is
// owned by the graph and must not be mutated.
func (g *DiGraph) In(i int32) []int32 { return g.in[i] }

// Out returns the indices of edges leaving node i. The returned slice is
// owned by the graph and must not be mutated.
func (g *DiGraph) Out(i int32) []int32 { return g.out[i] }

// Reverse returns the index of the opposite-direction edge for e, or -1 when
// the graph has no such edge.
func (g *DiGraph) Reverse(e int32) int32 { return g.reverse[e] }

// InDegree returns the number of incoming edges for node i.
func (g *DiGraph) InDegree(i int32) int { return len(g.in[i]) }

// OutDegree returns the number of outgoing edges for node i.
func (g *DiGraph) OutDegree(i int32) int { return len(g.out[i]) }

// NodeIDs returns all external IDs in dense-index order. The returned slice
// is owned by the graph and must not be mutated.
func (g *DiGraph) NodeIDs() []string { return g.ids }
