// Package growth implements the bounded graph-breathing loop: frontier
// expansion through an adjacency oracle, salience scoring, collapse/prune,
// hub selection and stability detection over an in-memory working graph.
package growth

import (
	"github.com/hlsf/lattice/core"
)

// Layer tags where a graph element came from: the breadth frontier or a
// salience-triggered deep dive.
type Layer uint8

const (
	LayerVisible Layer = iota
	LayerHidden
)

func (l Layer) String() string {
	if l == LayerHidden {
		return "hidden"
	}
	return "visible"
}

// Node is one token in the working graph.
type Node struct {
	ID        core.TokenID
	Label     string
	Weight    float64
	Layer     Layer
	Frequency int // appearance count across applied deltas
}

// Edge is one directed weighted edge in the working graph.
type Edge struct {
	Src    core.TokenID
	Dst    core.TokenID
	Weight float64
	Layer  Layer
}

// Graph is the per-run, in-memory working graph. It is mutated by a single
// writer per run and discarded at run end unless exported by a
// collaborator.
type Graph struct {
	nodes map[core.TokenID]*Node
	order []core.TokenID // first-seen order, for deterministic ties
	edges []Edge
}

// NewGraph creates an empty working graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[core.TokenID]*Node)}
}

// Node returns the node for an id.
func (g *Graph) Node(id core.TokenID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Order returns node ids in first-seen order. The returned slice is shared;
// callers must not mutate it.
func (g *Graph) Order() []core.TokenID { return g.order }

// Edges returns the edge sequence. The returned slice is shared.
func (g *Graph) Edges() []Edge { return g.edges }

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Touch inserts or refreshes a node. An existing node keeps its layer and
// accumulates frequency; weight keeps the maximum seen.
func (g *Graph) Touch(id core.TokenID, label string, weight float64, layer Layer) *Node {
	if n, ok := g.nodes[id]; ok {
		n.Frequency++
		if weight > n.Weight {
			n.Weight = weight
		}
		return n
	}
	n := &Node{ID: id, Label: label, Weight: weight, Layer: layer, Frequency: 1}
	g.nodes[id] = n
	g.order = append(g.order, id)
	return n
}

// AddEdge appends a directed edge. Both endpoints must already exist.
func (g *Graph) AddEdge(src, dst core.TokenID, weight float64, layer Layer) {
	g.edges = append(g.edges, Edge{Src: src, Dst: dst, Weight: weight, Layer: layer})
}

// neighbors returns the undirected adjacency over all layers.
func (g *Graph) neighbors() map[core.TokenID][]core.TokenID {
	adj := make(map[core.TokenID][]core.TokenID, len(g.nodes))
	for _, e := range g.edges {
		adj[e.Src] = append(adj[e.Src], e.Dst)
		adj[e.Dst] = append(adj[e.Dst], e.Src)
	}
	return adj
}

// DeltaNode proposes a token for the working graph.
type DeltaNode struct {
	Token  string
	Weight float64
}

// DeltaEdge proposes a weighted, typed edge between two proposed tokens.
type DeltaEdge struct {
	Src    string
	Dst    string
	Weight float64
	Type   core.RelationType
}

// AdjacencyDelta is the canonical unit of data an oracle returns for one
// expansion step. Oracles with looser native shapes normalize into this
// type at the call boundary; nothing downstream re-sniffs shapes.
// Edges must reference tokens declared in Nodes.
type AdjacencyDelta struct {
	Nodes []DeltaNode
	Edges []DeltaEdge
}

// Empty reports whether the delta carries nothing.
func (d AdjacencyDelta) Empty() bool {
	return len(d.Nodes) == 0 && len(d.Edges) == 0
}
