package growth

import (
	"sort"

	"github.com/hlsf/lattice/core"
)

// DefaultFanOut caps how many top-weighted direct neighbors each collapse
// center retains.
const DefaultFanOut = 9

// Collapse prunes the graph to a bounded neighborhood around the centers.
//
// Per center it retains the top-weighted direct neighbors up to fanOut, and
// every node reachable from any center within radius unweighted BFS hops
// over an undirected view of all edges regardless of layer. Edges survive
// only when both endpoints do. When fewer than 2 nodes would remain the
// input graph is returned unchanged.
func Collapse(g *Graph, centers []core.TokenID, radius, fanOut int) *Graph {
	if fanOut <= 0 {
		fanOut = DefaultFanOut
	}
	if fanOut > g.NodeCount() {
		fanOut = g.NodeCount()
	}

	keep := make(map[core.TokenID]struct{})
	valid := centers[:0:0]
	for _, c := range centers {
		if _, ok := g.Node(c); ok {
			valid = append(valid, c)
			keep[c] = struct{}{}
		}
	}

	// Top-weighted direct neighbors per center.
	for _, c := range valid {
		type weighted struct {
			id core.TokenID
			w  float64
		}
		var direct []weighted
		for _, e := range g.Edges() {
			switch c {
			case e.Src:
				direct = append(direct, weighted{id: e.Dst, w: e.Weight})
			case e.Dst:
				direct = append(direct, weighted{id: e.Src, w: e.Weight})
			}
		}
		sort.SliceStable(direct, func(i, j int) bool { return direct[i].w > direct[j].w })
		for i, d := range direct {
			if i >= fanOut {
				break
			}
			keep[d.id] = struct{}{}
		}
	}

	// BFS within radius hops from every center.
	if radius > 0 && len(valid) > 0 {
		adj := g.neighbors()
		depth := make(map[core.TokenID]int, len(valid))
		queue := make([]core.TokenID, 0, len(valid))
		for _, c := range valid {
			depth[c] = 0
			queue = append(queue, c)
		}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if depth[cur] >= radius {
				continue
			}
			for _, next := range adj[cur] {
				if _, seen := depth[next]; seen {
					continue
				}
				depth[next] = depth[cur] + 1
				keep[next] = struct{}{}
				queue = append(queue, next)
			}
		}
	}

	if len(keep) < 2 {
		return g
	}

	out := NewGraph()
	for _, id := range g.Order() {
		if _, ok := keep[id]; !ok {
			continue
		}
		n, _ := g.Node(id)
		kept := out.Touch(n.ID, n.Label, n.Weight, n.Layer)
		kept.Frequency = n.Frequency
	}
	for _, e := range g.Edges() {
		if _, okS := keep[e.Src]; !okS {
			continue
		}
		if _, okD := keep[e.Dst]; !okD {
			continue
		}
		out.AddEdge(e.Src, e.Dst, e.Weight, e.Layer)
	}
	return out
}
