package growth

import (
	"context"

	"github.com/hlsf/lattice/core"
	"github.com/hlsf/lattice/vectorstore"
)

// DefaultCoherence is used when a cluster has fewer than two embedded
// members to compare.
const DefaultCoherence = 0.5

// Cluster is one affinity component of the working graph plus its semantic
// coherence sub-score.
type Cluster struct {
	Members   []core.TokenID
	Coherence float64
}

// ThoughtSink consumes emitted clusters. The detection/narration decision
// logic behind it is an external collaborator.
type ThoughtSink interface {
	EmitThought(ctx context.Context, cluster Cluster, labels []string)
}

// VectorReader is the slice of the vector store clustering needs.
type VectorReader interface {
	Get(ctx context.Context, id core.TokenID) ([]float32, error)
}

// Clusters finds connected components over edges whose weight meets the
// affinity threshold and scores each component's coherence as the mean
// pairwise cosine similarity among embedded members.
func Clusters(ctx context.Context, g *Graph, threshold float64, vectors VectorReader) []Cluster {
	parent := make(map[core.TokenID]core.TokenID, g.NodeCount())
	var find func(core.TokenID) core.TokenID
	find = func(id core.TokenID) core.TokenID {
		if parent[id] != id {
			parent[id] = find(parent[id])
		}
		return parent[id]
	}
	for _, id := range g.Order() {
		parent[id] = id
	}
	for _, e := range g.Edges() {
		if e.Weight < threshold {
			continue
		}
		if _, ok := parent[e.Src]; !ok {
			continue
		}
		if _, ok := parent[e.Dst]; !ok {
			continue
		}
		parent[find(e.Src)] = find(e.Dst)
	}

	groups := make(map[core.TokenID][]core.TokenID)
	for _, id := range g.Order() {
		root := find(id)
		groups[root] = append(groups[root], id)
	}

	var out []Cluster
	emitted := make(map[core.TokenID]struct{}, len(groups))
	for _, id := range g.Order() {
		root := find(id)
		if _, done := emitted[root]; done {
			continue
		}
		emitted[root] = struct{}{}
		members := groups[root]
		out = append(out, Cluster{
			Members:   members,
			Coherence: coherence(ctx, members, vectors),
		})
	}
	return out
}

// coherence is the mean pairwise cosine similarity among embedded members,
// DefaultCoherence when fewer than two are embedded.
func coherence(ctx context.Context, members []core.TokenID, vectors VectorReader) float64 {
	if vectors == nil {
		return DefaultCoherence
	}
	var embedded [][]float32
	for _, id := range members {
		if v, err := vectors.Get(ctx, id); err == nil {
			embedded = append(embedded, v)
		}
	}
	if len(embedded) < 2 {
		return DefaultCoherence
	}

	var sum float64
	var pairs int
	for i := 0; i < len(embedded); i++ {
		for j := i + 1; j < len(embedded); j++ {
			a, b := embedded[i], embedded[j]
			if len(a) != len(b) {
				continue
			}
			na, nb := vectorstore.Norm(a), vectorstore.Norm(b)
			if na == 0 || nb == 0 {
				continue
			}
			sum += float64(vectorstore.Dot(a, b) / (na * nb))
			pairs++
		}
	}
	if pairs == 0 {
		return DefaultCoherence
	}
	return sum / float64(pairs)
}
