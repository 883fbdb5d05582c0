package growth

import (
	"math"

	"github.com/hlsf/lattice/core"
)

// SalienceWeights blends the structural terms of the baseline salience
// score. The constants are empirical; they are kept configurable rather
// than re-derived.
type SalienceWeights struct {
	Degree    float64
	EdgeMass  float64
	Frequency float64
}

// DefaultSalienceWeights is the baseline 0.6/0.3/0.1 blend.
var DefaultSalienceWeights = SalienceWeights{Degree: 0.6, EdgeMass: 0.3, Frequency: 0.1}

// ContextWeights blends baseline salience with context signals.
type ContextWeights struct {
	Salience     float64
	Intertwining float64
	Peakiness    float64
}

// DefaultContextWeights is the context-aware 0.55/0.30/0.15 blend.
var DefaultContextWeights = ContextWeights{Salience: 0.55, Intertwining: 0.30, Peakiness: 0.15}

// ContextProvider supplies the context-aware salience signals: how many
// active semantic contexts reference a token, normalized to [0,1], and how
// sharply the token's embedding projects onto the active context basis.
type ContextProvider interface {
	Intertwining(id core.TokenID) float64
	Peakiness(id core.TokenID) float64
}

// Salience computes the baseline structural score for every node:
// w.Degree*degree + w.EdgeMass*Σ incident edge weight + w.Frequency*freq.
func Salience(g *Graph, w SalienceWeights) map[core.TokenID]float64 {
	degree := make(map[core.TokenID]int, g.NodeCount())
	mass := make(map[core.TokenID]float64, g.NodeCount())
	for _, e := range g.Edges() {
		degree[e.Src]++
		degree[e.Dst]++
		mass[e.Src] += e.Weight
		mass[e.Dst] += e.Weight
	}

	scores := make(map[core.TokenID]float64, g.NodeCount())
	for _, id := range g.Order() {
		n, _ := g.Node(id)
		scores[id] = w.Degree*float64(degree[id]) +
			w.EdgeMass*mass[id] +
			w.Frequency*float64(n.Frequency)
	}
	return scores
}

// ContextSalience blends baseline salience with context intertwining and
// projection peakiness. A nil provider degrades to the baseline score.
func ContextSalience(g *Graph, base SalienceWeights, provider ContextProvider, w ContextWeights) map[core.TokenID]float64 {
	scores := Salience(g, base)
	if provider == nil {
		return scores
	}
	for id, s := range scores {
		scores[id] = w.Salience*s +
			w.Intertwining*provider.Intertwining(id) +
			w.Peakiness*provider.Peakiness(id)
	}
	return scores
}

// SelectHub returns the highest-salience node id, excluding stop words by
// label. Ties go to first-seen order. When no node is eligible the previous
// hub is kept.
func SelectHub(g *Graph, scores map[core.TokenID]float64, stopWords map[string]struct{}, prev core.TokenID) core.TokenID {
	best := math.Inf(-1)
	hub := prev
	for _, id := range g.Order() {
		n, _ := g.Node(id)
		if _, stopped := stopWords[n.Label]; stopped {
			continue
		}
		if s := scores[id]; s > best {
			best = s
			hub = id
		}
	}
	return hub
}
