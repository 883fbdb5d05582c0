// Package rank blends shard-store edge evidence with vector similarity into
// a single ranked neighbor suggestion list.
package rank

import (
	"context"
	"sort"

	"github.com/hlsf/lattice/core"
	"github.com/hlsf/lattice/shardstore"
	"github.com/hlsf/lattice/vectorstore"
)

// Default blend weights. Edge evidence dominates slightly, matching the
// structural bias of salience scoring.
const (
	DefaultAlpha = 0.7
	DefaultBeta  = 0.3
)

// Params tunes one hybrid query.
type Params struct {
	// Alpha weights the normalized edge-weight term; defaults to
	// DefaultAlpha when both Alpha and Beta are zero.
	Alpha float64

	// Beta weights the cosine-similarity term.
	Beta float64

	// MinWeight and Types filter the shard-store candidates.
	MinWeight uint32
	Types     []core.RelationType
}

// Candidate is one ranked suggestion.
type Candidate struct {
	ID    core.TokenID
	Score float64
}

// Ranker joins the two stores for the synchronous suggest-neighbors read
// path. It is independent of the growth engine.
type Ranker struct {
	shards  *shardstore.Store
	vectors vectorstore.Searcher
}

// New creates a Ranker over the given stores.
func New(shards *shardstore.Store, vectors vectorstore.Searcher) *Ranker {
	return &Ranker{shards: shards, vectors: vectors}
}

// Hybrid returns up to topK candidates scored
// alpha*normalize(edgeWeight) + beta*cosine, drawn from the union of
// shard-store neighbors and vector-store similars. A candidate missing one
// signal contributes 0 for that term rather than being excluded.
func (r *Ranker) Hybrid(ctx context.Context, id core.TokenID, topK int, p Params) ([]Candidate, error) {
	if topK <= 0 {
		return nil, nil
	}
	alpha, beta := p.Alpha, p.Beta
	if alpha == 0 && beta == 0 {
		alpha, beta = DefaultAlpha, DefaultBeta
	}

	rows, err := r.shards.GetAdj(ctx, shardstore.Query{
		TokenID:   id,
		Types:     p.Types,
		MinWeight: p.MinWeight,
	})
	if err != nil {
		return nil, err
	}

	var maxWeight uint32
	for _, row := range rows {
		if row.Weight > maxWeight {
			maxWeight = row.Weight
		}
	}

	scores := make(map[core.TokenID]float64)
	order := make([]core.TokenID, 0, len(rows))
	for _, row := range rows {
		if _, ok := scores[row.NeighborID]; !ok {
			order = append(order, row.NeighborID)
		}
		if maxWeight == 0 {
			continue
		}
		edge := alpha * float64(row.Weight) / float64(maxWeight)
		if edge > scores[row.NeighborID] {
			scores[row.NeighborID] = edge
		}
	}

	// Vector similars are best-effort: a token without an embedding still
	// ranks on edge evidence alone.
	if matches, err := r.vectors.Similar(ctx, id, topK*2); err == nil {
		for _, m := range matches {
			if _, ok := scores[m.ID]; !ok {
				order = append(order, m.ID)
			}
			scores[m.ID] += beta * float64(m.Score)
		}
	}

	out := make([]Candidate, 0, len(order))
	for _, cand := range order {
		if cand == id {
			continue
		}
		out = append(out, Candidate{ID: cand, Score: scores[cand]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}
