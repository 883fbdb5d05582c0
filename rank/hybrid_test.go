package rank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hlsf/lattice/backend"
	"github.com/hlsf/lattice/core"
	"github.com/hlsf/lattice/edgeblock"
	"github.com/hlsf/lattice/shardstore"
	"github.com/hlsf/lattice/vectorstore"
)

func newRankerFixture(t *testing.T) (*Ranker, *shardstore.Store, *vectorstore.Store) {
	t.Helper()
	be := backend.NewMemory()
	shards := shardstore.New(be)
	vectors, err := vectorstore.New(be, vectorstore.Config{
		Provider: "local", Dim: 3, Normalize: true,
	}, nil)
	require.NoError(t, err)
	return New(shards, vectors), shards, vectors
}

func TestHybridBlendsBothSignals(t *testing.T) {
	ctx := context.Background()
	r, shards, vectors := newRankerFixture(t)

	require.NoError(t, shards.UpsertAdj(ctx, 1, []edgeblock.Row{
		{NeighborID: 2, Weight: 1000},
		{NeighborID: 3, Weight: 500},
	}, false))
	require.NoError(t, vectors.Put(ctx, 1, []float32{1, 0, 0}))
	require.NoError(t, vectors.Put(ctx, 3, []float32{1, 0, 0}))

	got, err := r.Hybrid(ctx, 1, 10, Params{})
	require.NoError(t, err)
	require.Len(t, got, 2)

	// 2 has only the edge signal: 0.7 * 1.0.
	// 3 has edge 0.7*0.5 plus cosine 0.3*1.0 and wins.
	assert.Equal(t, core.TokenID(3), got[0].ID)
	assert.InDelta(t, 0.65, got[0].Score, 1e-6)
	assert.Equal(t, core.TokenID(2), got[1].ID)
	assert.InDelta(t, 0.7, got[1].Score, 1e-6)
}

func TestHybridVectorOnlyCandidate(t *testing.T) {
	ctx := context.Background()
	r, _, vectors := newRankerFixture(t)

	// No edges at all: candidates come purely from the vector side.
	require.NoError(t, vectors.Put(ctx, 1, []float32{0, 1, 0}))
	require.NoError(t, vectors.Put(ctx, 9, []float32{0, 1, 0}))

	got, err := r.Hybrid(ctx, 1, 5, Params{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.TokenID(9), got[0].ID)
	assert.InDelta(t, 0.3, got[0].Score, 1e-6)
}

func TestHybridFiltersAndTruncates(t *testing.T) {
	ctx := context.Background()
	r, shards, vectors := newRankerFixture(t)
	require.NoError(t, vectors.Put(ctx, 1, []float32{1, 0, 0}))

	require.NoError(t, shards.UpsertAdj(ctx, 1, []edgeblock.Row{
		{NeighborID: 2, Type: 0, Weight: 100},
		{NeighborID: 3, Type: 1, Weight: 900},
		{NeighborID: 4, Type: 0, Weight: 800},
	}, false))

	got, err := r.Hybrid(ctx, 1, 1, Params{Types: []core.RelationType{0}, MinWeight: 200})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.TokenID(4), got[0].ID)
}

func TestHybridExplicitWeights(t *testing.T) {
	ctx := context.Background()
	r, shards, vectors := newRankerFixture(t)
	require.NoError(t, vectors.Put(ctx, 1, []float32{1, 0, 0}))
	require.NoError(t, shards.UpsertAdj(ctx, 1, []edgeblock.Row{{NeighborID: 2, Weight: 10}}, false))

	got, err := r.Hybrid(ctx, 1, 5, Params{Alpha: 1, Beta: 0})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
}
