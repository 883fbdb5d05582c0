package lattice

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hlsf/lattice/core"
	"github.com/hlsf/lattice/edgeblock"
	"github.com/hlsf/lattice/growth"
	"github.com/hlsf/lattice/shardstore"
	"github.com/hlsf/lattice/vectorstore"
)

func openTestDB(t *testing.T, optFns ...Option) *DB {
	t.Helper()
	db, err := Open("", append([]Option{WithLogger(NoopLogger())}, optFns...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEnsureTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	id, err := db.EnsureToken(ctx, "  Water   flow ")
	require.NoError(t, err)
	again, err := db.EnsureToken(ctx, "Water flow")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	text, err := db.Token(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Water flow", text)

	_, err = db.EnsureToken(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyToken)
}

func TestTokenNotFoundTranslated(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Token(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertAndNeighbors(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	water, err := db.EnsureToken(ctx, "water")
	require.NoError(t, err)
	river, err := db.EnsureToken(ctx, "river")
	require.NoError(t, err)
	rain, err := db.EnsureToken(ctx, "rain")
	require.NoError(t, err)

	require.NoError(t, db.UpsertAdj(ctx, water, []edgeblock.Row{
		{NeighborID: river, Type: shardstore.RelAdjacency, Weight: 700, LastSeen: 5},
		{NeighborID: rain, Type: shardstore.RelCause, Weight: 900, LastSeen: 5},
	}))

	rows, err := db.Neighbors(ctx, shardstore.Query{TokenID: water})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, rain, rows[0].NeighborID)

	// Reverse: who points at river.
	rows, err = db.Neighbors(ctx, shardstore.Query{TokenID: river, Reverse: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, water, rows[0].NeighborID)
}

func TestSuggestBlendsSignals(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	water, _ := db.EnsureToken(ctx, "water")
	river, _ := db.EnsureToken(ctx, "river")
	require.NoError(t, db.UpsertAdj(ctx, water, []edgeblock.Row{
		{NeighborID: river, Type: shardstore.RelAdjacency, Weight: 500, LastSeen: 1},
	}))
	require.NoError(t, db.Embed(ctx, water))
	require.NoError(t, db.Embed(ctx, river))

	out, err := db.Suggest(ctx, water, 5)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.Equal(t, river, out[0].ID)
}

// heldScheduler never runs its callbacks; flushes are driven explicitly.
type heldScheduler struct{ fns []func() }

func (s *heldScheduler) Schedule(fn func()) { s.fns = append(s.fns, fn) }

func TestEnsureTokenEmbedsWriteBehind(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, WithEmbedScheduler(vectorstore.SyncScheduler{}))

	id, err := db.EnsureToken(ctx, "meadow")
	require.NoError(t, err)
	assert.True(t, db.Vectors().Has(ctx, id))
}

func TestFlushEmbeddingsDrainsQueue(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, WithEmbedScheduler(&heldScheduler{}))

	id, err := db.EnsureToken(ctx, "meadow")
	require.NoError(t, err)
	assert.False(t, db.Vectors().Has(ctx, id))

	// Imported tokens queue through the same observer.
	items := func(yield func(shardstore.ImportItem) bool) {
		yield(shardstore.ImportItem{Token: "clover"})
	}
	_, err = db.BulkImport(ctx, iter.Seq[shardstore.ImportItem](items))
	require.NoError(t, err)

	require.NoError(t, db.FlushEmbeddings(ctx))
	assert.True(t, db.Vectors().Has(ctx, id))

	clover, err := db.EnsureToken(ctx, "clover")
	require.NoError(t, err)
	assert.True(t, db.Vectors().Has(ctx, clover))
}

func TestCloseDrainsEmbeddingQueue(t *testing.T) {
	ctx := context.Background()
	db, err := Open("", WithLogger(NoopLogger()), WithEmbedScheduler(&heldScheduler{}))
	require.NoError(t, err)

	id, err := db.EnsureToken(ctx, "meadow")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// The drained vector is visible through the store's read cache.
	assert.True(t, db.Vectors().Has(ctx, id))
}

type fixedOracle struct{ delta growth.AdjacencyDelta }

func (o fixedOracle) SeedAdjacency(context.Context, string) (growth.AdjacencyDelta, error) {
	return o.delta, nil
}

func (o fixedOracle) ExpandAdjacency(context.Context, string) (growth.AdjacencyDelta, error) {
	return o.delta, nil
}

func TestBreathe(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetrics{}
	db := openTestDB(t, WithMetrics(metrics))

	delta := growth.AdjacencyDelta{
		Nodes: []growth.DeltaNode{
			{Token: "water", Weight: 1},
			{Token: "river", Weight: 0.8},
			{Token: "rain", Weight: 0.6},
		},
		Edges: []growth.DeltaEdge{
			{Src: "water", Dst: "river", Weight: 0.8, Type: shardstore.RelAdjacency},
			{Src: "water", Dst: "rain", Weight: 0.6, Type: shardstore.RelCause},
		},
	}

	res, err := db.Breathe(ctx, "water", fixedOracle{delta: delta})
	require.NoError(t, err)
	assert.Equal(t, growth.ReasonStable, res.Reason)
	assert.Positive(t, res.Graph.NodeCount())
	assert.EqualValues(t, 1, metrics.BreatheRuns.Load())

	// Oracle deltas landed in the shard store.
	water, err := db.EnsureToken(ctx, "water")
	require.NoError(t, err)
	rows, err := db.Neighbors(ctx, shardstore.Query{TokenID: water})
	require.NoError(t, err)
	assert.NotEmpty(t, rows)
}

func TestBulkImport(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	items := func(yield func(shardstore.ImportItem) bool) {
		if !yield(shardstore.ImportItem{Token: "sun", Edges: []edgeblock.Row{
			{NeighborID: 1, Type: shardstore.RelAdjacency, Weight: 10, LastSeen: 1},
		}}) {
			return
		}
		yield(shardstore.ImportItem{}) // malformed, skipped
	}
	n, err := db.BulkImport(ctx, iter.Seq[shardstore.ImportItem](items))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Positive(t, stats.Tokens)
}

func TestMirrorExport(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	db := openTestDB(t, WithMirror(root, 0))

	_, err := db.EnsureToken(ctx, "granite")
	require.NoError(t, err)
	require.NoError(t, db.ExportMirror(ctx))

	assert.FileExists(t, filepath.Join(root, "G", "GR.json"))
}

func TestCloseIdempotent(t *testing.T) {
	db, err := Open("", WithLogger(NoopLogger()))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err = db.EnsureToken(context.Background(), "late")
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, errors.Is(db.Compact(context.Background()), ErrClosed))
}

func TestCompactAndGC(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, WithCodec(edgeblock.Gzip{}))

	id, err := db.EnsureToken(ctx, "stone")
	require.NoError(t, err)
	require.NoError(t, db.UpsertAdj(ctx, id, []edgeblock.Row{
		{NeighborID: core.TokenID(id + 1), Type: shardstore.RelAdjacency, Weight: 1, LastSeen: 1},
	}))
	require.NoError(t, db.Compact(ctx))

	_, err = db.GC(ctx)
	require.NoError(t, err)
}
