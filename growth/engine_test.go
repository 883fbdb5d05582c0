package growth

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/hlsf/lattice/backend"
	"github.com/hlsf/lattice/embed"
	"github.com/hlsf/lattice/shardstore"
	"github.com/hlsf/lattice/vectorstore"
)

// scriptedOracle returns the same delta for every call and counts them.
type scriptedOracle struct {
	delta AdjacencyDelta
	err   error
	calls atomic.Int64
}

func (o *scriptedOracle) SeedAdjacency(_ context.Context, token string) (AdjacencyDelta, error) {
	o.calls.Add(1)
	return o.deltaFor(token)
}

func (o *scriptedOracle) ExpandAdjacency(_ context.Context, token string) (AdjacencyDelta, error) {
	o.calls.Add(1)
	return o.deltaFor(token)
}

func (o *scriptedOracle) deltaFor(string) (AdjacencyDelta, error) {
	if o.err != nil {
		return AdjacencyDelta{}, o.err
	}
	return o.delta, o.err
}

func newTestEngine(t *testing.T, oracle Oracle, cfg Config) (*Engine, *shardstore.Store) {
	t.Helper()
	shards := shardstore.New(backend.NewMemory())
	vectors, err := vectorstore.New(backend.NewMemory(), vectorstore.Config{
		Provider: "local", Dim: 16,
	}, nil)
	require.NoError(t, err)
	return NewEngine(shards, vectors, embed.NewLocal(16), oracle, cfg), shards
}

// starDelta links the seed to the same fixed neighbors on every call.
func starDelta(seed string) AdjacencyDelta {
	d := AdjacencyDelta{Nodes: []DeltaNode{{Token: seed, Weight: 1}}}
	for _, n := range []string{"river", "bank", "stream"} {
		d.Nodes = append(d.Nodes, DeltaNode{Token: n, Weight: 0.5})
		d.Edges = append(d.Edges, DeltaEdge{Src: seed, Dst: n, Weight: 0.5, Type: shardstore.RelAdjacency})
	}
	return d
}

func TestRunStabilizesOnIdenticalOracle(t *testing.T) {
	oracle := &scriptedOracle{delta: starDelta("water")}
	eng, _ := newTestEngine(t, oracle, Config{})

	res, err := eng.Run(context.Background(), "water")
	require.NoError(t, err)

	// An oracle that keeps returning the same adjacency cannot shift the
	// hub, so the stability streak ends the run within four iterations.
	assert.Equal(t, ReasonStable, res.Reason)
	assert.LessOrEqual(t, res.Iterations, 4)
	assert.GreaterOrEqual(t, res.Iterations, 2)
	assert.NotEmpty(t, res.RunID)
	assert.NotZero(t, res.Hub)
}

func TestRunPersistsDeltas(t *testing.T) {
	oracle := &scriptedOracle{delta: starDelta("water")}
	eng, shards := newTestEngine(t, oracle, Config{})

	ctx := context.Background()
	_, err := eng.Run(ctx, "water")
	require.NoError(t, err)

	id, err := shards.EnsureToken(ctx, "water")
	require.NoError(t, err)
	rows, err := shards.GetAdj(ctx, shardstore.Query{TokenID: id})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Equal(t, uint32(0.5*WeightScale), r.Weight)
		assert.NotZero(t, r.LastSeen)
	}
}

func TestRunSkipPersist(t *testing.T) {
	oracle := &scriptedOracle{delta: starDelta("water")}
	eng, shards := newTestEngine(t, oracle, Config{SkipPersist: true})

	ctx := context.Background()
	_, err := eng.Run(ctx, "water")
	require.NoError(t, err)

	id, err := shards.EnsureToken(ctx, "water")
	require.NoError(t, err)
	rows, err := shards.GetAdj(ctx, shardstore.Query{TokenID: id})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRunSyntheticFallback(t *testing.T) {
	oracle := &scriptedOracle{err: errors.New("oracle down")}
	eng, _ := newTestEngine(t, oracle, Config{AllowSynthetic: true})

	res, err := eng.Run(context.Background(), "glass")
	require.NoError(t, err)

	// The fallback adds the seed plus four derived variants.
	labels := make(map[string]bool)
	for _, id := range res.Graph.Order() {
		n, _ := res.Graph.Node(id)
		labels[n.Label] = true
	}
	for _, want := range []string{"glass", "glass:core", "glass:context", "glass:analogy", "glass:role"} {
		assert.True(t, labels[want], "missing node %q", want)
	}
}

func TestRunOracleFailureWithoutFallback(t *testing.T) {
	oracle := &scriptedOracle{err: errors.New("oracle down")}
	eng, _ := newTestEngine(t, oracle, Config{})

	res, err := eng.Run(context.Background(), "glass")
	require.NoError(t, err)

	// Failed expansions are logged and skipped; only the seed survives.
	assert.Equal(t, 1, res.Graph.NodeCount())
	assert.Equal(t, ReasonStable, res.Reason)
}

func TestRunAbortReturnsPartialGraph(t *testing.T) {
	oracle := &scriptedOracle{delta: starDelta("water")}
	var polls atomic.Int64
	eng, _ := newTestEngine(t, oracle, Config{
		Abort: func() bool { return polls.Add(1) > 4 },
	})

	res, err := eng.Run(context.Background(), "water")
	require.NoError(t, err)
	assert.Equal(t, ReasonAborted, res.Reason)
	assert.NotNil(t, res.Graph)
}

func TestRunContextCancelAborts(t *testing.T) {
	oracle := &scriptedOracle{delta: starDelta("water")}
	eng, _ := newTestEngine(t, oracle, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := eng.Run(ctx, "water")
	require.NoError(t, err)
	assert.Equal(t, ReasonAborted, res.Reason)
	assert.Equal(t, 0, res.Iterations)
	assert.Equal(t, 1, res.Graph.NodeCount())
}

func TestRunRateLimitThrottlesOracle(t *testing.T) {
	interval := 20 * time.Millisecond
	oracle := &scriptedOracle{delta: starDelta("water")}
	eng, _ := newTestEngine(t, oracle, Config{
		RateLimit: rate.NewLimiter(rate.Every(interval), 1),
	})

	start := time.Now()
	res, err := eng.Run(context.Background(), "water")
	require.NoError(t, err)
	assert.Equal(t, ReasonStable, res.Reason)

	// Burst 1 admits the first oracle call immediately and each further
	// call only after another interval, regardless of worker parallelism.
	calls := oracle.calls.Load()
	require.Greater(t, calls, int64(1))
	assert.GreaterOrEqual(t, time.Since(start), time.Duration(calls-1)*interval)
}

func TestRunNodeBudget(t *testing.T) {
	// A wide delta so the first expansion alone exceeds the budget.
	d := AdjacencyDelta{Nodes: []DeltaNode{{Token: "seed", Weight: 1}}}
	for _, n := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		d.Nodes = append(d.Nodes, DeltaNode{Token: n, Weight: 0.5})
		d.Edges = append(d.Edges, DeltaEdge{Src: "seed", Dst: n, Weight: 0.5, Type: shardstore.RelAdjacency})
	}
	oracle := &scriptedOracle{delta: d}
	eng, _ := newTestEngine(t, oracle, Config{MaxNodes: 4, MaxIterations: 3})

	res, err := eng.Run(context.Background(), "seed")
	require.NoError(t, err)
	// The budget check gates further application, not the delta that
	// crossed the line, so the graph may slightly overshoot MaxNodes but
	// never grows past one extra delta.
	assert.LessOrEqual(t, res.Graph.NodeCount(), 4+len(d.Nodes))
}

func TestRunEmitsClusters(t *testing.T) {
	oracle := &scriptedOracle{delta: starDelta("water")}
	sink := &recordingSink{}
	eng, _ := newTestEngine(t, oracle, Config{Sink: sink})

	res, err := eng.Run(context.Background(), "water")
	require.NoError(t, err)
	assert.Equal(t, len(res.Clusters), len(sink.emitted))
	for i, c := range res.Clusters {
		assert.Len(t, sink.emitted[i].labels, len(c.Members))
	}
}

type recordingSink struct {
	emitted []struct {
		cluster Cluster
		labels  []string
	}
}

func (r *recordingSink) EmitThought(_ context.Context, c Cluster, labels []string) {
	r.emitted = append(r.emitted, struct {
		cluster Cluster
		labels  []string
	}{c, labels})
}

func TestRunStopWordNeverHub(t *testing.T) {
	d := AdjacencyDelta{Nodes: []DeltaNode{{Token: "the", Weight: 1}, {Token: "cat", Weight: 0.9}}}
	d.Edges = []DeltaEdge{{Src: "the", Dst: "cat", Weight: 1, Type: shardstore.RelAdjacency}}
	oracle := &scriptedOracle{delta: d}
	eng, shards := newTestEngine(t, oracle, Config{StopWords: []string{"the"}})

	ctx := context.Background()
	res, err := eng.Run(ctx, "the")
	require.NoError(t, err)

	catID, err := shards.EnsureToken(ctx, "cat")
	require.NoError(t, err)
	assert.Equal(t, catID, res.Hub)
}

func TestSyntheticDelta(t *testing.T) {
	d := SyntheticDelta("fire")
	require.Len(t, d.Nodes, 5)
	require.Len(t, d.Edges, 4)

	// Variants carry strictly descending weight.
	for i := 1; i < len(d.Edges); i++ {
		assert.Greater(t, d.Edges[i-1].Weight, d.Edges[i].Weight)
	}
	assert.Equal(t, "fire:core", d.Edges[0].Dst)
	for _, e := range d.Edges {
		assert.Equal(t, "fire", e.Src)
		assert.Equal(t, shardstore.RelSeedExpansion, e.Type)
	}
}
