package growth

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hlsf/lattice/core"
	"github.com/hlsf/lattice/edgeblock"
	"github.com/hlsf/lattice/embed"
	"github.com/hlsf/lattice/shardstore"
	"github.com/hlsf/lattice/vectorstore"
)

// WeightScale converts float edge weights to the fixed-point scale the
// shard store persists.
const WeightScale = 1000

// Oracle proposes new adjacency for a token. Calls may fail; a permitted
// synthetic fallback keeps the run from stalling on a transient outage.
type Oracle interface {
	SeedAdjacency(ctx context.Context, token string) (AdjacencyDelta, error)
	ExpandAdjacency(ctx context.Context, token string) (AdjacencyDelta, error)
}

// Reason records why a run ended.
type Reason string

const (
	ReasonBudget  Reason = "budget"
	ReasonStable  Reason = "stable"
	ReasonAborted Reason = "aborted"
)

// Config tunes one engine instance.
type Config struct {
	// Workers bounds concurrent oracle/embedding I/O; defaults to 4.
	Workers int

	// MaxIterations bounds breathing iterations; defaults to 8.
	MaxIterations int

	// MaxNodes and MaxEdges form the combined growth budget;
	// default 64 and 256.
	MaxNodes int
	MaxEdges int

	// FanOut caps retained direct neighbors per collapse center;
	// defaults to DefaultFanOut.
	FanOut int

	// Radius is the collapse BFS hop limit; defaults to 2.
	Radius int

	// AffinityThreshold gates clustering edges; defaults to 0.5.
	AffinityThreshold float64

	// StopWords are never selected as hub.
	StopWords []string

	// AllowSynthetic substitutes a deterministic fallback delta when the
	// oracle fails.
	AllowSynthetic bool

	// SkipPersist keeps oracle deltas out of the shard store.
	SkipPersist bool

	// Salience configures the baseline blend; zero value means defaults.
	Salience SalienceWeights

	// Context enables context-aware salience when non-nil.
	Context        ContextProvider
	ContextWeights ContextWeights

	// RateLimit throttles oracle calls when non-nil.
	RateLimit *rate.Limiter

	// Abort is polled between iterations and before each frontier item.
	Abort func() bool

	// Sink receives emitted clusters at finalize.
	Sink ThoughtSink

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 8
	}
	if c.MaxNodes <= 0 {
		c.MaxNodes = 64
	}
	if c.MaxEdges <= 0 {
		c.MaxEdges = 256
	}
	if c.FanOut <= 0 {
		c.FanOut = DefaultFanOut
	}
	if c.Radius <= 0 {
		c.Radius = 2
	}
	if c.AffinityThreshold == 0 {
		c.AffinityThreshold = 0.5
	}
	if c.Salience == (SalienceWeights{}) {
		c.Salience = DefaultSalienceWeights
	}
	if c.ContextWeights == (ContextWeights{}) {
		c.ContextWeights = DefaultContextWeights
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Result is the outcome of one breathing run.
type Result struct {
	RunID      string
	Graph      *Graph
	Hub        core.TokenID
	Iterations int
	Reason     Reason
	Clusters   []Cluster
}

// Engine orchestrates bounded frontier expansion over the working graph.
//
// Workers only parallelize oracle calls and embedding I/O; all graph and
// store mutation happens on the run goroutine, one completed result at a
// time. An engine runs one breathing loop at a time per caller.
type Engine struct {
	shards    *shardstore.Store
	vectors   *vectorstore.Store
	provider  embed.Provider
	oracle    Oracle
	cfg       Config
	stopWords map[string]struct{}
}

// NewEngine creates an Engine over the given stores and collaborators.
func NewEngine(shards *shardstore.Store, vectors *vectorstore.Store, provider embed.Provider, oracle Oracle, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	stop := make(map[string]struct{}, len(cfg.StopWords))
	for _, w := range cfg.StopWords {
		stop[shardstore.NormalizeToken(w)] = struct{}{}
	}
	return &Engine{
		shards:    shards,
		vectors:   vectors,
		provider:  provider,
		oracle:    oracle,
		cfg:       cfg,
		stopWords: stop,
	}
}

// frontierItem is one token queued for expansion.
type frontierItem struct {
	label string
	layer Layer
	seed  bool
}

// expansion is a completed worker result, applied by the single writer.
type expansion struct {
	item   frontierItem
	delta  AdjacencyDelta
	embeds map[string][]float32
	err    error
}

// Run breathes the graph around the seed token until the iteration budget
// is exhausted, an abort is observed, or the hub stabilizes. On abort the
// partial graph is returned, not an error.
func (e *Engine) Run(ctx context.Context, seed string) (*Result, error) {
	seedLabel := shardstore.NormalizeToken(seed)
	seedID, err := e.shards.EnsureToken(ctx, seedLabel)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := e.cfg.Logger.With("run_id", runID, "seed", seedLabel)
	logger.Info("breathing run started")

	g := NewGraph()
	g.Touch(seedID, seedLabel, 1, LayerVisible)
	e.ensureEmbedding(ctx, seedID, seedLabel)

	hub := seedID
	streak := 0
	reason := ReasonBudget
	expanded := make(map[string]struct{})
	frontier := []frontierItem{{label: seedLabel, layer: LayerVisible, seed: true}}

	iterations := 0
	for iter := 0; iter < e.cfg.MaxIterations; iter++ {
		if e.aborted(ctx) {
			reason = ReasonAborted
			break
		}
		iterations = iter + 1

		// EXPAND_RING: breadth frontier, visible layer.
		e.expandAll(ctx, g, frontier, expanded)

		// EXPAND_CHILDREN: one salience-triggered deep dive, hidden layer.
		if deep, ok := e.deepDiveTarget(g, hub, expanded); ok {
			e.expandAll(ctx, g, []frontierItem{{label: deep, layer: LayerHidden}}, expanded)
		}

		// COLLAPSE around the current hub.
		g = Collapse(g, []core.TokenID{hub}, e.cfg.Radius, e.cfg.FanOut)

		// HUB_SELECT and STABILITY_CHECK.
		scores := ContextSalience(g, e.cfg.Salience, e.cfg.Context, e.cfg.ContextWeights)
		next := SelectHub(g, scores, e.stopWords, hub)
		if next == hub {
			streak++
		} else {
			hub = next
			streak = 1
		}
		logger.Debug("iteration complete",
			"iteration", iter,
			"nodes", g.NodeCount(),
			"edges", g.EdgeCount(),
			"hub", hub,
			"streak", streak,
		)
		if streak >= 2 && iterations >= 2 {
			reason = ReasonStable
			break
		}

		frontier = e.nextFrontier(g, scores, expanded)
		if len(frontier) == 0 {
			reason = ReasonStable
			break
		}
	}

	// FINALIZE: cluster and hand off to the detector collaborator.
	clusters := Clusters(ctx, g, e.cfg.AffinityThreshold, e.vectors)
	if e.cfg.Sink != nil {
		for _, c := range clusters {
			labels := make([]string, 0, len(c.Members))
			for _, id := range c.Members {
				if n, ok := g.Node(id); ok {
					labels = append(labels, n.Label)
				}
			}
			e.cfg.Sink.EmitThought(ctx, c, labels)
		}
	}

	logger.Info("breathing run finished",
		"iterations", iterations,
		"reason", string(reason),
		"nodes", g.NodeCount(),
		"edges", g.EdgeCount(),
	)
	return &Result{
		RunID:      runID,
		Graph:      g,
		Hub:        hub,
		Iterations: iterations,
		Reason:     reason,
		Clusters:   clusters,
	}, nil
}

// expandAll fans frontier items out to the worker bound and applies
// completed expansions one at a time in completion order.
func (e *Engine) expandAll(ctx context.Context, g *Graph, items []frontierItem, expanded map[string]struct{}) {
	pending := items[:0:0]
	for _, item := range items {
		if _, done := expanded[item.label]; done {
			continue
		}
		expanded[item.label] = struct{}{}
		pending = append(pending, item)
	}
	if len(pending) == 0 || e.budgetReached(g) {
		return
	}

	var budgetFull atomic.Bool
	results := make(chan expansion, len(pending))

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(e.cfg.Workers)
	for _, item := range pending {
		grp.Go(func() error {
			if e.aborted(gctx) || budgetFull.Load() {
				return nil
			}
			results <- e.expandOne(gctx, item)
			return nil
		})
	}
	go func() {
		grp.Wait() //nolint:errcheck // workers never return errors
		close(results)
	}()

	for res := range results {
		if e.aborted(ctx) {
			continue // discard results observed after abort
		}
		if res.err != nil {
			e.cfg.Logger.Warn("expansion step failed", "token", res.item.label, "error", res.err)
			continue
		}
		if e.budgetReached(g) {
			budgetFull.Store(true)
			continue
		}
		e.apply(ctx, g, res)
	}
}

// expandOne performs the oracle call and embedding I/O for one frontier
// item. It never mutates the graph.
func (e *Engine) expandOne(ctx context.Context, item frontierItem) expansion {
	if e.cfg.RateLimit != nil {
		if err := e.cfg.RateLimit.Wait(ctx); err != nil {
			return expansion{item: item, err: err}
		}
	}

	var delta AdjacencyDelta
	var err error
	if item.seed {
		delta, err = e.oracle.SeedAdjacency(ctx, item.label)
	} else {
		delta, err = e.oracle.ExpandAdjacency(ctx, item.label)
	}
	if err != nil {
		if !e.cfg.AllowSynthetic {
			return expansion{item: item, err: fmt.Errorf("oracle: %w", err)}
		}
		delta = SyntheticDelta(item.label)
	}

	embeds := make(map[string][]float32, len(delta.Nodes))
	if e.provider != nil {
		for _, n := range delta.Nodes {
			label := shardstore.NormalizeToken(n.Token)
			if label == "" {
				continue
			}
			if v, err := e.provider.Embed(ctx, label); err == nil {
				embeds[label] = v
			}
		}
	}
	return expansion{item: item, delta: delta, embeds: embeds}
}

// apply merges one completed expansion into the working graph and the
// shard store. Single writer: only the run goroutine calls this.
func (e *Engine) apply(ctx context.Context, g *Graph, res expansion) {
	ids := make(map[string]core.TokenID, len(res.delta.Nodes))
	for _, n := range res.delta.Nodes {
		label := shardstore.NormalizeToken(n.Token)
		if label == "" {
			continue
		}
		id, err := e.shards.EnsureToken(ctx, label)
		if err != nil {
			continue
		}
		ids[label] = id
		g.Touch(id, label, n.Weight, res.item.layer)
		if v, ok := res.embeds[label]; ok && !e.vectors.Has(ctx, id) {
			if err := e.vectors.Put(ctx, id, v); err != nil {
				e.cfg.Logger.Warn("embedding persist failed", "token", label, "error", err)
			}
		}
	}

	now := uint32(time.Now().Unix())
	persist := make(map[core.TokenID][]edgeblock.Row)
	for _, de := range res.delta.Edges {
		src, okS := ids[shardstore.NormalizeToken(de.Src)]
		dst, okD := ids[shardstore.NormalizeToken(de.Dst)]
		if !okS || !okD {
			continue
		}
		g.AddEdge(src, dst, de.Weight, res.item.layer)
		if !e.cfg.SkipPersist {
			persist[src] = append(persist[src], edgeblock.Row{
				NeighborID: dst,
				Type:       de.Type,
				Weight:     uint32(de.Weight * WeightScale),
				LastSeen:   now,
			})
		}
	}
	for src, rows := range persist {
		if err := e.shards.UpsertAdj(ctx, src, rows, true); err != nil {
			e.cfg.Logger.Warn("delta persist failed", "token_id", src, "error", err)
		}
	}
}

// deepDiveTarget picks the highest-salience unexpanded non-hub node.
func (e *Engine) deepDiveTarget(g *Graph, hub core.TokenID, expanded map[string]struct{}) (string, bool) {
	scores := Salience(g, e.cfg.Salience)
	best := ""
	bestScore := 0.0
	for _, id := range g.Order() {
		if id == hub {
			continue
		}
		n, _ := g.Node(id)
		if _, done := expanded[n.Label]; done {
			continue
		}
		if _, stopped := e.stopWords[n.Label]; stopped {
			continue
		}
		if s := scores[id]; best == "" || s > bestScore {
			best = n.Label
			bestScore = s
		}
	}
	return best, best != ""
}

// nextFrontier queues the top-salience unexpanded nodes for the next ring.
func (e *Engine) nextFrontier(g *Graph, scores map[core.TokenID]float64, expanded map[string]struct{}) []frontierItem {
	type scored struct {
		label string
		score float64
	}
	var candidates []scored
	for _, id := range g.Order() {
		n, _ := g.Node(id)
		if _, done := expanded[n.Label]; done {
			continue
		}
		candidates = append(candidates, scored{label: n.Label, score: scores[id]})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	limit := min(len(candidates), e.cfg.FanOut)
	out := make([]frontierItem, 0, limit)
	for _, c := range candidates[:limit] {
		out = append(out, frontierItem{label: c.label, layer: LayerVisible})
	}
	return out
}

func (e *Engine) budgetReached(g *Graph) bool {
	return g.NodeCount() >= e.cfg.MaxNodes || g.EdgeCount() >= e.cfg.MaxEdges
}

func (e *Engine) aborted(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return e.cfg.Abort != nil && e.cfg.Abort()
}

func (e *Engine) ensureEmbedding(ctx context.Context, id core.TokenID, label string) {
	if e.provider == nil || e.vectors.Has(ctx, id) {
		return
	}
	v, err := e.provider.Embed(ctx, label)
	if err != nil {
		e.cfg.Logger.Warn("seed embedding failed", "token", label, "error", err)
		return
	}
	if err := e.vectors.Put(ctx, id, v); err != nil {
		e.cfg.Logger.Warn("seed embedding persist failed", "token", label, "error", err)
	}
}

// SyntheticDelta is the deterministic fallback applied when the oracle is
// unavailable: four derived variants with descending weight, so a run
// never stalls on a transient outage.
func SyntheticDelta(token string) AdjacencyDelta {
	variants := []struct {
		kind   string
		weight float64
	}{
		{"core", 1.0},
		{"context", 0.75},
		{"analogy", 0.5},
		{"role", 0.25},
	}

	d := AdjacencyDelta{Nodes: []DeltaNode{{Token: token, Weight: 1}}}
	for _, v := range variants {
		label := fmt.Sprintf("%s:%s", token, v.kind)
		d.Nodes = append(d.Nodes, DeltaNode{Token: label, Weight: v.weight})
		d.Edges = append(d.Edges, DeltaEdge{
			Src:    token,
			Dst:    label,
			Weight: v.weight,
			Type:   shardstore.RelSeedExpansion,
		})
	}
	return d
}
