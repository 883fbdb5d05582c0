package lattice

import (
	"context"
	"iter"
	"sync/atomic"
	"time"

	"github.com/hlsf/lattice/backend"
	"github.com/hlsf/lattice/core"
	"github.com/hlsf/lattice/edgeblock"
	"github.com/hlsf/lattice/embed"
	"github.com/hlsf/lattice/growth"
	"github.com/hlsf/lattice/mirror"
	"github.com/hlsf/lattice/rank"
	"github.com/hlsf/lattice/shardstore"
	"github.com/hlsf/lattice/vectorstore"
)

// DB is an embedded lattice database: shard store, vector store, hybrid
// ranker and breathing engine over one backend.
type DB struct {
	be       backend.Backend
	shards   *shardstore.Store
	vectors  *vectorstore.Store
	ranker   *rank.Ranker
	provider embed.Provider
	ingestor *vectorstore.Ingestor
	exporter *mirror.Exporter
	opts     options
	closed   atomic.Bool
}

// Open opens (or creates) a database at path. An empty path or an
// unavailable badger directory degrades to the in-memory backend; see
// backend.Open.
func Open(path string, optFns ...Option) (*DB, error) {
	opts := applyOptions(optFns)
	slogger := opts.logger.Logger

	be := backend.Open(path, slogger)

	provider := opts.provider
	if provider == nil {
		provider = embed.NewLocal(opts.dim)
	}

	db := &DB{be: be, provider: provider, opts: opts}

	db.shards = shardstore.New(be, func(o *shardstore.Options) {
		o.Codec = opts.codec
		o.WithFlags = opts.withFlags
		o.Observers = opts.observers
		o.Logger = slogger
	})

	// The exporter reads back through the store it observes, so it is
	// registered after construction.
	if opts.mirrorRoot != "" {
		db.exporter = mirror.NewExporter(opts.mirrorRoot, db.shards, func(o *mirror.Options) {
			o.FlushAfter = opts.mirrorAfter
			o.Logger = slogger
		})
		db.shards.AddObserver(db.exporter)
	}

	vectors, err := vectorstore.New(be, vectorstore.Config{
		Provider:  opts.providerName,
		Dim:       provider.Dim(),
		Quantize8: opts.quantize,
		Normalize: opts.normalize,
	}, slogger)
	if err != nil {
		_ = be.Close()
		return nil, translateError(err)
	}
	db.vectors = vectors
	db.ranker = rank.New(db.shards, vectors)

	// Every newly interned token is embedded write-behind, so EnsureToken
	// and BulkImport never block on provider latency.
	db.ingestor = vectorstore.NewIngestor(vectors, provider, opts.embedSched, slogger)
	db.shards.AddObserver(embedObserver{db.ingestor})
	return db, nil
}

// embedObserver feeds newly interned tokens into the deferred embedding
// queue.
type embedObserver struct{ in *vectorstore.Ingestor }

func (o embedObserver) TokenCreated(id core.TokenID, text string) { o.in.Enqueue(id, text) }

func (o embedObserver) AdjacencyChanged(core.TokenID) {}

// EnsureToken interns a token and returns its dense id. Repeated calls
// with the same normalized text return the same id.
func (db *DB) EnsureToken(ctx context.Context, text string) (core.TokenID, error) {
	if db.closed.Load() {
		return 0, ErrClosed
	}
	id, err := db.shards.EnsureToken(ctx, text)
	return id, translateError(err)
}

// Token returns the text a token id was interned from.
func (db *DB) Token(ctx context.Context, id core.TokenID) (string, error) {
	if db.closed.Load() {
		return "", ErrClosed
	}
	text, err := db.shards.GetToken(ctx, id)
	return text, translateError(err)
}

// UpsertAdj merges adjacency rows into a token's edge set. Later writes
// win per (neighbor, type) pair.
func (db *DB) UpsertAdj(ctx context.Context, id core.TokenID, rows []edgeblock.Row) error {
	if db.closed.Load() {
		return ErrClosed
	}
	start := time.Now()
	err := translateError(db.shards.UpsertAdj(ctx, id, rows, true))
	db.opts.metrics.RecordUpsert(time.Since(start), err)
	db.opts.logger.LogUpsert(ctx, uint32(id), len(rows), err)
	return err
}

// Neighbors returns a token's adjacency rows, heaviest first. Set
// q.Reverse for the inbound scan.
func (db *DB) Neighbors(ctx context.Context, q shardstore.Query) ([]edgeblock.Row, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := db.shards.GetAdj(ctx, q)
	return rows, translateError(err)
}

// Embed computes and stores the embedding for a token's text.
func (db *DB) Embed(ctx context.Context, id core.TokenID) error {
	if db.closed.Load() {
		return ErrClosed
	}
	text, err := db.shards.GetToken(ctx, id)
	if err != nil {
		return translateError(err)
	}
	v, err := db.provider.Embed(ctx, text)
	if err != nil {
		return err
	}
	return translateError(db.vectors.Put(ctx, id, v))
}

// Suggest blends edge weight and embedding similarity into ranked
// neighbor candidates for a token.
func (db *DB) Suggest(ctx context.Context, id core.TokenID, topK int) ([]rank.Candidate, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	start := time.Now()
	out, err := db.ranker.Hybrid(ctx, id, topK, db.opts.ranking)
	err = translateError(err)
	db.opts.metrics.RecordSuggest(topK, time.Since(start), err)
	db.opts.logger.LogSuggest(ctx, uint32(id), topK, len(out), err)
	return out, err
}

// Breathe runs one bounded graph-growth loop around seed, expanding
// through the given oracle. On abort the partial result is returned, not
// an error.
func (db *DB) Breathe(ctx context.Context, seed string, oracle growth.Oracle) (*growth.Result, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	cfg := db.opts.growth
	if cfg.Logger == nil {
		cfg.Logger = db.opts.logger.Logger
	}
	eng := growth.NewEngine(db.shards, db.vectors, db.provider, oracle, cfg)

	start := time.Now()
	res, err := eng.Run(ctx, seed)
	err = translateError(err)
	if err != nil {
		db.opts.metrics.RecordBreathe(0, time.Since(start), err)
		db.opts.logger.LogBreathe(ctx, "", 0, "", err)
		return nil, err
	}
	db.opts.metrics.RecordBreathe(res.Iterations, time.Since(start), nil)
	db.opts.logger.LogBreathe(ctx, res.RunID, res.Iterations, string(res.Reason), nil)
	return res, nil
}

// BulkImport streams adjacency items into the store, skipping malformed
// entries. It returns the number of imported items.
func (db *DB) BulkImport(ctx context.Context, items iter.Seq[shardstore.ImportItem]) (int, error) {
	if db.closed.Load() {
		return 0, ErrClosed
	}
	n, err := db.shards.BulkImport(ctx, items)
	err = translateError(err)
	db.opts.logger.LogImport(ctx, n, err)
	return n, err
}

// Stats returns store-level counters.
func (db *DB) Stats(ctx context.Context) (shardstore.Stats, error) {
	if db.closed.Load() {
		return shardstore.Stats{}, ErrClosed
	}
	st, err := db.shards.Stats(ctx)
	return st, translateError(err)
}

// Compact re-encodes every block with the current codec.
func (db *DB) Compact(ctx context.Context) error {
	if db.closed.Load() {
		return ErrClosed
	}
	return translateError(db.shards.Compact(ctx))
}

// GC removes empty and unreadable blocks, returning the number deleted.
func (db *DB) GC(ctx context.Context) (int, error) {
	if db.closed.Load() {
		return 0, ErrClosed
	}
	n, err := db.shards.GC(ctx)
	return n, translateError(err)
}

// FlushEmbeddings embeds and persists all queued tokens now instead of
// waiting for the idle scheduler.
func (db *DB) FlushEmbeddings(ctx context.Context) error {
	if db.closed.Load() {
		return ErrClosed
	}
	return translateError(db.ingestor.FlushNow(ctx))
}

// ExportMirror flushes pending export-mirror updates. It is a no-op when
// the mirror is not configured.
func (db *DB) ExportMirror(ctx context.Context) error {
	if db.closed.Load() {
		return ErrClosed
	}
	if db.exporter == nil {
		return nil
	}
	return db.exporter.Flush(ctx)
}

// ExportMirrorAll rewrites the full mirror tree from store state, not just
// pending updates. It is a no-op when the mirror is not configured.
func (db *DB) ExportMirrorAll(ctx context.Context) error {
	if db.closed.Load() {
		return ErrClosed
	}
	if db.exporter == nil {
		return nil
	}
	return db.exporter.ExportAll(ctx)
}

// Shards exposes the underlying shard store for advanced callers.
func (db *DB) Shards() *shardstore.Store { return db.shards }

// Vectors exposes the underlying vector store for advanced callers.
func (db *DB) Vectors() *vectorstore.Store { return db.vectors }
