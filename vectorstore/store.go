// Package vectorstore persists per-token embeddings, raw or 8-bit affine
// quantized, and answers brute-force cosine similarity queries over all
// vectors sharing a provider and dimension.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hlsf/lattice/backend"
	"github.com/hlsf/lattice/core"
)

var (
	// ErrNotInitialized is returned by operations on a store without a
	// valid configuration.
	ErrNotInitialized = errors.New("vectorstore: not initialized")

	// ErrNotFound is returned when a token has no stored vector.
	ErrNotFound = errors.New("vectorstore: vector not found")
)

// ErrDimensionMismatch indicates a vector length that does not match the
// configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vectorstore: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Config describes the embedding space a store operates in.
type Config struct {
	// Provider names the embedding provider the vectors came from.
	Provider string

	// Dim is the vector dimension.
	Dim int

	// Quantize8 stores vectors in 8-bit affine form.
	Quantize8 bool

	// Normalize L2-normalizes vectors before persisting.
	Normalize bool

	// BatchSize groups deferred ingestion flushes; defaults to 16.
	BatchSize int
}

func (c Config) validate() error {
	if c.Provider == "" || c.Dim <= 0 {
		return ErrNotInitialized
	}
	return nil
}

// Match is one similarity result.
type Match struct {
	ID    core.TokenID
	Score float32
}

// Searcher answers nearest-neighbor queries. The flat Store satisfies it
// with a brute-force scan; an approximate index can replace it without
// changing callers.
type Searcher interface {
	Similar(ctx context.Context, id core.TokenID, topK int) ([]Match, error)
}

// record is the persisted vector representation.
type record struct {
	Provider string    `msgpack:"provider"`
	Dim      int       `msgpack:"dim"`
	Raw      []float32 `msgpack:"raw,omitempty"`
	Quant    *Quantized `msgpack:"quant,omitempty"`
}

func (r *record) vector() []float32 {
	if r.Quant != nil {
		return r.Quant.Dequantize()
	}
	return r.Raw
}

type cacheKey struct {
	provider string
	dim      int
	id       core.TokenID
}

// Store persists embeddings on the key-value backend with an in-process
// read cache. Concurrent readers may populate the cache redundantly; that
// is idempotent and harmless.
type Store struct {
	cfg    Config
	be     backend.Backend
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[cacheKey][]float32
}

var _ Searcher = (*Store)(nil)

// New creates a Store for the configured embedding space.
func New(be backend.Backend, cfg Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		cfg:    cfg,
		be:     be,
		logger: logger,
		cache:  make(map[cacheKey][]float32),
	}, nil
}

// Config returns the store configuration.
func (s *Store) Config() Config { return s.cfg }

// Put persists a vector for a token, normalizing and quantizing per the
// store configuration, and refreshes the read cache.
func (s *Store) Put(ctx context.Context, id core.TokenID, vector []float32) error {
	if s.cache == nil {
		return ErrNotInitialized
	}
	if len(vector) != s.cfg.Dim {
		return &ErrDimensionMismatch{Expected: s.cfg.Dim, Actual: len(vector)}
	}

	v := make([]float32, len(vector))
	copy(v, vector)
	if s.cfg.Normalize {
		// A zero vector passes through unchanged.
		NormalizeL2InPlace(v)
	}

	rec := record{Provider: s.cfg.Provider, Dim: s.cfg.Dim}
	if s.cfg.Quantize8 {
		q := Quantize(v)
		rec.Quant = &q
	} else {
		rec.Raw = v
	}

	data, err := msgpack.Marshal(&rec)
	if err != nil {
		return err
	}
	if err := s.be.Put(ctx, s.key(id), data); err != nil {
		return err
	}

	s.mu.Lock()
	s.cache[s.cacheKey(id)] = v
	s.mu.Unlock()
	return nil
}

// Get returns the stored vector for a token, cache-first, dequantizing on a
// miss. Returns ErrNotFound when no vector is stored. The returned slice is
// the caller's to mutate; the cache keeps its own copy.
func (s *Store) Get(ctx context.Context, id core.TokenID) ([]float32, error) {
	if s.cache == nil {
		return nil, ErrNotInitialized
	}

	s.mu.RLock()
	v, ok := s.cache[s.cacheKey(id)]
	s.mu.RUnlock()
	if ok {
		return cloneVector(v), nil
	}

	data, err := s.be.Get(ctx, s.key(id))
	if errors.Is(err, backend.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	v = rec.vector()

	s.mu.Lock()
	s.cache[s.cacheKey(id)] = v
	s.mu.Unlock()
	return cloneVector(v), nil
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

// Has reports whether a vector is stored for the token.
func (s *Store) Has(ctx context.Context, id core.TokenID) bool {
	_, err := s.Get(ctx, id)
	return err == nil
}

// Similar scans all vectors sharing the store's provider and dimension and
// returns the topK cosine-closest tokens to the query token's vector.
//
// The score is dot(origin, candidate)/‖candidate‖, cosine against the
// already-normalized origin. The query id and length-mismatched candidates
// are excluded; duplicates are collapsed by id.
func (s *Store) Similar(ctx context.Context, id core.TokenID, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	origin, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	seen := roaring.New()
	seen.Add(uint32(id))

	var matches []Match
	prefix := fmt.Sprintf("vec/%s/%d/", s.cfg.Provider, s.cfg.Dim)
	err = s.be.Scan(ctx, prefix, func(key string, value []byte) error {
		var candID core.TokenID
		if _, err := fmt.Sscanf(key[len(prefix):], "%010d", &candID); err != nil {
			return nil
		}
		if seen.Contains(uint32(candID)) {
			return nil
		}
		seen.Add(uint32(candID))

		var rec record
		if err := msgpack.Unmarshal(value, &rec); err != nil {
			s.logger.Warn("skipping undecodable vector record", "key", key, "error", err)
			return nil
		}
		cand := rec.vector()
		if len(cand) != len(origin) {
			return nil // dimension mismatch, skip candidate
		}
		norm := Norm(cand)
		if norm == 0 {
			return nil
		}
		matches = append(matches, Match{ID: candID, Score: Dot(origin, cand) / norm})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *Store) key(id core.TokenID) string {
	return fmt.Sprintf("vec/%s/%d/%010d", s.cfg.Provider, s.cfg.Dim, id)
}

func (s *Store) cacheKey(id core.TokenID) cacheKey {
	return cacheKey{provider: s.cfg.Provider, dim: s.cfg.Dim, id: id}
}
