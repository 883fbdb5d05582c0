// Package shardstore persists the token table and the sharded adjacency
// lists of the knowledge graph on top of an abstract key-value backend.
package shardstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hlsf/lattice/backend"
	"github.com/hlsf/lattice/core"
	"github.com/hlsf/lattice/edgeblock"
)

var (
	// ErrEmptyToken is returned when an empty token string is ensured.
	ErrEmptyToken = errors.New("shardstore: empty token")

	// ErrTokenNotFound is returned when a token id has no assigned string.
	ErrTokenNotFound = errors.New("shardstore: token not found")
)

// Key prefixes. Block keys are zero-padded so parts for a token scan in
// contiguous, ascending order.
const (
	keyToken   = "tok/"  // tok/<text>            -> u32 id
	keyTokenID = "tid/"  // tid/<id-10>           -> text
	keyBlock   = "blk/"  // blk/<id-10>/<part-5>  -> encoded block
	keyNextID  = "meta/next-token-id"
)

var wsRun = regexp.MustCompile(`\s+`)

// NormalizeToken trims the token and collapses inner whitespace runs to a
// single space.
func NormalizeToken(token string) string {
	return wsRun.ReplaceAllString(strings.TrimSpace(token), " ")
}

// Observer receives store change notifications. Observers are injected
// explicitly; the store never registers ambient global callbacks.
type Observer interface {
	// TokenCreated fires after a new token id has been assigned.
	TokenCreated(id core.TokenID, text string)

	// AdjacencyChanged fires after a token's edge set has been rewritten.
	AdjacencyChanged(id core.TokenID)
}

// Query selects adjacency rows for a token.
type Query struct {
	TokenID core.TokenID

	// Types filters by relation kind; nil matches all kinds, while a
	// non-nil empty slice matches none.
	Types []core.RelationType

	// MinWeight drops rows below the threshold.
	MinWeight uint32

	// Limit truncates the result; 0 means unlimited.
	Limit int

	// Reverse answers "who points at TokenID" by scanning every block in
	// the store. This is an explicit full-scan cost, not an indexed
	// lookup; the scan early-exits once Limit matches are found.
	Reverse bool
}

// Stats summarizes store contents.
type Stats struct {
	Tokens    int
	Shards    int
	Edges     int
	SizeBytes int64
}

// Store is the keyed persistence layer for tokens and edge blocks.
//
// A given (tokenID, part) shard key must not be concurrently upserted by two
// callers; the store serializes its own mutations, external writers get
// last-write-wins.
type Store struct {
	mu        sync.Mutex // serializes id allocation and upserts
	be        backend.Backend
	codec     edgeblock.Codec
	logger    *slog.Logger
	observers []Observer
	withFlags bool
}

// Options configures a Store.
type Options struct {
	// Codec encodes blocks; defaults to edgeblock.Raw.
	Codec edgeblock.Codec

	// WithFlags persists the optional flags column.
	WithFlags bool

	// Observers receive change notifications.
	Observers []Observer

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// New creates a Store over the given backend.
func New(be backend.Backend, optFns ...func(*Options)) *Store {
	opts := Options{
		Codec:  edgeblock.Raw{},
		Logger: slog.Default(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = edgeblock.Raw{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		be:        be,
		codec:     opts.Codec,
		logger:    opts.Logger,
		observers: opts.Observers,
		withFlags: opts.WithFlags,
	}
}

// AddObserver registers an observer after construction, for collaborators
// that read back through the store they observe. Call before the store
// sees writes.
func (s *Store) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// EnsureToken normalizes text and returns its existing id, or assigns the
// next dense id. Assignment is idempotent.
func (s *Store) EnsureToken(ctx context.Context, text string) (core.TokenID, error) {
	text = NormalizeToken(text)
	if text == "" {
		return 0, ErrEmptyToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if raw, err := s.be.Get(ctx, keyToken+text); err == nil {
		return core.TokenID(binary.LittleEndian.Uint32(raw)), nil
	} else if !errors.Is(err, backend.ErrNotFound) {
		return 0, err
	}

	id, err := s.nextTokenID(ctx)
	if err != nil {
		return 0, err
	}

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(id))
	if err := s.be.Put(ctx, keyToken+text, buf[:]); err != nil {
		return 0, err
	}
	if err := s.be.Put(ctx, tokenIDKey(id), []byte(text)); err != nil {
		return 0, err
	}

	for _, o := range s.observers {
		o.TokenCreated(id, text)
	}
	return id, nil
}

// GetToken returns the token string for an id.
func (s *Store) GetToken(ctx context.Context, id core.TokenID) (string, error) {
	raw, err := s.be.Get(ctx, tokenIDKey(id))
	if errors.Is(err, backend.ErrNotFound) {
		return "", fmt.Errorf("%w: %d", ErrTokenNotFound, id)
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Tokens visits every interned token in id order. fn may return
// backend.ErrStop to end the walk early.
func (s *Store) Tokens(ctx context.Context, fn func(id core.TokenID, text string) error) error {
	return s.be.Scan(ctx, keyTokenID, func(key string, value []byte) error {
		n, err := strconv.ParseUint(key[len(keyTokenID):], 10, 32)
		if err != nil {
			return fmt.Errorf("malformed token key %q: %w", key, err)
		}
		return fn(core.TokenID(n), string(value))
	})
}

// GetAdj returns adjacency rows matching the query.
//
// Forward mode reads all blocks for q.TokenID, filters, and returns rows
// sorted by weight descending truncated to q.Limit. Reverse mode scans the
// whole store; matched rows carry the pointing token as NeighborID and are
// returned in scan order.
func (s *Store) GetAdj(ctx context.Context, q Query) ([]edgeblock.Row, error) {
	if q.Reverse {
		return s.reverseAdj(ctx, q)
	}

	rows, err := s.loadRows(ctx, q.TokenID)
	if err != nil {
		return nil, err
	}

	out := rows[:0]
	for _, r := range rows {
		if q.matches(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (q Query) matches(r edgeblock.Row) bool {
	if r.Weight < q.MinWeight {
		return false
	}
	if q.Types == nil {
		return true
	}
	for _, t := range q.Types {
		if r.Type == t {
			return true
		}
	}
	return false
}

func (s *Store) reverseAdj(ctx context.Context, q Query) ([]edgeblock.Row, error) {
	var out []edgeblock.Row
	err := s.be.Scan(ctx, keyBlock, func(key string, value []byte) error {
		block, err := s.codec.Decode(value)
		if err != nil {
			s.logger.Warn("skipping unreadable block during reverse scan", "key", key, "error", err)
			return nil
		}
		for _, r := range block.Rows {
			if r.NeighborID != q.TokenID {
				continue
			}
			r.NeighborID = block.TokenID
			if !q.matches(r) {
				continue
			}
			out = append(out, r)
			if q.Limit > 0 && len(out) >= q.Limit {
				return backend.ErrStop
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertAdj rewrites a token's edges.
//
// Without merge the given set replaces all existing edges. With merge,
// existing rows are loaded and each new row shallow-overwrites the row with
// the same (NeighborID, Type) key: last write wins on weight, lastSeen and
// flags, never additive. The resulting set is re-sharded into contiguous
// blocks and stale block keys are deleted.
func (s *Store) UpsertAdj(ctx context.Context, id core.TokenID, rows []edgeblock.Row, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	final := rows
	if merge {
		existing, err := s.loadRows(ctx, id)
		if err != nil {
			return err
		}
		final = mergeRows(existing, rows)
	}

	blocks := edgeblock.Split(id, final, s.withFlags)
	for _, b := range blocks {
		data, err := s.codec.Encode(b)
		if err != nil {
			return err
		}
		if err := s.be.Put(ctx, blockKey(id, b.Part), data); err != nil {
			return err
		}
	}

	// Delete previously-existing parts no longer needed.
	stale, err := s.partKeysFrom(ctx, id, uint32(len(blocks)))
	if err != nil {
		return err
	}
	for _, key := range stale {
		if err := s.be.Delete(ctx, key); err != nil {
			return err
		}
	}

	for _, o := range s.observers {
		o.AdjacencyChanged(id)
	}
	return nil
}

// mergeRows applies the last-write-wins accumulator keyed by
// (NeighborID, Type), preserving first-seen order.
func mergeRows(existing, incoming []edgeblock.Row) []edgeblock.Row {
	type key struct {
		neighbor core.TokenID
		typ      core.RelationType
	}

	out := make([]edgeblock.Row, len(existing), len(existing)+len(incoming))
	copy(out, existing)
	index := make(map[key]int, len(existing))
	for i, r := range out {
		index[key{r.NeighborID, r.Type}] = i
	}
	for _, r := range incoming {
		k := key{r.NeighborID, r.Type}
		if i, ok := index[k]; ok {
			out[i] = r
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

// ImportItem is one unit of a bulk import stream. Either Token or TokenID
// identifies the owner; Token takes precedence and is ensured first.
type ImportItem struct {
	Token   string
	TokenID core.TokenID
	Edges   []edgeblock.Row
}

// BulkImport merge-upserts each item in the stream. Items with no
// resolvable token are skipped, not fatal; the number of applied items is
// returned.
func (s *Store) BulkImport(ctx context.Context, items iter.Seq[ImportItem]) (int, error) {
	applied := 0
	for item := range items {
		id := item.TokenID
		if item.Token != "" {
			var err error
			id, err = s.EnsureToken(ctx, item.Token)
			if err != nil {
				s.logger.Warn("skipping malformed import item", "token", item.Token, "error", err)
				continue
			}
		} else if id == 0 {
			s.logger.Warn("skipping import item with no resolvable token")
			continue
		}
		if err := s.UpsertAdj(ctx, id, item.Edges, true); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// Stats scans the store and summarizes token, shard and edge counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.be.Scan(ctx, keyTokenID, func(key string, value []byte) error {
		st.Tokens++
		st.SizeBytes += int64(len(value))
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	err = s.be.Scan(ctx, keyBlock, func(key string, value []byte) error {
		st.Shards++
		st.SizeBytes += int64(len(value))
		if block, err := s.codec.Decode(value); err == nil {
			st.Edges += block.Count()
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}

// Compact rewrites every block through the current codec without changing
// edge contents. Useful to pick up a newly enabled compression codec.
func (s *Store) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	type rewrite struct {
		key  string
		data []byte
	}
	var rewrites []rewrite
	err := s.be.Scan(ctx, keyBlock, func(key string, value []byte) error {
		block, err := s.codec.Decode(value)
		if err != nil {
			s.logger.Warn("skipping unreadable block during compact", "key", key, "error", err)
			return nil
		}
		data, err := s.codec.Encode(block)
		if err != nil {
			return err
		}
		rewrites = append(rewrites, rewrite{key: key, data: data})
		return nil
	})
	if err != nil {
		return err
	}
	for _, rw := range rewrites {
		if err := s.be.Put(ctx, rw.key, rw.data); err != nil {
			return err
		}
	}
	s.logger.Info("compact completed", "blocks", len(rewrites))
	return nil
}

// GC decodes every block and deletes blocks that are empty or unreadable.
// Non-empty blocks are left unchanged.
func (s *Store) GC(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doomed []string
	err := s.be.Scan(ctx, keyBlock, func(key string, value []byte) error {
		block, err := s.codec.Decode(value)
		if err != nil {
			s.logger.Warn("dropping unreadable block", "key", key, "error", err)
			doomed = append(doomed, key)
			return nil
		}
		if block.Count() == 0 {
			doomed = append(doomed, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, key := range doomed {
		if err := s.be.Delete(ctx, key); err != nil {
			return 0, err
		}
	}
	return len(doomed), nil
}

// loadRows concatenates all of a token's blocks in part order.
func (s *Store) loadRows(ctx context.Context, id core.TokenID) ([]edgeblock.Row, error) {
	var rows []edgeblock.Row
	err := s.be.Scan(ctx, blockPrefix(id), func(key string, value []byte) error {
		block, err := s.codec.Decode(value)
		if err != nil {
			return fmt.Errorf("block %s: %w", key, err)
		}
		rows = append(rows, block.Rows...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// partKeysFrom lists block keys of a token with part >= from.
func (s *Store) partKeysFrom(ctx context.Context, id core.TokenID, from uint32) ([]string, error) {
	var keys []string
	prefix := blockPrefix(id)
	err := s.be.Scan(ctx, prefix, func(key string, value []byte) error {
		var part uint32
		if _, err := fmt.Sscanf(key[len(prefix):], "%05d", &part); err != nil {
			return nil
		}
		if part >= from {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) nextTokenID(ctx context.Context) (core.TokenID, error) {
	next := uint32(1)
	if raw, err := s.be.Get(ctx, keyNextID); err == nil {
		next = binary.LittleEndian.Uint32(raw)
	} else if !errors.Is(err, backend.ErrNotFound) {
		return 0, err
	}

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], next+1)
	if err := s.be.Put(ctx, keyNextID, buf[:]); err != nil {
		return 0, err
	}
	return core.TokenID(next), nil
}

func tokenIDKey(id core.TokenID) string {
	return fmt.Sprintf("%s%010d", keyTokenID, id)
}

func blockPrefix(id core.TokenID) string {
	return fmt.Sprintf("%s%010d/", keyBlock, id)
}

func blockKey(id core.TokenID, part uint32) string {
	return fmt.Sprintf("%s%010d/%05d", keyBlock, id, part)
}
