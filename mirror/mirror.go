package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hlsf/lattice/core"
	"github.com/hlsf/lattice/shardstore"
)

// SchemaVersion identifies the shard file layout.
const SchemaVersion = 1

// shardFile is the on-disk shape of one bigram shard.
type shardFile struct {
	SchemaVersion int                   `json:"schema_version"`
	UpdatedAt     string                `json:"updated_at"`
	Tokens        map[string]tokenEntry `json:"tokens"`
}

type tokenEntry struct {
	Relationships []relEntry `json:"relationships"`
}

type relEntry struct {
	Token    string `json:"token"`
	Weight   uint32 `json:"weight"`
	Type     string `json:"type"`
	LastSeen uint32 `json:"last_seen,omitempty"`
}

// Options configure an Exporter.
type Options struct {
	// FlushAfter schedules an automatic flush that long after a token
	// turns dirty. Zero means flushes are manual.
	FlushAfter time.Duration

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Exporter mirrors store adjacency to the bigram tree. It implements
// shardstore.Observer; register it at store construction.
type Exporter struct {
	root   string
	shards *shardstore.Store
	logger *slog.Logger
	after  time.Duration

	mu        sync.Mutex
	dirty     map[core.TokenID]struct{}
	scheduled bool
}

var _ shardstore.Observer = (*Exporter)(nil)

// NewExporter creates an Exporter writing under root.
func NewExporter(root string, shards *shardstore.Store, optFns ...func(*Options)) *Exporter {
	opts := Options{Logger: slog.Default()}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Exporter{
		root:   root,
		shards: shards,
		logger: opts.Logger,
		after:  opts.FlushAfter,
		dirty:  make(map[core.TokenID]struct{}),
	}
}

// TokenCreated queues the new token for export.
func (e *Exporter) TokenCreated(id core.TokenID, _ string) { e.markDirty(id) }

// AdjacencyChanged queues the token for re-export.
func (e *Exporter) AdjacencyChanged(id core.TokenID) { e.markDirty(id) }

func (e *Exporter) markDirty(id core.TokenID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dirty[id] = struct{}{}
	if e.after > 0 && !e.scheduled {
		e.scheduled = true
		time.AfterFunc(e.after, func() {
			if err := e.Flush(context.Background()); err != nil {
				e.logger.Warn("mirror flush failed", "error", err)
			}
		})
	}
}

// ExportAll queues every interned token and flushes, producing a complete
// mirror of the store.
func (e *Exporter) ExportAll(ctx context.Context) error {
	err := e.shards.Tokens(ctx, func(id core.TokenID, _ string) error {
		e.mu.Lock()
		e.dirty[id] = struct{}{}
		e.mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}
	return e.Flush(ctx)
}

// Pending returns the number of queued tokens.
func (e *Exporter) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.dirty)
}

// Flush drains the dirty queue and rewrites every affected shard file. A
// token that fails to export is requeued; the first error is returned after
// the whole batch has been attempted.
func (e *Exporter) Flush(ctx context.Context) error {
	e.mu.Lock()
	batch := e.dirty
	e.dirty = make(map[core.TokenID]struct{})
	e.scheduled = false
	e.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	// Group dirty tokens by shard so each file is rewritten once.
	type update struct {
		label string
		entry tokenEntry
	}
	byShard := make(map[string][]update)
	var firstErr error
	requeue := func(id core.TokenID, err error) {
		e.mu.Lock()
		e.dirty[id] = struct{}{}
		e.mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	for id := range batch {
		label, entry, err := e.exportToken(ctx, id)
		if err != nil {
			requeue(id, err)
			continue
		}
		_, bigram := Bucket(label)
		byShard[bigram] = append(byShard[bigram], update{label: label, entry: entry})
	}

	for bigram, updates := range byShard {
		path := e.shardPath(bigram)
		file, err := loadShard(path)
		if err != nil {
			e.logger.Warn("unreadable mirror shard rebuilt", "path", path, "error", err)
			file = emptyShard()
		}
		for _, u := range updates {
			file.Tokens[u.label] = u.entry
		}
		file.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
		if err := writeShardAtomic(path, file); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("write shard %s: %w", bigram, err)
			}
		}
	}
	return firstErr
}

// exportToken builds the shard entry for one token from store state.
func (e *Exporter) exportToken(ctx context.Context, id core.TokenID) (string, tokenEntry, error) {
	label, err := e.shards.GetToken(ctx, id)
	if err != nil {
		return "", tokenEntry{}, fmt.Errorf("token %d: %w", id, err)
	}
	rows, err := e.shards.GetAdj(ctx, shardstore.Query{TokenID: id})
	if err != nil {
		return "", tokenEntry{}, fmt.Errorf("adjacency %d: %w", id, err)
	}

	rels := make([]relEntry, 0, len(rows))
	for _, r := range rows {
		neighbor, err := e.shards.GetToken(ctx, r.NeighborID)
		if err != nil {
			// Neighbor text missing; the id alone is useless downstream.
			e.logger.Warn("mirror skipping dangling neighbor", "token_id", id, "neighbor_id", r.NeighborID)
			continue
		}
		rels = append(rels, relEntry{
			Token:    neighbor,
			Weight:   r.Weight,
			Type:     shardstore.RelationName(r.Type),
			LastSeen: r.LastSeen,
		})
	}
	sort.SliceStable(rels, func(i, j int) bool {
		if rels[i].Weight != rels[j].Weight {
			return rels[i].Weight > rels[j].Weight
		}
		return rels[i].Token < rels[j].Token
	})
	return label, tokenEntry{Relationships: rels}, nil
}

func (e *Exporter) shardPath(bigram string) string {
	return filepath.Join(e.root, bigram[:1], bigram+".json")
}

func emptyShard() shardFile {
	return shardFile{SchemaVersion: SchemaVersion, Tokens: make(map[string]tokenEntry)}
}

func loadShard(path string) (shardFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return emptyShard(), nil
	}
	if err != nil {
		return shardFile{}, err
	}
	var file shardFile
	if err := json.Unmarshal(data, &file); err != nil {
		return shardFile{}, err
	}
	if file.Tokens == nil {
		file.Tokens = make(map[string]tokenEntry)
	}
	return file, nil
}

// writeShardAtomic writes via a temp file and rename so readers never see a
// torn shard.
func writeShardAtomic(path string, file shardFile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
