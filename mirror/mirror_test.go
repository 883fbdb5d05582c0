package mirror

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hlsf/lattice/backend"
	"github.com/hlsf/lattice/edgeblock"
	"github.com/hlsf/lattice/shardstore"
)

func TestBucket(t *testing.T) {
	tests := []struct {
		token  string
		folder string
		bigram string
	}{
		{"water", "W", "WA"},
		{"Apple", "A", "AP"},
		{"a", "A", "AZ"},
		{"42nd", "Z", "ZZ"},
		{"", "Z", "ZZ"},
		{"x-ray", "X", "XZ"},
	}
	for _, tt := range tests {
		folder, bigram := Bucket(tt.token)
		assert.Equal(t, tt.folder, folder, tt.token)
		assert.Equal(t, tt.bigram, bigram, tt.token)
	}
}

func TestFlushWritesBigramShard(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	shards := shardstore.New(backend.NewMemory())
	exp := NewExporter(root, shards)

	water, err := shards.EnsureToken(ctx, "water")
	require.NoError(t, err)
	river, err := shards.EnsureToken(ctx, "river")
	require.NoError(t, err)
	bank, err := shards.EnsureToken(ctx, "bank")
	require.NoError(t, err)

	require.NoError(t, shards.UpsertAdj(ctx, water, []edgeblock.Row{
		{NeighborID: river, Type: shardstore.RelAdjacency, Weight: 900, LastSeen: 10},
		{NeighborID: bank, Type: shardstore.RelProximity, Weight: 400, LastSeen: 11},
	}, true))

	exp.AdjacencyChanged(water)
	require.Equal(t, 1, exp.Pending())
	require.NoError(t, exp.Flush(ctx))
	assert.Zero(t, exp.Pending())

	data, err := os.ReadFile(filepath.Join(root, "W", "WA.json"))
	require.NoError(t, err)

	var file struct {
		SchemaVersion int    `json:"schema_version"`
		UpdatedAt     string `json:"updated_at"`
		Tokens        map[string]struct {
			Relationships []struct {
				Token  string `json:"token"`
				Weight uint32 `json:"weight"`
				Type   string `json:"type"`
			} `json:"relationships"`
		} `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(data, &file))
	assert.Equal(t, 1, file.SchemaVersion)
	assert.NotEmpty(t, file.UpdatedAt)

	entry, ok := file.Tokens["water"]
	require.True(t, ok)
	require.Len(t, entry.Relationships, 2)
	// Heaviest neighbor first.
	assert.Equal(t, "river", entry.Relationships[0].Token)
	assert.Equal(t, uint32(900), entry.Relationships[0].Weight)
	assert.Equal(t, "proximity", entry.Relationships[1].Type)
}

func TestFlushMergesIntoExistingShard(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	shards := shardstore.New(backend.NewMemory())
	exp := NewExporter(root, shards)

	wasp, err := shards.EnsureToken(ctx, "wasp")
	require.NoError(t, err)
	water, err := shards.EnsureToken(ctx, "water")
	require.NoError(t, err)

	exp.TokenCreated(wasp, "wasp")
	require.NoError(t, exp.Flush(ctx))
	exp.TokenCreated(water, "water")
	require.NoError(t, exp.Flush(ctx))

	file, err := loadShard(filepath.Join(root, "W", "WA.json"))
	require.NoError(t, err)
	assert.Contains(t, file.Tokens, "wasp")
	assert.Contains(t, file.Tokens, "water")
}

func TestFlushRequeuesUnknownToken(t *testing.T) {
	ctx := context.Background()
	shards := shardstore.New(backend.NewMemory())
	exp := NewExporter(t.TempDir(), shards)

	exp.AdjacencyChanged(99) // no such token
	err := exp.Flush(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, exp.Pending())
}

func TestFlushRecoversCorruptShard(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	shards := shardstore.New(backend.NewMemory())
	exp := NewExporter(root, shards)

	path := filepath.Join(root, "W", "WA.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	water, err := shards.EnsureToken(ctx, "water")
	require.NoError(t, err)
	exp.TokenCreated(water, "water")
	require.NoError(t, exp.Flush(ctx))

	file, err := loadShard(path)
	require.NoError(t, err)
	assert.Contains(t, file.Tokens, "water")
}

func TestExportAll(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	shards := shardstore.New(backend.NewMemory())
	exp := NewExporter(root, shards)

	for _, tok := range []string{"water", "wasp", "granite"} {
		_, err := shards.EnsureToken(ctx, tok)
		require.NoError(t, err)
	}

	require.NoError(t, exp.ExportAll(ctx))

	wa, err := loadShard(filepath.Join(root, "W", "WA.json"))
	require.NoError(t, err)
	assert.Len(t, wa.Tokens, 2)
	gr, err := loadShard(filepath.Join(root, "G", "GR.json"))
	require.NoError(t, err)
	assert.Contains(t, gr.Tokens, "granite")
}

func TestFlushEmptyQueueIsNoOp(t *testing.T) {
	shards := shardstore.New(backend.NewMemory())
	exp := NewExporter(t.TempDir(), shards)
	require.NoError(t, exp.Flush(context.Background()))
}

func TestObserverWiring(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	be := backend.NewMemory()
	shards := shardstore.New(be)
	exp := NewExporter(root, shards)

	// A second store over the same backend dispatches to the exporter.
	observed := shardstore.New(be, func(o *shardstore.Options) {
		o.Observers = append(o.Observers, exp)
	})

	id, err := observed.EnsureToken(ctx, "granite")
	require.NoError(t, err)
	require.NoError(t, observed.UpsertAdj(ctx, id, nil, true))
	assert.Equal(t, 1, exp.Pending())

	require.NoError(t, exp.Flush(ctx))
	file, err := loadShard(filepath.Join(root, "G", "GR.json"))
	require.NoError(t, err)
	assert.Contains(t, file.Tokens, "granite")
}
