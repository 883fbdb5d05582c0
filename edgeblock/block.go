package edgeblock

import (
	"github.com/hlsf/lattice/core"
)

// BlockMax is the maximum number of edge rows a single block may hold.
// Re-sharding N edges produces ceil(N/BlockMax) contiguous parts.
const BlockMax = 50_000

// SchemaVersion is the persisted block schema version. It is written into
// every block header so the on-disk format can evolve without breaking
// existing stores.
const SchemaVersion = 1

// Row is one weighted, typed edge from the owning token to a neighbor.
// The identity key for merge purposes is (NeighborID, Type).
type Row struct {
	NeighborID core.TokenID
	Type       core.RelationType
	Weight     uint32 // fixed-point weight scale
	LastSeen   uint32 // epoch seconds
	Flags      uint8
}

// Block is a shard of up to BlockMax rows for one (tokenID, part) pair.
// Parts for a token are numbered contiguously from 0.
type Block struct {
	TokenID core.TokenID
	Part    uint32
	Rows    []Row

	// WithFlags controls whether the optional flags column is persisted.
	// Blocks decoded from storage reflect the column list they were
	// written with.
	WithFlags bool
}

// Count returns the number of rows in the block.
func (b *Block) Count() int { return len(b.Rows) }

// Split shards rows into contiguous blocks of at most BlockMax rows each.
// Every block is full except possibly the last. An empty row set yields a
// single empty part so callers always have a part 0 to persist or delete.
func Split(tokenID core.TokenID, rows []Row, withFlags bool) []*Block {
	if len(rows) == 0 {
		return []*Block{{TokenID: tokenID, Part: 0, WithFlags: withFlags}}
	}

	n := (len(rows) + BlockMax - 1) / BlockMax
	blocks := make([]*Block, 0, n)
	for part := 0; part < n; part++ {
		lo := part * BlockMax
		hi := min(lo+BlockMax, len(rows))
		blocks = append(blocks, &Block{
			TokenID:   tokenID,
			Part:      uint32(part),
			Rows:      rows[lo:hi],
			WithFlags: withFlags,
		})
	}
	return blocks
}
