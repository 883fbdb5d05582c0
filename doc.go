// Package lattice provides an embedded knowledge-graph storage and
// exploration engine for Go.
//
// Lattice persists token adjacency in columnar edge blocks over a pluggable
// key-value backend, stores 8-bit quantized embeddings alongside, blends
// both signals into hybrid neighbor suggestions, and grows bounded working
// graphs around a seed token ("breathing") through a caller-supplied
// adjacency oracle:
//
//   - Dense uint32 token ids with idempotent text interning
//   - Columnar edge blocks, 50k rows per shard, raw or gzip codecs
//   - Merge-upsert adjacency with last-write-wins per (neighbor, type)
//   - 8-bit affine quantization with exact flat cosine search
//   - Hybrid ranking: alpha*edge + beta*cosine (defaults 0.7/0.3)
//   - Bounded breathing runs: expand, collapse, hub stability detection
//   - Best-effort JSON export mirror (26x26 bigram file tree)
//
// # Quick Start
//
// Open a database and grow a graph:
//
//	db, err := lattice.Open("./data")
//	if err != nil {
//	    panic(err)
//	}
//	defer db.Close()
//
//	id, _ := db.EnsureToken(ctx, "water")
//	suggestions, _ := db.Suggest(ctx, id, 10)
//
//	res, _ := db.Breathe(ctx, "water", oracle)
//	fmt.Println(res.Hub, res.Reason)
//
// The zero-configuration open uses the raw codec, the deterministic local
// embedding provider and an in-memory backend. See Options for the badger
// backend, codecs, providers, hybrid weights and the export mirror.
package lattice
