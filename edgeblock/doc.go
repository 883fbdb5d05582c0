// Package edgeblock defines the persisted shard format for weighted token
// adjacency: bounded columnar blocks of edge rows plus the raw and gzip
// codecs that serialize them.
package edgeblock
