// Package backend abstracts the transactional key-value store the shard and
// vector stores persist into. Two implementations are provided: a durable
// BadgerDB store and a process-lifetime memory store with the identical
// contract.
package backend

import (
	"context"
	"errors"
	"log/slog"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("backend: not found")

	// ErrStop terminates a Scan early. Scan returns nil when the callback
	// returns ErrStop.
	ErrStop = errors.New("backend: stop scan")
)

// Backend is a minimal transactional key-value object store.
//
// Keys are flat strings; hierarchical keys use '/'-joined segments. Scan
// visits entries in lexicographic key order.
type Backend interface {
	// Get retrieves the value for a key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores a key-value pair, overwriting any existing value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Scan invokes fn for every entry whose key has the given prefix, in
	// lexicographic key order. fn may return ErrStop to end the scan.
	Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error

	// Close releases any resources held by the backend.
	Close() error
}

// Open returns a durable backend rooted at path, or the in-memory backend
// when path is empty or the durable store cannot be opened.
//
// Degradation happens exactly once, here, and is logged; it is never
// substituted mid-operation. Callers that need to distinguish the two cases
// can type-assert on the result.
func Open(path string, logger *slog.Logger) Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return NewMemory()
	}

	b, err := OpenBadger(path)
	if err != nil {
		logger.Warn("durable backend unavailable, degrading to memory-only durability",
			"path", path,
			"error", err,
		)
		return NewMemory()
	}
	return b
}
