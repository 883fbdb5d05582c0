package backend

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-memory Backend implementation.
//
// It provides process-lifetime-only durability with the same contract as the
// durable backend, and is the degradation target when no durable store is
// reachable. Thread-safe for concurrent readers and writers.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

// Get retrieves the value for a key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}

	// Copy to prevent external mutation.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Put stores a key-value pair.
func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	data := make([]byte, len(value))
	copy(data, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = data
	return nil
}

// Delete removes a key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Scan visits entries with the given prefix in lexicographic key order.
func (m *Memory) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()
	sort.Strings(keys)

	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := m.Get(ctx, k)
		if err != nil {
			continue // deleted since snapshot
		}
		if err := fn(k, v); err != nil {
			if err == ErrStop {
				return nil
			}
			return err
		}
	}
	return nil
}

// Close is a no-op for the memory backend.
func (m *Memory) Close() error { return nil }
