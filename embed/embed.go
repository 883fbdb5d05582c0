// Package embed defines the pluggable text-embedding provider boundary and
// a deterministic local provider for tests and offline use.
package embed

import (
	"context"
	"hash/fnv"
	"math"
)

// Provider produces fixed-length embedding vectors for text.
//
// The exact embedding algorithm is out of scope for the engine; providers
// may run out of process behind a Bridge.
type Provider interface {
	// Embed returns a vector of the provider's configured dimension.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dim returns the vector dimension this provider produces.
	Dim() int
}

// Local is a deterministic, dependency-free Provider. The same text always
// maps to the same unit-norm vector, which makes similarity tests stable.
type Local struct {
	dim int
}

// NewLocal creates a Local provider with the given dimension.
func NewLocal(dim int) *Local {
	if dim <= 0 {
		dim = 64
	}
	return &Local{dim: dim}
}

// Dim returns the configured dimension.
func (l *Local) Dim() int { return l.dim }

// Embed hashes character trigrams into a fixed-length vector and
// L2-normalizes it.
func (l *Local) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, l.dim)
	if text == "" {
		return v, nil
	}

	runes := []rune(text)
	for i := range runes {
		hi := min(i+3, len(runes))
		h := fnv.New32a()
		h.Write([]byte(string(runes[i:hi])))
		sum := h.Sum32()
		v[sum%uint32(l.dim)] += 1 + float32(sum%7)/7
	}

	var norm2 float64
	for _, x := range v {
		norm2 += float64(x) * float64(x)
	}
	if norm2 > 0 {
		inv := float32(1 / math.Sqrt(norm2))
		for i := range v {
			v[i] *= inv
		}
	}
	return v, nil
}
