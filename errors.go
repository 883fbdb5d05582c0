package lattice

import (
	"errors"
	"fmt"

	"github.com/hlsf/lattice/backend"
	"github.com/hlsf/lattice/shardstore"
	"github.com/hlsf/lattice/vectorstore"
)

var (
	// ErrNotFound is returned when a token, vector or adjacency entry is
	// not found.
	ErrNotFound = errors.New("not found")

	// ErrEmptyToken is returned when an empty token string is interned.
	ErrEmptyToken = errors.New("empty token")

	// ErrClosed is returned for operations on a closed database.
	ErrClosed = errors.New("database closed")
)

// ErrDimensionMismatch indicates an embedding length that does not match
// the configured dimension.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, backend.ErrNotFound) ||
		errors.Is(err, shardstore.ErrTokenNotFound) ||
		errors.Is(err, vectorstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	if errors.Is(err, shardstore.ErrEmptyToken) {
		return fmt.Errorf("%w: %w", ErrEmptyToken, err)
	}

	var dm *vectorstore.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	return err
}
