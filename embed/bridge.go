package embed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrBridgeClosed is returned for requests issued after Close.
var ErrBridgeClosed = errors.New("embed: bridge closed")

// Request is an embedding request delivered to the transport. ID is a
// monotonically increasing correlation id; the transport must echo it back
// in the matching Response.
type Request struct {
	ID   uint64
	Text string
}

// Response resolves the request with the same correlation ID.
type Response struct {
	ID     uint64
	Vector []float32
	Err    error
}

// Bridge adapts an async request/response transport (worker thread, channel
// pair, subprocess pipe) into a synchronous Provider. Pending requests are
// tracked in a map keyed by correlation id, so responses may arrive in any
// order.
type Bridge struct {
	dim  int
	send func(Request) error

	nextID  atomic.Uint64
	mu      sync.Mutex
	pending map[uint64]chan Response
	closed  bool
}

var _ Provider = (*Bridge)(nil)

// NewBridge creates a Bridge that submits requests through send. The
// transport resolves them by calling Resolve with the echoed id.
func NewBridge(dim int, send func(Request) error) *Bridge {
	return &Bridge{
		dim:     dim,
		send:    send,
		pending: make(map[uint64]chan Response),
	}
}

// Dim returns the bridged provider's dimension.
func (b *Bridge) Dim() int { return b.dim }

// Embed issues a request and blocks until the transport resolves it or ctx
// is done. An abandoned request is unregistered; a late response for it is
// discarded.
func (b *Bridge) Embed(ctx context.Context, text string) ([]float32, error) {
	id := b.nextID.Add(1)
	ch := make(chan Response, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBridgeClosed
	}
	b.pending[id] = ch
	b.mu.Unlock()

	if err := b.send(Request{ID: id, Text: text}); err != nil {
		b.drop(id)
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Err != nil {
			return nil, resp.Err
		}
		if len(resp.Vector) != b.dim {
			return nil, fmt.Errorf("embed: provider returned %d dims, want %d", len(resp.Vector), b.dim)
		}
		return resp.Vector, nil
	case <-ctx.Done():
		b.drop(id)
		return nil, ctx.Err()
	}
}

// Resolve delivers a transport response. Responses with unknown or already
// abandoned correlation ids are ignored.
func (b *Bridge) Resolve(resp Response) {
	b.mu.Lock()
	ch, ok := b.pending[resp.ID]
	delete(b.pending, resp.ID)
	b.mu.Unlock()
	if ok {
		ch <- resp
	}
}

// Close fails all pending requests and rejects new ones.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.pending {
		ch <- Response{ID: id, Err: ErrBridgeClosed}
		delete(b.pending, id)
	}
}

func (b *Bridge) drop(id uint64) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}
