package vectorstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hlsf/lattice/core"
	"github.com/hlsf/lattice/embed"
)

// Scheduler decides when a deferred flush runs. "Flush now" and "flush when
// idle" are distinct operations so both are testable.
type Scheduler interface {
	// Schedule arranges for fn to run later, off the caller's path.
	Schedule(fn func())
}

// TimerScheduler runs scheduled work after a fixed idle delay.
type TimerScheduler struct {
	Delay time.Duration
}

// Schedule runs fn after the configured delay.
func (s TimerScheduler) Schedule(fn func()) {
	d := s.Delay
	if d <= 0 {
		d = 50 * time.Millisecond
	}
	time.AfterFunc(d, fn)
}

// SyncScheduler runs scheduled work immediately; used in tests.
type SyncScheduler struct{}

// Schedule runs fn inline.
func (SyncScheduler) Schedule(fn func()) { fn() }

type pendingItem struct {
	id   core.TokenID
	text string
}

// Ingestor batches embedding of newly observed tokens so callers never
// block on provider latency. Tokens are enqueued and flushed in groups of
// the store's batch size on the scheduler; a failed flush re-queues its
// unflushed items for the next opportunity rather than dropping them.
type Ingestor struct {
	store    *Store
	provider embed.Provider
	sched    Scheduler
	logger   *slog.Logger

	mu        sync.Mutex
	pending   []pendingItem
	scheduled bool
}

// NewIngestor creates an Ingestor feeding the given store.
func NewIngestor(store *Store, provider embed.Provider, sched Scheduler, logger *slog.Logger) *Ingestor {
	if sched == nil {
		sched = TimerScheduler{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{store: store, provider: provider, sched: sched, logger: logger}
}

// Enqueue records a token for deferred embedding. Tokens that already have
// a stored vector are skipped by the flush.
func (in *Ingestor) Enqueue(id core.TokenID, text string) {
	in.mu.Lock()
	in.pending = append(in.pending, pendingItem{id: id, text: text})
	shouldSchedule := !in.scheduled
	in.scheduled = true
	in.mu.Unlock()

	if shouldSchedule {
		in.sched.Schedule(func() {
			if err := in.FlushNow(context.Background()); err != nil {
				in.logger.Warn("deferred embedding flush failed, items re-queued", "error", err)
			}
		})
	}
}

// Pending returns the number of queued items.
func (in *Ingestor) Pending() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.pending)
}

// FlushNow embeds and persists all queued items in batch-size groups. On
// error the unflushed remainder is returned to the queue.
func (in *Ingestor) FlushNow(ctx context.Context) error {
	in.mu.Lock()
	items := in.pending
	in.pending = nil
	in.scheduled = false
	in.mu.Unlock()

	batch := in.store.cfg.BatchSize
	for i := 0; i < len(items); i++ {
		item := items[i]
		if in.store.Has(ctx, item.id) {
			continue
		}
		if err := in.flushOne(ctx, item); err != nil {
			in.requeue(items[i:])
			return err
		}
		if batch > 0 && (i+1)%batch == 0 {
			// Yield between groups so a long backlog cannot starve
			// interactive work.
			select {
			case <-ctx.Done():
				in.requeue(items[i+1:])
				return ctx.Err()
			default:
			}
		}
	}
	return nil
}

func (in *Ingestor) flushOne(ctx context.Context, item pendingItem) error {
	v, err := in.provider.Embed(ctx, item.text)
	if err != nil {
		return err
	}
	return in.store.Put(ctx, item.id, v)
}

func (in *Ingestor) requeue(items []pendingItem) {
	in.mu.Lock()
	in.pending = append(in.pending, items...)
	in.mu.Unlock()
}
