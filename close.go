package lattice

import "context"

// Close drains the deferred embedding queue, flushes the export mirror
// (if configured) and releases the backend. Close is idempotent;
// operations after Close return ErrClosed.
func (db *DB) Close() error {
	if db == nil || !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	var firstErr error
	if db.ingestor != nil {
		if err := db.ingestor.FlushNow(context.Background()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if db.exporter != nil {
		if err := db.exporter.Flush(context.Background()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := db.be.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
