package lattice

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems.
type MetricsCollector interface {
	// RecordUpsert is called after each adjacency upsert.
	RecordUpsert(duration time.Duration, err error)

	// RecordSuggest is called after each hybrid suggestion query.
	// k is the number of neighbors requested.
	RecordSuggest(k int, duration time.Duration, err error)

	// RecordBreathe is called after each breathing run with the iteration
	// count it reached.
	RecordBreathe(iterations int, duration time.Duration, err error)
}

// NoOpMetrics is a MetricsCollector that does nothing. Used as the default
// when no collector is configured.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordUpsert(time.Duration, error)       {}
func (NoOpMetrics) RecordSuggest(int, time.Duration, error) {}
func (NoOpMetrics) RecordBreathe(int, time.Duration, error) {}

// BasicMetrics is a simple atomic counter-based MetricsCollector, useful
// for tests and lightweight monitoring.
type BasicMetrics struct {
	Upserts      atomic.Int64
	Suggests     atomic.Int64
	BreatheRuns  atomic.Int64
	Errors       atomic.Int64
	TotalLatency atomic.Int64 // nanoseconds across all recorded operations
}

func (m *BasicMetrics) RecordUpsert(d time.Duration, err error) {
	m.Upserts.Add(1)
	m.record(d, err)
}

func (m *BasicMetrics) RecordSuggest(_ int, d time.Duration, err error) {
	m.Suggests.Add(1)
	m.record(d, err)
}

func (m *BasicMetrics) RecordBreathe(_ int, d time.Duration, err error) {
	m.BreatheRuns.Add(1)
	m.record(d, err)
}

func (m *BasicMetrics) record(d time.Duration, err error) {
	m.TotalLatency.Add(int64(d))
	if err != nil {
		m.Errors.Add(1)
	}
}
