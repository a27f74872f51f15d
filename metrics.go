package vecdb

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordInsert is called after each insert; count is the number of
	// rows applied, err is nil if the whole batch succeeded.
	RecordInsert(count int, duration time.Duration, err error)

	// RecordSearch is called after each search; queries is the number of
	// query vectors, k the requested limit.
	RecordSearch(queries, k int, duration time.Duration, err error)

	// RecordQuery is called after each scalar query; rows is the number
	// of rows returned.
	RecordQuery(rows int, duration time.Duration, err error)

	// RecordDelete is called after each delete; count is the number of
	// rows tombstoned.
	RecordDelete(count int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordSearch(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordQuery(int, time.Duration, error)       {}
func (NoopMetricsCollector) RecordDelete(int, time.Duration, error)      {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	InsertCount      atomic.Int64
	InsertRows       atomic.Int64
	InsertErrors     atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	QueryCount       atomic.Int64
	QueryErrors      atomic.Int64
	DeleteCount      atomic.Int64
	DeleteRows       atomic.Int64
	DeleteErrors     atomic.Int64
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(count int, _ time.Duration, err error) {
	b.InsertCount.Add(1)
	b.InsertRows.Add(int64(count))
	if err != nil {
		b.InsertErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(_, _ int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(_ int, _ time.Duration, err error) {
	b.QueryCount.Add(1)
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(count int, _ time.Duration, err error) {
	b.DeleteCount.Add(1)
	b.DeleteRows.Add(int64(count))
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// SearchAvgNanos returns the mean search latency in nanoseconds.
func (b *BasicMetricsCollector) SearchAvgNanos() int64 {
	count := b.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return b.SearchTotalNanos.Load() / count
}
