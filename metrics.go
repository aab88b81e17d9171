package rangeidx

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/rangeidx/parts"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    downloaded prometheus.Counter
//	    fetchTime  prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordFetch(s parts.Stats, d time.Duration, err error) {
//	    p.downloaded.Add(float64(s.DownloadedBytes))
//	    p.fetchTime.Observe(d.Seconds())
//	}
type MetricsCollector interface {
	// RecordIndexBuild is called after an index was loaded or built.
	// built is false for cache hits.
	RecordIndexBuild(entries int, built bool, duration time.Duration, err error)

	// RecordLookup is called after each selection.
	RecordLookup(matched int, duration time.Duration, err error)

	// RecordPlan is called with the statistics of every range plan.
	RecordPlan(stats parts.Stats)

	// RecordFetch is called after each retrieval with the bytes received.
	RecordFetch(stats parts.Stats, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordIndexBuild(int, bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordLookup(int, time.Duration, error)           {}
func (NoopMetricsCollector) RecordPlan(parts.Stats)                           {}
func (NoopMetricsCollector) RecordFetch(parts.Stats, time.Duration, error)    {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	IndexBuilds     atomic.Int64
	IndexCacheHits  atomic.Int64
	IndexErrors     atomic.Int64
	IndexEntries    atomic.Int64
	LookupCount     atomic.Int64
	LookupErrors    atomic.Int64
	LookupMatched   atomic.Int64
	PlanCount       atomic.Int64
	PlannedRequests atomic.Int64
	FetchCount      atomic.Int64
	FetchErrors     atomic.Int64
	FetchTotalNanos atomic.Int64
	RequestedBytes  atomic.Int64
	DownloadedBytes atomic.Int64
}

// RecordIndexBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIndexBuild(entries int, built bool, _ time.Duration, err error) {
	if err != nil {
		b.IndexErrors.Add(1)
		return
	}
	if built {
		b.IndexBuilds.Add(1)
	} else {
		b.IndexCacheHits.Add(1)
	}
	b.IndexEntries.Add(int64(entries))
}

// RecordLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLookup(matched int, _ time.Duration, err error) {
	b.LookupCount.Add(1)
	b.LookupMatched.Add(int64(matched))
	if err != nil {
		b.LookupErrors.Add(1)
	}
}

// RecordPlan implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPlan(stats parts.Stats) {
	b.PlanCount.Add(1)
	b.PlannedRequests.Add(int64(stats.Requests))
}

// RecordFetch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFetch(stats parts.Stats, duration time.Duration, err error) {
	b.FetchCount.Add(1)
	b.FetchTotalNanos.Add(duration.Nanoseconds())
	b.RequestedBytes.Add(stats.RequestedBytes)
	b.DownloadedBytes.Add(stats.DownloadedBytes)
	if err != nil {
		b.FetchErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		IndexBuilds:     b.IndexBuilds.Load(),
		IndexCacheHits:  b.IndexCacheHits.Load(),
		IndexErrors:     b.IndexErrors.Load(),
		IndexEntries:    b.IndexEntries.Load(),
		LookupCount:     b.LookupCount.Load(),
		LookupErrors:    b.LookupErrors.Load(),
		LookupMatched:   b.LookupMatched.Load(),
		PlanCount:       b.PlanCount.Load(),
		PlannedRequests: b.PlannedRequests.Load(),
		FetchCount:      b.FetchCount.Load(),
		FetchErrors:     b.FetchErrors.Load(),
		FetchAvgNanos:   b.getAvgFetchNanos(),
		RequestedBytes:  b.RequestedBytes.Load(),
		DownloadedBytes: b.DownloadedBytes.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgFetchNanos() int64 {
	count := b.FetchCount.Load()
	if count == 0 {
		return 0
	}
	return b.FetchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	IndexBuilds     int64
	IndexCacheHits  int64
	IndexErrors     int64
	IndexEntries    int64
	LookupCount     int64
	LookupErrors    int64
	LookupMatched   int64
	PlanCount       int64
	PlannedRequests int64
	FetchCount      int64
	FetchErrors     int64
	FetchAvgNanos   int64
	RequestedBytes  int64
	DownloadedBytes int64
}
