package arraywin

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hupe1980/arraywin/window"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    fetchBytes    prometheus.Counter
//	    assemblyHisto prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordChunkFetch(bytes int64, duration time.Duration, err error) {
//	    p.fetchBytes.Add(float64(bytes))
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordChunkFetch is called after each range read of one chunk.
	// bytes is the encoded size requested, err is nil if successful.
	RecordChunkFetch(bytes int64, duration time.Duration, err error)

	// RecordCacheHit is called when a chunk is served from the cache.
	RecordCacheHit()

	// RecordAssembly is called after each assembly call. chunks is the
	// number of chunks in the returned prefix, fetched is how many of them
	// required I/O.
	RecordAssembly(chunks, fetched int, completed bool, duration time.Duration, err error)

	// RecordWindow is called for each frame delivered to a session sink.
	RecordWindow(samples int, completed bool)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordChunkFetch(int64, time.Duration, error)        {}
func (NoopMetricsCollector) RecordCacheHit()                                     {}
func (NoopMetricsCollector) RecordAssembly(int, int, bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordWindow(int, bool)                              {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	FetchCount         atomic.Int64
	FetchErrors        atomic.Int64
	FetchBytes         atomic.Int64
	FetchTotalNanos    atomic.Int64
	CacheHits          atomic.Int64
	AssemblyCount      atomic.Int64
	AssemblyErrors     atomic.Int64
	AssemblyPartial    atomic.Int64
	AssemblyTotalNanos atomic.Int64
	WindowFrames       atomic.Int64
	WindowSamples      atomic.Int64
}

// RecordChunkFetch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordChunkFetch(bytes int64, duration time.Duration, err error) {
	b.FetchCount.Add(1)
	b.FetchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FetchErrors.Add(1)
		return
	}
	b.FetchBytes.Add(bytes)
}

// RecordCacheHit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCacheHit() {
	b.CacheHits.Add(1)
}

// RecordAssembly implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAssembly(_, _ int, completed bool, duration time.Duration, err error) {
	b.AssemblyCount.Add(1)
	b.AssemblyTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AssemblyErrors.Add(1)
		return
	}
	if !completed {
		b.AssemblyPartial.Add(1)
	}
}

// RecordWindow implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWindow(samples int, _ bool) {
	b.WindowFrames.Add(1)
	b.WindowSamples.Add(int64(samples))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		FetchCount:       b.FetchCount.Load(),
		FetchErrors:      b.FetchErrors.Load(),
		FetchBytes:       b.FetchBytes.Load(),
		FetchAvgNanos:    avgNanos(b.FetchTotalNanos.Load(), b.FetchCount.Load()),
		CacheHits:        b.CacheHits.Load(),
		AssemblyCount:    b.AssemblyCount.Load(),
		AssemblyErrors:   b.AssemblyErrors.Load(),
		AssemblyPartial:  b.AssemblyPartial.Load(),
		AssemblyAvgNanos: avgNanos(b.AssemblyTotalNanos.Load(), b.AssemblyCount.Load()),
		WindowFrames:     b.WindowFrames.Load(),
		WindowSamples:    b.WindowSamples.Load(),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	FetchCount       int64
	FetchErrors      int64
	FetchBytes       int64
	FetchAvgNanos    int64
	CacheHits        int64
	AssemblyCount    int64
	AssemblyErrors   int64
	AssemblyPartial  int64
	AssemblyAvgNanos int64
	WindowFrames     int64
	WindowSamples    int64
}

// HitRate returns the fraction of chunk lookups served from the cache.
func (s BasicMetricsStats) HitRate() float64 {
	total := s.CacheHits + s.FetchCount
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// observer forwards engine events to a MetricsCollector and Logger.
type observer struct {
	metrics MetricsCollector
	logger  *Logger
}

var _ window.MetricsObserver = (*observer)(nil)

func (o *observer) OnChunkLoad(index int, cached bool, bytes int64, duration time.Duration, err error) {
	if cached {
		o.metrics.RecordCacheHit()
	} else {
		o.metrics.RecordChunkFetch(bytes, duration, err)
	}
	o.logger.LogChunkLoad(context.Background(), index, cached, duration, err)
}

func (o *observer) OnAssembly(chunks, fetched int, completed bool, duration time.Duration, err error) {
	o.metrics.RecordAssembly(chunks, fetched, completed, duration, err)
	o.logger.LogAssembly(context.Background(), chunks, fetched, completed, duration, err)
}
