package arraywin

import (
	"log/slog"
	"time"

	"github.com/hupe1980/arraywin/cache"
	"github.com/hupe1980/arraywin/resource"
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	rc               *resource.Controller
	budget           time.Duration
	maxColumns       int
	rate             float64
	now              func() time.Time
	cacheCapacity    int64
	diskDir          string
	diskMaxBytes     int64
	diskCompression  cache.Compression
}

// Option configures Open.
type Option func(*options)

// WithBudget sets the wall-clock budget of one assembly call.
// Non-positive values keep the default of two seconds.
func WithBudget(d time.Duration) Option {
	return func(o *options) {
		o.budget = d
	}
}

// WithMaxColumns caps the number of channels materialized per window.
// Non-positive values keep the default of five.
func WithMaxColumns(n int) Option {
	return func(o *options) {
		o.maxColumns = n
	}
}

// WithSamplingRate overrides the sampling rate stored with the dataset.
func WithSamplingRate(hz float64) Option {
	return func(o *options) {
		o.rate = hz
	}
}

// WithClock replaces the clock used to enforce the budget.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithCacheCapacity bounds the in-memory chunk cache to capacity bytes.
// Chunks inside the active window are never evicted.
//
// By default the cache is unbounded and add-only: every chunk stays
// resident for the lifetime of the Series.
func WithCacheCapacity(capacity int64) Option {
	return func(o *options) {
		o.cacheCapacity = capacity
	}
}

// WithDiskCache adds a local disk tier behind the memory cache. Chunks
// evicted from memory are re-read from dir instead of the remote store.
// maxBytes caps the chunk files; 0 means unlimited. Each dataset version
// and chunk geometry gets its own directory below dir/<objectPath>.
//
// Example:
//
//	series, _ := arraywin.Open(ctx, s3Store, "acquisition/lfp",
//	    arraywin.WithCacheCapacity(256<<20),
//	    arraywin.WithDiskCache("/fast/nvme/arraywin", 4<<30, cache.CompressionZSTD))
func WithDiskCache(dir string, maxBytes int64, compression cache.Compression) Option {
	return func(o *options) {
		o.diskDir = dir
		o.diskMaxBytes = maxBytes
		o.diskCompression = compression
	}
}

// WithResourceController shares memory, background write and read
// throughput limits across several Series.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &arraywin.BasicMetricsCollector{}
//	series, _ := arraywin.Open(ctx, store, path, arraywin.WithMetricsCollector(metrics))
//	// ... request windows ...
//	stats := metrics.GetStats()
//	fmt.Printf("Fetches: %d, hit rate: %.2f\n", stats.FetchCount, stats.HitRate())
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := arraywin.NewJSONLogger(slog.LevelInfo)
//	series, _ := arraywin.Open(ctx, store, path, arraywin.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		diskCompression:  cache.CompressionLZ4,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
