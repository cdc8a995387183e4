package arraywin

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/arraywin/blobstore"
	"github.com/hupe1980/arraywin/cache"
	"github.com/hupe1980/arraywin/cancel"
	"github.com/hupe1980/arraywin/dataset"
	"github.com/hupe1980/arraywin/spikes"
	"github.com/hupe1980/arraywin/viewer"
	"github.com/hupe1980/arraywin/window"
)

const (
	// DataPath is the dataset holding the samples of a time series.
	DataPath = "data"
	// StartingTimePath is the dataset whose "rate" attribute holds the
	// sampling rate in Hz.
	StartingTimePath = "starting_time"
	// RateAttr is the sampling rate attribute name.
	RateAttr = "rate"
)

// Series is an opened time series: a dataset handle, its chunk cache and
// the assembler serving windows from it.
type Series struct {
	path      string
	handle    *dataset.BlobHandle
	desc      dataset.Descriptor
	plan      viewer.Plan
	cache     cache.Cache
	mem       *cache.LRU
	disk      *cache.Disk
	assembler *window.Assembler
	opts      options
	logger    *Logger
	closed    atomic.Bool
}

// Open opens the time series stored under objectPath.
//
// The sampling rate is taken from WithSamplingRate, then from the "rate"
// attribute of <objectPath>/starting_time, then from the "rate" attribute
// of the data descriptor.
func Open(ctx context.Context, store blobstore.BlobStore, objectPath string, optFns ...Option) (s *Series, err error) {
	o := applyOptions(optFns)
	logger := o.logger.WithPath(objectPath)
	defer func() {
		var shape []int
		if s != nil {
			shape = s.desc.Shape
		}
		logger.LogOpen(ctx, objectPath, shape, s.Plan().Rate, err)
	}()

	// The loader admits chunk reads through o.rc, so the handle reads unthrottled.
	handle, err := dataset.Open(ctx, store, path.Join(objectPath, DataPath))
	if err != nil {
		return nil, translateError(objectPath, err)
	}

	desc := handle.Descriptor()
	rate, err := samplingRate(ctx, store, objectPath, desc, o.rate)
	if err != nil {
		_ = handle.Close()
		return nil, translateError(objectPath, err)
	}

	plan, err := viewer.NewPlan(rate, desc)
	if err != nil {
		_ = handle.Close()
		return nil, translateError(objectPath, err)
	}

	s = &Series{
		path:   objectPath,
		handle: handle,
		desc:   desc,
		plan:   plan,
		opts:   o,
		logger: logger.WithChunkSize(plan.ChunkSize),
	}
	if err := s.buildCache(objectPath); err != nil {
		_ = handle.Close()
		return nil, err
	}

	s.assembler = window.New(handle, s.cache, plan.ChunkSize,
		window.WithBudget(o.budget),
		window.WithMaxColumns(o.maxColumns),
		window.WithClock(o.now),
		window.WithLogger(s.logger.Logger),
		window.WithMetricsObserver(&observer{metrics: o.metricsCollector, logger: s.logger}),
		window.WithResourceController(o.rc),
	)
	return s, nil
}

func (s *Series) buildCache(objectPath string) error {
	var front cache.Cache = cache.NewMap()
	if s.opts.cacheCapacity > 0 {
		s.mem = cache.NewLRU(s.opts.cacheCapacity, s.opts.rc)
		front = s.mem
	}
	s.cache = front

	if s.opts.diskDir == "" {
		return nil
	}

	key := diskCacheKey(s.desc, s.handle.Size(), s.handle.Version(), s.plan.ChunkSize, s.opts.maxColumns)
	disk, err := cache.NewDisk(cache.DiskConfig{
		RootDir:      filepath.Join(s.opts.diskDir, filepath.FromSlash(objectPath), key),
		MaxSizeBytes: s.opts.diskMaxBytes,
		Compression:  s.opts.diskCompression,
		Resource:     s.opts.rc,
	})
	if err != nil {
		return fmt.Errorf("arraywin: disk cache: %w", err)
	}
	s.disk = disk
	s.cache = cache.NewTiered(front, disk)
	return nil
}

// diskCacheKey names the disk cache directory of one chunk geometry over
// one version of the data blob. Chunk files are keyed by index only, so
// any change to what an index covers must move to a fresh directory.
func diskCacheKey(desc dataset.Descriptor, size int64, version string, chunkSize, maxColumns int) string {
	if maxColumns <= 0 {
		maxColumns = window.DefaultMaxColumns
	}

	d := xxhash.New()
	_, _ = fmt.Fprintf(d, "%v|%s|%d|%q|%d|%d", desc.Shape, desc.Dtype, size, version, chunkSize, min(desc.Columns(), maxColumns))
	return fmt.Sprintf("%016x", d.Sum64())
}

func samplingRate(ctx context.Context, store blobstore.BlobStore, objectPath string, desc dataset.Descriptor, override float64) (float64, error) {
	if override > 0 {
		return override, nil
	}

	st, err := dataset.ReadDescriptor(ctx, store, path.Join(objectPath, StartingTimePath))
	switch {
	case err == nil:
		if r, ok := st.Float(RateAttr); ok {
			return r, nil
		}
	case !errors.Is(err, blobstore.ErrNotFound):
		return 0, err
	}

	if r, ok := desc.Float(RateAttr); ok {
		return r, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrNoSamplingRate, objectPath)
}

// Path returns the object path the series was opened from.
func (s *Series) Path() string {
	return s.path
}

// Descriptor returns the data descriptor.
func (s *Series) Descriptor() dataset.Descriptor {
	return s.desc
}

// Plan returns the time-to-chunk mapping. It is the zero Plan on a nil Series.
func (s *Series) Plan() viewer.Plan {
	if s == nil {
		return viewer.Plan{}
	}
	return s.plan
}

// Assembler returns the window assembler.
func (s *Series) Assembler() *window.Assembler {
	return s.assembler
}

// Cache returns the chunk cache.
func (s *Series) Cache() cache.Cache {
	return s.cache
}

// CacheStats returns a snapshot of the cache counters.
func (s *Series) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// GetConcatenatedChunk assembles chunks [start, end) under the configured
// budget. See window.Assembler.
func (s *Series) GetConcatenatedChunk(ctx context.Context, start, end int, tok *cancel.Token) (window.Result, error) {
	if s.closed.Load() {
		return window.Result{}, ErrClosed
	}
	return s.assembler.GetConcatenatedChunk(ctx, start, end, tok)
}

// NewSession returns a session delivering frames of this series to sink.
func (s *Series) NewSession(sink viewer.Sink) *viewer.Session {
	if sink == nil {
		sink = viewer.SinkFuncs{}
	}
	rec := recordingSink{inner: sink, metrics: s.opts.metricsCollector, logger: s.logger}
	return viewer.NewSession(s.assembler, s.plan, rec, viewer.WithSessionLogger(s.logger.Logger))
}

// Close waits for pending disk writes and releases the handle and any
// memory reserved by the cache.
func (s *Series) Close() error {
	if s == nil || s.closed.Swap(true) {
		return nil
	}

	var errs []error
	if s.disk != nil {
		errs = append(errs, s.disk.Close())
	}
	if s.mem != nil {
		errs = append(errs, s.mem.Close())
	}
	errs = append(errs, s.handle.Close())
	return errors.Join(errs...)
}

// OpenUnits opens and initializes the units table under prefix.
// Logger and resource controller options apply; the rest are ignored.
func OpenUnits(ctx context.Context, store blobstore.BlobStore, prefix string, optFns ...Option) (*spikes.Client, error) {
	o := applyOptions(optFns)

	c := spikes.NewClient(store, func(so *spikes.Options) {
		if prefix != "" {
			so.Prefix = prefix
		}
		so.Resource = o.rc
		so.Logger = o.logger.Logger
	})
	if err := c.Initialize(ctx); err != nil {
		return nil, translateError(prefix, err)
	}
	return c, nil
}

type recordingSink struct {
	inner   viewer.Sink
	metrics MetricsCollector
	logger  *Logger
}

func (r recordingSink) OnFrame(ctx context.Context, f viewer.Frame) {
	r.metrics.RecordWindow(f.Width(), f.Completed)
	r.logger.LogWindow(ctx, f.Window.StartSec, f.Window.EndSec, f.Width(), f.Completed)
	r.inner.OnFrame(ctx, f)
}

func (r recordingSink) OnZoomInRequired(ctx context.Context, w viewer.Window) {
	r.inner.OnZoomInRequired(ctx, w)
}

func (r recordingSink) OnError(ctx context.Context, err error) {
	r.inner.OnError(ctx, err)
}
