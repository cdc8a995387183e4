package spikes

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/arraywin/blobstore"
	"github.com/hupe1980/arraywin/dataset"
	"github.com/hupe1980/arraywin/resource"
	"github.com/hupe1980/arraywin/window"
)

const (
	// DefaultPrefix is the dataset path of the units table.
	DefaultPrefix = "units"
	// DefaultMaxSpikesPerUnit caps the spikes read per unit by Data.
	DefaultMaxSpikesPerUnit = 100
	// DefaultConcurrency bounds concurrent per-unit reads.
	DefaultConcurrency = 8
)

// Train is the spikes of one unit inside a time range.
type Train struct {
	UnitID     int64
	SpikeTimes []float64
}

// Options configures a Client.
type Options struct {
	Prefix           string
	MaxSpikesPerUnit int
	Concurrency      int
	Resource         *resource.Controller
	Logger           *slog.Logger
}

// Client reads spike trains from a units table in a blob store.
type Client struct {
	store blobstore.BlobStore
	opts  Options

	mu        sync.RWMutex
	ids       []int64
	index     []int64
	times     *dataset.BlobHandle
	startTime float64
	endTime   float64
}

// NewClient creates a client. Call Initialize before Data.
func NewClient(store blobstore.BlobStore, optFns ...func(o *Options)) *Client {
	opts := Options{
		Prefix:           DefaultPrefix,
		MaxSpikesPerUnit: DefaultMaxSpikesPerUnit,
		Concurrency:      DefaultConcurrency,
		Logger:           slog.New(slog.DiscardHandler),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Client{store: store, opts: opts}
}

// Initialize loads unit ids and the spike index concurrently, then the
// first and last spike times.
func (c *Client) Initialize(ctx context.Context) error {
	var (
		ids, index []int64
		times      *dataset.BlobHandle
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ids, err = c.readInts(gctx, "id")
		return err
	})
	g.Go(func() error {
		var err error
		index, err = c.readInts(gctx, "spike_times_index")
		return err
	})
	g.Go(func() error {
		var err error
		times, err = dataset.Open(gctx, c.store, c.path("spike_times"), dataset.WithResourceController(c.opts.Resource))
		return err
	})
	if err := g.Wait(); err != nil {
		if times != nil {
			_ = times.Close()
		}
		return err
	}

	if len(ids) != len(index) {
		_ = times.Close()
		return fmt.Errorf("%w: %d unit ids but %d index entries", dataset.ErrInvalidDescriptor, len(ids), len(index))
	}
	total := times.Descriptor().Rows()
	if !slices.IsSorted(index) || (len(index) > 0 && (index[0] < 0 || index[len(index)-1] > int64(total))) {
		_ = times.Close()
		return fmt.Errorf("%w: spike_times_index does not fit %d spike times", dataset.ErrInvalidDescriptor, total)
	}

	startTime, endTime := math.NaN(), math.NaN()
	if n := lastOffset(index); n > 0 {
		col := dataset.Range{Start: 0, End: 1}
		first, err := times.Read(ctx, dataset.Range{Start: 0, End: 1}, col)
		if err != nil {
			_ = times.Close()
			return err
		}
		last, err := times.Read(ctx, dataset.Range{Start: n - 1, End: n}, col)
		if err != nil {
			_ = times.Close()
			return err
		}
		startTime, endTime = first[0], last[0]
	}

	c.mu.Lock()
	old := c.times
	c.ids, c.index, c.times = ids, index, times
	c.startTime, c.endTime = startTime, endTime
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	c.opts.Logger.InfoContext(ctx, "spike trains initialized",
		slog.String("prefix", c.opts.Prefix),
		slog.Int("units", len(ids)),
		slog.Int64("spikes", int64(lastOffset(index))),
	)
	return nil
}

func lastOffset(index []int64) int {
	if len(index) == 0 {
		return 0
	}
	return int(index[len(index)-1])
}

func (c *Client) path(name string) string {
	return path.Join(c.opts.Prefix, name)
}

func (c *Client) readInts(ctx context.Context, name string) ([]int64, error) {
	h, err := dataset.Open(ctx, c.store, c.path(name), dataset.WithResourceController(c.opts.Resource))
	if err != nil {
		return nil, err
	}
	defer func() { _ = h.Close() }()

	d := h.Descriptor()
	values, err := h.Read(ctx, dataset.Range{Start: 0, End: d.Rows()}, dataset.Range{Start: 0, End: 1})
	if err != nil {
		return nil, err
	}

	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = int64(v)
	}
	return out, nil
}

// UnitIDs returns the unit identifiers.
func (c *Client) UnitIDs() ([]int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.times == nil {
		return nil, c.notInitialized()
	}
	return slices.Clone(c.ids), nil
}

// TimeRange returns the first and last spike time. Both are NaN when the
// table holds no spikes.
func (c *Client) TimeRange() (start, end float64, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.times == nil {
		return 0, 0, c.notInitialized()
	}
	return c.startTime, c.endTime, nil
}

// Data returns, for every unit in table order, its spike times in
// [t1, t2). Only the first MaxSpikesPerUnit spikes of each unit are read.
func (c *Client) Data(ctx context.Context, t1, t2 float64) ([]Train, error) {
	// Held for the whole read so Close and Initialize wait for it.
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids, index, times := c.ids, c.index, c.times

	if times == nil {
		return nil, c.notInitialized()
	}

	out := make([]Train, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.opts.Concurrency, 1))

	for ii := range ids {
		g.Go(func() error {
			i1 := 0
			if ii > 0 {
				i1 = int(index[ii-1])
			}
			i2 := min(int(index[ii]), i1+c.opts.MaxSpikesPerUnit)

			train := Train{UnitID: ids[ii], SpikeTimes: []float64{}}
			if i2 > i1 {
				tt, err := times.Read(gctx, dataset.Range{Start: i1, End: i2}, dataset.Range{Start: 0, End: 1})
				if err != nil {
					return &window.FetchError{Index: ii, Err: err}
				}
				for _, t := range tt {
					if t >= t1 && t < t2 {
						train.SpikeTimes = append(train.SpikeTimes, t)
					}
				}
			}
			out[ii] = train
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the spike times dataset once in-flight Data calls return.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.times == nil {
		return nil
	}
	err := c.times.Close()
	c.times = nil
	return err
}

func (c *Client) notInitialized() error {
	return fmt.Errorf("%w: spike client %s", window.ErrNotInitialized, c.opts.Prefix)
}

// WriteUnits stores a units table under prefix.
func WriteUnits(ctx context.Context, store blobstore.BlobStore, prefix string, ids []int64, trains [][]float64) error {
	if len(ids) != len(trains) {
		return fmt.Errorf("%w: %d ids for %d trains", dataset.ErrInvalidDescriptor, len(ids), len(trains))
	}

	idValues := make([]float64, len(ids))
	index := make([]float64, len(ids))
	var times []float64
	for i, id := range ids {
		idValues[i] = float64(id)
		times = append(times, trains[i]...)
		index[i] = float64(len(times))
	}

	for _, ds := range []struct {
		name   string
		dtype  dataset.Dtype
		values []float64
	}{
		{"id", dataset.Int64, idValues},
		{"spike_times_index", dataset.Int64, index},
		{"spike_times", dataset.Float64, times},
	} {
		desc := dataset.Descriptor{
			Path:  path.Join(prefix, ds.name),
			Shape: []int{len(ds.values)},
			Dtype: ds.dtype,
		}
		if err := dataset.Write(ctx, store, desc, ds.values); err != nil {
			return err
		}
	}
	return nil
}
