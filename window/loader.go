package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hupe1980/arraywin/cache"
	"github.com/hupe1980/arraywin/cancel"
	"github.com/hupe1980/arraywin/dataset"
)

// Loader resolves a chunk index to chunk data.
type Loader struct {
	handle    dataset.Handle
	cache     cache.Cache
	chunkSize int
	opts      options
}

// NewLoader creates a loader reading chunks of chunkSize rows from handle
// through c.
func NewLoader(handle dataset.Handle, c cache.Cache, chunkSize int, optFns ...Option) *Loader {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Loader{
		handle:    handle,
		cache:     c,
		chunkSize: chunkSize,
		opts:      opts,
	}
}

// ChunkSize returns the number of rows per chunk.
func (l *Loader) ChunkSize() int {
	return l.chunkSize
}

// MaxColumns returns the column cap.
func (l *Loader) MaxColumns() int {
	return l.opts.maxColumns
}

// Cache returns the chunk cache.
func (l *Loader) Cache() cache.Cache {
	return l.cache
}

// NumChunks returns the number of chunks covering the dataset.
func (l *Loader) NumChunks() int {
	if l.initErr() != nil {
		return 0
	}
	rows := l.handle.Descriptor().Rows()
	return (rows + l.chunkSize - 1) / l.chunkSize
}

// ChunkRows returns the dataset rows covered by chunk index.
func (l *Loader) ChunkRows(index int) dataset.Range {
	rows := l.handle.Descriptor().Rows()
	return dataset.Range{
		Start: min(index*l.chunkSize, rows),
		End:   min((index+1)*l.chunkSize, rows),
	}
}

func (l *Loader) initErr() error {
	if l == nil || l.handle == nil || l.cache == nil || l.chunkSize <= 0 {
		return ErrNotInitialized
	}
	return nil
}

// LoadChunk returns chunk index from the cache, or fetches and caches it.
// Firing tok while the read is pending aborts it with ErrCancelled and
// leaves the cache untouched. A failed read yields a *FetchError.
func (l *Loader) LoadChunk(ctx context.Context, index int, tok *cancel.Token) (cache.Chunk, error) {
	c, _, err := l.load(ctx, index, tok)
	return c, err
}

func (l *Loader) load(ctx context.Context, index int, tok *cancel.Token) (cache.Chunk, bool, error) {
	if err := l.initErr(); err != nil {
		return cache.Chunk{}, false, err
	}
	if index < 0 || index >= l.NumChunks() {
		return cache.Chunk{}, false, fmt.Errorf("%w: chunk %d of %d", ErrInvalidWindow, index, l.NumChunks())
	}

	start := l.opts.now()
	if c, ok := l.cache.Get(ctx, index); ok {
		if l.fits(index, c) {
			l.opts.metrics.OnChunkLoad(index, true, 0, l.opts.now().Sub(start), nil)
			return c, false, nil
		}
		l.opts.logger.WarnContext(ctx, "cached chunk does not match dataset, refetching",
			slog.Int("index", index),
			slog.String("rows", c.Rows.String()),
			slog.Int("columns", c.NumColumns()),
		)
	}

	if tok == nil {
		tok = cancel.New()
	}
	if tok.Cancelled() {
		return cache.Chunk{}, false, ErrCancelled
	}

	desc := l.handle.Descriptor()
	rows := l.ChunkRows(index)
	cols := dataset.Range{Start: 0, End: min(desc.Columns(), l.opts.maxColumns)}
	bytes := int64(rows.Len()) * int64(cols.Len()) * int64(desc.Dtype.ByteSize)

	c, err := l.fetch(ctx, index, rows, cols, bytes, tok)
	l.opts.metrics.OnChunkLoad(index, false, bytes, l.opts.now().Sub(start), err)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			l.opts.logger.DebugContext(ctx, "chunk load cancelled", slog.Int("index", index))
		} else {
			l.opts.logger.WarnContext(ctx, "chunk load failed", slog.Int("index", index), slog.String("error", err.Error()))
		}
		return cache.Chunk{}, false, err
	}

	l.cache.Put(ctx, index, c)
	l.opts.logger.DebugContext(ctx, "chunk loaded",
		slog.Int("index", index),
		slog.String("rows", rows.String()),
		slog.Int("columns", cols.Len()),
	)
	return c, true, nil
}

// fits reports whether c covers exactly the rows and columns chunk index
// covers in the current dataset.
func (l *Loader) fits(index int, c cache.Chunk) bool {
	rows := l.ChunkRows(index)
	ncols := min(l.handle.Descriptor().Columns(), l.opts.maxColumns)
	if c.Index != index || c.Rows != rows || len(c.Columns) != ncols || len(c.Data) != ncols {
		return false
	}
	for j, col := range c.Data {
		if c.Columns[j] != j || len(col) != rows.Len() {
			return false
		}
	}
	return true
}

func (l *Loader) fetch(ctx context.Context, index int, rows, cols dataset.Range, bytes int64, tok *cancel.Token) (cache.Chunk, error) {
	rctx, stop := tok.Context(ctx)
	defer stop()

	abandoned := func(err error) error {
		if tok.Cancelled() || ctx.Err() != nil {
			return fmt.Errorf("%w: chunk %d", ErrCancelled, index)
		}
		return &FetchError{Index: index, Err: err}
	}

	if err := l.opts.rc.AcquireIO(rctx, int(bytes)); err != nil {
		return cache.Chunk{}, abandoned(err)
	}

	buf, err := l.handle.Read(rctx, rows, cols)
	if err != nil {
		return cache.Chunk{}, abandoned(err)
	}
	// A read that resolved after the token fired is discarded.
	if tok.Cancelled() || ctx.Err() != nil {
		return cache.Chunk{}, abandoned(nil)
	}

	nrows, ncols := rows.Len(), cols.Len()
	if len(buf) != nrows*ncols {
		return cache.Chunk{}, &FetchError{
			Index: index,
			Err:   fmt.Errorf("read returned %d values, want %d", len(buf), nrows*ncols),
		}
	}

	c := cache.Chunk{
		Index:   index,
		Rows:    rows,
		Columns: make([]int, ncols),
		Data:    make([][]float64, ncols),
	}
	for j := range ncols {
		c.Columns[j] = cols.Start + j
		col := make([]float64, nrows)
		for i := range nrows {
			col[i] = buf[i*ncols+j]
		}
		c.Data[j] = col
	}
	return c, nil
}
