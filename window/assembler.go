package window

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/arraywin/cache"
	"github.com/hupe1980/arraywin/cancel"
	"github.com/hupe1980/arraywin/dataset"
)

// Result is the outcome of one assembly call.
type Result struct {
	// Matrix is indexed [channel][sample]; it always has MaxColumns rows of
	// equal length. Cells with no source column hold NaN.
	Matrix [][]float64
	// Completed is false when the budget ran out before the end of the
	// window; Matrix then covers a prefix of it.
	Completed bool
	// Start is the first chunk index in Matrix.
	Start int
	// Chunks is the number of chunks concatenated.
	Chunks int
	// Fetched is the number of chunks read from the handle in this call.
	Fetched int
}

// Width returns the number of samples per channel.
func (r Result) Width() int {
	if len(r.Matrix) == 0 {
		return 0
	}
	return len(r.Matrix[0])
}

// Assembler satisfies window requests under a time budget.
type Assembler struct {
	loader *Loader
	opts   options
}

// New creates an Assembler with its own Loader.
func New(handle dataset.Handle, c cache.Cache, chunkSize int, optFns ...Option) *Assembler {
	return NewAssembler(NewLoader(handle, c, chunkSize, optFns...), optFns...)
}

// NewAssembler creates an Assembler driving l.
func NewAssembler(l *Loader, optFns ...Option) *Assembler {
	opts := defaultOptions()
	if l != nil {
		opts = l.opts
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Assembler{loader: l, opts: opts}
}

// Loader returns the underlying loader.
func (a *Assembler) Loader() *Loader {
	return a.loader
}

// Missing returns the indices in [start, end) not resident in the cache.
func (a *Assembler) Missing(start, end int) *roaring.Bitmap {
	bm := roaring.New()
	if a == nil || a.loader.initErr() != nil {
		return bm
	}
	start = max(start, 0)
	end = min(end, a.loader.NumChunks())
	if start >= end {
		return bm
	}
	bm.AddRange(uint64(start), uint64(end))
	bm.AndNot(a.loader.cache.Resident())
	return bm
}

// GetConcatenatedChunk loads chunks start..end-1 in increasing order and
// concatenates them. After each chunk, if the elapsed time exceeds the
// budget, it stops and returns the prefix with Completed=false. Indices at
// or past the end of the dataset contribute nothing.
//
// The budget never interrupts a read in progress; only the next chunk is
// deferred. Cancelling tok aborts the pending read with ErrCancelled.
func (a *Assembler) GetConcatenatedChunk(ctx context.Context, start, end int, tok *cancel.Token) (Result, error) {
	if a == nil || a.loader.initErr() != nil {
		return Result{}, ErrNotInitialized
	}
	if start < 0 || start > end {
		return Result{}, fmt.Errorf("%w: [%d,%d)", ErrInvalidWindow, start, end)
	}

	begin := a.opts.now()
	last := min(end, a.loader.NumChunks())
	missing := a.Missing(start, last)

	chunks := make([]cache.Chunk, 0, max(last-start, 0))
	fetched := 0
	completed := true

	for index := start; index < last; index++ {
		if tok != nil && tok.Cancelled() {
			err := fmt.Errorf("%w: window [%d,%d)", ErrCancelled, start, end)
			a.opts.metrics.OnAssembly(len(chunks), fetched, false, a.opts.now().Sub(begin), err)
			return Result{}, err
		}

		c, didFetch, err := a.loader.load(ctx, index, tok)
		if err != nil {
			a.opts.metrics.OnAssembly(len(chunks), fetched, false, a.opts.now().Sub(begin), err)
			return Result{}, err
		}
		chunks = append(chunks, c)
		if didFetch {
			fetched++
		}

		if a.opts.now().Sub(begin) > a.opts.budget {
			completed = false
			break
		}
	}

	res := Result{
		Matrix:    concatenate(chunks, a.opts.maxColumns),
		Completed: completed,
		Start:     start,
		Chunks:    len(chunks),
		Fetched:   fetched,
	}

	elapsed := a.opts.now().Sub(begin)
	a.opts.metrics.OnAssembly(res.Chunks, res.Fetched, res.Completed, elapsed, nil)
	a.opts.logger.DebugContext(ctx, "window assembled",
		slog.Int("start", start),
		slog.Int("end", end),
		slog.Int("chunks", res.Chunks),
		slog.Uint64("missing", missing.GetCardinality()),
		slog.Int("fetched", res.Fetched),
		slog.Bool("completed", res.Completed),
		slog.Duration("elapsed", elapsed),
	)

	return res, nil
}

// concatenate joins chunks along the sample axis into a
// maxColumns × sum(rows) matrix, NaN where a chunk has fewer columns.
func concatenate(chunks []cache.Chunk, maxColumns int) [][]float64 {
	width := 0
	for _, c := range chunks {
		width += c.NumRows()
	}

	matrix := make([][]float64, maxColumns)
	for j := range matrix {
		row := make([]float64, width)
		off := 0
		for _, c := range chunks {
			n := c.NumRows()
			if j < len(c.Data) {
				copy(row[off:off+n], c.Data[j])
			} else {
				fill(row[off:off+n], math.NaN())
			}
			off += n
		}
		matrix[j] = row
	}
	return matrix
}

func fill(s []float64, v float64) {
	for i := range s {
		s[i] = v
	}
}
