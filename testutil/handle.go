package testutil

import (
	"context"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/arraywin/dataset"
)

// MatrixHandle is an in-memory dataset.Handle that records every read.
type MatrixHandle struct {
	desc   dataset.Descriptor
	values []float64

	// OnRead, if set, runs before each read is served. Returning an error
	// fails the read. It may block on ctx to simulate a slow source.
	OnRead func(ctx context.Context, rows dataset.Range) error

	mu    sync.Mutex
	reads []dataset.Range
}

var _ dataset.Handle = (*MatrixHandle)(nil)

// NewMatrixHandle creates a rows × cols float64 dataset with values f(r, c).
func NewMatrixHandle(rows, cols int, f func(r, c int) float64) *MatrixHandle {
	values := make([]float64, rows*cols)
	for r := range rows {
		for c := range cols {
			values[r*cols+c] = f(r, c)
		}
	}
	return &MatrixHandle{
		desc: dataset.Descriptor{
			Path:  "matrix",
			Shape: []int{rows, cols},
			Dtype: dataset.Float64,
		},
		values: values,
	}
}

// RowColumn is the default value function: 1000·row + column.
func RowColumn(r, c int) float64 {
	return float64(1000*r + c)
}

func (h *MatrixHandle) Descriptor() dataset.Descriptor {
	return h.desc
}

func (h *MatrixHandle) Read(ctx context.Context, rows, cols dataset.Range) ([]float64, error) {
	h.mu.Lock()
	h.reads = append(h.reads, rows)
	h.mu.Unlock()

	if h.OnRead != nil {
		if err := h.OnRead(ctx, rows); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rows.Start < 0 || rows.End > h.desc.Rows() || cols.Start < 0 || cols.End > h.desc.Columns() {
		return nil, dataset.ErrOutOfBounds
	}

	ncols := h.desc.Columns()
	out := make([]float64, 0, rows.Len()*cols.Len())
	for r := rows.Start; r < rows.End; r++ {
		out = append(out, h.values[r*ncols+cols.Start:r*ncols+cols.End]...)
	}
	return out, nil
}

// Reads returns the row ranges read so far.
func (h *MatrixHandle) Reads() []dataset.Range {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]dataset.Range(nil), h.reads...)
}

// ReadCount returns the number of reads served or attempted.
func (h *MatrixHandle) ReadCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.reads)
}

// ReadStarts returns the distinct first rows read, as a bitmap.
func (h *MatrixHandle) ReadStarts() *roaring.Bitmap {
	h.mu.Lock()
	defer h.mu.Unlock()

	bm := roaring.New()
	for _, r := range h.reads {
		bm.Add(uint32(r.Start))
	}
	return bm
}

// ResetReads clears the read log.
func (h *MatrixHandle) ResetReads() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reads = nil
}
