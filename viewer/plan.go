package viewer

import (
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/arraywin/dataset"
)

const (
	// TargetChunkValues is the number of values held by one chunk; the
	// chunk size in rows is TargetChunkValues / columns.
	TargetChunkValues = 1e4
	// MaxVisibleValues bounds the values a single window may span before
	// the consumer must zoom in.
	MaxVisibleValues = 1e6
	// InitialChunks is the number of chunks shown on first load.
	InitialChunks = 3
)

// ErrInvalidPlan is returned for a non-positive sampling rate.
var ErrInvalidPlan = errors.New("viewer: invalid plan")

// Plan maps time to chunk indices for one dataset.
type Plan struct {
	Rate      float64
	Rows      int
	Columns   int
	ChunkSize int
	// MaxVisibleDuration is the widest window in seconds that is loaded.
	MaxVisibleDuration float64
}

// Window is a chunk-granular request derived from a time range.
type Window struct {
	StartSec       float64
	EndSec         float64
	Start          int
	End            int
	ZoomInRequired bool
}

// Range returns the half-open chunk range.
func (w Window) Range() dataset.Range {
	return dataset.Range{Start: w.Start, End: w.End}
}

// NewPlan derives chunking for desc sampled at rate Hz.
func NewPlan(rate float64, desc dataset.Descriptor) (Plan, error) {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return Plan{}, fmt.Errorf("%w: sampling rate %v", ErrInvalidPlan, rate)
	}

	cols := max(desc.Columns(), 1)
	return Plan{
		Rate:               rate,
		Rows:               desc.Rows(),
		Columns:            cols,
		ChunkSize:          max(int(math.Floor(TargetChunkValues/float64(cols))), 1),
		MaxVisibleDuration: MaxVisibleValues / float64(cols) / rate,
	}, nil
}

// Duration returns the dataset length in seconds.
func (p Plan) Duration() float64 {
	return float64(p.Rows) / p.Rate
}

// InitialRange returns the visible range shown before the user navigates:
// the first InitialChunks chunks, or the whole dataset if shorter.
func (p Plan) InitialRange() (startSec, endSec float64) {
	return 0, math.Min(float64(p.ChunkSize)/p.Rate*InitialChunks, p.Duration())
}

// Window converts [startSec, endSec] to chunk indices. The end chunk is
// inclusive of the sample at endSec.
func (p Plan) Window(startSec, endSec float64) Window {
	cs := float64(p.ChunkSize)
	return Window{
		StartSec:       startSec,
		EndSec:         endSec,
		Start:          max(int(math.Floor(startSec*p.Rate/cs)), 0),
		End:            max(int(math.Floor(endSec*p.Rate/cs))+1, 0),
		ZoomInRequired: endSec-startSec > p.MaxVisibleDuration,
	}
}

// TimeAt returns the time of the sample at offset i from chunk start.
func (p Plan) TimeAt(start, i int) float64 {
	return float64(start*p.ChunkSize+i) / p.Rate
}
