package viewer

import (
	"fmt"
	"math"

	"github.com/hupe1980/arraywin/window"
)

// Frame is one assembled result delivered to a Sink.
type Frame struct {
	Window Window
	window.Result
	Plan Plan
}

// TimeAxis returns the time of every sample in the frame.
func (f Frame) TimeAxis() []float64 {
	t := make([]float64, f.Width())
	for i := range t {
		t[i] = f.Plan.TimeAt(f.Start, i)
	}
	return t
}

// LineSeries is one channel over time.
type LineSeries struct {
	Title string
	T     []float64
	Y     []float64
}

// Lines returns one series per matrix row, titled ch0, ch1, ...
// The series share the time axis.
func (f Frame) Lines() []LineSeries {
	t := f.TimeAxis()
	out := make([]LineSeries, len(f.Matrix))
	for i, y := range f.Matrix {
		out[i] = LineSeries{Title: fmt.Sprintf("ch%d", i), T: t, Y: y}
	}
	return out
}

// SpatialSeries is a 2-D trajectory over time.
type SpatialSeries struct {
	T []float64
	X []float64
	Y []float64
}

// Spatial reads channel 0 as x and channel 1 as y. A frame with fewer
// than two channels yields NaN for the missing coordinate.
func (f Frame) Spatial() SpatialSeries {
	t := f.TimeAxis()
	s := SpatialSeries{T: t, X: make([]float64, len(t)), Y: make([]float64, len(t))}
	for i := range t {
		s.X[i] = cell(f.Matrix, 0, i)
		s.Y[i] = cell(f.Matrix, 1, i)
	}
	return s
}

func cell(m [][]float64, row, i int) float64 {
	if row >= len(m) || i >= len(m[row]) {
		return math.NaN()
	}
	return m[row][i]
}

// ValueRange is a closed [Min, Max] interval. The zero value is empty.
type ValueRange struct {
	Min   float64
	Max   float64
	Valid bool
}

// Include widens r to cover v. NaN is ignored.
func (r ValueRange) Include(v float64) ValueRange {
	if math.IsNaN(v) {
		return r
	}
	if !r.Valid {
		return ValueRange{Min: v, Max: v, Valid: true}
	}
	r.Min = math.Min(r.Min, v)
	r.Max = math.Max(r.Max, v)
	return r
}

// Union returns the smallest range covering r and o.
func (r ValueRange) Union(o ValueRange) ValueRange {
	if !o.Valid {
		return r
	}
	return r.Include(o.Min).Include(o.Max)
}

// LineRange returns the value range of the series, anchored at zero so the
// baseline stays visible.
func LineRange(series []LineSeries) ValueRange {
	r := ValueRange{}.Include(0)
	for _, s := range series {
		for _, v := range s.Y {
			r = r.Include(v)
		}
	}
	return r
}

// SpatialRange is the bounding box of a spatial series.
type SpatialRange struct {
	X ValueRange
	Y ValueRange
}

// Range returns the bounding box of s.
func (s SpatialSeries) Range() SpatialRange {
	var r SpatialRange
	for i := range s.T {
		r.X = r.X.Include(s.X[i])
		r.Y = r.Y.Include(s.Y[i])
	}
	return r
}

// Union returns the box covering r and o.
func (r SpatialRange) Union(o SpatialRange) SpatialRange {
	return SpatialRange{X: r.X.Union(o.X), Y: r.Y.Union(o.Y)}
}

// IndexForTime returns the index i with t[i] <= time < t[i+1] on a sorted
// time axis. ok is false before the first or at/after the last sample.
func IndexForTime(time float64, t []float64) (i int, ok bool) {
	if len(t) == 0 || time < t[0] || time >= t[len(t)-1] {
		return 0, false
	}
	a, b := 0, len(t)-1
	for b-a > 1 {
		c := (a + b) / 2
		if time < t[c] {
			b = c
		} else {
			a = c
		}
	}
	return a, true
}
