package viewer

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/arraywin/cache"
	"github.com/hupe1980/arraywin/dataset"
	"github.com/hupe1980/arraywin/testutil"
	"github.com/hupe1980/arraywin/window"
)

func TestNewPlan(t *testing.T) {
	desc := dataset.Descriptor{Path: "x", Shape: []int{10000, 4}, Dtype: dataset.Float32}
	p, err := NewPlan(1000, desc)
	require.NoError(t, err)
	assert.Equal(t, 2500, p.ChunkSize)
	assert.InDelta(t, 250.0, p.MaxVisibleDuration, 1e-9)
	assert.InDelta(t, 10.0, p.Duration(), 1e-9)

	start, end := p.InitialRange()
	assert.Equal(t, 0.0, start)
	assert.InDelta(t, 7.5, end, 1e-9)

	w := p.Window(start, end)
	assert.Equal(t, 0, w.Start)
	assert.Equal(t, 4, w.End)
	assert.False(t, w.ZoomInRequired)

	w = p.Window(3, 5.1)
	assert.Equal(t, 1, w.Start)
	assert.Equal(t, 3, w.End)

	assert.True(t, p.Window(0, 300).ZoomInRequired)

	_, err = NewPlan(0, desc)
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestNewPlan_ShortAndOneDimensional(t *testing.T) {
	p, err := NewPlan(30000, dataset.Descriptor{Path: "x", Shape: []int{1200}, Dtype: dataset.Int16})
	require.NoError(t, err)
	assert.Equal(t, 10000, p.ChunkSize)
	assert.Equal(t, 1, p.Columns)

	// Shorter than three chunks: the whole dataset is visible.
	_, end := p.InitialRange()
	assert.InDelta(t, 0.04, end, 1e-12)

	wide, err := NewPlan(1, dataset.Descriptor{Path: "x", Shape: []int{10, 20000}, Dtype: dataset.Int16})
	require.NoError(t, err)
	assert.Equal(t, 1, wide.ChunkSize)
}

func TestIndexForTime(t *testing.T) {
	axis := []float64{0, 0.1, 0.2, 0.3}

	tests := []struct {
		time   float64
		want   int
		wantOK bool
	}{
		{time: -0.1},
		{time: 0, want: 0, wantOK: true},
		{time: 0.15, want: 1, wantOK: true},
		{time: 0.2, want: 2, wantOK: true},
		{time: 0.299, want: 2, wantOK: true},
		{time: 0.3},
	}
	for _, tc := range tests {
		got, ok := IndexForTime(tc.time, axis)
		assert.Equal(t, tc.wantOK, ok, "time %v", tc.time)
		if tc.wantOK {
			assert.Equal(t, tc.want, got, "time %v", tc.time)
		}
	}

	_, ok := IndexForTime(0, nil)
	assert.False(t, ok)
}

func TestFrameSeries(t *testing.T) {
	f := Frame{
		Plan: Plan{Rate: 10, ChunkSize: 2},
		Result: window.Result{
			Matrix: [][]float64{{1, -2, 3}, {4, 5, math.NaN()}},
			Start:  3,
		},
	}

	assert.Equal(t, []float64{0.6, 0.7, 0.8}, roundAll(f.TimeAxis()))

	lines := f.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "ch1", lines[1].Title)
	assert.Equal(t, []float64{1, -2, 3}, lines[0].Y)

	r := LineRange(lines)
	assert.Equal(t, ValueRange{Min: -2, Max: 5, Valid: true}, r)

	sp := f.Spatial()
	assert.Equal(t, []float64{1, -2, 3}, sp.X)
	assert.True(t, math.IsNaN(sp.Y[2]))
	box := sp.Range()
	assert.Equal(t, ValueRange{Min: -2, Max: 3, Valid: true}, box.X)
	assert.Equal(t, ValueRange{Min: 4, Max: 5, Valid: true}, box.Y)

	merged := box.Union(SpatialRange{X: ValueRange{}.Include(10)})
	assert.Equal(t, 10.0, merged.X.Max)
	assert.Equal(t, 4.0, merged.Y.Min)

	one := Frame{Plan: f.Plan, Result: window.Result{Matrix: [][]float64{{1}}}}
	assert.True(t, math.IsNaN(one.Spatial().Y[0]))
}

func roundAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Round(x*1e9) / 1e9
	}
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	frames []Frame
	zoom   []Window
	errs   []error
}

func (s *recordingSink) OnFrame(_ context.Context, f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
}

func (s *recordingSink) OnZoomInRequired(_ context.Context, w Window) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = append(s.zoom, w)
}

func (s *recordingSink) OnError(_ context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func testPlan() Plan {
	return Plan{Rate: 100, Rows: 1000, Columns: 2, ChunkSize: 100, MaxVisibleDuration: 5}
}

func newSession(t *testing.T, c cache.Cache, opts ...window.Option) (*Session, *testutil.MatrixHandle, *recordingSink, *testutil.FakeClock) {
	t.Helper()
	h := testutil.NewMatrixHandle(1000, 2, testutil.RowColumn)
	clock := testutil.NewFakeClock(time.Unix(0, 0))
	opts = append([]window.Option{window.WithClock(clock.Now)}, opts...)
	a := window.New(h, c, testPlan().ChunkSize, opts...)
	sink := &recordingSink{}
	return NewSession(a, testPlan(), sink), h, sink, clock
}

func TestSession_Progressive(t *testing.T) {
	s, h, sink, clock := newSession(t, cache.NewMap())
	h.OnRead = func(context.Context, dataset.Range) error {
		clock.Advance(800 * time.Millisecond)
		return nil
	}

	// Chunks 0..3; the 2s budget is passed after the third read.
	require.NoError(t, s.RequestWindow(context.Background(), 0, 3.5))

	require.Len(t, sink.frames, 2)
	assert.False(t, sink.frames[0].Completed)
	assert.Equal(t, 300, sink.frames[0].Width())
	assert.True(t, sink.frames[1].Completed)
	assert.Equal(t, 400, sink.frames[1].Width())
	assert.Equal(t, 4, h.ReadCount())
	assert.Empty(t, sink.errs)
}

func TestSession_ZoomInRequired(t *testing.T) {
	s, h, sink, _ := newSession(t, cache.NewMap())

	require.NoError(t, s.RequestWindow(context.Background(), 0, 9))
	require.Len(t, sink.zoom, 1)
	assert.True(t, sink.zoom[0].ZoomInRequired)
	assert.Empty(t, sink.frames)
	assert.Equal(t, 0, h.ReadCount())
}

func TestSession_FetchError(t *testing.T) {
	s, h, sink, _ := newSession(t, cache.NewMap())
	boom := errors.New("remote unavailable")
	h.OnRead = func(context.Context, dataset.Range) error { return boom }

	err := s.RequestWindow(context.Background(), 0, 0.5)
	require.ErrorIs(t, err, boom)

	var fe *window.FetchError
	assert.ErrorAs(t, err, &fe)
	require.Len(t, sink.errs, 1)
	assert.ErrorIs(t, sink.errs[0], boom)
}

func TestSession_Supersede(t *testing.T) {
	s, h, sink, _ := newSession(t, cache.NewMap())

	started := make(chan struct{})
	var blocked atomic.Bool
	h.OnRead = func(ctx context.Context, rows dataset.Range) error {
		if rows.Start == 0 && blocked.CompareAndSwap(false, true) {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}

	first := make(chan error, 1)
	go func() {
		first <- s.RequestWindow(context.Background(), 0, 0.5)
	}()
	<-started

	// A new window cancels the pending read of the old one.
	require.NoError(t, s.RequestWindow(context.Background(), 5, 6.5))

	select {
	case err := <-first:
		assert.ErrorIs(t, err, window.ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("superseded request did not return")
	}

	require.Len(t, sink.frames, 1)
	assert.Equal(t, 5, sink.frames[0].Start)
	assert.Empty(t, sink.errs, "cancellation is not an error")
}

func TestSession_Cancel(t *testing.T) {
	s, h, sink, _ := newSession(t, cache.NewMap())

	started := make(chan struct{})
	h.OnRead = func(ctx context.Context, _ dataset.Range) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}

	done := make(chan error, 1)
	go func() { done <- s.RequestWindow(context.Background(), 0, 0.5) }()
	<-started
	s.Cancel()

	assert.ErrorIs(t, <-done, window.ErrCancelled)
	assert.Empty(t, sink.frames)
	assert.Empty(t, sink.errs)
}

func TestSession_RetainsWindow(t *testing.T) {
	size := cache.Chunk{Rows: dataset.Range{Start: 0, End: 100}, Columns: []int{0, 1}}.SizeBytes()
	lru := cache.NewLRU(size, nil)
	s, _, _, _ := newSession(t, lru)

	require.NoError(t, s.RequestWindow(context.Background(), 0, 2.5))
	assert.Equal(t, []uint32{0, 1, 2}, lru.Resident().ToArray())

	require.NoError(t, s.RequestWindow(context.Background(), 6, 6.5))
	assert.Equal(t, []uint32{6}, lru.Resident().ToArray())
}

func TestSession_NotInitialized(t *testing.T) {
	s := NewSession(nil, testPlan(), nil)
	assert.ErrorIs(t, s.RequestWindow(context.Background(), 0, 1), window.ErrNotInitialized)
}
