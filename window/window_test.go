package window

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/arraywin/cache"
	"github.com/hupe1980/arraywin/cancel"
	"github.com/hupe1980/arraywin/dataset"
	"github.com/hupe1980/arraywin/testutil"
)

func newFixture(rows, cols, chunkSize int, opts ...Option) (*Assembler, *testutil.MatrixHandle, *cache.Map, *testutil.FakeClock) {
	h := testutil.NewMatrixHandle(rows, cols, testutil.RowColumn)
	c := cache.NewMap()
	clock := testutil.NewFakeClock(time.Unix(0, 0))
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(h, c, chunkSize, opts...), h, c, clock
}

func TestGetConcatenatedChunk_CacheHitDeterminism(t *testing.T) {
	ctx := context.Background()
	a, h, _, _ := newFixture(500, 3, 100)

	first, err := a.GetConcatenatedChunk(ctx, 1, 4, cancel.New())
	require.NoError(t, err)
	require.True(t, first.Completed)
	assert.Equal(t, 3, first.Fetched)
	assert.Equal(t, 3, h.ReadCount())

	h.ResetReads()
	second, err := a.GetConcatenatedChunk(ctx, 1, 4, cancel.New())
	require.NoError(t, err)
	assert.True(t, second.Completed)
	assert.Equal(t, 0, h.ReadCount(), "warm window must not read")
	assert.Equal(t, 0, second.Fetched)
	assert.Equal(t, first.Matrix, second.Matrix)
	assert.True(t, a.Missing(1, 4).IsEmpty())
}

func TestGetConcatenatedChunk_Ordering(t *testing.T) {
	a, _, _, _ := newFixture(500, 3, 100, WithMaxColumns(3))

	res, err := a.GetConcatenatedChunk(context.Background(), 2, 5, cancel.New())
	require.NoError(t, err)
	require.Len(t, res.Matrix, 3)
	assert.Equal(t, 300, res.Width())
	for j := range 3 {
		for k := range res.Width() {
			require.Equal(t, testutil.RowColumn(200+k, j), res.Matrix[j][k])
		}
	}
}

func TestGetConcatenatedChunk_BudgetCorrectness(t *testing.T) {
	ctx := context.Background()
	a, h, c, clock := newFixture(500, 2, 100, WithBudget(2500*time.Millisecond))
	h.OnRead = func(context.Context, dataset.Range) error {
		clock.Advance(time.Second)
		return nil
	}

	// Elapsed passes 2.5s after the third chunk (k = 2).
	res, err := a.GetConcatenatedChunk(ctx, 0, 5, cancel.New())
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, 300, res.Width())
	assert.Equal(t, []uint32{0, 1, 2}, c.Resident().ToArray())

	h.ResetReads()
	res, err = a.GetConcatenatedChunk(ctx, 0, 5, cancel.New())
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, 500, res.Width())
	assert.Equal(t, []uint32{300, 400}, h.ReadStarts().ToArray(), "chunks 0..2 must come from cache")
}

func TestGetConcatenatedChunk_BudgetExceededOnLastChunk(t *testing.T) {
	ctx := context.Background()
	a, h, _, clock := newFixture(200, 1, 100, WithBudget(time.Second))
	h.OnRead = func(context.Context, dataset.Range) error {
		clock.Advance(3 * time.Second)
		return nil
	}

	res, err := a.GetConcatenatedChunk(ctx, 1, 2, cancel.New())
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.Equal(t, 100, res.Width())

	res, err = a.GetConcatenatedChunk(ctx, 1, 2, cancel.New())
	require.NoError(t, err)
	assert.True(t, res.Completed)
}

func TestGetConcatenatedChunk_EndToEnd(t *testing.T) {
	ctx := context.Background()
	a, h, _, clock := newFixture(250, 2, 100, WithMaxColumns(2))

	var once sync.Once
	h.OnRead = func(context.Context, dataset.Range) error {
		once.Do(func() { clock.Advance(3 * time.Second) })
		return nil
	}

	first, err := a.GetConcatenatedChunk(ctx, 0, 3, cancel.New())
	require.NoError(t, err)
	assert.False(t, first.Completed)
	assert.Equal(t, 100, first.Width())
	assert.Equal(t, 1, h.ReadCount())

	second, err := a.GetConcatenatedChunk(ctx, 0, 3, cancel.New())
	require.NoError(t, err)
	assert.True(t, second.Completed)
	assert.Equal(t, 250, second.Width())
	assert.Equal(t, 3, h.ReadCount())
	assert.Equal(t, 2, second.Fetched)

	// The final chunk is a genuine dataset boundary: 50 rows, no padding.
	chunk2, ok := a.Loader().Cache().Get(ctx, 2)
	require.True(t, ok)
	assert.Equal(t, dataset.Range{Start: 200, End: 250}, chunk2.Rows)
	for j := range 2 {
		for k := 200; k < 250; k++ {
			assert.Equal(t, testutil.RowColumn(k, j), second.Matrix[j][k])
		}
	}
}

func TestGetConcatenatedChunk_RectangularPadding(t *testing.T) {
	a, _, _, _ := newFixture(150, 1, 100, WithMaxColumns(3))

	res, err := a.GetConcatenatedChunk(context.Background(), 0, 2, cancel.New())
	require.NoError(t, err)
	require.Len(t, res.Matrix, 3)
	assert.Equal(t, 150, res.Width())
	for k := range 150 {
		assert.Equal(t, float64(1000*k), res.Matrix[0][k])
		assert.True(t, math.IsNaN(res.Matrix[1][k]))
		assert.True(t, math.IsNaN(res.Matrix[2][k]))
	}
}

func TestGetConcatenatedChunk_NoCachePoisoning(t *testing.T) {
	ctx := context.Background()
	a, h, c, _ := newFixture(300, 2, 100)

	started := make(chan struct{})
	h.OnRead = func(ctx context.Context, rows dataset.Range) error {
		if rows.Start == 100 {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}

	tok := cancel.New()
	done := make(chan error, 1)
	go func() {
		_, err := a.GetConcatenatedChunk(ctx, 0, 3, tok)
		done <- err
	}()

	<-started
	tok.Cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled load did not return")
	}

	_, ok := c.Get(ctx, 1)
	assert.False(t, ok, "cancelled chunk must not be cached")
	_, ok = c.Get(ctx, 0)
	assert.True(t, ok)
	_, ok = c.Get(ctx, 2)
	assert.False(t, ok)
}

func TestLoadChunk_ReadIgnoringCancellation(t *testing.T) {
	ctx := context.Background()
	h := testutil.NewMatrixHandle(100, 1, testutil.RowColumn)
	c := cache.NewMap()
	l := NewLoader(h, c, 50)

	tok := cancel.New()
	h.OnRead = func(context.Context, dataset.Range) error {
		tok.Cancel()
		return nil
	}

	_, err := l.LoadChunk(ctx, 1, tok)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, c.Len())
}

func TestLoadChunk_FetchError(t *testing.T) {
	ctx := context.Background()
	a, h, c, _ := newFixture(300, 2, 100)
	boom := errors.New("connection reset")
	h.OnRead = func(_ context.Context, rows dataset.Range) error {
		if rows.Start == 200 {
			return boom
		}
		return nil
	}

	_, err := a.GetConcatenatedChunk(ctx, 0, 3, cancel.New())
	require.Error(t, err)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 2, fe.Index)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrCancelled)
	assert.Equal(t, []uint32{0, 1}, c.Resident().ToArray())
}

func TestLoadChunk_SpentToken(t *testing.T) {
	a, h, _, _ := newFixture(300, 2, 100)
	tok := cancel.New()
	tok.Cancel()

	_, err := a.GetConcatenatedChunk(context.Background(), 0, 3, tok)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, h.ReadCount())
}

func TestLoadChunk_ParentContextCancelled(t *testing.T) {
	h := testutil.NewMatrixHandle(100, 1, testutil.RowColumn)
	l := NewLoader(h, cache.NewMap(), 50)

	ctx, cancelFn := context.WithCancel(context.Background())
	cancelFn()
	_, err := l.LoadChunk(ctx, 0, nil)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestLoadChunk_CacheHitWithoutIO(t *testing.T) {
	ctx := context.Background()
	h := testutil.NewMatrixHandle(100, 2, testutil.RowColumn)
	c := cache.NewMap()
	l := NewLoader(h, c, 40)

	want, err := l.LoadChunk(ctx, 2, cancel.New())
	require.NoError(t, err)
	assert.Equal(t, dataset.Range{Start: 80, End: 100}, want.Rows)
	assert.Equal(t, []int{0, 1}, want.Columns)
	assert.Equal(t, 3, l.NumChunks())

	got, err := l.LoadChunk(ctx, 2, cancel.New())
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, h.ReadCount())
}

func TestLoadChunk_MismatchedCacheEntryRefetched(t *testing.T) {
	ctx := context.Background()
	h := testutil.NewMatrixHandle(250, 2, testutil.RowColumn)
	c := cache.NewMap()

	// A chunk cut for another geometry: 100 rows and 5 columns.
	stale := cache.Chunk{
		Index:   0,
		Rows:    dataset.Range{Start: 0, End: 100},
		Columns: []int{0, 1, 2, 3, 4},
		Data:    make([][]float64, 5),
	}
	for j := range stale.Data {
		stale.Data[j] = make([]float64, 100)
	}
	require.True(t, c.Put(ctx, 0, stale))

	l := NewLoader(h, c, 250)
	got, err := l.LoadChunk(ctx, 0, cancel.New())
	require.NoError(t, err)
	assert.Equal(t, 1, h.ReadCount())
	assert.Equal(t, dataset.Range{Start: 0, End: 250}, got.Rows)
	assert.Equal(t, []int{0, 1}, got.Columns)
	require.Len(t, got.Data[1], 250)
	assert.Equal(t, testutil.RowColumn(249, 1), got.Data[1][249])
}

func TestGetConcatenatedChunk_Invalid(t *testing.T) {
	ctx := context.Background()

	var zero Assembler
	_, err := zero.GetConcatenatedChunk(ctx, 0, 1, cancel.New())
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = New(nil, cache.NewMap(), 100).GetConcatenatedChunk(ctx, 0, 1, cancel.New())
	assert.ErrorIs(t, err, ErrNotInitialized)

	h := testutil.NewMatrixHandle(10, 1, testutil.RowColumn)
	_, err = New(h, nil, 100).GetConcatenatedChunk(ctx, 0, 1, cancel.New())
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = New(h, cache.NewMap(), 0).GetConcatenatedChunk(ctx, 0, 1, cancel.New())
	assert.ErrorIs(t, err, ErrNotInitialized)

	a := New(h, cache.NewMap(), 5)
	_, err = a.GetConcatenatedChunk(ctx, 2, 1, cancel.New())
	assert.ErrorIs(t, err, ErrInvalidWindow)
	_, err = a.GetConcatenatedChunk(ctx, -1, 1, cancel.New())
	assert.ErrorIs(t, err, ErrInvalidWindow)
	_, err = a.Loader().LoadChunk(ctx, 2, cancel.New())
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestGetConcatenatedChunk_Clamped(t *testing.T) {
	ctx := context.Background()
	a, h, _, _ := newFixture(250, 1, 100)

	res, err := a.GetConcatenatedChunk(ctx, 2, 10, cancel.New())
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, 50, res.Width())

	res, err = a.GetConcatenatedChunk(ctx, 5, 10, cancel.New())
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, 0, res.Width())
	assert.Len(t, res.Matrix, DefaultMaxColumns)
	assert.Equal(t, 1, h.ReadCount())
}

type recordingObserver struct {
	mu         sync.Mutex
	hits       int
	misses     int
	bytes      int64
	assemblies []bool
}

func (o *recordingObserver) OnChunkLoad(_ int, cached bool, bytes int64, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cached {
		o.hits++
	} else {
		o.misses++
	}
	o.bytes += bytes
}

func (o *recordingObserver) OnAssembly(_, _ int, completed bool, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.assemblies = append(o.assemblies, completed)
}

func TestMetricsObserver(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	a, _, _, _ := newFixture(200, 2, 100, WithMetricsObserver(obs))

	_, err := a.GetConcatenatedChunk(ctx, 0, 2, cancel.New())
	require.NoError(t, err)
	_, err = a.GetConcatenatedChunk(ctx, 0, 2, cancel.New())
	require.NoError(t, err)

	assert.Equal(t, 2, obs.hits)
	assert.Equal(t, 2, obs.misses)
	assert.Equal(t, int64(2*100*2*8), obs.bytes)
	assert.Equal(t, []bool{true, true}, obs.assemblies)
}
