package dataset

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/hupe1980/arraywin/blobstore"
	"github.com/hupe1980/arraywin/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDtype(t *testing.T) {
	tests := []struct {
		in      string
		want    Dtype
		wantErr bool
	}{
		{in: "<f8", want: Float64},
		{in: "<f4", want: Float32},
		{in: ">i2", want: Dtype{ByteOrder: BOBigEndian, BasicType: BTInteger, ByteSize: 2}},
		{in: "|u1", want: Dtype{ByteOrder: BONotRelevant, BasicType: BTUnsigned, ByteSize: 1}},
		{in: "&lt;i4", want: Int32},
		{in: "<f2", wantErr: true},
		{in: "<S8", wantErr: true},
		{in: "|i4", wantErr: true},
		{in: "f8", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseDtype(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedDtype)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDtype_RoundTrip(t *testing.T) {
	values := []float64{-3, 0, 1, 127}
	for _, dt := range []Dtype{Float64, Float32, Int16, Int32, Int64,
		{ByteOrder: BOBigEndian, BasicType: BTInteger, ByteSize: 4},
		{ByteOrder: BONotRelevant, BasicType: BTInteger, ByteSize: 1},
	} {
		t.Run(dt.String(), func(t *testing.T) {
			raw, err := dt.Encode(values)
			require.NoError(t, err)
			require.Len(t, raw, len(values)*dt.ByteSize)

			got := make([]float64, len(values))
			require.NoError(t, dt.Decode(got, raw))
			assert.Equal(t, values, got)
		})
	}
}

func TestDtype_JSON(t *testing.T) {
	b, err := json.Marshal(Float32)
	require.NoError(t, err)
	assert.Equal(t, `"<f4"`, string(b))

	var dt Dtype
	require.NoError(t, json.Unmarshal([]byte(`">u2"`), &dt))
	assert.Equal(t, "<u2", Dtype{ByteOrder: BOLittleEndian, BasicType: BTUnsigned, ByteSize: 2}.String())
	assert.Equal(t, ">u2", dt.String())
}

func TestDescriptor(t *testing.T) {
	d := Descriptor{Path: "acq", Shape: []int{250}, Dtype: Float64, Attrs: map[string]any{"rate": 30000.0}}
	require.NoError(t, d.Validate())
	assert.Equal(t, 250, d.Rows())
	assert.Equal(t, 1, d.Columns())
	rate, ok := d.Float("rate")
	assert.True(t, ok)
	assert.Equal(t, 30000.0, rate)

	_, ok = d.Float("missing")
	assert.False(t, ok)

	assert.ErrorIs(t, Descriptor{Path: "x", Shape: []int{1, 2, 3}, Dtype: Float64}.Validate(), ErrInvalidDescriptor)
	assert.ErrorIs(t, Descriptor{Shape: []int{1}, Dtype: Float64}.Validate(), ErrInvalidDescriptor)
}

func writeMatrix(t *testing.T, store blobstore.BlobStore, p string, rows, cols int, dt Dtype) []float64 {
	t.Helper()
	values := make([]float64, rows*cols)
	for r := range rows {
		for c := range cols {
			values[r*cols+c] = float64(r*10 + c)
		}
	}
	desc := Descriptor{Path: p, Shape: []int{rows, cols}, Dtype: dt, Attrs: map[string]any{"rate": 1000.0}}
	require.NoError(t, Write(context.Background(), store, desc, values))
	return values
}

func TestBlobHandle_Read(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	writeMatrix(t, store, "acq/data", 20, 4, Int16)

	h, err := Open(ctx, store, "acq/data")
	require.NoError(t, err)
	defer h.Close()

	d := h.Descriptor()
	assert.Equal(t, []int{20, 4}, d.Shape)
	rate, ok := d.Float("rate")
	assert.True(t, ok)
	assert.Equal(t, 1000.0, rate)

	t.Run("all columns", func(t *testing.T) {
		got, err := h.Read(ctx, Range{Start: 2, End: 4}, Range{Start: 0, End: 4})
		require.NoError(t, err)
		assert.Equal(t, []float64{20, 21, 22, 23, 30, 31, 32, 33}, got)
	})

	t.Run("column subset", func(t *testing.T) {
		got, err := h.Read(ctx, Range{Start: 18, End: 20}, Range{Start: 1, End: 3})
		require.NoError(t, err)
		assert.Equal(t, []float64{181, 182, 191, 192}, got)
	})

	t.Run("out of bounds", func(t *testing.T) {
		_, err := h.Read(ctx, Range{Start: 18, End: 21}, Range{Start: 0, End: 1})
		assert.ErrorIs(t, err, ErrOutOfBounds)
		_, err = h.Read(ctx, Range{Start: 0, End: 1}, Range{Start: 0, End: 5})
		assert.ErrorIs(t, err, ErrOutOfBounds)
	})

	t.Run("empty", func(t *testing.T) {
		got, err := h.Read(ctx, Range{Start: 5, End: 5}, Range{Start: 0, End: 4})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := h.Read(cctx, Range{Start: 0, End: 1}, Range{Start: 0, End: 1})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBlobHandle_RateLimited(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	values := writeMatrix(t, store, "lfp", 8, 2, Float32)

	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 20})
	h, err := Open(ctx, store, "lfp", WithResourceController(rc))
	require.NoError(t, err)

	got, err := h.Read(ctx, Range{Start: 0, End: 8}, Range{Start: 0, End: 2})
	require.NoError(t, err)
	assert.Equal(t, values, got)
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	_, err := Open(ctx, store, "missing")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	require.NoError(t, store.Put(ctx, "short/.array", []byte(`{"shape":[10,2],"dtype":"<f8"}`)))
	require.NoError(t, store.Put(ctx, "short/data", make([]byte, 8)))
	_, err = Open(ctx, store, "short")
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	require.NoError(t, store.Put(ctx, "bad/.array", []byte(`{"shape":[10],"dtype":"<c16"}`)))
	_, err = Open(ctx, store, "bad")
	assert.Error(t, err)

	err = Write(ctx, store, Descriptor{Path: "w", Shape: []int{2}, Dtype: Float64}, []float64{1})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}

func TestDecode_NaNPreserved(t *testing.T) {
	raw, err := Float64.Encode([]float64{math.NaN()})
	require.NoError(t, err)
	got := make([]float64, 1)
	require.NoError(t, Float64.Decode(got, raw))
	assert.True(t, math.IsNaN(got[0]))
}
