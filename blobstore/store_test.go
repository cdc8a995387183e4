package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, store BlobStore) {
	t.Helper()
	ctx := context.Background()

	data := []byte("hello world, this is a test blob")
	require.NoError(t, store.Put(ctx, "acq/data", data))
	require.NoError(t, store.Put(ctx, "acq/.array", []byte("{}")))
	require.NoError(t, store.Put(ctx, "units/id", []byte{1}))

	blob, err := store.Open(ctx, "acq/data")
	require.NoError(t, err)
	defer blob.Close()
	assert.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 5)
	n, err := blob.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf))

	rc, err := blob.ReadRange(ctx, 13, 4)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "this", string(got))

	// Ranges are clamped to the blob size.
	rc, err = blob.ReadRange(ctx, int64(len(data))-4, 100)
	require.NoError(t, err)
	got, err = io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "blob", string(got))

	full, err := ReadFull(ctx, blob, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(full))

	_, err = ReadFull(ctx, blob, int64(len(data))-2, 10)
	assert.Error(t, err)

	names, err := store.List(ctx, "acq/")
	require.NoError(t, err)
	assert.Equal(t, []string{"acq/.array", "acq/data"}, names)

	_, err = store.Open(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	testStore(t, NewLocalStore(dir))

	_, err := os.Stat(filepath.Join(dir, "acq", "data"))
	require.NoError(t, err)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "x", []byte("abc")))

	blob, err := store.Open(ctx, "x")
	require.NoError(t, err)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = blob.ReadRange(cctx, 0, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_ChangedAfterOpen(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "x", []byte("v1")))

	blob, err := store.Open(ctx, "x")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "x", []byte("v2")))

	_, err = blob.ReadRange(ctx, 0, 2)
	assert.ErrorIs(t, err, ErrChanged)

	blob, err = store.Open(ctx, "x")
	require.NoError(t, err)
	got, err := ReadFull(ctx, blob, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))
}

func TestMemoryStore_Latency(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "x", []byte("abcdef")))
	store.SetLatency(time.Hour)

	blob, err := store.Open(ctx, "x")
	require.NoError(t, err)

	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = blob.ReadRange(cctx, 0, 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, ReadStats{}, store.Stats())

	store.SetLatency(0)
	_, err = ReadFull(ctx, blob, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, ReadStats{Ranges: 1, Bytes: 3}, store.Stats())
}

func TestLocalBlob_Mappable(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "m", []byte("mapped")))

	blob, err := store.Open(ctx, "m")
	require.NoError(t, err)
	defer blob.Close()

	m, ok := blob.(Mappable)
	require.True(t, ok)
	b, err := m.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "mapped", string(b))
}
