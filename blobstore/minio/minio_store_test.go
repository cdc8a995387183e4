package minio

import (
	"context"
	"io"
	"testing"

	"github.com/hupe1980/arraywin/blobstore"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	client, err := minio.New("localhost:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	bucket := "test-arraywin"
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "test-prefix/")

	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "acq/data", data))
	defer func() { _ = store.Delete(ctx, "acq/data") }()

	blob, err := store.Open(ctx, "acq/data")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, len(data)+4)
	n, err := blob.ReadAt(ctx, buf, 0)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, data, buf[:n])

	rc, err := blob.ReadRange(ctx, 6, 5)
	require.NoError(t, err)
	part, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "minio", string(part))

	// A replaced object must not be read through the old handle.
	require.NoError(t, store.Put(ctx, "acq/data", []byte("replaced")))
	_, err = blob.ReadRange(ctx, 0, 4)
	assert.ErrorIs(t, err, blobstore.ErrChanged)

	names, err := store.List(ctx, "acq/")
	require.NoError(t, err)
	assert.Contains(t, names, "acq/data")

	require.NoError(t, store.Delete(ctx, "acq/data"))
	_, err = store.Open(ctx, "acq/data")
	require.Error(t, err)
}
