package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
)

var (
	// ErrNotFound is returned when a blob does not exist. It matches
	// os.ErrNotExist so local and remote misses compare equal.
	ErrNotFound = os.ErrNotExist

	// ErrChanged is returned by a range read when the blob was replaced
	// after it was opened. Chunks of two versions must never be mixed.
	ErrChanged = errors.New("blobstore: blob changed since open")
)

// BlobStore holds immutable blobs: packed array data and dataset descriptors.
type BlobStore interface {
	// Open returns a handle pinned to the current version of name.
	Open(ctx context.Context, name string) (Blob, error)
	// Put writes a blob atomically, replacing any previous version.
	Put(ctx context.Context, name string, data []byte) error
	// List returns the names under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to one version of a blob.
type Blob interface {
	io.Closer
	// ReadAt reads len(p) bytes at off. Semantics follow io.ReaderAt.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// ReadRange returns a reader for [off, off+length), clamped to Size.
	// Remote backends issue one ranged GET; cancelling ctx aborts it.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
	// Size returns the size of the blob in bytes.
	Size() int64
}

// Versioned is implemented by blobs that can name the version they are
// pinned to. The version changes whenever the blob is replaced.
type Versioned interface {
	Version() string
}

// VersionOf returns the pinned version of b, or "" when the backend cannot
// name one.
func VersionOf(b Blob) string {
	if v, ok := b.(Versioned); ok {
		return v.Version()
	}
	return ""
}

// Mappable is implemented by blobs backed by a memory mapping.
type Mappable interface {
	// Bytes returns the mapped bytes. They are valid until Close.
	Bytes() ([]byte, error)
}

// ReadFull reads exactly length bytes at off through ReadRange.
func ReadFull(ctx context.Context, b Blob, off, length int64) ([]byte, error) {
	rc, err := b.ReadRange(ctx, off, length)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	buf := make([]byte, length)
	if _, err := io.ReadFull(rc, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadAtRange implements Blob.ReadAt for blobs whose only primitive is a
// ranged read. A read crossing the end returns the available bytes and io.EOF.
func ReadAtRange(ctx context.Context, b Blob, p []byte, off int64) (int, error) {
	size := b.Size()
	if off >= size {
		return 0, io.EOF
	}

	want := min(int64(len(p)), size-off)
	rc, err := b.ReadRange(ctx, off, want)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()

	n, err := io.ReadFull(rc, p[:want])
	if err == nil && want < int64(len(p)) {
		err = io.EOF
	}
	return n, err
}

// EmptyRange returns a reader with no data, for ranges past the end.
func EmptyRange() io.ReadCloser {
	return io.NopCloser(strings.NewReader(""))
}
