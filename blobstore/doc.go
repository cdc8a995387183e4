// Package blobstore provides the range-read transport under dataset handles.
//
// BlobStore is the interface for reading and writing immutable blobs (raw
// array data and dataset descriptors). Implementations must be safe for
// concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-memory, for tests and demos
//   - LocalStore: local filesystem with mmap
//   - minio.Store: MinIO and other S3-compatible storage
//   - s3.Store: Amazon S3
//
// Remote backends implement ReadRange as a single ranged GET; cancelling the
// context aborts the request. That is what makes a window load cancellable.
//
// Open pins the version of the blob it sees (ETag on object stores). A
// range read after the blob was replaced fails with ErrChanged.
package blobstore
