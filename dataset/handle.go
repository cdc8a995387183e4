package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"github.com/hupe1980/arraywin/blobstore"
	"github.com/hupe1980/arraywin/resource"
)

const (
	// DescriptorName is the blob holding the JSON descriptor under a dataset path.
	DescriptorName = ".array"
	// DataName is the blob holding the packed row-major elements.
	DataName = "data"
)

// Handle is the range-read contract the window engine consumes.
//
// Read returns the elements of rows × cols as a flat row-major buffer of
// length rows.Len()*cols.Len(). Cancelling ctx aborts an in-flight read.
type Handle interface {
	Descriptor() Descriptor
	Read(ctx context.Context, rows, cols Range) ([]float64, error)
}

// BlobHandle reads a packed row-major array stored in a blob.
type BlobHandle struct {
	desc Descriptor
	blob blobstore.Blob
	rc   *resource.Controller
}

var _ Handle = (*BlobHandle)(nil)

// OpenOption configures Open.
type OpenOption func(*BlobHandle)

// WithResourceController paces range reads through rc's IO limiter.
func WithResourceController(rc *resource.Controller) OpenOption {
	return func(h *BlobHandle) { h.rc = rc }
}

// Open reads the descriptor stored at p and opens the data blob beside it.
func Open(ctx context.Context, store blobstore.BlobStore, p string, optFns ...OpenOption) (*BlobHandle, error) {
	desc, err := ReadDescriptor(ctx, store, p)
	if err != nil {
		return nil, err
	}

	blob, err := store.Open(ctx, path.Join(p, DataName))
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s data: %w", p, err)
	}

	want := int64(desc.Rows()) * desc.RowBytes()
	if blob.Size() < want {
		_ = blob.Close()
		return nil, fmt.Errorf("%w: %s data has %d bytes, shape needs %d", ErrInvalidDescriptor, p, blob.Size(), want)
	}

	h := &BlobHandle{desc: desc, blob: blob}
	for _, fn := range optFns {
		fn(h)
	}
	return h, nil
}

// ReadDescriptor loads and validates the descriptor stored at p.
func ReadDescriptor(ctx context.Context, store blobstore.BlobStore, p string) (Descriptor, error) {
	var desc Descriptor

	b, err := store.Open(ctx, path.Join(p, DescriptorName))
	if err != nil {
		return desc, fmt.Errorf("dataset: open %s descriptor: %w", p, err)
	}
	defer func() { _ = b.Close() }()

	raw, err := blobstore.ReadFull(ctx, b, 0, b.Size())
	if err != nil {
		return desc, fmt.Errorf("dataset: read %s descriptor: %w", p, err)
	}
	if err := json.Unmarshal(raw, &desc); err != nil {
		return desc, fmt.Errorf("%w: %s: %w", ErrInvalidDescriptor, p, err)
	}
	if desc.Path == "" {
		desc.Path = p
	}
	if err := desc.Validate(); err != nil {
		return desc, err
	}
	return desc, nil
}

// Descriptor returns the dataset descriptor.
func (h *BlobHandle) Descriptor() Descriptor {
	return h.desc
}

// Read fetches whole rows with a single range read and keeps the requested
// columns.
func (h *BlobHandle) Read(ctx context.Context, rows, cols Range) ([]float64, error) {
	if err := h.desc.checkRange(rows, cols); err != nil {
		return nil, err
	}
	if rows.Len() == 0 || cols.Len() == 0 {
		return []float64{}, nil
	}

	rowBytes := h.desc.RowBytes()
	off := int64(rows.Start) * rowBytes
	length := int64(rows.Len()) * rowBytes

	rc, err := h.blob.ReadRange(ctx, off, length)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	var r io.Reader = rc
	if h.rc != nil {
		r = resource.NewRateLimitedReader(ctx, rc, h.rc)
	}

	raw := make([]byte, length)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, err
	}
	// A backend may finish the body before noticing cancellation.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ncols := h.desc.Columns()
	if cols.Start == 0 && cols.End == ncols {
		out := make([]float64, rows.Len()*ncols)
		if err := h.desc.Dtype.Decode(out, raw); err != nil {
			return nil, err
		}
		return out, nil
	}

	esize := h.desc.Dtype.ByteSize
	width := cols.Len()
	out := make([]float64, rows.Len()*width)
	for i := range rows.Len() {
		start := int64(i)*rowBytes + int64(cols.Start*esize)
		if err := h.desc.Dtype.Decode(out[i*width:(i+1)*width], raw[start:start+int64(width*esize)]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Version returns the version of the data blob pinned at Open, or "" when
// the store cannot name one.
func (h *BlobHandle) Version() string {
	return blobstore.VersionOf(h.blob)
}

// Size returns the size of the data blob in bytes.
func (h *BlobHandle) Size() int64 {
	return h.blob.Size()
}

// Close releases the data blob.
func (h *BlobHandle) Close() error {
	return h.blob.Close()
}

// Write stores desc and the row-major values as a dataset at desc.Path.
func Write(ctx context.Context, store blobstore.BlobStore, desc Descriptor, values []float64) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if want := desc.Rows() * desc.Columns(); len(values) != want {
		return fmt.Errorf("%w: %s has %d values, shape needs %d", ErrInvalidDescriptor, desc.Path, len(values), want)
	}

	data, err := desc.Dtype.Encode(values)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, path.Join(desc.Path, DataName), data); err != nil {
		return fmt.Errorf("dataset: write %s data: %w", desc.Path, err)
	}

	meta, err := json.Marshal(desc)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, path.Join(desc.Path, DescriptorName), meta); err != nil {
		return fmt.Errorf("dataset: write %s descriptor: %w", desc.Path, err)
	}
	return nil
}
