package resource

import (
	"context"
	"io"
)

// RateLimitedReader charges every byte it returns against the
// controller's IO limit. A nil controller reads unthrottled.
type RateLimitedReader struct {
	ctx context.Context
	r   io.Reader
	rc  *Controller
}

// NewRateLimitedReader wraps r. ctx bounds the time spent waiting for
// the limiter, not the underlying read.
func NewRateLimitedReader(ctx context.Context, r io.Reader, rc *Controller) *RateLimitedReader {
	return &RateLimitedReader{ctx: ctx, r: r, rc: rc}
}

// Read reads first and then waits until the limiter admits the bytes
// read, so short reads are charged for what they returned.
func (r *RateLimitedReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		if werr := r.rc.AcquireIO(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
