package arraywin

import (
	"errors"
	"fmt"

	"github.com/hupe1980/arraywin/blobstore"
	"github.com/hupe1980/arraywin/dataset"
	"github.com/hupe1980/arraywin/viewer"
	"github.com/hupe1980/arraywin/window"
)

var (
	// ErrCancelled is returned when a load is abandoned. It is expected and
	// should not be surfaced as a failure.
	ErrCancelled = window.ErrCancelled

	// ErrNotInitialized is returned when an operation runs before its
	// handle or cache exists.
	ErrNotInitialized = window.ErrNotInitialized

	// ErrInvalidWindow is returned for negative or inverted chunk ranges.
	ErrInvalidWindow = window.ErrInvalidWindow

	// ErrNotFound is returned when a dataset does not exist in the store.
	ErrNotFound = blobstore.ErrNotFound

	// ErrChanged is returned when a dataset blob was replaced while open.
	ErrChanged = blobstore.ErrChanged

	// ErrNoSamplingRate is returned when no sampling rate is configured or
	// stored with the dataset.
	ErrNoSamplingRate = errors.New("no sampling rate")

	// ErrClosed is returned by operations on a closed Series.
	ErrClosed = errors.New("series closed")
)

// FetchError reports a failed range read for one chunk.
type FetchError = window.FetchError

// ErrInvalidDataset indicates a dataset that cannot be served as a time
// series.
//
// The underlying error, if any, is available via errors.Unwrap.
type ErrInvalidDataset struct {
	Path  string
	cause error
}

func (e *ErrInvalidDataset) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("invalid dataset %q: %v", e.Path, e.cause)
	}
	return fmt.Sprintf("invalid dataset %q", e.Path)
}

func (e *ErrInvalidDataset) Unwrap() error { return e.cause }

// IsCancelled reports whether err is a cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

func translateError(path string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, dataset.ErrInvalidDescriptor) ||
		errors.Is(err, dataset.ErrUnsupportedDtype) ||
		errors.Is(err, viewer.ErrInvalidPlan) {
		return &ErrInvalidDataset{Path: path, cause: err}
	}
	return err
}
