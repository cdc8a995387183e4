package window

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned when a load is abandoned through its token or
	// context. It is expected and should not be shown as a failure.
	ErrCancelled = errors.New("window: cancelled")

	// ErrNotInitialized is returned when the loader has no handle, no cache
	// or a non-positive chunk size. It indicates a caller ordering bug.
	ErrNotInitialized = errors.New("window: not initialized")

	// ErrInvalidWindow is returned for negative or inverted chunk ranges.
	ErrInvalidWindow = errors.New("window: invalid window")
)

// FetchError is returned when the range read for a chunk fails.
// It is not retried; nothing is cached for the chunk.
type FetchError struct {
	Index int
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("window: fetch chunk %d: %v", e.Index, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
