package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedDtype is returned for element types that cannot be read as float64.
	ErrUnsupportedDtype = errors.New("dataset: unsupported dtype")
	// ErrOutOfBounds is returned when a read range falls outside the dataset shape.
	ErrOutOfBounds = errors.New("dataset: range out of bounds")
	// ErrInvalidDescriptor is returned for descriptors with a bad shape or path.
	ErrInvalidDescriptor = errors.New("dataset: invalid descriptor")
)

// Range is a half-open index interval [Start, End).
type Range struct {
	Start int
	End   int
}

// Len returns the number of indices in r.
func (r Range) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Descriptor describes a remote array. It is immutable once obtained.
type Descriptor struct {
	Path  string         `json:"path"`
	Shape []int          `json:"shape"`
	Dtype Dtype          `json:"dtype"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Validate checks that the descriptor is usable for windowed reads:
// one or two dimensions, every size non-negative, supported dtype.
func (d Descriptor) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidDescriptor)
	}
	if len(d.Shape) == 0 || len(d.Shape) > 2 {
		return fmt.Errorf("%w: %s has rank %d, want 1 or 2", ErrInvalidDescriptor, d.Path, len(d.Shape))
	}
	for _, n := range d.Shape {
		if n < 0 {
			return fmt.Errorf("%w: %s has negative dimension", ErrInvalidDescriptor, d.Path)
		}
	}
	return d.Dtype.Validate()
}

// Rows returns the length of the first (time) dimension.
func (d Descriptor) Rows() int {
	if len(d.Shape) == 0 {
		return 0
	}
	return d.Shape[0]
}

// Columns returns the length of the second dimension, or 1 for a 1-D array.
func (d Descriptor) Columns() int {
	if len(d.Shape) < 2 {
		return 1
	}
	return d.Shape[1]
}

// RowBytes returns the encoded size of one row.
func (d Descriptor) RowBytes() int64 {
	return int64(d.Columns()) * int64(d.Dtype.ByteSize)
}

// Float returns a numeric attribute such as "rate".
func (d Descriptor) Float(name string) (float64, bool) {
	switch v := d.Attrs[name].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func (d Descriptor) checkRange(rows, cols Range) error {
	if rows.Start < 0 || rows.End > d.Rows() || rows.Start > rows.End {
		return fmt.Errorf("%w: rows %s of %d", ErrOutOfBounds, rows, d.Rows())
	}
	if cols.Start < 0 || cols.End > d.Columns() || cols.Start > cols.End {
		return fmt.Errorf("%w: columns %s of %d", ErrOutOfBounds, cols, d.Columns())
	}
	return nil
}
