package cache

import "github.com/hupe1980/arraywin/dataset"

// Chunk is a contiguous row range of a dataset, fetched and cached as a unit.
// Data is indexed [column][row]; len(Data) == len(Columns) and every column
// holds Rows.Len() values. A chunk must not be mutated once stored.
type Chunk struct {
	Index   int
	Rows    dataset.Range
	Columns []int
	Data    [][]float64
}

// NumRows returns the number of dataset rows in the chunk.
func (c Chunk) NumRows() int {
	return c.Rows.Len()
}

// NumColumns returns the number of columns actually fetched.
func (c Chunk) NumColumns() int {
	return len(c.Columns)
}

// SizeBytes estimates the memory held by the chunk's values.
func (c Chunk) SizeBytes() int64 {
	return int64(c.NumRows())*int64(c.NumColumns())*8 + int64(len(c.Columns))*8
}
