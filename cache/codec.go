package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/arraywin/dataset"
)

// Compression selects the block codec for chunks written to disk.
type Compression uint8

const (
	// CompressionNone stores chunks uncompressed.
	CompressionNone Compression = 0
	// CompressionLZ4 is fast block compression, good for hot data.
	CompressionLZ4 Compression = 1
	// CompressionZSTD trades speed for a better ratio.
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	}
	return 0, fmt.Errorf("cache: unknown compression %q", s)
}

var errCorruptChunk = errors.New("cache: corrupt chunk encoding")

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Encoded layout:
//
//	[compression u8][uncompressed u32][compressed u32, 0 = raw][payload]
//
// payload: index u64, rowStart u64, rowEnd u64, ncols u32, ncols × column u32,
// then ncols × nrows little-endian float64 bits, column after column.
const headerSize = 9

func encodeChunk(c Chunk, comp Compression) ([]byte, error) {
	nrows := c.NumRows()
	if len(c.Data) != len(c.Columns) {
		return nil, fmt.Errorf("%w: %d data columns for %d column indices", errCorruptChunk, len(c.Data), len(c.Columns))
	}

	raw := make([]byte, 28+4*len(c.Columns)+8*nrows*len(c.Columns))
	binary.LittleEndian.PutUint64(raw[0:], uint64(c.Index))
	binary.LittleEndian.PutUint64(raw[8:], uint64(c.Rows.Start))
	binary.LittleEndian.PutUint64(raw[16:], uint64(c.Rows.End))
	binary.LittleEndian.PutUint32(raw[24:], uint32(len(c.Columns)))
	off := 28
	for _, col := range c.Columns {
		binary.LittleEndian.PutUint32(raw[off:], uint32(col))
		off += 4
	}
	for _, col := range c.Data {
		if len(col) != nrows {
			return nil, fmt.Errorf("%w: column has %d rows, want %d", errCorruptChunk, len(col), nrows)
		}
		for _, v := range col {
			binary.LittleEndian.PutUint64(raw[off:], math.Float64bits(v))
			off += 8
		}
	}

	return compressBlock(raw, comp)
}

func decodeChunk(b []byte) (Chunk, error) {
	raw, err := decompressBlock(b)
	if err != nil {
		return Chunk{}, err
	}
	if len(raw) < 28 {
		return Chunk{}, errCorruptChunk
	}

	c := Chunk{
		Index: int(binary.LittleEndian.Uint64(raw[0:])),
		Rows: dataset.Range{
			Start: int(binary.LittleEndian.Uint64(raw[8:])),
			End:   int(binary.LittleEndian.Uint64(raw[16:])),
		},
	}
	ncols := int(binary.LittleEndian.Uint32(raw[24:]))
	nrows := c.Rows.Len()
	if len(raw) != 28+4*ncols+8*nrows*ncols {
		return Chunk{}, errCorruptChunk
	}

	off := 28
	c.Columns = make([]int, ncols)
	for i := range c.Columns {
		c.Columns[i] = int(binary.LittleEndian.Uint32(raw[off:]))
		off += 4
	}
	c.Data = make([][]float64, ncols)
	for i := range c.Data {
		col := make([]float64, nrows)
		for j := range col {
			col[j] = math.Float64frombits(binary.LittleEndian.Uint64(raw[off:]))
			off += 8
		}
		c.Data[i] = col
	}
	return c, nil
}

// compressBlock stores data raw when compression does not save at least 10%.
func compressBlock(data []byte, comp Compression) ([]byte, error) {
	var compressed []byte

	switch comp {
	case CompressionNone:
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("cache: unknown compression %d", comp)
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, headerSize+len(data))
		out[0] = byte(CompressionNone)
		binary.LittleEndian.PutUint32(out[1:], uint32(len(data)))
		copy(out[headerSize:], data)
		return out, nil
	}

	out := make([]byte, headerSize+len(compressed))
	out[0] = byte(comp)
	binary.LittleEndian.PutUint32(out[1:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[5:], uint32(len(compressed)))
	copy(out[headerSize:], compressed)
	return out, nil
}

func decompressBlock(b []byte) ([]byte, error) {
	if len(b) < headerSize {
		return nil, errCorruptChunk
	}

	comp := Compression(b[0])
	uncompressedSize := binary.LittleEndian.Uint32(b[1:])
	compressedSize := binary.LittleEndian.Uint32(b[5:])

	if compressedSize == 0 {
		if uint32(len(b)-headerSize) != uncompressedSize {
			return nil, errCorruptChunk
		}
		return b[headerSize:], nil
	}
	if uint32(len(b)-headerSize) != compressedSize {
		return nil, errCorruptChunk
	}

	data := b[headerSize:]
	result := make([]byte, uncompressedSize)

	switch comp {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(data, result)
		if err != nil {
			return nil, err
		}
		if uint32(n) != uncompressedSize {
			return nil, errors.New("cache: decompressed size mismatch")
		}
		return result, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		decoded, err := dec.DecodeAll(data, result[:0])
		if err != nil {
			return nil, err
		}
		if uint32(len(decoded)) != uncompressedSize {
			return nil, errors.New("cache: decompressed size mismatch")
		}
		return decoded, nil
	}
	return nil, fmt.Errorf("%w: compression %d", errCorruptChunk, comp)
}
