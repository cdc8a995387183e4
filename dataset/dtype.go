package dataset

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Dtype is a numeric element type in NumPy array-protocol typestr form:
// one byte-order character ('<', '>', '|'), one basic-type character
// ('b', 'i', 'u', 'f') and the element size in bytes, e.g. "<f8" or "|u1".
type Dtype struct {
	ByteOrder ByteOrder
	BasicType BasicType
	ByteSize  int
}

var (
	_ json.Unmarshaler = (*Dtype)(nil)
	_ json.Marshaler   = (*Dtype)(nil)
)

// Common dtypes.
var (
	Float64 = Dtype{ByteOrder: BOLittleEndian, BasicType: BTFloatingPoint, ByteSize: 8}
	Float32 = Dtype{ByteOrder: BOLittleEndian, BasicType: BTFloatingPoint, ByteSize: 4}
	Int16   = Dtype{ByteOrder: BOLittleEndian, BasicType: BTInteger, ByteSize: 2}
	Int32   = Dtype{ByteOrder: BOLittleEndian, BasicType: BTInteger, ByteSize: 4}
	Int64   = Dtype{ByteOrder: BOLittleEndian, BasicType: BTInteger, ByteSize: 8}
)

// ParseDtype parses a typestr such as "<f8".
func ParseDtype(s string) (Dtype, error) {
	// some writers HTML-escape the byte order when serializing JSON
	s = strings.Replace(s, "&lt;", "<", 1)
	s = strings.Replace(s, "&gt;", ">", 1)

	var dt Dtype
	if len(s) < 3 {
		return dt, fmt.Errorf("%w: %q is too short", ErrUnsupportedDtype, s)
	}

	bo, err := ParseByteOrder(rune(s[0]))
	if err != nil {
		return dt, err
	}
	bt, err := ParseBasicType(rune(s[1]))
	if err != nil {
		return dt, err
	}
	size, err := strconv.Atoi(s[2:])
	if err != nil {
		return dt, fmt.Errorf("%w: bad size in %q", ErrUnsupportedDtype, s)
	}

	dt = Dtype{ByteOrder: bo, BasicType: bt, ByteSize: size}
	if err := dt.Validate(); err != nil {
		return Dtype{}, err
	}
	return dt, nil
}

// Validate reports whether dt can be decoded to float64.
func (dt Dtype) Validate() error {
	ok := false
	switch dt.BasicType {
	case BTBoolean:
		ok = dt.ByteSize == 1
	case BTInteger, BTUnsigned:
		ok = dt.ByteSize == 1 || dt.ByteSize == 2 || dt.ByteSize == 4 || dt.ByteSize == 8
	case BTFloatingPoint:
		ok = dt.ByteSize == 4 || dt.ByteSize == 8
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedDtype, dt)
	}
	if dt.ByteSize > 1 && dt.ByteOrder == BONotRelevant {
		return fmt.Errorf("%w: %s needs an explicit byte order", ErrUnsupportedDtype, dt)
	}
	return nil
}

func (dt Dtype) String() string {
	return fmt.Sprintf("%c%c%d", dt.ByteOrder, dt.BasicType, dt.ByteSize)
}

func (dt Dtype) MarshalJSON() ([]byte, error) {
	return json.Marshal(dt.String())
}

func (dt *Dtype) UnmarshalJSON(d []byte) error {
	var s string
	if err := json.Unmarshal(d, &s); err != nil {
		return err
	}
	t, err := ParseDtype(s)
	if err != nil {
		return err
	}
	*dt = t
	return nil
}

func (dt Dtype) order() binary.ByteOrder {
	if dt.ByteOrder == BOBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Decode converts len(dst) packed elements from src into dst.
// src must hold at least len(dst)*ByteSize bytes.
func (dt Dtype) Decode(dst []float64, src []byte) error {
	if need := len(dst) * dt.ByteSize; len(src) < need {
		return fmt.Errorf("dataset: decode %s: have %d bytes, need %d", dt, len(src), need)
	}

	bo := dt.order()
	sz := dt.ByteSize
	for i := range dst {
		b := src[i*sz : (i+1)*sz]
		switch dt.BasicType {
		case BTFloatingPoint:
			if sz == 4 {
				dst[i] = float64(math.Float32frombits(bo.Uint32(b)))
			} else {
				dst[i] = math.Float64frombits(bo.Uint64(b))
			}
		case BTInteger:
			switch sz {
			case 1:
				dst[i] = float64(int8(b[0]))
			case 2:
				dst[i] = float64(int16(bo.Uint16(b)))
			case 4:
				dst[i] = float64(int32(bo.Uint32(b)))
			default:
				dst[i] = float64(int64(bo.Uint64(b)))
			}
		case BTUnsigned, BTBoolean:
			switch sz {
			case 1:
				dst[i] = float64(b[0])
			case 2:
				dst[i] = float64(bo.Uint16(b))
			case 4:
				dst[i] = float64(bo.Uint32(b))
			default:
				dst[i] = float64(bo.Uint64(b))
			}
		default:
			return fmt.Errorf("%w: %s", ErrUnsupportedDtype, dt)
		}
	}
	return nil
}

// Encode packs src into a new byte slice. Values are converted with Go's
// numeric conversion rules (truncation for integer types).
func (dt Dtype) Encode(src []float64) ([]byte, error) {
	if err := dt.Validate(); err != nil {
		return nil, err
	}

	bo := dt.order()
	sz := dt.ByteSize
	out := make([]byte, len(src)*sz)
	for i, v := range src {
		b := out[i*sz : (i+1)*sz]
		switch dt.BasicType {
		case BTFloatingPoint:
			if sz == 4 {
				bo.PutUint32(b, math.Float32bits(float32(v)))
			} else {
				bo.PutUint64(b, math.Float64bits(v))
			}
		case BTInteger:
			switch sz {
			case 1:
				b[0] = byte(int8(v))
			case 2:
				bo.PutUint16(b, uint16(int16(v)))
			case 4:
				bo.PutUint32(b, uint32(int32(v)))
			default:
				bo.PutUint64(b, uint64(int64(v)))
			}
		default:
			switch sz {
			case 1:
				b[0] = byte(v)
			case 2:
				bo.PutUint16(b, uint16(v))
			case 4:
				bo.PutUint32(b, uint32(v))
			default:
				bo.PutUint64(b, uint64(v))
			}
		}
	}
	return out, nil
}

type ByteOrder rune

const (
	BONotRelevant  ByteOrder = '|'
	BOLittleEndian ByteOrder = '<'
	BOBigEndian    ByteOrder = '>'
)

func ParseByteOrder(r rune) (ByteOrder, error) {
	switch o := ByteOrder(r); o {
	case BONotRelevant, BOLittleEndian, BOBigEndian:
		return o, nil
	}
	return 0, fmt.Errorf("%w: byte order %q", ErrUnsupportedDtype, r)
}

type BasicType rune

const (
	BTBoolean       BasicType = 'b'
	BTInteger       BasicType = 'i'
	BTUnsigned      BasicType = 'u'
	BTFloatingPoint BasicType = 'f'
)

func ParseBasicType(r rune) (BasicType, error) {
	switch t := BasicType(r); t {
	case BTBoolean, BTInteger, BTUnsigned, BTFloatingPoint:
		return t, nil
	}
	return 0, fmt.Errorf("%w: basic type %q", ErrUnsupportedDtype, r)
}
