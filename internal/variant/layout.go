package variant

import (
	"encoding/binary"
	"fmt"
	"math"
)

// CacheLineSize is the cache line size payload capacity is planned against.
const CacheLineSize = 64

// DefaultMaxPayload is the default inline payload cap: two cache lines.
const DefaultMaxPayload = 2 * CacheLineSize

// AlignSize rounds size up to the given power-of-two alignment.
func AlignSize(size, align int) int {
	if align <= 1 {
		return size
	}
	return (size + align - 1) &^ (align - 1)
}

// Kind is the scalar type of a payload field. Payload bytes are little-endian.
type Kind uint8

const (
	Int8 Kind = iota + 1
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
)

var kindNames = map[Kind]string{
	Int8:    "int8",
	Uint8:   "uint8",
	Int16:   "int16",
	Uint16:  "uint16",
	Int32:   "int32",
	Uint32:  "uint32",
	Int64:   "int64",
	Uint64:  "uint64",
	Float32: "float32",
	Float64: "float64",
}

// String returns the type name used in variant definitions.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Size returns the width of the kind in bytes, or 0 for an invalid kind.
func (k Kind) Size() int {
	switch k {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

// ParseKind maps a type name ("float32", "uint16", ...) to a Kind.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Field is one named scalar inside a payload.
type Field struct {
	Name   string
	Kind   Kind
	Offset int // assigned by Struct
}

// Layout describes the byte layout of a variant payload.
//
// A Layout built by Struct has named fields at naturally aligned offsets.
// A Layout built by Raw is opaque: only Size and Align are meaningful.
type Layout struct {
	Size   int
	Align  int
	Fields []Field
}

// Struct lays out fields in declaration order with natural alignment, the
// way a C compiler would. The size is padded to the layout's alignment.
// Fields with an invalid Kind are laid out as zero-width and rejected by
// Validate.
func Struct(fields ...Field) Layout {
	l := Layout{Align: 1, Fields: make([]Field, len(fields))}
	offset := 0
	for i, f := range fields {
		sz := f.Kind.Size()
		if sz > 0 {
			offset = AlignSize(offset, sz)
			if sz > l.Align {
				l.Align = sz
			}
		}
		f.Offset = offset
		l.Fields[i] = f
		offset += sz
	}
	l.Size = AlignSize(offset, l.Align)
	return l
}

// Raw describes an opaque payload of size bytes with the given alignment.
func Raw(size, align int) Layout {
	if align < 1 {
		align = 1
	}
	return Layout{Size: size, Align: align}
}

// Validate checks that the layout is internally consistent.
func (l Layout) Validate() error {
	if l.Size < 0 {
		return fmt.Errorf("negative payload size %d", l.Size)
	}
	if l.Align < 1 || l.Align&(l.Align-1) != 0 {
		return fmt.Errorf("alignment %d is not a power of two", l.Align)
	}
	seen := make(map[string]bool, len(l.Fields))
	for i, f := range l.Fields {
		if f.Name == "" {
			return fmt.Errorf("field %d has no name", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		if f.Kind.Size() == 0 {
			return fmt.Errorf("field %q has invalid kind %s", f.Name, f.Kind)
		}
		if f.Offset+f.Kind.Size() > l.Size {
			return fmt.Errorf("field %q overruns payload size %d", f.Name, l.Size)
		}
	}
	return nil
}

// FieldIndex returns the index of the named field, or -1.
func (l Layout) FieldIndex(name string) int {
	for i, f := range l.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Float reads field i of payload as a float64.
// payload must be at least l.Size bytes.
func (l Layout) Float(payload []byte, i int) float64 {
	f := l.Fields[i]
	b := payload[f.Offset:]
	switch f.Kind {
	case Int8:
		return float64(int8(b[0]))
	case Uint8:
		return float64(b[0])
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case Uint16:
		return float64(binary.LittleEndian.Uint16(b))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case Uint32:
		return float64(binary.LittleEndian.Uint32(b))
	case Int64:
		return float64(int64(binary.LittleEndian.Uint64(b)))
	case Uint64:
		return float64(binary.LittleEndian.Uint64(b))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	default:
		return 0
	}
}

// Encode packs named values into a payload of exactly l.Size bytes.
// Fields absent from values are zero. Unknown names are an error, and so
// are non-integral values for integer fields.
func (l Layout) Encode(values map[string]float64) ([]byte, error) {
	buf := make([]byte, l.Size)
	for name := range values {
		if l.FieldIndex(name) < 0 {
			return nil, fmt.Errorf("unknown field %q", name)
		}
	}
	for _, f := range l.Fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		if err := putField(buf[f.Offset:], f, v); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// Decode unpacks every field of payload into a name -> value map.
func (l Layout) Decode(payload []byte) (map[string]float64, error) {
	if len(payload) < l.Size {
		return nil, fmt.Errorf("payload is %d bytes, layout needs %d", len(payload), l.Size)
	}
	out := make(map[string]float64, len(l.Fields))
	for i, f := range l.Fields {
		out[f.Name] = l.Float(payload, i)
	}
	return out, nil
}

func putField(b []byte, f Field, v float64) error {
	if f.Kind != Float32 && f.Kind != Float64 && v != math.Trunc(v) {
		return fmt.Errorf("field %q (%s): %v is not integral", f.Name, f.Kind, v)
	}
	switch f.Kind {
	case Int8:
		if v < math.MinInt8 || v > math.MaxInt8 {
			return rangeErr(f, v)
		}
		b[0] = byte(int8(v))
	case Uint8:
		if v < 0 || v > math.MaxUint8 {
			return rangeErr(f, v)
		}
		b[0] = uint8(v)
	case Int16:
		if v < math.MinInt16 || v > math.MaxInt16 {
			return rangeErr(f, v)
		}
		binary.LittleEndian.PutUint16(b, uint16(int16(v)))
	case Uint16:
		if v < 0 || v > math.MaxUint16 {
			return rangeErr(f, v)
		}
		binary.LittleEndian.PutUint16(b, uint16(v))
	case Int32:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return rangeErr(f, v)
		}
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
	case Uint32:
		if v < 0 || v > math.MaxUint32 {
			return rangeErr(f, v)
		}
		binary.LittleEndian.PutUint32(b, uint32(v))
	case Int64:
		binary.LittleEndian.PutUint64(b, uint64(int64(v)))
	case Uint64:
		if v < 0 {
			return rangeErr(f, v)
		}
		binary.LittleEndian.PutUint64(b, uint64(v))
	case Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case Float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	default:
		return fmt.Errorf("field %q has invalid kind %s", f.Name, f.Kind)
	}
	return nil
}

func rangeErr(f Field, v float64) error {
	return fmt.Errorf("field %q (%s): %v out of range", f.Name, f.Kind, v)
}
