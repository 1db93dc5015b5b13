package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Codec errors.
var (
	// ErrInvalidFormat indicates a malformed format string.
	ErrInvalidFormat = errors.New("invalid format string")

	// ErrShortBuffer indicates the payload is shorter than the format requires.
	ErrShortBuffer = errors.New("payload too short for format")

	// ErrInvalidValue indicates a value that cannot be encoded under its token.
	ErrInvalidValue = errors.New("invalid value for format")

	// ErrValueCount indicates a value count that differs from the token count.
	ErrValueCount = errors.New("value count does not match format")
)

// Char is a single 8-bit character as carried by the 'c' format tag.
type Char byte

// String returns the character as a one-byte string.
func (c Char) String() string {
	return string([]byte{byte(c)})
}

// token is one parsed element of a format string.
type token struct {
	tag   byte
	count int
}

// width returns the number of bytes a single element of the tag occupies.
func width(tag byte) int {
	switch tag {
	case 's', 'c', 'b', 'B', '?':
		return 1
	case 'h', 'H':
		return 2
	case 'i', 'I', 'f':
		return 4
	case 'q', 'Q', 'd':
		return 8
	default:
		return 0
	}
}

// size returns the packed size of the token in bytes.
func (t token) size() int {
	if t.tag == '?' && t.count > 1 {
		return (t.count + 7) / 8
	}
	return width(t.tag) * t.count
}

// parseFormat splits a format string into tokens.
// An empty or whitespace-only format yields no tokens.
func parseFormat(format string) ([]token, error) {
	fields := strings.Fields(format)
	tokens := make([]token, 0, len(fields))

	for _, f := range fields {
		tag := f[0]
		if width(tag) == 0 {
			return nil, fmt.Errorf("%w: unknown tag %q", ErrInvalidFormat, tag)
		}

		count := 1
		if len(f) > 1 {
			n, err := strconv.Atoi(f[1:])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("%w: bad repeat count in %q", ErrInvalidFormat, f)
			}
			count = n
		}

		tokens = append(tokens, token{tag: tag, count: count})
	}

	return tokens, nil
}

// FormatSize returns the number of payload bytes the format describes.
func FormatSize(format string) (int, error) {
	tokens, err := parseFormat(format)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, t := range tokens {
		total += t.size()
	}
	return total, nil
}

// IsFalsy reports whether v encodes as false under the '?' tag.
//
// Zero numbers, false, nil and NaN are falsy; everything else is truthy.
// Daemons and the other language bindings rely on this mapping, so it must
// not be narrowed to plain bools.
func IsFalsy(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return !rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f == 0 || math.IsNaN(f)
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// Pack serializes values according to format.
// Each token consumes one element of values; tokens with a repeat count
// greater than one (other than strings) consume a slice or array.
func Pack(values []any, format string) ([]byte, error) {
	tokens, err := parseFormat(format)
	if err != nil {
		return nil, err
	}
	if len(values) != len(tokens) {
		return nil, fmt.Errorf("%w: %d values for %d tokens", ErrValueCount, len(values), len(tokens))
	}

	buf := make([]byte, 0, 64)
	for i, t := range tokens {
		buf, err = packToken(buf, t, values[i])
		if err != nil {
			return nil, fmt.Errorf("token %d (%c%d): %w", i, t.tag, t.count, err)
		}
	}
	return buf, nil
}

func packToken(buf []byte, t token, v any) ([]byte, error) {
	switch {
	case t.tag == 's':
		return packString(buf, t.count, v)

	case t.tag == '?' && t.count > 1:
		return packBits(buf, t.count, v)

	case t.count == 1:
		return packScalar(buf, t.tag, v)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: expected slice, got %T", ErrInvalidValue, v)
	}
	if rv.Len() > t.count {
		return nil, fmt.Errorf("%w: %d elements exceed count %d", ErrInvalidValue, rv.Len(), t.count)
	}

	var err error
	for j := 0; j < t.count; j++ {
		// Short slices are zero padded.
		var elem any
		if j < rv.Len() {
			elem = rv.Index(j).Interface()
		} else {
			elem = zeroFor(t.tag)
		}
		if buf, err = packScalar(buf, t.tag, elem); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func zeroFor(tag byte) any {
	switch tag {
	case 'c':
		return Char(0)
	case '?':
		return false
	case 'f', 'd':
		return 0.0
	default:
		return 0
	}
}

func packString(buf []byte, count int, v any) ([]byte, error) {
	var raw []byte
	switch s := v.(type) {
	case string:
		raw = []byte(s)
	case []byte:
		raw = s
	case []Char:
		raw = make([]byte, len(s))
		for i, c := range s {
			raw[i] = byte(c)
		}
	case nil:
	default:
		return nil, fmt.Errorf("%w: expected string, got %T", ErrInvalidValue, v)
	}

	for j := 0; j < count; j++ {
		if j < len(raw) {
			buf = append(buf, raw[j])
		} else {
			buf = append(buf, 0)
		}
	}
	return buf, nil
}

func packBits(buf []byte, count int, v any) ([]byte, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: expected bool slice, got %T", ErrInvalidValue, v)
	}

	bits := make([]byte, (count+7)/8)
	for j := 0; j < count && j < rv.Len(); j++ {
		if !IsFalsy(rv.Index(j).Interface()) {
			bits[j/8] |= 1 << (j % 8)
		}
	}
	return append(buf, bits...), nil
}

func packScalar(buf []byte, tag byte, v any) ([]byte, error) {
	le := binary.LittleEndian

	switch tag {
	case '?':
		if IsFalsy(v) {
			return append(buf, 0), nil
		}
		return append(buf, 1), nil

	case 'c':
		c, err := charValue(v)
		if err != nil {
			return nil, err
		}
		return append(buf, c), nil

	case 'f':
		f, err := floatValue(v)
		if err != nil {
			return nil, err
		}
		return le.AppendUint32(buf, math.Float32bits(float32(f))), nil

	case 'd':
		f, err := floatValue(v)
		if err != nil {
			return nil, err
		}
		return le.AppendUint64(buf, math.Float64bits(f)), nil
	}

	bits := width(tag) * 8
	signed := tag == 'b' || tag == 'h' || tag == 'i' || tag == 'q'

	u, err := integerValue(v, bits, signed)
	if err != nil {
		return nil, err
	}

	switch bits {
	case 8:
		return append(buf, byte(u)), nil
	case 16:
		return le.AppendUint16(buf, uint16(u)), nil
	case 32:
		return le.AppendUint32(buf, uint32(u)), nil
	default:
		return le.AppendUint64(buf, u), nil
	}
}

// integerValue range-checks v for a bits-wide integer and returns its
// two's complement bit pattern.
func integerValue(v any, bits int, signed bool) (uint64, error) {
	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if signed {
			lo := int64(-1) << (bits - 1)
			hi := -(lo + 1)
			if n < lo || n > hi {
				return 0, fmt.Errorf("%w: %d out of range for int%d", ErrInvalidValue, n, bits)
			}
		} else if n < 0 || (bits < 64 && uint64(n) > (uint64(1)<<bits)-1) {
			return 0, fmt.Errorf("%w: %d out of range for uint%d", ErrInvalidValue, n, bits)
		}
		return uint64(n), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n := rv.Uint()
		limit := uint64(math.MaxUint64)
		if signed {
			limit = (uint64(1) << (bits - 1)) - 1
		} else if bits < 64 {
			limit = (uint64(1) << bits) - 1
		}
		if n > limit {
			return 0, fmt.Errorf("%w: %d out of range for %d-bit integer", ErrInvalidValue, n, bits)
		}
		return n, nil

	case reflect.Bool:
		if rv.Bool() {
			return 1, nil
		}
		return 0, nil
	}

	return 0, fmt.Errorf("%w: expected integer, got %T", ErrInvalidValue, v)
}

func floatValue(v any) (float64, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	}
	return 0, fmt.Errorf("%w: expected float, got %T", ErrInvalidValue, v)
}

func charValue(v any) (byte, error) {
	switch c := v.(type) {
	case Char:
		return byte(c), nil
	case byte:
		return c, nil
	case rune:
		if c < 0 || c > 0xFF {
			return 0, fmt.Errorf("%w: rune %q is not an 8-bit char", ErrInvalidValue, c)
		}
		return byte(c), nil
	case string:
		if len(c) == 0 {
			return 0, nil
		}
		return c[0], nil
	}
	return 0, fmt.Errorf("%w: expected char, got %T", ErrInvalidValue, v)
}

// Unpack deserializes data according to format.
//
// Scalars come back as their Go type (int8, uint16, float32, Char, bool,
// string, ...); tokens with a repeat count greater than one come back as
// typed slices. Strings stop at the first NUL but the cursor always
// advances by the full field width.
func Unpack(data []byte, format string) ([]any, error) {
	tokens, err := parseFormat(format)
	if err != nil {
		return nil, err
	}

	values := make([]any, 0, len(tokens))
	off := 0
	for i, t := range tokens {
		n := t.size()
		if off+n > len(data) {
			return nil, fmt.Errorf("%w: token %d needs %d bytes at offset %d, have %d",
				ErrShortBuffer, i, n, off, len(data))
		}
		values = append(values, unpackToken(data[off:off+n], t))
		off += n
	}
	return values, nil
}

func unpackToken(b []byte, t token) any {
	switch {
	case t.tag == 's':
		if i := indexNUL(b); i >= 0 {
			b = b[:i]
		}
		return string(b)

	case t.tag == '?' && t.count > 1:
		out := make([]bool, t.count)
		for j := range out {
			out[j] = b[j/8]&(1<<(j%8)) != 0
		}
		return out

	case t.count == 1:
		return unpackScalar(b, t.tag)
	}

	w := width(t.tag)
	switch t.tag {
	case 'c':
		out := make([]Char, t.count)
		for j := range out {
			out[j] = Char(b[j])
		}
		return out
	case '?':
		out := make([]bool, t.count)
		for j := range out {
			out[j] = b[j] != 0
		}
		return out
	case 'b':
		return unpackSlice[int8](b, t, w)
	case 'B':
		return unpackSlice[uint8](b, t, w)
	case 'h':
		return unpackSlice[int16](b, t, w)
	case 'H':
		return unpackSlice[uint16](b, t, w)
	case 'i':
		return unpackSlice[int32](b, t, w)
	case 'I':
		return unpackSlice[uint32](b, t, w)
	case 'q':
		return unpackSlice[int64](b, t, w)
	case 'Q':
		return unpackSlice[uint64](b, t, w)
	case 'f':
		return unpackSlice[float32](b, t, w)
	default:
		return unpackSlice[float64](b, t, w)
	}
}

func unpackSlice[T any](b []byte, t token, w int) []T {
	out := make([]T, t.count)
	for j := range out {
		out[j] = unpackScalar(b[j*w:(j+1)*w], t.tag).(T)
	}
	return out
}

func unpackScalar(b []byte, tag byte) any {
	le := binary.LittleEndian

	switch tag {
	case 'c':
		return Char(b[0])
	case '?':
		return b[0] != 0
	case 'b':
		return int8(b[0])
	case 'B':
		return b[0]
	case 'h':
		return int16(le.Uint16(b))
	case 'H':
		return le.Uint16(b)
	case 'i':
		return int32(le.Uint32(b))
	case 'I':
		return le.Uint32(b)
	case 'q':
		return int64(le.Uint64(b))
	case 'Q':
		return le.Uint64(b)
	case 'f':
		return math.Float32frombits(le.Uint32(b))
	default:
		return math.Float64frombits(le.Uint64(b))
	}
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}
