package wire

import (
	"fmt"
	"reflect"
)

// Stream payloads travel as typed slices ([]Char, []uint8, []int16, ...).
// The helpers below let the stream engine split and join them without
// knowing the element type.

// SliceLen returns the length of a slice or array value, or -1 if v is neither.
func SliceLen(v any) int {
	if v == nil {
		return -1
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return -1
	}
	return rv.Len()
}

// SliceChunk returns v[offset:offset+size] as a new slice of the same type.
// Elements past the end of v are filled with pad, or the zero value when pad
// is nil.
func SliceChunk(v any, offset, size int, pad any) (any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: expected slice, got %T", ErrInvalidValue, v)
	}

	elem := rv.Type().Elem()
	out := reflect.MakeSlice(reflect.SliceOf(elem), size, size)

	var padValue reflect.Value
	if pad != nil {
		pv := reflect.ValueOf(pad)
		if !pv.Type().ConvertibleTo(elem) {
			return nil, fmt.Errorf("%w: padding %T does not convert to %s", ErrInvalidValue, pad, elem)
		}
		padValue = pv.Convert(elem)
	}

	for i := 0; i < size; i++ {
		switch {
		case offset+i < rv.Len():
			out.Index(i).Set(rv.Index(offset + i))
		case padValue.IsValid():
			out.Index(i).Set(padValue)
		}
	}
	return out.Interface(), nil
}

// SliceAppend appends the elements of tail to head. A nil head adopts a
// copy of tail.
func SliceAppend(head, tail any) (any, error) {
	tv := reflect.ValueOf(tail)
	if tv.Kind() != reflect.Slice && tv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: expected slice, got %T", ErrInvalidValue, tail)
	}
	tv = asSlice(tv)

	if head == nil {
		out := reflect.MakeSlice(tv.Type(), 0, tv.Len())
		return reflect.AppendSlice(out, tv).Interface(), nil
	}

	hv := reflect.ValueOf(head)
	if hv.Kind() != reflect.Slice || hv.Type().Elem() != tv.Type().Elem() {
		return nil, fmt.Errorf("%w: cannot append %T to %T", ErrInvalidValue, tail, head)
	}
	return reflect.AppendSlice(hv, tv).Interface(), nil
}

func asSlice(rv reflect.Value) reflect.Value {
	if rv.Kind() == reflect.Slice {
		return rv
	}
	out := reflect.MakeSlice(reflect.SliceOf(rv.Type().Elem()), rv.Len(), rv.Len())
	reflect.Copy(out, rv)
	return out
}

// SliceTruncate returns v[:n] when v is longer than n, else v unchanged.
func SliceTruncate(v any, n int) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Len() <= n {
		return v
	}
	return rv.Slice(0, n).Interface()
}
