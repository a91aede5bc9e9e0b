package netcdf

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// flatten converts the nested slices returned by the NetCDF reader into a
// row-major []float64 and its shape. A scalar has an empty shape.
func flatten(v any) ([]float64, []int, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, nil, errors.New("no values")
	}
	var shape []int
	for t := rv; t.Kind() == reflect.Slice || t.Kind() == reflect.Array; {
		shape = append(shape, t.Len())
		if t.Len() == 0 {
			break
		}
		t = t.Index(0)
	}

	n := 1
	for _, d := range shape {
		n *= d
	}
	out := make([]float64, 0, n)
	var walk func(reflect.Value, int) error
	walk = func(v reflect.Value, depth int) error {
		if depth == len(shape) {
			x, err := number(v)
			if err != nil {
				return err
			}
			out = append(out, x)
			return nil
		}
		if v.Len() != shape[depth] {
			return fmt.Errorf("ragged array at depth %d: %d != %d", depth, v.Len(), shape[depth])
		}
		for i := range v.Len() {
			if err := walk(v.Index(i), depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(rv, 0); err != nil {
		return nil, nil, err
	}
	return out, shape, nil
}

func number(v reflect.Value) (float64, error) {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), nil
	case reflect.Interface:
		return number(v.Elem())
	default:
		return 0, fmt.Errorf("non-numeric value of kind %s", v.Kind())
	}
}

// numericAttr reads a numeric attribute that may be stored as a scalar or a
// one-element array.
func numericAttr(attrs api.AttributeMap, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	raw, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	vals, _, err := flatten(raw)
	if err != nil || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

func stringAttr(attrs api.AttributeMap, key string) string {
	if attrs == nil {
		return ""
	}
	raw, ok := attrs.Get(key)
	if !ok {
		return ""
	}
	s, _ := raw.(string)
	return s
}

// unpack replaces fill and missing values with NaN and applies CF
// scale_factor / add_offset packing.
func unpack(values []float64, attrs api.AttributeMap) {
	var sentinels []float64
	for _, key := range []string{"_FillValue", "missing_value"} {
		if x, ok := numericAttr(attrs, key); ok {
			sentinels = append(sentinels, x)
		}
	}
	scale, hasScale := numericAttr(attrs, "scale_factor")
	if !hasScale {
		scale = 1
	}
	offset, _ := numericAttr(attrs, "add_offset")

	for i, v := range values {
		for _, s := range sentinels {
			if v == s {
				v = math.NaN()
				break
			}
		}
		values[i] = v*scale + offset
	}
}

// transpose reorders a row-major array of the given shape so that source
// dimension order[k] becomes output dimension k.
func transpose(values []float64, shape, order []int) []float64 {
	strides := make([]int, len(shape))
	stride := 1
	for d := len(shape) - 1; d >= 0; d-- {
		strides[d] = stride
		stride *= shape[d]
	}

	outShape := make([]int, len(order))
	outStrides := make([]int, len(order))
	for k, d := range order {
		outShape[k] = shape[d]
		outStrides[k] = strides[d]
	}

	out := make([]float64, len(values))
	idx := make([]int, len(order))
	for i := range out {
		src := 0
		for k, x := range idx {
			src += x * outStrides[k]
		}
		out[i] = values[src]
		for k := len(idx) - 1; k >= 0; k-- {
			idx[k]++
			if idx[k] < outShape[k] {
				break
			}
			idx[k] = 0
		}
	}
	return out
}
