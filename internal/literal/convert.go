package literal

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/roach88/collcheck/internal/shapes"
)

// FromValue builds a literal of shape from a decoded document value, as
// produced by YAML, JSON, CUE or HCL decoders:
//   - scalars accept numbers, bools (pred) and the strings "nan", "inf", "-inf"
//   - arrays accept a flat list or nested lists matching the dimensions
//   - tuples accept a list with one entry per element
//   - tokens accept nil or the string "token"
func FromValue(shape shapes.Shape, v any) (*Literal, error) {
	switch {
	case shape.IsTuple():
		items, ok := v.([]any)
		if !ok {
			return nil, errors.Errorf("tuple %s needs a list, got %T", shape, v)
		}
		if len(items) != shape.TupleSize() {
			return nil, errors.Errorf("tuple %s needs %d elements, got %d", shape, shape.TupleSize(), len(items))
		}
		elems := make([]*Literal, len(items))
		for i, item := range items {
			e, err := FromValue(shape.TupleShapes[i], item)
			if err != nil {
				return nil, errors.WithMessagef(err, "tuple element %d", i)
			}
			elems[i] = e
		}
		return Tuple(elems...), nil
	case shape.IsToken():
		if v == nil || v == "token" {
			return Token(), nil
		}
		return nil, errors.Errorf("token value must be empty, got %v", v)
	case !shape.Ok():
		return nil, errors.New("invalid shape")
	}

	flat := flatten(v, nil)
	if len(flat) != shape.Size() {
		return nil, errors.Errorf("%s needs %d values, got %d", shape, shape.Size(), len(flat))
	}
	l := Zeros(shape)
	for i, item := range flat {
		if shape.DType.IsFloat() {
			f, err := toFloat(item)
			if err != nil {
				return nil, errors.WithMessagef(err, "%s value %d", shape, i)
			}
			l.floats[i] = roundFloat(shape.DType, f)
			continue
		}
		n, err := toInt(shape.DType, item)
		if err != nil {
			return nil, errors.WithMessagef(err, "%s value %d", shape, i)
		}
		l.ints[i] = n
	}
	return l, nil
}

func flatten(v any, out []any) []any {
	items, ok := v.([]any)
	if !ok {
		return append(out, v)
	}
	for _, item := range items {
		out = flatten(item, out)
	}
	return out
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case json.Number:
		return toFloat(string(x))
	case string:
		switch strings.ToLower(x) {
		case "nan":
			return math.NaN(), nil
		case "inf", "+inf":
			return math.Inf(1), nil
		case "-inf":
			return math.Inf(-1), nil
		}
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, errors.Errorf("invalid float %q", x)
		}
		return f, nil
	}
	return 0, errors.Errorf("expected a number, got %T", v)
}

func toInt(dtype shapes.DType, v any) (int64, error) {
	var n int64
	switch x := v.(type) {
	case bool:
		if dtype != shapes.Pred {
			return 0, errors.Errorf("bool value for %s", dtype)
		}
		if x {
			return 1, nil
		}
		return 0, nil
	case int:
		n = int64(x)
	case int64:
		n = x
	case uint64:
		if x > math.MaxInt64 {
			if dtype != shapes.U64 {
				return 0, errors.Errorf("value %d overflows %s", x, dtype)
			}
			return int64(x), nil
		}
		n = int64(x)
	case float64:
		if x != math.Trunc(x) {
			return 0, errors.Errorf("non-integral value %v for %s", x, dtype)
		}
		// 2^63 and 2^64 are exact in float64.
		if dtype == shapes.U64 && x >= 0 && x < 1<<64 {
			return int64(uint64(x)), nil
		}
		if x < math.MinInt64 || x >= 1<<63 {
			return 0, errors.Errorf("value %v overflows %s", x, dtype)
		}
		n = int64(x)
	case json.Number:
		return toInt(dtype, string(x))
	case string:
		if dtype == shapes.U64 {
			if u, err := strconv.ParseUint(x, 0, 64); err == nil {
				return int64(u), nil
			}
		}
		parsed, err := strconv.ParseInt(x, 0, 64)
		if err != nil {
			return 0, errors.Errorf("invalid integer %q", x)
		}
		n = parsed
	default:
		return 0, errors.Errorf("expected an integer, got %T", v)
	}
	if dtype != shapes.Pred && dtype != shapes.S64 && dtype != shapes.U64 && wrapInt(dtype, n) != n {
		return 0, errors.Errorf("value %d overflows %s", n, dtype)
	}
	if dtype.IsUnsigned() && n < 0 {
		return 0, errors.Errorf("negative value %d for %s", n, dtype)
	}
	return wrapInt(dtype, n), nil
}
