// Package literal holds concrete program values: arrays of any supported
// dtype, synchronization tokens and tuples of literals.
//
// Numeric data is kept in a flat, row-major buffer normalized to the
// precision of the dtype: an f32 literal built from 0.1 stores float32(0.1),
// an s8 literal built from 300 stores int8(300). Comparisons and encodings
// therefore never see values the dtype could not represent.
package literal

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/roach88/collcheck/internal/shapes"
	"github.com/x448/float16"
)

// Literal is an immutable program value.
type Literal struct {
	shape shapes.Shape

	// floats holds data of float dtypes; ints holds pred, signed and unsigned
	// data (unsigned values are stored with their bit pattern).
	floats []float64
	ints   []int64
	elems  []*Literal
}

// Zeros returns the zero value of shape: zero-filled arrays, tokens, and
// tuples of zero values.
func Zeros(shape shapes.Shape) *Literal {
	if !shape.Ok() {
		exceptions.Panicf("literal.Zeros: invalid shape")
	}
	l := &Literal{shape: shape.Clone()}
	switch {
	case shape.IsTuple():
		l.elems = make([]*Literal, shape.TupleSize())
		for i, s := range shape.TupleShapes {
			l.elems[i] = Zeros(s)
		}
	case shape.IsToken():
	case shape.DType.IsFloat():
		l.floats = make([]float64, shape.Size())
	default:
		l.ints = make([]int64, shape.Size())
	}
	return l
}

// Token returns a synchronization token value.
func Token() *Literal {
	return &Literal{shape: shapes.TokenShape()}
}

// Tuple returns a tuple literal of elems.
func Tuple(elems ...*Literal) *Literal {
	elemShapes := make([]shapes.Shape, len(elems))
	for i, e := range elems {
		if e == nil {
			exceptions.Panicf("literal.Tuple: element %d is nil", i)
		}
		elemShapes[i] = e.shape
	}
	return &Literal{shape: shapes.MakeTuple(elemShapes...), elems: slices.Clone(elems)}
}

// FromFloat64s returns an array literal of a float or integer dtype from flat values.
// Values are converted to the precision of dtype.
func FromFloat64s(dtype shapes.DType, values []float64, dimensions ...int) *Literal {
	shape := shapes.Make(dtype, dimensions...)
	if len(values) != shape.Size() {
		exceptions.Panicf("literal.FromFloat64s(%s): got %d values", shape, len(values))
	}
	l := Zeros(shape)
	for i, v := range values {
		if dtype.IsFloat() {
			l.floats[i] = roundFloat(dtype, v)
		} else {
			l.ints[i] = wrapInt(dtype, int64(v))
		}
	}
	return l
}

// FromInt64s returns an array literal of a pred or integer dtype from flat values.
func FromInt64s(dtype shapes.DType, values []int64, dimensions ...int) *Literal {
	shape := shapes.Make(dtype, dimensions...)
	if len(values) != shape.Size() {
		exceptions.Panicf("literal.FromInt64s(%s): got %d values", shape, len(values))
	}
	if dtype.IsFloat() {
		floats := make([]float64, len(values))
		for i, v := range values {
			floats[i] = float64(v)
		}
		return FromFloat64s(dtype, floats, dimensions...)
	}
	l := Zeros(shape)
	for i, v := range values {
		l.ints[i] = wrapInt(dtype, v)
	}
	return l
}

// Scalar returns a rank-0 literal of dtype holding v.
func Scalar(dtype shapes.DType, v float64) *Literal {
	return FromFloat64s(dtype, []float64{v})
}

// F32 returns an f32 scalar.
func F32(v float32) *Literal { return Scalar(shapes.F32, float64(v)) }

// S32 returns an s32 scalar.
func S32(v int32) *Literal { return FromInt64s(shapes.S32, []int64{int64(v)}) }

// U32 returns a u32 scalar.
func U32(v uint32) *Literal { return FromInt64s(shapes.U32, []int64{int64(v)}) }

// Pred returns a pred scalar.
func Pred(v bool) *Literal {
	if v {
		return FromInt64s(shapes.Pred, []int64{1})
	}
	return FromInt64s(shapes.Pred, []int64{0})
}

// Shape returns the shape of the literal.
func (l *Literal) Shape() shapes.Shape { return l.shape }

// IsTuple returns whether l is a tuple.
func (l *Literal) IsTuple() bool { return l.shape.IsTuple() }

// IsToken returns whether l is a token.
func (l *Literal) IsToken() bool { return l.shape.IsToken() }

// TupleSize returns the number of elements of a tuple literal.
func (l *Literal) TupleSize() int { return len(l.elems) }

// Element returns the i-th element of a tuple literal. It panics if l is not a tuple
// or i is out of range.
func (l *Literal) Element(i int) *Literal {
	if !l.IsTuple() {
		exceptions.Panicf("literal.Element(%d) on non-tuple %s", i, l.shape)
	}
	if i < 0 || i >= len(l.elems) {
		exceptions.Panicf("literal.Element(%d) out of range for %s", i, l.shape)
	}
	return l.elems[i]
}

// Elements returns a copy of the elements of a tuple literal.
func (l *Literal) Elements() []*Literal { return slices.Clone(l.elems) }

// Float64s returns a copy of the flat data converted to float64.
func (l *Literal) Float64s() []float64 {
	if l.floats != nil {
		return slices.Clone(l.floats)
	}
	out := make([]float64, len(l.ints))
	for i, v := range l.ints {
		if l.shape.DType.IsUnsigned() {
			out[i] = float64(uint64(v))
		} else {
			out[i] = float64(v)
		}
	}
	return out
}

// Int64s returns a copy of the flat data of a pred or integer literal.
// Unsigned values are returned with their bit pattern.
func (l *Literal) Int64s() []int64 {
	if l.floats != nil {
		out := make([]int64, len(l.floats))
		for i, v := range l.floats {
			out[i] = int64(v)
		}
		return out
	}
	return slices.Clone(l.ints)
}

// Value returns a scalar literal as the natural Go value of its dtype
// (float32 for f32/f16/bf16, int32 for s32, uint32 for u32, bool for pred, ...).
// Arrays return a flat []any, tuples a []any of element values, tokens nil.
func (l *Literal) Value() any {
	switch {
	case l.IsTuple():
		out := make([]any, len(l.elems))
		for i, e := range l.elems {
			out[i] = e.Value()
		}
		return out
	case l.IsToken():
		return nil
	case l.shape.IsScalar():
		return l.scalarValue(0)
	}
	out := make([]any, l.shape.Size())
	for i := range out {
		out[i] = l.scalarValue(i)
	}
	return out
}

func (l *Literal) scalarValue(i int) any {
	switch l.shape.DType {
	case shapes.F16, shapes.BF16, shapes.F32:
		return float32(l.floats[i])
	case shapes.F64:
		return l.floats[i]
	case shapes.Pred:
		return l.ints[i] != 0
	case shapes.S8:
		return int8(l.ints[i])
	case shapes.S16:
		return int16(l.ints[i])
	case shapes.S32:
		return int32(l.ints[i])
	case shapes.S64:
		return l.ints[i]
	case shapes.U8:
		return uint8(l.ints[i])
	case shapes.U16:
		return uint16(l.ints[i])
	case shapes.U32:
		return uint32(l.ints[i])
	case shapes.U64:
		return uint64(l.ints[i])
	}
	return nil
}

// String returns the value in program text form, e.g. "f32[] 1" or "(f32[] 1, token[])".
func (l *Literal) String() string {
	var sb strings.Builder
	l.write(&sb)
	return sb.String()
}

func (l *Literal) write(sb *strings.Builder) {
	switch {
	case l.IsTuple():
		sb.WriteByte('(')
		for i, e := range l.elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.write(sb)
		}
		sb.WriteByte(')')
		return
	case l.IsToken():
		sb.WriteString(l.shape.String())
		return
	}
	sb.WriteString(l.shape.String())
	sb.WriteByte(' ')
	if l.shape.IsScalar() {
		sb.WriteString(l.formatElement(0))
		return
	}
	sb.WriteByte('{')
	for i := 0; i < l.shape.Size(); i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(l.formatElement(i))
	}
	sb.WriteByte('}')
}

func (l *Literal) formatElement(i int) string {
	dtype := l.shape.DType
	switch {
	case dtype.IsFloat():
		bits := 64
		if dtype != shapes.F64 {
			bits = 32
		}
		return formatFloat(l.floats[i], bits)
	case dtype == shapes.Pred:
		return strconv.FormatBool(l.ints[i] != 0)
	case dtype.IsUnsigned():
		return strconv.FormatUint(uint64(l.ints[i]), 10)
	default:
		return strconv.FormatInt(l.ints[i], 10)
	}
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

// roundFloat converts v to the precision of dtype.
func roundFloat(dtype shapes.DType, v float64) float64 {
	switch dtype {
	case shapes.F16:
		return float64(float16.Fromfloat32(float32(v)).Float32())
	case shapes.BF16:
		return float64(roundBFloat16(float32(v)))
	case shapes.F32:
		return float64(float32(v))
	}
	return v
}

// roundBFloat16 rounds f to the nearest bfloat16 (round half to even).
func roundBFloat16(f float32) float32 {
	if math.IsNaN(float64(f)) {
		return f
	}
	bits := math.Float32bits(f)
	bits += 0x7FFF + ((bits >> 16) & 1)
	return math.Float32frombits(bits & 0xFFFF0000)
}

// wrapInt truncates v to the width of dtype, as a two's complement conversion would.
func wrapInt(dtype shapes.DType, v int64) int64 {
	switch dtype {
	case shapes.Pred:
		if v != 0 {
			return 1
		}
		return 0
	case shapes.S8:
		return int64(int8(v))
	case shapes.S16:
		return int64(int16(v))
	case shapes.S32:
		return int64(int32(v))
	case shapes.U8:
		return int64(uint8(v))
	case shapes.U16:
		return int64(uint16(v))
	case shapes.U32:
		return int64(uint32(v))
	}
	return v
}

// ValueString returns the value without its shape, in the form accepted by
// constant(...) in program text: "1", "{1, 2}", "{{1, 2}, {3, 4}}", "(1, true)".
func (l *Literal) ValueString() string {
	var sb strings.Builder
	switch {
	case l.IsTuple():
		sb.WriteByte('(')
		for i, e := range l.elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(e.ValueString())
		}
		sb.WriteByte(')')
	case l.IsToken():
	default:
		next := 0
		l.writeNested(&sb, 0, &next)
	}
	return sb.String()
}

func (l *Literal) writeNested(sb *strings.Builder, axis int, next *int) {
	if axis == l.shape.Rank() {
		sb.WriteString(l.formatElement(*next))
		*next++
		return
	}
	sb.WriteByte('{')
	for i := 0; i < l.shape.Dimensions[axis]; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		l.writeNested(sb, axis+1, next)
	}
	sb.WriteByte('}')
}
