package engine

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/roach88/collcheck/internal/ir"
	"github.com/roach88/collcheck/internal/literal"
)

// binary applies an elementwise arithmetic opcode to two literals of equal shape.
func binary(op ir.Opcode, a, b *literal.Literal) *literal.Literal {
	shape := a.Shape()
	if shape.DType.IsFloat() {
		x, y := a.Float64s(), b.Float64s()
		out := make([]float64, len(x))
		for i := range x {
			out[i] = binaryFloat(op, x[i], y[i])
		}
		return literal.FromFloat64s(shape.DType, out, shape.Dimensions...)
	}
	x, y := a.Int64s(), b.Int64s()
	unsigned := shape.DType.IsUnsigned()
	out := make([]int64, len(x))
	for i := range x {
		out[i] = binaryInt(op, x[i], y[i], unsigned)
	}
	return literal.FromInt64s(shape.DType, out, shape.Dimensions...)
}

func binaryFloat(op ir.Opcode, x, y float64) float64 {
	switch op {
	case ir.OpAdd:
		return x + y
	case ir.OpSubtract:
		return x - y
	case ir.OpMultiply:
		return x * y
	case ir.OpMaximum:
		return math.Max(x, y)
	case ir.OpMinimum:
		return math.Min(x, y)
	}
	exceptions.Panicf("engine: %s is not an elementwise binary op", op)
	return 0
}

// binaryInt works on two's complement bit patterns; the result is wrapped to
// the dtype width by the literal constructor.
func binaryInt(op ir.Opcode, x, y int64, unsigned bool) int64 {
	less := x < y
	if unsigned {
		less = uint64(x) < uint64(y)
	}
	switch op {
	case ir.OpAdd:
		return x + y
	case ir.OpSubtract:
		return x - y
	case ir.OpMultiply:
		return x * y
	case ir.OpMaximum:
		if less {
			return y
		}
		return x
	case ir.OpMinimum:
		if less {
			return x
		}
		return y
	}
	exceptions.Panicf("engine: %s is not an elementwise binary op", op)
	return 0
}

func negate(a *literal.Literal) *literal.Literal {
	shape := a.Shape()
	if shape.DType.IsFloat() {
		values := a.Float64s()
		for i := range values {
			values[i] = -values[i]
		}
		return literal.FromFloat64s(shape.DType, values, shape.Dimensions...)
	}
	values := a.Int64s()
	for i := range values {
		values[i] = -values[i]
	}
	return literal.FromInt64s(shape.DType, values, shape.Dimensions...)
}
