// Package shapes defines Shape and DType for program values.
//
// A Shape is either an array shape (a DType plus dimensions, rank 0 being a
// scalar), a token shape, or a tuple of shapes. The textual form matches the
// program grammar: "f32[]", "s32[2,3]", "token[]", "(f32[], u32[], token[])".
package shapes

import (
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
)

// Shape of a program value.
//
// Use Make, Scalar, TokenShape or MakeTuple to create one.
type Shape struct {
	DType       DType
	Dimensions  []int
	TupleShapes []Shape

	tuple bool
}

// Make returns an array shape. It panics on negative dimensions.
func Make(dtype DType, dimensions ...int) Shape {
	for _, dim := range dimensions {
		if dim < 0 {
			exceptions.Panicf("shapes.Make(%s, %v): negative dimension", dtype, dimensions)
		}
	}
	if dtype == InvalidDType {
		exceptions.Panicf("shapes.Make: invalid dtype")
	}
	return Shape{DType: dtype, Dimensions: slices.Clone(dimensions)}
}

// Scalar returns a rank-0 shape of dtype.
func Scalar(dtype DType) Shape {
	return Make(dtype)
}

// TokenShape returns the shape of a synchronization token.
func TokenShape() Shape {
	return Shape{DType: Token}
}

// MakeTuple returns a tuple shape. An empty tuple is valid.
func MakeTuple(elements ...Shape) Shape {
	elems := cloneShapes(elements)
	if elems == nil {
		elems = []Shape{}
	}
	return Shape{TupleShapes: elems, tuple: true}
}

// Invalid returns the zero shape, for which Ok is false.
func Invalid() Shape { return Shape{} }

// Ok returns whether s is a valid shape.
func (s Shape) Ok() bool { return s.tuple || s.DType != InvalidDType }

// IsTuple returns whether s is a tuple shape.
func (s Shape) IsTuple() bool { return s.tuple }

// IsToken returns whether s is a token shape.
func (s Shape) IsToken() bool { return !s.tuple && s.DType == Token }

// IsScalar returns whether s is a rank-0 array shape.
func (s Shape) IsScalar() bool {
	return !s.tuple && s.DType != Token && s.DType != InvalidDType && len(s.Dimensions) == 0
}

// Rank returns the number of axes of an array shape.
func (s Shape) Rank() int { return len(s.Dimensions) }

// TupleSize returns the number of elements of a tuple shape.
func (s Shape) TupleSize() int { return len(s.TupleShapes) }

// Size returns the number of elements of an array shape. Tuples and tokens have size 0.
func (s Shape) Size() int {
	if s.tuple || s.DType == Token || s.DType == InvalidDType {
		return 0
	}
	size := 1
	for _, dim := range s.Dimensions {
		size *= dim
	}
	return size
}

// ByteSize returns the memory needed to hold a value of shape s, summing over tuple elements.
func (s Shape) ByteSize() int {
	if s.tuple {
		total := 0
		for _, e := range s.TupleShapes {
			total += e.ByteSize()
		}
		return total
	}
	return s.Size() * s.DType.Size()
}

// Equal compares dtype, dimensions and tuple structure.
func (s Shape) Equal(other Shape) bool {
	if s.tuple != other.tuple {
		return false
	}
	if s.tuple {
		return slices.EqualFunc(s.TupleShapes, other.TupleShapes, Shape.Equal)
	}
	return s.DType == other.DType && slices.Equal(s.Dimensions, other.Dimensions)
}

// Clone returns a deep copy of s.
func (s Shape) Clone() Shape {
	return Shape{
		DType:       s.DType,
		Dimensions:  slices.Clone(s.Dimensions),
		TupleShapes: cloneShapes(s.TupleShapes),
		tuple:       s.tuple,
	}
}

// String returns the program text form of the shape.
func (s Shape) String() string {
	var sb strings.Builder
	s.write(&sb)
	return sb.String()
}

func (s Shape) write(sb *strings.Builder) {
	if s.tuple {
		sb.WriteByte('(')
		for i, e := range s.TupleShapes {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.write(sb)
		}
		sb.WriteByte(')')
		return
	}
	sb.WriteString(s.DType.String())
	sb.WriteByte('[')
	for i, dim := range s.Dimensions {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(dim))
	}
	sb.WriteByte(']')
}

func cloneShapes(shapes []Shape) []Shape {
	if shapes == nil {
		return nil
	}
	out := make([]Shape, len(shapes))
	for i, s := range shapes {
		out[i] = s.Clone()
	}
	return out
}
