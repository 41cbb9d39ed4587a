package literal

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/roach88/collcheck/internal/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarsAndTuples(t *testing.T) {
	one := F32(1)
	assert.Equal(t, "f32[] 1", one.String())
	assert.Equal(t, float32(1), one.Value())

	pair := Tuple(F32(1), F32(2))
	assert.True(t, pair.IsTuple())
	assert.Equal(t, 2, pair.TupleSize())
	assert.Equal(t, "(f32[] 1, f32[] 2)", pair.String())
	assert.Equal(t, []any{float32(1), float32(2)}, pair.Value())
	assert.Equal(t, "(f32[], f32[])", pair.Shape().String())

	assert.Equal(t, "token[]", Token().String())
	assert.Nil(t, Token().Value())
	assert.Equal(t, uint32(7), U32(7).Value())
	assert.Equal(t, true, Pred(true).Value())

	assert.Panics(t, func() { one.Element(0) })
	assert.Panics(t, func() { pair.Element(2) })
}

func TestPrecisionNormalization(t *testing.T) {
	assert.Equal(t, float64(float32(0.1)), Scalar(shapes.F32, 0.1).Float64s()[0])
	assert.Equal(t, 0.1, Scalar(shapes.F64, 0.1).Float64s()[0])

	// 1/3 is not representable in bf16; it rounds to 0.333984375.
	assert.Equal(t, 0.333984375, Scalar(shapes.BF16, 1.0/3).Float64s()[0])
	assert.Equal(t, 65504.0, Scalar(shapes.F16, 65504).Float64s()[0])

	assert.Equal(t, int64(44), FromInt64s(shapes.S8, []int64{300}).Int64s()[0])
	assert.Equal(t, uint32(math.MaxUint32), FromInt64s(shapes.U32, []int64{-1}).Value())
}

func TestZeros(t *testing.T) {
	shape := shapes.MakeTuple(shapes.Make(shapes.F32, 2), shapes.TokenShape(), shapes.Scalar(shapes.U32))
	z := Zeros(shape)
	assert.Equal(t, "(f32[2] {0, 0}, token[], u32[] 0)", z.String())
	assert.True(t, z.Shape().Equal(shape))
}

func TestFromValue(t *testing.T) {
	l, err := FromValue(shapes.Make(shapes.F32, 2, 2), []any{[]any{1, 2.5}, []any{"inf", -1}})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2.5, math.Inf(1), -1}, l.Float64s())

	tuple := shapes.MakeTuple(shapes.Scalar(shapes.F32), shapes.TokenShape(), shapes.Scalar(shapes.Pred))
	l, err = FromValue(tuple, []any{1.0, nil, true})
	require.NoError(t, err)
	assert.Equal(t, "(f32[] 1, token[], pred[] true)", l.String())

	l, err = FromValue(shapes.Scalar(shapes.S32), "0x10")
	require.NoError(t, err)
	assert.Equal(t, int32(16), l.Value())

	l, err = FromValue(shapes.Scalar(shapes.S64), float64(math.MinInt64))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), l.Value())

	l, err = FromValue(shapes.Scalar(shapes.U64), uint64(math.MaxUint64))
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), l.Value())

	l, err = FromValue(shapes.Scalar(shapes.U64), float64(1<<63))
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<63), l.Value())

	for name, tc := range map[string]struct {
		shape shapes.Shape
		value any
	}{
		"wrong count":     {shapes.Make(shapes.F32, 3), []any{1, 2}},
		"not integral":    {shapes.Scalar(shapes.S32), 1.5},
		"overflow":        {shapes.Scalar(shapes.S8), 200},
		"negative uint":   {shapes.Scalar(shapes.U32), -1},
		"negative u64":    {shapes.Scalar(shapes.U64), -1},
		"s64 above range": {shapes.Scalar(shapes.S64), 1e30},
		"s64 below range": {shapes.Scalar(shapes.S64), -1e30},
		"s64 at 2^63":     {shapes.Scalar(shapes.S64), float64(1 << 63)},
		"u64 above range": {shapes.Scalar(shapes.U64), 1e30},
		"uint64 for s64":  {shapes.Scalar(shapes.S64), uint64(math.MaxUint64)},
		"bool for int":    {shapes.Scalar(shapes.S32), true},
		"tuple not list":  {tuple, 1.0},
		"tuple arity":     {tuple, []any{1.0}},
		"token with data": {shapes.TokenShape(), 3},
		"bad float":       {shapes.Scalar(shapes.F32), "one"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := FromValue(tc.shape, tc.value)
			assert.Error(t, err)
		})
	}
}

func TestCompare(t *testing.T) {
	want := Tuple(F32(1), F32(2))

	assert.NoError(t, Compare(Tuple(F32(1), F32(2)), want, Exact))
	assert.True(t, Equal(Tuple(F32(1), F32(2.0000001)), want, DefaultTolerance))

	err := Compare(Tuple(F32(1), F32(3)), want, DefaultTolerance)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "element {1}")
	assert.Contains(t, err.Error(), "got 3, want 2")

	err = Compare(F32(1), want, Exact)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shape f32[], want (f32[], f32[])")

	nan := Scalar(shapes.F32, math.NaN())
	assert.True(t, Equal(nan, Scalar(shapes.F32, math.NaN()), Exact))
	assert.False(t, Equal(nan, F32(0), Tolerance{Abs: 1e9}))
	assert.False(t, Equal(Scalar(shapes.F32, math.Inf(1)), F32(1e30), Tolerance{Rel: 1}))

	// Integers are exact regardless of tolerance.
	assert.False(t, Equal(S32(1), S32(2), Tolerance{Abs: 10}))
	assert.True(t, Equal(Token(), Token(), Exact))
}

func TestJSONRoundTrip(t *testing.T) {
	original := Tuple(
		FromFloat64s(shapes.F32, []float64{1, math.NaN()}, 2),
		Token(),
		FromInt64s(shapes.U64, []int64{-1}),
		Pred(false),
	)
	data := must.M1(json.Marshal(original))

	var decoded Literal
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, Equal(&decoded, original, Exact), "decoded %s", &decoded)
	assert.Equal(t, uint64(math.MaxUint64), decoded.Element(2).Value())
}

func TestEncodable(t *testing.T) {
	enc := Tuple(F32(1), Token()).Encodable()
	assert.Equal(t, "(f32[], token[])", enc["shape"])
	elems := enc["elements"].([]any)
	require.Len(t, elems, 2)
	assert.Equal(t, []any{float64(1)}, elems[0].(map[string]any)["values"])
	assert.NotContains(t, elems[1].(map[string]any), "values")
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "1.5", Scalar(shapes.F32, 1.5).ValueString())
	assert.Equal(t, "{{1, 2}, {3, 4}}", FromInt64s(shapes.S32, []int64{1, 2, 3, 4}, 2, 2).ValueString())
	assert.Equal(t, "(1, true)", Tuple(U32(1), Pred(true)).ValueString())
	assert.Equal(t, "-inf", Scalar(shapes.F64, math.Inf(-1)).ValueString())
}
