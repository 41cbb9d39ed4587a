package harness

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/roach88/collcheck/internal/literal"
	"github.com/roach88/collcheck/internal/shapes"
	"github.com/stretchr/testify/assert"
)

func pairs(replicas int, a, b float32) [][]*literal.Literal {
	out := make([][]*literal.Literal, replicas)
	for r := range out {
		out[r] = []*literal.Literal{literal.F32(a), literal.F32(b)}
	}
	return out
}

func TestAssertSuccess(t *testing.T) {
	withValues := NewExpectation(pairOfFloats, 2)
	withValues.Values = pairs(2, 1, 2)

	tests := []struct {
		name    string
		outputs [][]*literal.Literal
		err     error
		expect  *Expectation
		reason  string
	}{
		{"pass", pairs(2, 1, 2), nil, withValues, ""},
		{"shapes only", pairs(2, 7, 8), nil, NewExpectation(pairOfFloats, 2), ""},
		{"error", nil, errors.New("boom"), withValues, "execution failed: boom"},
		{"missing replica", pairs(1, 1, 2), nil, withValues, "got outputs from 1 replicas, want 2"},
		{"missing output", [][]*literal.Literal{{literal.F32(1)}, {literal.F32(1)}}, nil, withValues,
			"replica 0: got 1 outputs, want 2"},
		{"wrong shape", [][]*literal.Literal{{literal.F32(1), literal.F32(2)}, {literal.F32(1), literal.S32(2)}}, nil, withValues,
			"replica 1: output 1 is s32[], want f32[]"},
		{"wrong value", pairs(2, 1, 3), nil, withValues, "replica 0: output 1: value: index 0: got 3, want 2"},
		{"no expectation", pairs(3, 5, 6), nil, nil, ""},
		{"no expectation, error", nil, errors.New("boom"), nil, "execution failed: boom"},
		{"no expectation, missing output", [][]*literal.Literal{{literal.F32(1), nil}}, nil, nil,
			"replica 0: output 1 is missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := AssertSuccess(tt.outputs, tt.err, tt.expect)
			if tt.reason == "" {
				assert.True(t, v.Pass, v.Reason)
				return
			}
			assert.False(t, v.Pass)
			assert.Contains(t, v.Reason, tt.reason)
		})
	}
}

func TestAssertSuccessTolerance(t *testing.T) {
	exp := NewExpectation(shapes.Scalar(shapes.F32), 1)
	exp.Values = [][]*literal.Literal{{literal.F32(1)}}
	assert.True(t, AssertSuccess([][]*literal.Literal{{literal.F32(1.0000001)}}, nil, exp).Pass)

	exp.Tolerance = literal.Exact
	assert.False(t, AssertSuccess([][]*literal.Literal{{literal.F32(1.0001)}}, nil, exp).Pass)
}

func TestNewExpectationFlattensRoot(t *testing.T) {
	assert.Len(t, NewExpectation(pairOfFloats, 4).Outputs, 2)
	single := NewExpectation(shapes.Scalar(shapes.S32), 4)
	assert.Equal(t, []shapes.Shape{shapes.Scalar(shapes.S32)}, single.Outputs)
	assert.Equal(t, 4, single.Replicas)
}
