package harness

import (
	"fmt"

	"github.com/roach88/collcheck/internal/literal"
	"github.com/roach88/collcheck/internal/shapes"
)

// Expectation is what a successful execution must produce.
type Expectation struct {
	Replicas int

	// Outputs are the shapes of one replica's outputs: the entry root
	// flattened one level.
	Outputs []shapes.Shape

	// Values, if set, are the expected outputs of each replica.
	Values [][]*literal.Literal

	// Tolerance applies to float outputs; integer and pred outputs are compared exactly.
	Tolerance literal.Tolerance
}

// NewExpectation expects replicas well-typed outputs of a program whose entry root has shape root.
func NewExpectation(root shapes.Shape, replicas int) *Expectation {
	outputs := []shapes.Shape{root}
	if root.IsTuple() {
		outputs = root.TupleShapes
	}
	return &Expectation{Replicas: replicas, Outputs: outputs, Tolerance: literal.DefaultTolerance}
}

// Verdict is the judgement of one execution.
type Verdict struct {
	Pass   bool
	Reason string
}

func fail(format string, args ...any) Verdict {
	return Verdict{Reason: fmt.Sprintf(format, args...)}
}

// AssertSuccess passes iff err is nil, there is one output list per replica,
// every output has the expected shape and, when expect.Values is set, every
// output equals its expected value. A nil expect only requires success with
// no missing outputs.
func AssertSuccess(outputs [][]*literal.Literal, err error, expect *Expectation) Verdict {
	if err != nil {
		return fail("execution failed: %v", err)
	}
	if expect == nil {
		for r, out := range outputs {
			for i, got := range out {
				if got == nil {
					return fail("replica %d: output %d is missing", r, i)
				}
			}
		}
		return Verdict{Pass: true}
	}
	if len(outputs) != expect.Replicas {
		return fail("got outputs from %d replicas, want %d", len(outputs), expect.Replicas)
	}
	for r, out := range outputs {
		if len(out) != len(expect.Outputs) {
			return fail("replica %d: got %d outputs, want %d", r, len(out), len(expect.Outputs))
		}
		for i, got := range out {
			if got == nil {
				return fail("replica %d: output %d is missing", r, i)
			}
			if !got.Shape().Equal(expect.Outputs[i]) {
				return fail("replica %d: output %d is %s, want %s", r, i, got.Shape(), expect.Outputs[i])
			}
		}
	}
	if expect.Values == nil {
		return Verdict{Pass: true}
	}
	for r, out := range outputs {
		for i, got := range out {
			if err := literal.Compare(got, expect.Values[r][i], expect.Tolerance); err != nil {
				return fail("replica %d: output %d: %v", r, i, err)
			}
		}
	}
	return Verdict{Pass: true}
}
