package literal

import (
	"math"
	"strconv"

	"github.com/pkg/errors"
)

// Tolerance bounds float differences: |got-want| <= Abs + Rel*|want|.
// Integer and pred elements are always compared exactly.
type Tolerance struct {
	Abs float64
	Rel float64
}

// Exact compares floats bit-for-bit (NaN still equals NaN).
var Exact = Tolerance{}

// DefaultTolerance is used when a caller does not specify one.
var DefaultTolerance = Tolerance{Abs: 1e-6, Rel: 1e-6}

func (tol Tolerance) close(got, want float64) bool {
	if math.IsNaN(got) || math.IsNaN(want) {
		return math.IsNaN(got) && math.IsNaN(want)
	}
	if math.IsInf(got, 0) || math.IsInf(want, 0) {
		return got == want
	}
	return math.Abs(got-want) <= tol.Abs+tol.Rel*math.Abs(want)
}

// Equal reports whether got and want have equal shapes and values within tol.
func Equal(got, want *Literal, tol Tolerance) bool {
	return Compare(got, want, tol) == nil
}

// Compare returns nil if got matches want within tol, or an error describing
// the first mismatch, including the tuple path and flat element index.
func Compare(got, want *Literal, tol Tolerance) error {
	return compare(got, want, tol, "")
}

func compare(got, want *Literal, tol Tolerance, path string) error {
	where := func() string {
		if path == "" {
			return "value"
		}
		return "element " + path
	}
	if got == nil || want == nil {
		if got == want {
			return nil
		}
		return errors.Errorf("%s: got %v, want %v", where(), got, want)
	}
	if !got.shape.Equal(want.shape) {
		return errors.Errorf("%s: shape %s, want %s", where(), got.shape, want.shape)
	}
	if got.IsTuple() {
		for i := range got.elems {
			sub := path + "{" + strconv.Itoa(i) + "}"
			if err := compare(got.elems[i], want.elems[i], tol, sub); err != nil {
				return err
			}
		}
		return nil
	}
	if got.IsToken() {
		return nil
	}
	for i := range got.floats {
		if !tol.close(got.floats[i], want.floats[i]) {
			return errors.Errorf("%s: index %d: got %s, want %s (tolerance abs=%g rel=%g)",
				where(), i, got.formatElement(i), want.formatElement(i), tol.Abs, tol.Rel)
		}
	}
	for i := range got.ints {
		if got.ints[i] != want.ints[i] {
			return errors.Errorf("%s: index %d: got %s, want %s", where(), i, got.formatElement(i), want.formatElement(i))
		}
	}
	return nil
}
