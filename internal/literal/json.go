package literal

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/pkg/errors"
	"github.com/roach88/collcheck/internal/shapes"
)

type wireLiteral struct {
	Shape    string         `json:"shape"`
	Values   []any          `json:"values,omitempty"`
	Elements []*wireLiteral `json:"elements,omitempty"`
}

func (l *Literal) toWire() *wireLiteral {
	w := &wireLiteral{Shape: l.shape.String()}
	if l.IsTuple() {
		w.Elements = make([]*wireLiteral, len(l.elems))
		for i, e := range l.elems {
			w.Elements[i] = e.toWire()
		}
		return w
	}
	if l.IsToken() {
		return w
	}
	w.Values = make([]any, l.shape.Size())
	for i := range w.Values {
		w.Values[i] = l.encodeElement(i)
	}
	return w
}

func (l *Literal) encodeElement(i int) any {
	dtype := l.shape.DType
	switch {
	case dtype.IsFloat():
		f := l.floats[i]
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return formatFloat(f, 64)
		}
		return f
	case dtype == shapes.Pred:
		return l.ints[i] != 0
	case dtype.IsUnsigned():
		return uint64(l.ints[i])
	}
	return l.ints[i]
}

// Encodable returns l as a tree of maps, slices and scalars suitable for
// canonical encoding.
func (l *Literal) Encodable() map[string]any {
	return l.toWire().encodable()
}

func (w *wireLiteral) encodable() map[string]any {
	out := map[string]any{"shape": w.Shape}
	if w.Elements != nil {
		elems := make([]any, len(w.Elements))
		for i, e := range w.Elements {
			elems[i] = e.encodable()
		}
		out["elements"] = elems
	}
	if w.Values != nil {
		out["values"] = w.Values
	}
	return out
}

// MarshalJSON encodes the literal with its shape text and flat values.
func (l *Literal) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.toWire())
}

// UnmarshalJSON decodes a literal written by MarshalJSON.
func (l *Literal) UnmarshalJSON(data []byte) error {
	var w wireLiteral
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return errors.Wrap(err, "decoding literal")
	}
	decoded, err := w.decode()
	if err != nil {
		return err
	}
	*l = *decoded
	return nil
}

func (w *wireLiteral) decode() (*Literal, error) {
	shape, err := shapes.Parse(w.Shape)
	if err != nil {
		return nil, errors.WithMessage(err, "decoding literal shape")
	}
	if shape.IsTuple() {
		if len(w.Elements) != shape.TupleSize() {
			return nil, errors.Errorf("literal %s has %d elements", shape, len(w.Elements))
		}
		elems := make([]*Literal, len(w.Elements))
		for i, e := range w.Elements {
			if elems[i], err = e.decode(); err != nil {
				return nil, errors.WithMessagef(err, "element %d", i)
			}
		}
		return Tuple(elems...), nil
	}
	if shape.IsToken() {
		return Token(), nil
	}
	values := w.Values
	if values == nil {
		values = []any{}
	}
	return FromValue(shape, values)
}
