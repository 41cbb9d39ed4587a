package ir

import (
	"strconv"
	"strings"
)

// AttrValue is a parsed attribute value. It is either a scalar (bare word,
// number or quoted string) or a brace list of values, where list entries may
// themselves be key=value pairs (as in frontend_attributes).
type AttrValue struct {
	Key    string
	Scalar string
	Quoted bool
	Items  []AttrValue
	Braced bool
}

// Int returns the scalar as an integer.
func (v AttrValue) Int() (int64, bool) {
	if v.Braced || v.Quoted {
		return 0, false
	}
	n, err := strconv.ParseInt(v.Scalar, 10, 64)
	return n, err == nil
}

// Lookup returns the entry with key in a brace list.
func (v AttrValue) Lookup(key string) (AttrValue, bool) {
	for _, item := range v.Items {
		if item.Key == key {
			return item, true
		}
	}
	return AttrValue{}, false
}

// String renders the value in program text form (without its key).
func (v AttrValue) String() string {
	var sb strings.Builder
	v.writeValue(&sb)
	return sb.String()
}

func (v AttrValue) write(sb *strings.Builder) {
	if v.Key != "" {
		sb.WriteString(v.Key)
		sb.WriteByte('=')
	}
	v.writeValue(sb)
}

func (v AttrValue) writeValue(sb *strings.Builder) {
	switch {
	case v.Braced:
		sb.WriteByte('{')
		for i, item := range v.Items {
			if i > 0 {
				sb.WriteByte(',')
			}
			item.write(sb)
		}
		sb.WriteByte('}')
	case v.Quoted:
		sb.WriteString(strconv.Quote(v.Scalar))
	default:
		sb.WriteString(v.Scalar)
	}
}

// SourceTargetPair is one replica-to-replica route of a send/recv.
type SourceTargetPair struct {
	Source int
	Target int
}

// ParseSourceTargetPairs parses text such as "{{0,1},{1,2}}".
func ParseSourceTargetPairs(text string) ([]SourceTargetPair, error) {
	v, err := parseAttrText(text)
	if err != nil {
		return nil, err
	}
	if !v.Braced {
		return nil, &StructuralError{Code: ErrBadAttribute, Message: "source-target pairs must be a brace list"}
	}
	pairs := make([]SourceTargetPair, 0, len(v.Items))
	for _, item := range v.Items {
		if !item.Braced || len(item.Items) != 2 {
			return nil, &StructuralError{Code: ErrBadAttribute, Message: "source-target pair must have two replica ids: " + item.String()}
		}
		src, ok1 := item.Items[0].Int()
		dst, ok2 := item.Items[1].Int()
		if !ok1 || !ok2 || src < 0 || dst < 0 {
			return nil, &StructuralError{Code: ErrBadAttribute, Message: "invalid source-target pair " + item.String()}
		}
		pairs = append(pairs, SourceTargetPair{Source: int(src), Target: int(dst)})
	}
	return pairs, nil
}

// FormatSourceTargetPairs renders pairs in the form accepted by ParseSourceTargetPairs.
func FormatSourceTargetPairs(pairs []SourceTargetPair) string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, p := range pairs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('{')
		sb.WriteString(strconv.Itoa(p.Source))
		sb.WriteByte(',')
		sb.WriteString(strconv.Itoa(p.Target))
		sb.WriteByte('}')
	}
	sb.WriteByte('}')
	return sb.String()
}

func parseAttrText(text string) (AttrValue, error) {
	p := newParser(text)
	v, err := p.parseAttrValue()
	if err != nil {
		return AttrValue{}, err
	}
	p.skipSpace()
	if !p.eof() {
		return AttrValue{}, p.errorf("unexpected %q after attribute value", p.rest())
	}
	return v, nil
}
