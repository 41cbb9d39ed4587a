package shapes

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// Parse parses the full text form of a shape, e.g. "(f32[], token[])".
func Parse(text string) (Shape, error) {
	s, rest, err := ParsePrefix(text)
	if err != nil {
		return Shape{}, err
	}
	if rest = strings.TrimSpace(rest); rest != "" {
		return Shape{}, errors.Errorf("unexpected %q after shape %s", rest, s)
	}
	return s, nil
}

// ParsePrefix parses one shape at the start of text (after leading spaces)
// and returns the remaining text. An optional layout suffix such as "{1,0}"
// is accepted and dropped.
func ParsePrefix(text string) (Shape, string, error) {
	p := &shapeParser{src: text}
	s, err := p.parse()
	if err != nil {
		return Shape{}, text, err
	}
	return s, p.src[p.pos:], nil
}

type shapeParser struct {
	src string
	pos int
}

func (p *shapeParser) skipSpaces() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *shapeParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *shapeParser) errorf(format string, args ...any) error {
	return errors.Errorf("shape at offset %d: "+format, append([]any{p.pos}, args...)...)
}

func (p *shapeParser) parse() (Shape, error) {
	p.skipSpaces()
	if p.peek() == '(' {
		return p.parseTuple()
	}
	return p.parseArray()
}

func (p *shapeParser) parseTuple() (Shape, error) {
	p.pos++ // (
	var elems []Shape
	p.skipSpaces()
	if p.peek() == ')' {
		p.pos++
		return MakeTuple(), nil
	}
	for {
		e, err := p.parse()
		if err != nil {
			return Shape{}, err
		}
		elems = append(elems, e)
		p.skipSpaces()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return MakeTuple(elems...), nil
		default:
			return Shape{}, p.errorf("expected ',' or ')' in tuple shape")
		}
	}
}

func (p *shapeParser) parseArray() (Shape, error) {
	start := p.pos
	for p.pos < len(p.src) && (isLower(p.src[p.pos]) || isDigit(p.src[p.pos])) {
		p.pos++
	}
	name := p.src[start:p.pos]
	if name == "" {
		return Shape{}, p.errorf("expected element type")
	}
	dtype, ok := DTypeFromName(name)
	if !ok {
		p.pos = start
		return Shape{}, p.errorf("unknown element type %q", name)
	}
	if p.peek() != '[' {
		return Shape{}, p.errorf("expected '[' after %s", name)
	}
	p.pos++
	var dims []int
	for {
		p.skipSpaces()
		if p.peek() == ']' {
			p.pos++
			break
		}
		if len(dims) > 0 {
			if p.peek() != ',' {
				return Shape{}, p.errorf("expected ',' or ']' in dimensions")
			}
			p.pos++
			p.skipSpaces()
		}
		n, err := p.parseInt()
		if err != nil {
			return Shape{}, err
		}
		dims = append(dims, n)
	}
	if dtype == Token {
		if len(dims) > 0 {
			return Shape{}, p.errorf("token shape cannot have dimensions")
		}
		return TokenShape(), nil
	}
	if p.peek() == '{' {
		if err := p.skipLayout(); err != nil {
			return Shape{}, err
		}
	}
	return Make(dtype, dims...), nil
}

func (p *shapeParser) parseInt() (int, error) {
	start := p.pos
	for p.pos < len(p.src) && isDigit(p.src[p.pos]) {
		p.pos++
	}
	if start == p.pos {
		return 0, p.errorf("expected dimension")
	}
	n, err := strconv.Atoi(p.src[start:p.pos])
	if err != nil {
		return 0, errors.Wrapf(err, "dimension %q", p.src[start:p.pos])
	}
	return n, nil
}

func (p *shapeParser) skipLayout() error {
	end := strings.IndexByte(p.src[p.pos:], '}')
	if end < 0 {
		return p.errorf("unterminated layout")
	}
	for _, c := range p.src[p.pos+1 : p.pos+end] {
		if !isDigit(byte(c)) && c != ',' && c != ' ' {
			return p.errorf("invalid layout %q", p.src[p.pos:p.pos+end+1])
		}
	}
	p.pos += end + 1
	return nil
}

func isLower(c byte) bool { return c >= 'a' && c <= 'z' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }
