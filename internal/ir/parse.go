package ir

import (
	"strconv"
	"strings"

	"github.com/roach88/collcheck/internal/literal"
	"github.com/roach88/collcheck/internal/shapes"
)

// Parse parses program text into a module and resolves every name reference:
// operands, control predecessors and calls= targets. It checks that there is
// exactly one ENTRY computation, that names are unique and that each
// computation has one root. Shape rules are checked later by the verifier.
//
// Errors are *StructuralError.
func Parse(text string) (*Module, error) {
	p := newParser(text)
	m, err := p.parseModule()
	if err != nil {
		return nil, err
	}
	return m, nil
}

type parser struct {
	src     string
	pos     int
	pending []pendingRefs
}

// pendingRefs holds the names an instruction refers to until its computation is complete.
type pendingRefs struct {
	instr    *Instruction
	operands []string
	controls []string
	calls    string
}

func newParser(src string) *parser {
	return &parser{src: src}
}

func (p *parser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) rest() string {
	r := p.src[p.pos:]
	if len(r) > 24 {
		r = r[:24] + "..."
	}
	return r
}

func (p *parser) position() Position {
	line, col := 1, 1
	for i := 0; i < p.pos && i < len(p.src); i++ {
		if p.src[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return Position{Line: line, Column: col}
}

func (p *parser) errorf(format string, args ...any) *StructuralError {
	e := Errorf(ErrParse, nil, format, args...)
	pos := p.position()
	e.Line, e.Column = pos.Line, pos.Column
	return e
}

// skipSpace skips whitespace and comments.
func (p *parser) skipSpace() {
	for !p.eof() {
		c := p.src[p.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			p.pos++
		case strings.HasPrefix(p.src[p.pos:], "//"):
			end := strings.IndexByte(p.src[p.pos:], '\n')
			if end < 0 {
				p.pos = len(p.src)
			} else {
				p.pos += end + 1
			}
		case strings.HasPrefix(p.src[p.pos:], "/*"):
			end := strings.Index(p.src[p.pos+2:], "*/")
			if end < 0 {
				p.pos = len(p.src)
			} else {
				p.pos += end + 4
			}
		default:
			return
		}
	}
}

func (p *parser) accept(s string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], s) {
		p.pos += len(s)
		return true
	}
	return false
}

func (p *parser) expect(s string) error {
	if !p.accept(s) {
		if p.eof() {
			return p.errorf("expected %q, got end of input", s)
		}
		return p.errorf("expected %q, got %q", s, p.rest())
	}
	return nil
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '.' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// ident reads a name, dropping an optional '%' prefix.
func (p *parser) ident() (string, error) {
	p.skipSpace()
	if p.peek() == '%' {
		p.pos++
	}
	start := p.pos
	for !p.eof() && isIdentChar(p.src[p.pos]) {
		// "->" ends a name in computation signatures.
		if p.src[p.pos] == '-' && strings.HasPrefix(p.src[p.pos:], "->") {
			break
		}
		p.pos++
	}
	if start == p.pos {
		if p.eof() {
			return "", p.errorf("expected a name, got end of input")
		}
		return "", p.errorf("expected a name, got %q", p.rest())
	}
	return p.src[start:p.pos], nil
}

func (p *parser) shape() (shapes.Shape, error) {
	p.skipSpace()
	s, rest, err := shapes.ParsePrefix(p.src[p.pos:])
	if err != nil {
		return shapes.Shape{}, p.errorf("%v", err)
	}
	p.pos = len(p.src) - len(rest)
	return s, nil
}

func (p *parser) integer() (int64, error) {
	p.skipSpace()
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	for !p.eof() && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	n, err := strconv.ParseInt(p.src[start:p.pos], 10, 64)
	if err != nil {
		p.pos = start
		return 0, p.errorf("expected an integer, got %q", p.rest())
	}
	return n, nil
}

func (p *parser) parseModule() (*Module, error) {
	p.skipSpace()
	keyword, err := p.ident()
	if err != nil || keyword != "HloModule" {
		return nil, p.errorf("program must start with HloModule")
	}
	m := &Module{}
	if m.Name, err = p.ident(); err != nil {
		return nil, err
	}
	for p.accept(",") {
		key, err := p.ident()
		if err != nil {
			return nil, err
		}
		if err := p.expect("="); err != nil {
			return nil, err
		}
		if key == "entry_computation_layout" {
			if m.EntryLayout, err = p.parseLayout(); err != nil {
				return nil, err
			}
			continue
		}
		v, err := p.parseAttrValue()
		if err != nil {
			return nil, err
		}
		v.Key = key
		m.Attributes = append(m.Attributes, v)
	}

	seen := map[string]bool{}
	for p.skipSpace(); !p.eof(); p.skipSpace() {
		c, err := p.parseComputation()
		if err != nil {
			return nil, err
		}
		if seen[c.Name] {
			return nil, &StructuralError{Code: ErrDuplicateName, Computation: c.Name, Line: c.Pos.Line, Column: c.Pos.Column,
				Message: "computation " + c.Name + " defined twice"}
		}
		seen[c.Name] = true
		m.Computations = append(m.Computations, c)
		if c.IsEntry {
			if m.Entry != nil {
				return nil, &StructuralError{Code: ErrNoEntry, Computation: c.Name, Line: c.Pos.Line, Column: c.Pos.Column,
					Message: "more than one ENTRY computation (" + m.Entry.Name + ", " + c.Name + ")"}
			}
			m.Entry = c
		}
	}
	if m.Entry == nil {
		return nil, &StructuralError{Code: ErrNoEntry, Message: "program has no ENTRY computation"}
	}
	for _, ref := range p.pending {
		if ref.calls == "" {
			continue
		}
		ref.instr.Called = m.Computation(ref.calls)
		if ref.instr.Called == nil {
			return nil, Errorf(ErrUnknownComputation, ref.instr, "calls unknown computation %q", ref.calls)
		}
	}
	return m, nil
}

// parseLayout parses "{(f32[], token[])->(f32[], f32[])}".
func (p *parser) parseLayout() (*Signature, error) {
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	params, err := p.shape()
	if err != nil {
		return nil, err
	}
	if !params.IsTuple() {
		return nil, p.errorf("entry_computation_layout parameters must be parenthesized")
	}
	if err := p.expect("->"); err != nil {
		return nil, err
	}
	result, err := p.shape()
	if err != nil {
		return nil, err
	}
	if err := p.expect("}"); err != nil {
		return nil, err
	}
	return &Signature{Parameters: params.TupleShapes, Result: result}, nil
}

func (p *parser) parseComputation() (*Computation, error) {
	p.skipSpace()
	c := &Computation{Pos: p.position()}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if name == "ENTRY" {
		c.IsEntry = true
		if name, err = p.ident(); err != nil {
			return nil, err
		}
	}
	c.Name = name
	p.skipSpace()
	if p.peek() == '(' {
		if c.Signature, err = p.parseSignature(); err != nil {
			return nil, err
		}
	}
	if err := p.expect("{"); err != nil {
		return nil, err
	}

	start := len(p.pending)
	var roots []*Instruction
	for !p.accept("}") {
		if p.eof() {
			return nil, p.errorf("computation %s is not closed", c.Name)
		}
		instr, isRoot, err := p.parseInstruction(c)
		if err != nil {
			return nil, err
		}
		if c.Instruction(instr.Name) != nil {
			return nil, Errorf(ErrDuplicateName, instr, "instruction %s defined twice", instr.Name)
		}
		c.Append(instr)
		if isRoot {
			roots = append(roots, instr)
		}
	}
	switch {
	case len(c.Instructions) == 0:
		return nil, &StructuralError{Code: ErrParse, Computation: c.Name, Line: c.Pos.Line, Column: c.Pos.Column,
			Message: "computation has no instructions"}
	case len(roots) > 1:
		return nil, Errorf(ErrParse, roots[1], "computation has more than one ROOT")
	case len(roots) == 1:
		c.Root = roots[0]
	default:
		c.Root = c.Instructions[len(c.Instructions)-1]
	}

	for _, ref := range p.pending[start:] {
		for _, name := range ref.operands {
			op := c.Instruction(name)
			if op == nil {
				return nil, Errorf(ErrUnknownInstruction, ref.instr, "unknown operand %q", name)
			}
			ref.instr.Operands = append(ref.instr.Operands, op)
		}
		for _, name := range ref.controls {
			pred := c.Instruction(name)
			if pred == nil {
				return nil, Errorf(ErrUnknownInstruction, ref.instr, "unknown control predecessor %q", name)
			}
			ref.instr.ControlPredecessors = append(ref.instr.ControlPredecessors, pred)
		}
	}
	return c, nil
}

// parseSignature parses "(p0: f32[], p1: token[]) -> (f32[], token[])".
func (p *parser) parseSignature() (*Signature, error) {
	sig := &Signature{}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	if !p.accept(")") {
		for {
			name, err := p.ident()
			if err != nil {
				return nil, err
			}
			if err := p.expect(":"); err != nil {
				return nil, err
			}
			s, err := p.shape()
			if err != nil {
				return nil, err
			}
			sig.ParameterNames = append(sig.ParameterNames, name)
			sig.Parameters = append(sig.Parameters, s)
			if p.accept(")") {
				break
			}
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
	}
	if err := p.expect("->"); err != nil {
		return nil, err
	}
	result, err := p.shape()
	if err != nil {
		return nil, err
	}
	sig.Result = result
	return sig, nil
}

func (p *parser) parseInstruction(c *Computation) (*Instruction, bool, error) {
	p.skipSpace()
	instr := &Instruction{Pos: p.position(), Parent: c}
	name, err := p.ident()
	if err != nil {
		return nil, false, err
	}
	isRoot := false
	if name == "ROOT" {
		isRoot = true
		if name, err = p.ident(); err != nil {
			return nil, false, err
		}
	}
	instr.Name = name
	if err := p.expect("="); err != nil {
		return nil, false, err
	}
	if instr.Shape, err = p.shape(); err != nil {
		return nil, false, err
	}
	opcode, err := p.ident()
	if err != nil {
		return nil, false, err
	}
	instr.Opcode = Opcode(opcode)
	if err := p.expect("("); err != nil {
		return nil, false, err
	}

	ref := pendingRefs{instr: instr}
	switch instr.Opcode {
	case OpConstant:
		v, err := p.parseConstantValue()
		if err != nil {
			return nil, false, err
		}
		lit, err := literal.FromValue(instr.Shape, v)
		if err != nil {
			return nil, false, Errorf(ErrShapeMismatch, instr, "constant: %v", err)
		}
		instr.Literal = lit
		if err := p.expect(")"); err != nil {
			return nil, false, err
		}
	case OpParameter:
		n, err := p.integer()
		if err != nil {
			return nil, false, err
		}
		if n < 0 {
			return nil, false, Errorf(ErrParse, instr, "negative parameter number %d", n)
		}
		instr.ParameterNumber = int(n)
		if err := p.expect(")"); err != nil {
			return nil, false, err
		}
	default:
		if ref.operands, err = p.parseOperandNames(); err != nil {
			return nil, false, err
		}
	}

	for p.accept(",") {
		key, err := p.ident()
		if err != nil {
			return nil, false, err
		}
		if err := p.expect("="); err != nil {
			return nil, false, err
		}
		v, err := p.parseAttrValue()
		if err != nil {
			return nil, false, err
		}
		v.Key = key
		if err := p.applyAttribute(instr, &ref, v); err != nil {
			return nil, false, err
		}
	}
	p.pending = append(p.pending, ref)
	return instr, isRoot, nil
}

// applyAttribute interprets the attributes the IR models as fields and keeps the rest.
func (p *parser) applyAttribute(instr *Instruction, ref *pendingRefs, v AttrValue) error {
	switch v.Key {
	case "channel_id":
		n, ok := v.Int()
		if !ok || n < 0 {
			return Errorf(ErrBadAttribute, instr, "channel_id must be a non-negative integer, got %s", v)
		}
		instr.ChannelID, instr.HasChannel = n, true
	case "index":
		n, ok := v.Int()
		if !ok || n < 0 {
			return Errorf(ErrBadAttribute, instr, "index must be a non-negative integer, got %s", v)
		}
		instr.Index = int(n)
	case "calls":
		if v.Braced || v.Quoted || v.Scalar == "" {
			return Errorf(ErrBadAttribute, instr, "calls must name one computation, got %s", v)
		}
		ref.calls = strings.TrimPrefix(v.Scalar, "%")
	case "control-predecessors":
		if !v.Braced {
			return Errorf(ErrBadAttribute, instr, "control-predecessors must be a brace list, got %s", v)
		}
		for _, item := range v.Items {
			if item.Braced || item.Key != "" {
				return Errorf(ErrBadAttribute, instr, "control-predecessors entries must be names, got %s", item)
			}
			ref.controls = append(ref.controls, strings.TrimPrefix(item.Scalar, "%"))
		}
	default:
		if v.Key == "frontend_attributes" {
			if pairs, ok := v.Lookup(sourceTargetPairsKey); ok {
				parsed, err := ParseSourceTargetPairs(pairs.Scalar)
				if err != nil {
					return Errorf(ErrBadAttribute, instr, "%s: %v", sourceTargetPairsKey, err)
				}
				instr.SourceTargetPairs = parsed
			}
		}
		instr.Attributes = append(instr.Attributes, v)
	}
	return nil
}

const sourceTargetPairsKey = "_xla_send_recv_source_target_pairs"

func (p *parser) parseOperandNames() ([]string, error) {
	var names []string
	if p.accept(")") {
		return names, nil
	}
	for {
		name, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		if p.accept(")") {
			return names, nil
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
	}
}

// parseOperand reads an operand name, skipping a shape annotation as in "add(f32[] a, f32[] b)".
func (p *parser) parseOperand() (string, error) {
	p.skipSpace()
	start := p.pos
	if p.peek() != '(' {
		word, err := p.ident()
		if err != nil {
			return "", err
		}
		if _, isDType := shapes.DTypeFromName(word); !isDType || p.peek() != '[' {
			return word, nil
		}
		p.pos = start
	}
	if _, err := p.shape(); err != nil {
		return "", err
	}
	return p.ident()
}

// parseConstantValue parses a constant payload into the nested []any form
// accepted by literal.FromValue.
func (p *parser) parseConstantValue() (any, error) {
	p.skipSpace()
	switch p.peek() {
	case '{', '(':
		closing := byte('}')
		if p.peek() == '(' {
			closing = ')'
		}
		p.pos++
		items := []any{}
		if p.accept(string(closing)) {
			return items, nil
		}
		for {
			v, err := p.parseConstantValue()
			if err != nil {
				return nil, err
			}
			items = append(items, v)
			if p.accept(string(closing)) {
				return items, nil
			}
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
	}
	word := p.word()
	switch word {
	case "":
		return nil, p.errorf("expected a constant value, got %q", p.rest())
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return word, nil
}

// word reads a bare scalar token up to a delimiter.
func (p *parser) word() string {
	p.skipSpace()
	start := p.pos
	for !p.eof() && !strings.ContainsRune(" \t\r\n,{}()=\"", rune(p.src[p.pos])) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) parseAttrValue() (AttrValue, error) {
	p.skipSpace()
	switch p.peek() {
	case '{':
		p.pos++
		v := AttrValue{Braced: true}
		if p.accept("}") {
			return v, nil
		}
		for {
			item, err := p.parseAttrItem()
			if err != nil {
				return AttrValue{}, err
			}
			v.Items = append(v.Items, item)
			if p.accept("}") {
				return v, nil
			}
			if err := p.expect(","); err != nil {
				return AttrValue{}, err
			}
		}
	case '"':
		quoted, err := strconv.QuotedPrefix(p.src[p.pos:])
		if err != nil {
			return AttrValue{}, p.errorf("unterminated string")
		}
		s, err := strconv.Unquote(quoted)
		if err != nil {
			return AttrValue{}, p.errorf("invalid string %s", quoted)
		}
		p.pos += len(quoted)
		return AttrValue{Scalar: s, Quoted: true}, nil
	}
	w := p.word()
	if w == "" {
		return AttrValue{}, p.errorf("expected an attribute value, got %q", p.rest())
	}
	return AttrValue{Scalar: w}, nil
}

func (p *parser) parseAttrItem() (AttrValue, error) {
	p.skipSpace()
	if c := p.peek(); c == '{' || c == '"' {
		return p.parseAttrValue()
	}
	w := p.word()
	if w == "" {
		return AttrValue{}, p.errorf("expected an attribute value, got %q", p.rest())
	}
	if p.accept("=") {
		v, err := p.parseAttrValue()
		if err != nil {
			return AttrValue{}, err
		}
		v.Key = w
		return v, nil
	}
	return AttrValue{Scalar: w}, nil
}
