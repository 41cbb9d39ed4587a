package ir

import (
	"slices"

	"github.com/roach88/collcheck/internal/literal"
	"github.com/roach88/collcheck/internal/shapes"
)

// Opcode names an instruction's operation as written in program text.
type Opcode string

const (
	OpParameter      Opcode = "parameter"
	OpConstant       Opcode = "constant"
	OpAfterAll       Opcode = "after-all"
	OpTuple          Opcode = "tuple"
	OpGetTupleElem   Opcode = "get-tuple-element"
	OpAdd            Opcode = "add"
	OpSubtract       Opcode = "subtract"
	OpMultiply       Opcode = "multiply"
	OpMaximum        Opcode = "maximum"
	OpMinimum        Opcode = "minimum"
	OpNegate         Opcode = "negate"
	OpCopy           Opcode = "copy"
	OpReplicaID      Opcode = "replica-id"
	OpSend           Opcode = "send"
	OpRecv           Opcode = "recv"
	OpSendDone       Opcode = "send-done"
	OpRecvDone       Opcode = "recv-done"
	OpAsyncStart     Opcode = "async-start"
	OpAsyncDone      Opcode = "async-done"
	OpAllReduce      Opcode = "all-reduce"
	OpCollectivePerm Opcode = "collective-permute"
	OpCustomCall     Opcode = "custom-call"
	OpWhile          Opcode = "while"
)

// IsCollective reports whether op transfers data between replicas.
func (op Opcode) IsCollective() bool {
	switch op {
	case OpSend, OpRecv, OpAllReduce, OpCollectivePerm:
		return true
	}
	return false
}

// Position is a 1-based line and column in program text.
type Position struct {
	Line   int
	Column int
}

// Module is a parsed program: named computations, one of which is the entry.
//
// A module is owned by whoever holds it. Compilation takes ownership and
// marks it consumed; afterwards every use through CheckLive fails with
// ErrModuleConsumed.
type Module struct {
	Name         string
	Computations []*Computation
	Entry        *Computation

	// EntryLayout is the declared entry_computation_layout, nil if absent.
	EntryLayout *Signature

	// Attributes are the remaining module header attributes, in text order.
	Attributes []AttrValue

	consumed bool
}

// Signature is a declared computation signature: either the module's
// entry_computation_layout or a "(p0: f32[]) -> f32[]" computation header.
type Signature struct {
	// ParameterNames is empty for entry_computation_layout.
	ParameterNames []string
	Parameters     []shapes.Shape
	Result         shapes.Shape
}

// Computation is a named sequence of instructions with one root.
type Computation struct {
	Name         string
	IsEntry      bool
	Instructions []*Instruction
	Root         *Instruction
	Pos          Position

	// Signature is the declared header signature, nil if absent.
	Signature *Signature

	byName map[string]*Instruction
}

// Instruction is one node of a computation.
//
// Operands are data edges. ControlPredecessors are ordering-only edges: the
// instruction must not start before each predecessor's side effects are done,
// but it does not read their values.
type Instruction struct {
	Name                string
	Opcode              Opcode
	Shape               shapes.Shape
	Operands            []*Instruction
	ControlPredecessors []*Instruction
	Parent              *Computation
	Pos                 Position

	// Called is the computation named by calls=, if any.
	Called *Computation

	// Literal is the value of a constant.
	Literal *literal.Literal

	// ParameterNumber is set for parameter instructions.
	ParameterNumber int

	// Index is the tuple index of a get-tuple-element.
	Index int

	// ChannelID is set (HasChannel true) for send, recv, send-done and recv-done.
	ChannelID  int64
	HasChannel bool

	// SourceTargetPairs is the explicit replica routing of a send or recv,
	// nil when the execution pairing policy applies.
	SourceTargetPairs []SourceTargetPair

	// Attributes are the remaining attributes, in text order.
	Attributes []AttrValue
}

// Consume marks m as owned by a compiler. It fails if m was already consumed.
func (m *Module) Consume() error {
	if m.consumed {
		return ErrModuleConsumed
	}
	m.consumed = true
	return nil
}

// CheckLive returns ErrModuleConsumed if m was handed over to a compiler.
func (m *Module) CheckLive() error {
	if m.consumed {
		return ErrModuleConsumed
	}
	return nil
}

// Computation returns the computation called name, or nil.
func (m *Module) Computation(name string) *Computation {
	for _, c := range m.Computations {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Instruction returns the instruction called name, or nil.
func (c *Computation) Instruction(name string) *Instruction {
	if c.byName == nil {
		c.reindex()
	}
	return c.byName[name]
}

// Parameters returns the parameter instructions ordered by parameter number.
func (c *Computation) Parameters() []*Instruction {
	var params []*Instruction
	for _, instr := range c.Instructions {
		if instr.Opcode == OpParameter {
			params = append(params, instr)
		}
	}
	slices.SortStableFunc(params, func(a, b *Instruction) int { return a.ParameterNumber - b.ParameterNumber })
	return params
}

// Users returns the instructions of c that use instr as a data operand, in order.
func (c *Computation) Users(instr *Instruction) []*Instruction {
	var users []*Instruction
	for _, other := range c.Instructions {
		if slices.Contains(other.Operands, instr) {
			users = append(users, other)
		}
	}
	return users
}

// Remove deletes instructions from c. References to them from remaining
// instructions are not rewritten; callers remove users first.
func (c *Computation) Remove(remove map[*Instruction]bool) {
	c.Instructions = slices.DeleteFunc(c.Instructions, func(instr *Instruction) bool { return remove[instr] })
	c.reindex()
}

// Append adds instr to the end of c.
func (c *Computation) Append(instr *Instruction) {
	instr.Parent = c
	c.Instructions = append(c.Instructions, instr)
	if c.byName != nil {
		c.byName[instr.Name] = instr
	}
}

func (c *Computation) reindex() {
	c.byName = make(map[string]*Instruction, len(c.Instructions))
	for _, instr := range c.Instructions {
		c.byName[instr.Name] = instr
	}
}

// Attribute returns the remaining attribute called key.
func (instr *Instruction) Attribute(key string) (AttrValue, bool) {
	for _, a := range instr.Attributes {
		if a.Key == key {
			return a, true
		}
	}
	return AttrValue{}, false
}

// ReplaceOperand rewrites every data edge from old to replacement.
func (instr *Instruction) ReplaceOperand(old, replacement *Instruction) {
	for i, op := range instr.Operands {
		if op == old {
			instr.Operands[i] = replacement
		}
	}
}
