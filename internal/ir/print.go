package ir

import (
	"strconv"
	"strings"

	"github.com/roach88/collcheck/internal/canon"
)

// String renders m in canonical program text. Parsing the result yields an
// equivalent module, and rendering that again yields the same text.
func (m *Module) String() string {
	var sb strings.Builder
	sb.WriteString("HloModule ")
	sb.WriteString(m.Name)
	if m.EntryLayout != nil {
		sb.WriteString(", entry_computation_layout={(")
		for i, s := range m.EntryLayout.Parameters {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(s.String())
		}
		sb.WriteString(")->")
		sb.WriteString(m.EntryLayout.Result.String())
		sb.WriteByte('}')
	}
	for _, a := range m.Attributes {
		sb.WriteString(", ")
		a.write(&sb)
	}
	sb.WriteByte('\n')
	for _, c := range m.Computations {
		sb.WriteByte('\n')
		c.write(&sb)
	}
	return sb.String()
}

// String renders c in program text.
func (c *Computation) String() string {
	var sb strings.Builder
	c.write(&sb)
	return sb.String()
}

func (c *Computation) write(sb *strings.Builder) {
	if c.IsEntry {
		sb.WriteString("ENTRY ")
	}
	sb.WriteString(c.Name)
	if c.Signature != nil {
		sb.WriteString(" (")
		for i, s := range c.Signature.Parameters {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(c.Signature.ParameterNames[i])
			sb.WriteString(": ")
			sb.WriteString(s.String())
		}
		sb.WriteString(") -> ")
		sb.WriteString(c.Signature.Result.String())
	}
	sb.WriteString(" {\n")
	for _, instr := range c.Instructions {
		sb.WriteString("  ")
		if instr == c.Root {
			sb.WriteString("ROOT ")
		}
		instr.write(sb)
		sb.WriteByte('\n')
	}
	sb.WriteString("}\n")
}

// String renders instr as one line of program text.
func (instr *Instruction) String() string {
	var sb strings.Builder
	instr.write(&sb)
	return sb.String()
}

func (instr *Instruction) write(sb *strings.Builder) {
	sb.WriteString(instr.Name)
	sb.WriteString(" = ")
	sb.WriteString(instr.Shape.String())
	sb.WriteByte(' ')
	sb.WriteString(string(instr.Opcode))
	sb.WriteByte('(')
	switch instr.Opcode {
	case OpConstant:
		if instr.Literal != nil {
			sb.WriteString(instr.Literal.ValueString())
		}
	case OpParameter:
		sb.WriteString(strconv.Itoa(instr.ParameterNumber))
	default:
		for i, op := range instr.Operands {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(op.Name)
		}
	}
	sb.WriteByte(')')
	if instr.Called != nil {
		sb.WriteString(", calls=")
		sb.WriteString(instr.Called.Name)
	}
	if instr.HasChannel {
		sb.WriteString(", channel_id=")
		sb.WriteString(strconv.FormatInt(instr.ChannelID, 10))
	}
	if instr.Opcode == OpGetTupleElem {
		sb.WriteString(", index=")
		sb.WriteString(strconv.Itoa(instr.Index))
	}
	for _, a := range instr.Attributes {
		sb.WriteString(", ")
		a.write(sb)
	}
	if len(instr.ControlPredecessors) > 0 {
		sb.WriteString(", control-predecessors={")
		for i, pred := range instr.ControlPredecessors {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(pred.Name)
		}
		sb.WriteByte('}')
	}
}

// Fingerprint returns a content hash of the canonical program text of m.
func (m *Module) Fingerprint() string {
	return canon.HashWithDomain(canon.DomainProgram, []byte(m.String()))
}
