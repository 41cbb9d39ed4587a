package ir

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrModuleConsumed is returned when a module is used after ownership was
// transferred to a compiler.
var ErrModuleConsumed = errors.New("module already consumed by compilation")

// StructuralErrorCode categorizes program text and graph validation failures.
type StructuralErrorCode string

const (
	// ErrParse indicates the text does not follow the program grammar.
	ErrParse StructuralErrorCode = "PARSE"

	// ErrNoEntry indicates zero or several ENTRY computations.
	ErrNoEntry StructuralErrorCode = "NO_ENTRY"

	// ErrDuplicateName indicates two computations or two instructions share a name.
	ErrDuplicateName StructuralErrorCode = "DUPLICATE_NAME"

	// ErrUnknownComputation indicates a calls= target that is not defined.
	ErrUnknownComputation StructuralErrorCode = "UNKNOWN_COMPUTATION"

	// ErrUnknownInstruction indicates an operand or control predecessor that is not defined.
	ErrUnknownInstruction StructuralErrorCode = "UNKNOWN_INSTRUCTION"

	// ErrUnknownOpcode indicates an opcode the verifier has no rule for.
	ErrUnknownOpcode StructuralErrorCode = "UNKNOWN_OPCODE"

	// ErrShapeMismatch indicates a declared shape disagrees with the inferred one.
	ErrShapeMismatch StructuralErrorCode = "SHAPE_MISMATCH"

	// ErrBadAttribute indicates a missing or malformed attribute.
	ErrBadAttribute StructuralErrorCode = "BAD_ATTRIBUTE"

	// ErrUnmatchedChannel indicates a channel id without exactly one send and one recv.
	ErrUnmatchedChannel StructuralErrorCode = "UNMATCHED_CHANNEL"

	// ErrAsyncGroup indicates an async-start/async-done pair that breaks grouping rules.
	ErrAsyncGroup StructuralErrorCode = "ASYNC_GROUP"

	// ErrCycle indicates a cycle through data or control edges.
	ErrCycle StructuralErrorCode = "CYCLE"

	// ErrLayout indicates entry_computation_layout disagrees with the entry computation.
	ErrLayout StructuralErrorCode = "LAYOUT_MISMATCH"
)

// StructuralError names the construct of a program that failed to parse or verify.
type StructuralError struct {
	Code        StructuralErrorCode
	Computation string
	Instruction string
	Line        int
	Column      int
	Message     string
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	loc := ""
	switch {
	case e.Computation != "" && e.Instruction != "":
		loc = fmt.Sprintf(" (%s/%s)", e.Computation, e.Instruction)
	case e.Computation != "":
		loc = fmt.Sprintf(" (%s)", e.Computation)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s at %d:%d: %s%s", e.Code, e.Line, e.Column, e.Message, loc)
	}
	return fmt.Sprintf("%s: %s%s", e.Code, e.Message, loc)
}

// Errorf returns a StructuralError located at instr (which may be nil).
func Errorf(code StructuralErrorCode, instr *Instruction, format string, args ...any) *StructuralError {
	e := &StructuralError{Code: code, Message: fmt.Sprintf(format, args...)}
	if instr != nil {
		e.Instruction = instr.Name
		e.Line, e.Column = instr.Pos.Line, instr.Pos.Column
		if instr.Parent != nil {
			e.Computation = instr.Parent.Name
		}
	}
	return e
}

// IsStructuralError reports whether err wraps a StructuralError with one of codes
// (any code if none are given).
func IsStructuralError(err error, codes ...StructuralErrorCode) bool {
	var se *StructuralError
	if !errors.As(err, &se) {
		return false
	}
	if len(codes) == 0 {
		return true
	}
	for _, c := range codes {
		if se.Code == c {
			return true
		}
	}
	return false
}
