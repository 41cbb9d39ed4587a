package compiler

import (
	"fmt"

	"github.com/pkg/errors"
)

// CompileErrorCode categorizes lowering failures.
type CompileErrorCode string

const (
	// ErrCodeUnsupported indicates an opcode the reference lowering cannot execute.
	ErrCodeUnsupported CompileErrorCode = "UNSUPPORTED"

	// ErrCodePairing indicates explicit source-target pairs that do not fit the replica count.
	ErrCodePairing CompileErrorCode = "INVALID_PAIRING"

	// ErrCodeOwnership indicates the module was already compiled.
	ErrCodeOwnership CompileErrorCode = "OWNERSHIP"

	// ErrCodeVerify indicates the module failed structural verification.
	ErrCodeVerify CompileErrorCode = "VERIFY"
)

// CompileError reports a module that cannot be lowered to an executable.
type CompileError struct {
	Code        CompileErrorCode
	Computation string
	Instruction string
	Message     string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Instruction != "" {
		msg += fmt.Sprintf(" (%s/%s)", e.Computation, e.Instruction)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the cause.
func (e *CompileError) Unwrap() error { return e.Cause }

// IsCompileError reports whether err wraps a CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}
