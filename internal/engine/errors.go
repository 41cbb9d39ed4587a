package engine

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// RuntimeErrorCode categorizes replicated execution failures.
type RuntimeErrorCode string

const (
	// ErrCodeDeadlock indicates a replica was still blocked on a transfer when the timeout fired.
	ErrCodeDeadlock RuntimeErrorCode = "DEADLOCK"

	// ErrCodeShapeMismatch indicates inputs or received data of the wrong shape.
	ErrCodeShapeMismatch RuntimeErrorCode = "SHAPE_MISMATCH"

	// ErrCodeDeviceFault indicates a replica crashed; the panic is recorded in Message.
	ErrCodeDeviceFault RuntimeErrorCode = "DEVICE_FAULT"

	// ErrCodeDeviceUnavailable indicates the device assignment does not fit the backend.
	ErrCodeDeviceUnavailable RuntimeErrorCode = "DEVICE_UNAVAILABLE"

	// ErrCodeCancelled indicates the execution was cancelled by the caller or by another replica's failure.
	ErrCodeCancelled RuntimeErrorCode = "CANCELLED"
)

// NoPeer marks a transfer without a counterpart replica.
const NoPeer = -1

// RuntimeError reports the failure of one replica.
type RuntimeError struct {
	Code    RuntimeErrorCode
	Message string

	// Replica is the failing replica, or -1 if the failure is not tied to one.
	Replica int

	// Instruction is the instruction the replica was executing.
	Instruction string

	// Channel and Peer identify the transfer a blocked replica was waiting on.
	// HasChannel is false when the failure is not about a transfer.
	Channel    int64
	HasChannel bool
	Peer       int

	Cause error
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	var parts []string
	if e.Replica >= 0 {
		parts = append(parts, fmt.Sprintf("replica=%d", e.Replica))
	}
	if e.Instruction != "" {
		parts = append(parts, "instruction="+e.Instruction)
	}
	if e.HasChannel {
		parts = append(parts, fmt.Sprintf("channel=%d", e.Channel))
		if e.Peer != NoPeer {
			parts = append(parts, fmt.Sprintf("peer=%d", e.Peer))
		}
	}
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if len(parts) > 0 {
		msg += " (" + strings.Join(parts, ", ") + ")"
	}
	return msg
}

// Unwrap returns the cause.
func (e *RuntimeError) Unwrap() error { return e.Cause }

// IsRuntimeError reports whether err wraps a RuntimeError with one of codes
// (any code if none is given).
func IsRuntimeError(err error, codes ...RuntimeErrorCode) bool {
	var re *RuntimeError
	if !errors.As(err, &re) {
		return false
	}
	if len(codes) == 0 {
		return true
	}
	for _, c := range codes {
		if re.Code == c {
			return true
		}
	}
	return false
}

// IsDeadlock reports whether err is a deadlock timeout.
func IsDeadlock(err error) bool {
	return IsRuntimeError(err, ErrCodeDeadlock)
}
