package harness

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/roach88/collcheck/internal/compiler"
	"github.com/roach88/collcheck/internal/config"
	"github.com/roach88/collcheck/internal/devices"
	"github.com/roach88/collcheck/internal/engine"
	"github.com/roach88/collcheck/internal/ir"
	"github.com/roach88/collcheck/internal/literal"
	"k8s.io/klog/v2"
)

// Backend compiles programs for replicated execution and reports how many
// devices it can place replicas on.
type Backend interface {
	devices.Provider

	// Compile takes ownership of m: it must not be used after the call.
	Compile(m *ir.Module, cfg *config.Config) (Executable, error)
}

// Executable is a compiled program bound to its configuration.
type Executable interface {
	// Execute runs every replica and joins them. inputs is empty or holds
	// one argument list per replica.
	Execute(ctx context.Context, inputs [][]*literal.Literal) (*engine.Result, error)
}

type localBackend struct {
	*engine.Backend
}

// Compile implements Backend.
func (b localBackend) Compile(m *ir.Module, cfg *config.Config) (Executable, error) {
	exec, err := b.Backend.Compile(m, cfg)
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// Local returns the in-process backend with numDevices virtual devices.
func Local(numDevices int) Backend {
	return localBackend{engine.NewBackend(numDevices)}
}

// LoadProgram parses and verifies program text. The returned module is owned
// by the caller until it is handed to Execute. Errors are *ir.StructuralError.
func LoadProgram(text string, cfg *config.Config) (*ir.Module, error) {
	m, err := ir.Parse(text)
	if err != nil {
		return nil, err
	}
	if err := compiler.Verify(m); err != nil {
		return nil, err
	}
	if cfg != nil {
		klog.V(2).Infof("loaded %s (%d computations) for %s", m.Name, len(m.Computations), cfg)
	}
	return m, nil
}

// FailureKind tells compile failures from runtime failures.
type FailureKind string

const (
	CompileFailure FailureKind = "compile"
	RuntimeFailure FailureKind = "runtime"
)

// ExecutionError is returned by Execute. Err is a *compiler.CompileError or
// an *engine.RuntimeError for failures of the reference backend.
type ExecutionError struct {
	Kind FailureKind
	Err  error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failure: %v", e.Kind, e.Err)
}

// Unwrap returns Err.
func (e *ExecutionError) Unwrap() error { return e.Err }

// Execute compiles m with backend (taking ownership of m) and runs it on
// cfg.Replicas() replicas in parallel. inputs is empty when the entry takes
// no parameters, otherwise it has one argument list per replica.
//
// The Result is returned even when execution fails, for its trace.
func Execute(ctx context.Context, backend Backend, m *ir.Module, cfg *config.Config, inputs [][]*literal.Literal) (*engine.Result, error) {
	if len(inputs) != 0 && len(inputs) != cfg.Replicas() {
		return nil, &ExecutionError{Kind: RuntimeFailure,
			Err: errors.Errorf("got inputs for %d replicas, want %d", len(inputs), cfg.Replicas())}
	}
	exec, err := backend.Compile(m, cfg)
	if err != nil {
		return nil, &ExecutionError{Kind: CompileFailure, Err: err}
	}
	result, err := exec.Execute(ctx, inputs)
	if err != nil {
		return result, &ExecutionError{Kind: RuntimeFailure, Err: err}
	}
	return result, nil
}
