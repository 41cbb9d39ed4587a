package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/roach88/collcheck/internal/compiler"
	"github.com/roach88/collcheck/internal/config"
	"github.com/roach88/collcheck/internal/devices"
	"github.com/roach88/collcheck/internal/ir"
	"github.com/roach88/collcheck/internal/literal"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Backend runs programs on virtual devices, one goroutine per replica.
type Backend struct {
	numDevices int
}

var _ devices.Provider = (*Backend)(nil)

// NewBackend returns a backend exposing numDevices virtual devices.
func NewBackend(numDevices int) *Backend {
	return &Backend{numDevices: numDevices}
}

// NumDevices implements devices.Provider.
func (b *Backend) NumDevices() int { return b.numDevices }

// Name identifies the backend in reports.
func (b *Backend) Name() string { return fmt.Sprintf("local(%d)", b.numDevices) }

// Compile takes ownership of m and compiles it for cfg. Errors are *compiler.CompileError.
func (b *Backend) Compile(m *ir.Module, cfg *config.Config) (*Executable, error) {
	program, err := compiler.Compile(m, cfg)
	if err != nil {
		return nil, err
	}
	return &Executable{backend: b, program: program}, nil
}

// Executable is a compiled program ready to run on a Backend.
type Executable struct {
	backend *Backend
	program *compiler.Executable
}

// Result is the outcome of one replicated execution.
type Result struct {
	// Outputs holds, per replica, the entry root flattened one level.
	Outputs [][]*literal.Literal

	Trace    []Event
	Stats    Stats
	Duration time.Duration
}

// Execute runs every replica in parallel and waits for all of them.
//
// inputs holds the entry parameters of each replica; it may be empty when the
// entry takes no parameters. The first failing replica cancels the others.
// The reported error is that of the lowest replica id that failed for a
// reason other than cancellation, so that repeated runs report the same
// error. On failure the returned Result still carries the trace and stats.
func (e *Executable) Execute(ctx context.Context, inputs [][]*literal.Literal) (*Result, error) {
	cfg := e.program.Config()
	n := cfg.Replicas()
	if need := cfg.DevicesRequired(); need > e.backend.numDevices {
		return nil, &RuntimeError{Code: ErrCodeDeviceUnavailable, Replica: -1,
			Message: fmt.Sprintf("device assignment %v needs %d devices, backend has %d", cfg.DeviceAssignment(), need, e.backend.numDevices)}
	}
	params, err := e.replicaInputs(inputs)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	deadline, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()
	clock := NewClock()
	trace := newTrace(clock)
	stats := &counters{}
	run := &execution{
		program:  e.program,
		fabric:   newFabric(e.program, trace, stats),
		trace:    trace,
		deadline: deadline,
	}
	klog.V(1).Infof("executing %s on %d replicas of %s (%s)", e.program.Module().Name, n, e.backend.Name(), cfg)

	outputs := make([][]*literal.Literal, n)
	failures := make([]error, n)
	g, gctx := errgroup.WithContext(deadline)
	for id := range n {
		g.Go(func() error {
			rep := &replica{id: id, run: run, ctx: gctx}
			var err error
			fault := exceptions.TryCatch[error](func() {
				outputs[id], err = rep.execute(params[id])
			})
			if fault != nil {
				err = &RuntimeError{Code: ErrCodeDeviceFault, Replica: id, Instruction: instructionName(rep.current),
					Message: fault.Error(), Cause: fault}
			}
			if err != nil {
				klog.V(2).Infof("replica %d (device %d) failed: %v", id, cfg.Device(id), err)
				failures[id] = err
				return err
			}
			klog.V(2).Infof("replica %d (device %d) finished", id, cfg.Device(id))
			return nil
		})
	}
	err = g.Wait()
	if err == nil {
		if t, terr := run.fabric.settle(deadline, n); t != nil {
			err = pendingError(t, terr, deadline, cfg.Timeout())
			failures[t.replica] = err
		}
	}
	cancel()
	run.fabric.inflight.Wait()

	result := &Result{Trace: trace.Events(), Stats: stats.snapshot(), Duration: time.Since(start)}
	if err != nil {
		return result, rootCause(failures, err)
	}
	result.Outputs = outputs
	return result, nil
}

// pendingError reports a transfer that was still incomplete, or failed, after
// every replica returned.
func pendingError(t *transfer, err error, deadline context.Context, timeout time.Duration) error {
	var re *RuntimeError
	if errors.As(err, &re) {
		return err
	}
	rerr := &RuntimeError{
		Code:        ErrCodeCancelled,
		Replica:     t.replica,
		Instruction: t.instr.Name,
		Channel:     t.channel,
		HasChannel:  true,
		Peer:        t.peer,
		Message:     fmt.Sprintf("%s %s was cancelled before it completed", t.instr.Opcode, t.instr.Name),
		Cause:       err,
	}
	if errors.Is(deadline.Err(), context.DeadlineExceeded) {
		rerr.Code = ErrCodeDeadlock
		rerr.Message = fmt.Sprintf("%s %s never completed (timeout %s)", t.instr.Opcode, t.instr.Name, timeout)
	}
	return rerr
}

func instructionName(instr *ir.Instruction) string {
	if instr == nil {
		return ""
	}
	return instr.Name
}

// rootCause picks the first non-cancellation failure in replica order.
func rootCause(failures []error, fallback error) error {
	for _, err := range failures {
		if err != nil && !IsRuntimeError(err, ErrCodeCancelled) {
			return err
		}
	}
	for _, err := range failures {
		if err != nil {
			return err
		}
	}
	return fallback
}

// replicaInputs checks inputs against the entry parameters and returns one
// argument list per replica.
func (e *Executable) replicaInputs(inputs [][]*literal.Literal) ([][]*literal.Literal, error) {
	n := e.program.Config().Replicas()
	want := e.program.ParameterShapes()
	if len(inputs) == 0 {
		if len(want) > 0 {
			return nil, &RuntimeError{Code: ErrCodeShapeMismatch, Replica: -1,
				Message: fmt.Sprintf("entry takes %d parameters but no inputs were given", len(want))}
		}
		return make([][]*literal.Literal, n), nil
	}
	if len(inputs) != n {
		return nil, &RuntimeError{Code: ErrCodeShapeMismatch, Replica: -1,
			Message: fmt.Sprintf("got inputs for %d replicas, want %d", len(inputs), n)}
	}
	for r, args := range inputs {
		if len(args) != len(want) {
			return nil, &RuntimeError{Code: ErrCodeShapeMismatch, Replica: r,
				Message: fmt.Sprintf("got %d inputs, entry takes %d parameters", len(args), len(want))}
		}
		for i, arg := range args {
			if arg == nil || !arg.Shape().Equal(want[i]) {
				got := "nil"
				if arg != nil {
					got = arg.Shape().String()
				}
				return nil, &RuntimeError{Code: ErrCodeShapeMismatch, Replica: r,
					Message: fmt.Sprintf("input %d is %s, parameter is %s", i, got, want[i])}
			}
		}
	}
	return inputs, nil
}
