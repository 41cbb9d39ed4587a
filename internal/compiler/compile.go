// Package compiler verifies parsed modules and lowers them into executables
// for the replicated runtime.
//
// Compile takes ownership of the module: it is marked consumed, optionally
// rewritten by the pass pipeline, and scheduled. Each computation gets a
// sequential order that honours data edges, control edges and the implicit
// "wait for completion" edges of asynchronous operations. Every channel gets
// a Route mapping replicas to peers.
package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/collcheck/internal/config"
	"github.com/roach88/collcheck/internal/ir"
	"github.com/roach88/collcheck/internal/shapes"
	"k8s.io/klog/v2"
)

// Schedule is the execution order of one computation.
type Schedule struct {
	Computation *ir.Computation
	Order       []*ir.Instruction

	// Waits lists, per instruction, the operations whose completion must be
	// awaited before it starts. It is derived from control edges: a control
	// predecessor that is an async-start, send or recv is replaced by its
	// matching done operation when there is one.
	Waits map[*ir.Instruction][]*ir.Instruction
}

// Executable is a compiled module bound to an execution configuration.
type Executable struct {
	module    *ir.Module
	cfg       *config.Config
	schedules map[*ir.Computation]*Schedule
	channels  map[int64]*Channel
	routes    map[int64]Route
	passes    []PassResult
}

// Compile takes ownership of m, verifies it, runs the pass pipeline when
// cfg.RunPasses() is set, and lowers it. m must not be used afterwards.
//
// Errors are *CompileError (wrapping the *ir.StructuralError for verification
// failures).
func Compile(m *ir.Module, cfg *config.Config) (*Executable, error) {
	if err := m.Consume(); err != nil {
		return nil, &CompileError{Code: ErrCodeOwnership, Message: "module " + m.Name + " cannot be compiled twice", Cause: err}
	}
	if err := verifyModule(m); err != nil {
		return nil, &CompileError{Code: ErrCodeVerify, Message: "module " + m.Name + " failed verification", Cause: err}
	}
	for _, c := range m.Computations {
		for _, instr := range c.Instructions {
			if trustedOpcodes[instr.Opcode] {
				return nil, &CompileError{Code: ErrCodeUnsupported, Computation: c.Name, Instruction: instr.Name,
					Message: fmt.Sprintf("%s has no lowering", instr.Opcode)}
			}
		}
	}

	exec := &Executable{
		module:    m,
		cfg:       cfg,
		schedules: map[*ir.Computation]*Schedule{},
		routes:    map[int64]Route{},
	}
	if cfg.RunPasses() {
		results, err := runPasses(m, DefaultPasses())
		if err != nil {
			return nil, &CompileError{Code: ErrCodeVerify, Message: "pass pipeline failed", Cause: err}
		}
		exec.passes = results
		if err := verifyModule(m); err != nil {
			return nil, &CompileError{Code: ErrCodeVerify, Message: "module invalid after passes", Cause: err}
		}
	}

	var err error
	if exec.channels, err = matchChannels(m); err != nil {
		return nil, &CompileError{Code: ErrCodeVerify, Message: "channel matching failed", Cause: err}
	}
	for id, ch := range exec.channels {
		if exec.routes[id], err = resolveRoute(ch, cfg); err != nil {
			return nil, err
		}
	}
	for _, c := range m.Computations {
		s, err := schedule(c)
		if err != nil {
			return nil, err
		}
		exec.schedules[c] = s
	}
	klog.V(1).Infof("compiled %s: %d computations, %d channels, %s", m.Name, len(m.Computations), len(exec.channels), cfg)
	return exec, nil
}

// waitTarget returns the operation whose completion stands for pred having finished.
func waitTarget(c *ir.Computation, pred *ir.Instruction) *ir.Instruction {
	var done ir.Opcode
	switch pred.Opcode {
	case ir.OpAsyncStart:
		done = ir.OpAsyncDone
	case ir.OpSend:
		done = ir.OpSendDone
	case ir.OpRecv:
		done = ir.OpRecvDone
	default:
		return pred
	}
	for _, user := range c.Users(pred) {
		if user.Opcode == done {
			return user
		}
	}
	return pred
}

// schedule orders c topologically, preferring declaration order among ready instructions.
func schedule(c *ir.Computation) (*Schedule, error) {
	s := &Schedule{Computation: c, Waits: map[*ir.Instruction][]*ir.Instruction{}}
	position := make(map[*ir.Instruction]int, len(c.Instructions))
	for i, instr := range c.Instructions {
		position[instr] = i
	}
	deps := make(map[*ir.Instruction][]*ir.Instruction, len(c.Instructions))
	for _, instr := range c.Instructions {
		deps[instr] = append(deps[instr], instr.Operands...)
		for _, pred := range instr.ControlPredecessors {
			target := waitTarget(c, pred)
			if target == instr {
				// The done operation itself; its operand edge already orders it.
				target = pred
			}
			s.Waits[instr] = append(s.Waits[instr], target)
			deps[instr] = append(deps[instr], target)
		}
	}

	done := make(map[*ir.Instruction]bool, len(c.Instructions))
	for len(s.Order) < len(c.Instructions) {
		var next *ir.Instruction
		for _, instr := range c.Instructions {
			if done[instr] {
				continue
			}
			ready := true
			for _, d := range deps[instr] {
				if !done[d] {
					ready = false
					break
				}
			}
			if ready {
				next = instr
				break
			}
		}
		if next == nil {
			var stuck []string
			for _, instr := range c.Instructions {
				if !done[instr] {
					stuck = append(stuck, instr.Name)
				}
			}
			return nil, &CompileError{Code: ErrCodeVerify, Computation: c.Name,
				Message: "cannot schedule " + strings.Join(stuck, ", ") + ": completion waits form a cycle"}
		}
		done[next] = true
		s.Order = append(s.Order, next)
	}
	return s, nil
}

// Module returns the compiled module.
func (e *Executable) Module() *ir.Module { return e.module }

// Config returns the configuration the executable was compiled for.
func (e *Executable) Config() *config.Config { return e.cfg }

// Schedule returns the schedule of c.
func (e *Executable) Schedule(c *ir.Computation) *Schedule { return e.schedules[c] }

// Route returns the routing of channel id.
func (e *Executable) Route(id int64) (Route, bool) {
	r, ok := e.routes[id]
	return r, ok
}

// Channels returns the channel ids in increasing order.
func (e *Executable) Channels() []int64 {
	ids := make([]int64, 0, len(e.channels))
	for id := range e.channels {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Passes returns the pass pipeline results, empty when passes were disabled.
func (e *Executable) Passes() []PassResult { return slices.Clone(e.passes) }

// ParameterShapes returns the entry parameter shapes in parameter order.
func (e *Executable) ParameterShapes() []shapes.Shape {
	params := e.module.Entry.Parameters()
	out := make([]shapes.Shape, len(params))
	for i, p := range params {
		out[i] = p.Shape
	}
	return out
}

// OutputShape returns the shape of the entry root.
func (e *Executable) OutputShape() shapes.Shape { return e.module.Entry.Root.Shape }

// String renders the routes and schedules, one instruction per line.
func (e *Executable) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "executable %s (%s)\n", e.module.Name, e.cfg)
	for _, p := range e.passes {
		fmt.Fprintf(&sb, "pass %s: changed=%v\n", p.Name, p.Changed)
	}
	for _, id := range e.Channels() {
		route := e.routes[id]
		fmt.Fprintf(&sb, "channel %d:", id)
		for r := 0; r < e.cfg.Replicas(); r++ {
			if target, ok := route.Target[r]; ok {
				fmt.Fprintf(&sb, " %d->%d", r, target)
			}
		}
		sb.WriteByte('\n')
	}
	for _, c := range e.module.Computations {
		s := e.schedules[c]
		prefix := ""
		if c.IsEntry {
			prefix = "ENTRY "
		}
		fmt.Fprintf(&sb, "\n%s%s:\n", prefix, c.Name)
		for i, instr := range s.Order {
			fmt.Fprintf(&sb, "  %d: %s", i, instr.Name)
			if waits := s.Waits[instr]; len(waits) > 0 {
				names := make([]string, len(waits))
				for j, w := range waits {
					names[j] = w.Name
				}
				fmt.Fprintf(&sb, " (after %s)", strings.Join(names, ", "))
			}
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

