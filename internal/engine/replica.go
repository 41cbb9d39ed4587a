package engine

import (
	"context"
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/roach88/collcheck/internal/compiler"
	"github.com/roach88/collcheck/internal/ir"
	"github.com/roach88/collcheck/internal/literal"
	"k8s.io/klog/v2"
)

// value is the runtime value of an instruction inside one replica: a ready
// literal, an issued transfer, or a tuple whose elements may still be pending.
type value struct {
	lit   *literal.Literal
	tr    *transfer
	elems []*value
}

func ready(l *literal.Literal) *value { return &value{lit: l} }

// execution is the state shared by the replicas of one Execute call.
type execution struct {
	program *compiler.Executable
	fabric  *fabric
	trace   *Trace

	// deadline is the timeout-bounded context; its error tells a timeout
	// apart from a cancellation caused by another replica's failure.
	deadline context.Context
}

// replica interprets the program for one replica id. It is used by a single goroutine.
type replica struct {
	id      int
	run     *execution
	ctx     context.Context
	current *ir.Instruction
}

// execute runs the entry computation and returns the root flattened one level.
func (r *replica) execute(params []*literal.Literal) ([]*literal.Literal, error) {
	args := make([]*value, len(params))
	for i, p := range params {
		args[i] = ready(p)
	}
	entry := r.run.program.Module().Entry
	root, err := r.evalComputation(entry, args)
	if err != nil {
		return nil, err
	}
	out, err := r.resolve(root, entry.Root)
	if err != nil {
		return nil, err
	}
	r.run.trace.record(Event{Replica: r.id, Kind: EventFinish, Instruction: entry.Root.Name, Peer: NoPeer})
	if out.IsTuple() {
		return out.Elements(), nil
	}
	return []*literal.Literal{out}, nil
}

func (r *replica) evalComputation(c *ir.Computation, args []*value) (*value, error) {
	s := r.run.program.Schedule(c)
	env := make(map[*ir.Instruction]*value, len(s.Order))
	for _, instr := range s.Order {
		r.current = instr
		for _, w := range s.Waits[instr] {
			if _, err := r.resolve(env[w], instr); err != nil {
				return nil, err
			}
		}
		v, err := r.eval(instr, env, args)
		if err != nil {
			return nil, err
		}
		env[instr] = v
	}
	return env[c.Root], nil
}

// resolve waits for every transfer inside v and returns its literal. blocked
// is the instruction that needs the value, for error reporting.
func (r *replica) resolve(v *value, blocked *ir.Instruction) (*literal.Literal, error) {
	if v.lit != nil {
		return v.lit, nil
	}
	if v.tr != nil {
		data, err := v.tr.await(r.ctx)
		if err != nil {
			return nil, r.transferError(v.tr, blocked, err)
		}
		v.lit = literal.Tuple(data, literal.U32(0), literal.Token())
		return v.lit, nil
	}
	elems := make([]*literal.Literal, len(v.elems))
	for i, e := range v.elems {
		l, err := r.resolve(e, blocked)
		if err != nil {
			return nil, err
		}
		elems[i] = l
	}
	v.lit = literal.Tuple(elems...)
	return v.lit, nil
}

// transferError turns the failure of a wait on t into a RuntimeError.
func (r *replica) transferError(t *transfer, blocked *ir.Instruction, err error) error {
	var re *RuntimeError
	if errors.As(err, &re) {
		return err
	}
	rerr := &RuntimeError{
		Code:        ErrCodeCancelled,
		Replica:     r.id,
		Instruction: blocked.Name,
		Channel:     t.channel,
		HasChannel:  true,
		Peer:        t.peer,
		Message:     fmt.Sprintf("cancelled while waiting for %s", t.instr.Name),
		Cause:       err,
	}
	if errors.Is(r.run.deadline.Err(), context.DeadlineExceeded) {
		rerr.Code = ErrCodeDeadlock
		rerr.Message = fmt.Sprintf("timed out after %s waiting for %s %s", r.run.program.Config().Timeout(), t.instr.Opcode, t.instr.Name)
	}
	return rerr
}

func (r *replica) operand(env map[*ir.Instruction]*value, instr *ir.Instruction, i int) (*literal.Literal, error) {
	return r.resolve(env[instr.Operands[i]], instr)
}

func (r *replica) eval(instr *ir.Instruction, env map[*ir.Instruction]*value, args []*value) (*value, error) {
	switch instr.Opcode {
	case ir.OpParameter:
		return args[instr.ParameterNumber], nil

	case ir.OpConstant:
		return ready(instr.Literal), nil

	case ir.OpAfterAll:
		return ready(literal.Token()), nil

	case ir.OpReplicaID:
		return ready(literal.U32(uint32(r.id))), nil

	case ir.OpTuple:
		elems := make([]*value, len(instr.Operands))
		for i, op := range instr.Operands {
			elems[i] = env[op]
		}
		return &value{elems: elems}, nil

	case ir.OpGetTupleElem:
		v := env[instr.Operands[0]]
		if v.elems != nil {
			return v.elems[instr.Index], nil
		}
		l, err := r.resolve(v, instr)
		if err != nil {
			return nil, err
		}
		return ready(l.Element(instr.Index)), nil

	case ir.OpAdd, ir.OpSubtract, ir.OpMultiply, ir.OpMaximum, ir.OpMinimum:
		a, err := r.operand(env, instr, 0)
		if err != nil {
			return nil, err
		}
		b, err := r.operand(env, instr, 1)
		if err != nil {
			return nil, err
		}
		return ready(binary(instr.Opcode, a, b)), nil

	case ir.OpNegate:
		a, err := r.operand(env, instr, 0)
		if err != nil {
			return nil, err
		}
		return ready(negate(a)), nil

	case ir.OpCopy:
		a, err := r.operand(env, instr, 0)
		if err != nil {
			return nil, err
		}
		return ready(a), nil

	case ir.OpSend:
		data, err := r.operand(env, instr, 0)
		if err != nil {
			return nil, err
		}
		if _, err := r.operand(env, instr, 1); err != nil {
			return nil, err
		}
		route, _ := r.run.program.Route(instr.ChannelID)
		target, routed := route.Target[r.id]
		return &value{tr: r.run.fabric.send(r.ctx, instr, r.id, data, target, routed)}, nil

	case ir.OpRecv:
		if _, err := r.operand(env, instr, 0); err != nil {
			return nil, err
		}
		route, _ := r.run.program.Route(instr.ChannelID)
		source, routed := route.Source[r.id]
		want := instr.Shape.TupleShapes[0]
		return &value{tr: r.run.fabric.recv(r.ctx, instr, r.id, want, source, routed)}, nil

	case ir.OpSendDone:
		if _, err := r.operand(env, instr, 0); err != nil {
			return nil, err
		}
		return ready(literal.Token()), nil

	case ir.OpRecvDone:
		done, err := r.operand(env, instr, 0)
		if err != nil {
			return nil, err
		}
		return ready(literal.Tuple(done.Element(0), literal.Token())), nil

	case ir.OpAsyncStart:
		operands := make([]*value, len(instr.Operands))
		for i, op := range instr.Operands {
			operands[i] = env[op]
		}
		r.run.trace.record(Event{Replica: r.id, Kind: EventAsyncStart, Instruction: instr.Name, Peer: NoPeer})
		root, err := r.evalComputation(instr.Called, operands)
		if err != nil {
			return nil, err
		}
		r.current = instr
		klog.V(2).Infof("replica %d: %s issued %s", r.id, instr.Name, instr.Called.Name)
		return &value{elems: []*value{{elems: operands}, root, ready(literal.S32(0))}}, nil

	case ir.OpAsyncDone:
		start := env[instr.Operands[0]]
		var l *literal.Literal
		var err error
		if start.elems != nil {
			l, err = r.resolve(start.elems[1], instr)
		} else if l, err = r.resolve(start, instr); err == nil {
			l = l.Element(1)
		}
		if err != nil {
			return nil, err
		}
		r.run.trace.record(Event{Replica: r.id, Kind: EventAsyncDone, Instruction: instr.Name, Peer: NoPeer})
		return ready(l), nil
	}
	exceptions.Panicf("engine: no lowering for %s (%s)", instr.Opcode, instr.Name)
	return nil, nil
}
