package compiler

import (
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/collcheck/internal/ir"
	"github.com/roach88/collcheck/internal/shapes"
)

// trustedOpcodes are verified only for operand existence: their declared shape
// is accepted as is. The reference lowering rejects them at compile time.
var trustedOpcodes = map[ir.Opcode]bool{
	ir.OpAllReduce:      true,
	ir.OpCollectivePerm: true,
	ir.OpCustomCall:     true,
	ir.OpWhile:          true,
}

// wrappedOpcodes may appear in a computation called by async-start.
var wrappedOpcodes = map[ir.Opcode]bool{
	ir.OpParameter:    true,
	ir.OpConstant:     true,
	ir.OpAfterAll:     true,
	ir.OpSend:         true,
	ir.OpRecv:         true,
	ir.OpTuple:        true,
	ir.OpGetTupleElem: true,
}

// Verify checks the static rules of a parsed module:
//   - entry_computation_layout and computation signatures match parameters and roots
//   - parameter numbers are 0..n-1 without gaps
//   - every declared shape equals the shape inferred from the operands
//   - every channel id has exactly one send and one recv with the same data shape,
//     counting only computations reachable from ENTRY
//   - outside async groups, every send and recv has exactly one user, its done
//   - async groups wrap only send/recv plumbing, and each start has one done
//   - data and control edges form no cycle
//
// Errors are *ir.StructuralError.
func Verify(m *ir.Module) error {
	if err := m.CheckLive(); err != nil {
		return err
	}
	return verifyModule(m)
}

func verifyModule(m *ir.Module) error {
	for _, c := range m.Computations {
		if err := verifyComputation(m, c); err != nil {
			return err
		}
	}
	if err := verifyEntryLayout(m); err != nil {
		return err
	}
	if _, err := matchChannels(m); err != nil {
		return err
	}
	if err := verifyTransferDones(m); err != nil {
		return err
	}
	for _, c := range m.Computations {
		for _, instr := range c.Instructions {
			if instr.Opcode == ir.OpAsyncStart {
				if err := verifyAsyncGroup(m, instr); err != nil {
					return err
				}
			}
		}
	}
	for _, c := range m.Computations {
		if cycle := findCycle(c); cycle != nil {
			return ir.Errorf(ir.ErrCycle, cycle[0], "dependency cycle: %s", formatPath(cycle))
		}
	}
	return nil
}

func verifyEntryLayout(m *ir.Module) error {
	if m.EntryLayout == nil {
		return nil
	}
	return checkSignature(m.Entry, m.EntryLayout, ir.ErrLayout)
}

func checkSignature(c *ir.Computation, sig *ir.Signature, code ir.StructuralErrorCode) error {
	params := c.Parameters()
	if len(params) != len(sig.Parameters) {
		return &ir.StructuralError{Code: code, Computation: c.Name,
			Message: "declared " + itoa(len(sig.Parameters)) + " parameters, computation has " + itoa(len(params))}
	}
	for i, p := range params {
		if !p.Shape.Equal(sig.Parameters[i]) {
			return ir.Errorf(code, p, "parameter %d is %s, declared %s", i, p.Shape, sig.Parameters[i])
		}
	}
	if !c.Root.Shape.Equal(sig.Result) {
		return ir.Errorf(code, c.Root, "result is %s, declared %s", c.Root.Shape, sig.Result)
	}
	return nil
}

func verifyComputation(m *ir.Module, c *ir.Computation) error {
	params := c.Parameters()
	for i, p := range params {
		if p.ParameterNumber != i {
			return ir.Errorf(ir.ErrShapeMismatch, p, "parameter numbers must be 0..%d without gaps or repeats, got %d",
				len(params)-1, p.ParameterNumber)
		}
	}
	if c.Signature != nil {
		if err := checkSignature(c, c.Signature, ir.ErrShapeMismatch); err != nil {
			return err
		}
	}
	for _, instr := range c.Instructions {
		if instr.Called != nil {
			if instr.Called.IsEntry {
				return ir.Errorf(ir.ErrBadAttribute, instr, "cannot call the ENTRY computation %s", instr.Called.Name)
			}
			if instr.Opcode != ir.OpAsyncStart && !trustedOpcodes[instr.Opcode] {
				return ir.Errorf(ir.ErrBadAttribute, instr, "%s does not take calls=", instr.Opcode)
			}
		}
		if trustedOpcodes[instr.Opcode] {
			continue
		}
		inferred, err := inferShape(instr)
		if err != nil {
			return err
		}
		if !inferred.Equal(instr.Shape) {
			return ir.Errorf(ir.ErrShapeMismatch, instr, "declared shape %s, inferred %s", instr.Shape, inferred)
		}
	}
	return nil
}

func operandCount(instr *ir.Instruction, want int) error {
	if len(instr.Operands) != want {
		return ir.Errorf(ir.ErrShapeMismatch, instr, "%s takes %d operands, got %d", instr.Opcode, want, len(instr.Operands))
	}
	return nil
}

func requireChannel(instr *ir.Instruction) error {
	if !instr.HasChannel {
		return ir.Errorf(ir.ErrBadAttribute, instr, "%s requires channel_id", instr.Opcode)
	}
	return nil
}

func isArray(s shapes.Shape) bool {
	return s.Ok() && !s.IsTuple() && !s.IsToken()
}

// transferShape is the (data, context, token) tuple produced by send and recv.
func transferShape(data shapes.Shape) shapes.Shape {
	return shapes.MakeTuple(data, shapes.Scalar(shapes.U32), shapes.TokenShape())
}

// inferShape computes the shape an instruction must have from its operands.
func inferShape(instr *ir.Instruction) (shapes.Shape, error) {
	ops := instr.Operands
	switch instr.Opcode {
	case ir.OpParameter:
		return instr.Shape, nil

	case ir.OpConstant:
		if instr.Literal == nil {
			return shapes.Shape{}, ir.Errorf(ir.ErrShapeMismatch, instr, "constant without a value")
		}
		return instr.Literal.Shape(), nil

	case ir.OpAfterAll:
		for i, op := range ops {
			if !op.Shape.IsToken() {
				return shapes.Shape{}, ir.Errorf(ir.ErrShapeMismatch, instr, "operand %d of after-all is %s, want token[]", i, op.Shape)
			}
		}
		return shapes.TokenShape(), nil

	case ir.OpTuple:
		elems := make([]shapes.Shape, len(ops))
		for i, op := range ops {
			elems[i] = op.Shape
		}
		return shapes.MakeTuple(elems...), nil

	case ir.OpGetTupleElem:
		if err := operandCount(instr, 1); err != nil {
			return shapes.Shape{}, err
		}
		if !ops[0].Shape.IsTuple() {
			return shapes.Shape{}, ir.Errorf(ir.ErrShapeMismatch, instr, "get-tuple-element of non-tuple %s", ops[0].Shape)
		}
		if instr.Index >= ops[0].Shape.TupleSize() {
			return shapes.Shape{}, ir.Errorf(ir.ErrShapeMismatch, instr, "index %d out of range for %s", instr.Index, ops[0].Shape)
		}
		return ops[0].Shape.TupleShapes[instr.Index], nil

	case ir.OpAdd, ir.OpSubtract, ir.OpMultiply, ir.OpMaximum, ir.OpMinimum:
		if err := operandCount(instr, 2); err != nil {
			return shapes.Shape{}, err
		}
		if !isArray(ops[0].Shape) || ops[0].Shape.DType == shapes.Pred {
			return shapes.Shape{}, ir.Errorf(ir.ErrShapeMismatch, instr, "%s needs numeric arrays, got %s", instr.Opcode, ops[0].Shape)
		}
		if !ops[0].Shape.Equal(ops[1].Shape) {
			return shapes.Shape{}, ir.Errorf(ir.ErrShapeMismatch, instr, "operand shapes differ: %s vs %s", ops[0].Shape, ops[1].Shape)
		}
		return ops[0].Shape, nil

	case ir.OpNegate:
		if err := operandCount(instr, 1); err != nil {
			return shapes.Shape{}, err
		}
		if !isArray(ops[0].Shape) || ops[0].Shape.DType == shapes.Pred || ops[0].Shape.DType.IsUnsigned() {
			return shapes.Shape{}, ir.Errorf(ir.ErrShapeMismatch, instr, "negate needs signed or float arrays, got %s", ops[0].Shape)
		}
		return ops[0].Shape, nil

	case ir.OpCopy:
		if err := operandCount(instr, 1); err != nil {
			return shapes.Shape{}, err
		}
		return ops[0].Shape, nil

	case ir.OpReplicaID:
		if err := operandCount(instr, 0); err != nil {
			return shapes.Shape{}, err
		}
		return shapes.Scalar(shapes.U32), nil

	case ir.OpSend:
		if err := operandCount(instr, 2); err != nil {
			return shapes.Shape{}, err
		}
		if err := requireChannel(instr); err != nil {
			return shapes.Shape{}, err
		}
		if !isArray(ops[0].Shape) {
			return shapes.Shape{}, ir.Errorf(ir.ErrShapeMismatch, instr, "send data must be an array, got %s", ops[0].Shape)
		}
		if !ops[1].Shape.IsToken() {
			return shapes.Shape{}, ir.Errorf(ir.ErrShapeMismatch, instr, "send token operand is %s, want token[]", ops[1].Shape)
		}
		return transferShape(ops[0].Shape), nil

	case ir.OpRecv:
		if err := operandCount(instr, 1); err != nil {
			return shapes.Shape{}, err
		}
		if err := requireChannel(instr); err != nil {
			return shapes.Shape{}, err
		}
		if !ops[0].Shape.IsToken() {
			return shapes.Shape{}, ir.Errorf(ir.ErrShapeMismatch, instr, "recv operand is %s, want token[]", ops[0].Shape)
		}
		// The received data shape is only known from the declaration.
		if instr.Shape.TupleSize() != 3 || !isArray(instr.Shape.TupleShapes[0]) {
			return shapes.Shape{}, ir.Errorf(ir.ErrShapeMismatch, instr, "recv must be declared as (data, u32[], token[]), got %s", instr.Shape)
		}
		return transferShape(instr.Shape.TupleShapes[0]), nil

	case ir.OpSendDone, ir.OpRecvDone:
		if err := operandCount(instr, 1); err != nil {
			return shapes.Shape{}, err
		}
		start := ir.OpSend
		if instr.Opcode == ir.OpRecvDone {
			start = ir.OpRecv
		}
		if ops[0].Opcode != start || ops[0].Shape.TupleSize() != 3 {
			return shapes.Shape{}, ir.Errorf(ir.ErrShapeMismatch, instr, "%s operand must be a %s, got %s %s",
				instr.Opcode, start, ops[0].Shape, ops[0].Opcode)
		}
		if instr.HasChannel && instr.ChannelID != ops[0].ChannelID {
			return shapes.Shape{}, ir.Errorf(ir.ErrUnmatchedChannel, instr, "channel_id=%d does not match %s channel_id=%d",
				instr.ChannelID, ops[0].Name, ops[0].ChannelID)
		}
		if instr.Opcode == ir.OpSendDone {
			return shapes.TokenShape(), nil
		}
		return shapes.MakeTuple(ops[0].Shape.TupleShapes[0], shapes.TokenShape()), nil

	case ir.OpAsyncStart:
		called := instr.Called
		if called == nil {
			return shapes.Shape{}, ir.Errorf(ir.ErrBadAttribute, instr, "async-start requires calls=")
		}
		params := called.Parameters()
		if len(params) != len(ops) {
			return shapes.Shape{}, ir.Errorf(ir.ErrAsyncGroup, instr, "%s takes %d parameters, async-start passes %d",
				called.Name, len(params), len(ops))
		}
		operandShapes := make([]shapes.Shape, len(ops))
		for i, op := range ops {
			if !op.Shape.Equal(params[i].Shape) {
				return shapes.Shape{}, ir.Errorf(ir.ErrShapeMismatch, instr, "operand %d is %s, %s parameter %d is %s",
					i, op.Shape, called.Name, i, params[i].Shape)
			}
			operandShapes[i] = op.Shape
		}
		return shapes.MakeTuple(shapes.MakeTuple(operandShapes...), called.Root.Shape, shapes.Scalar(shapes.S32)), nil

	case ir.OpAsyncDone:
		if err := operandCount(instr, 1); err != nil {
			return shapes.Shape{}, err
		}
		if ops[0].Opcode != ir.OpAsyncStart {
			return shapes.Shape{}, ir.Errorf(ir.ErrAsyncGroup, instr, "async-done operand must be an async-start, got %s", ops[0].Opcode)
		}
		if ops[0].Shape.TupleSize() != 3 {
			return shapes.Shape{}, ir.Errorf(ir.ErrAsyncGroup, instr, "malformed async-start shape %s", ops[0].Shape)
		}
		return ops[0].Shape.TupleShapes[1], nil
	}
	return shapes.Shape{}, ir.Errorf(ir.ErrUnknownOpcode, instr, "unknown opcode %q", instr.Opcode)
}

// verifyAsyncGroup checks the wrapped computation of start and its users.
func verifyAsyncGroup(m *ir.Module, start *ir.Instruction) error {
	wrapped := start.Called
	var collectives []*ir.Instruction
	for _, instr := range wrapped.Instructions {
		if !wrappedOpcodes[instr.Opcode] {
			return ir.Errorf(ir.ErrAsyncGroup, instr, "%s cannot be wrapped in an async group", instr.Opcode)
		}
		if instr.Opcode == ir.OpSend || instr.Opcode == ir.OpRecv {
			collectives = append(collectives, instr)
		}
	}
	if len(collectives) == 0 {
		return ir.Errorf(ir.ErrAsyncGroup, start, "%s wraps no send or recv", wrapped.Name)
	}
	root := wrapped.Root
	switch {
	case root.Opcode == ir.OpTuple:
		if !slices.Equal(root.Operands, collectives) {
			return ir.Errorf(ir.ErrAsyncGroup, root, "root of %s must be the tuple of its sends and recvs in declaration order (%s)",
				wrapped.Name, formatNames(collectives))
		}
	case len(collectives) == 1 && root == collectives[0]:
	default:
		return ir.Errorf(ir.ErrAsyncGroup, root, "root of %s must be its send/recv or a tuple of them", wrapped.Name)
	}

	var dones []*ir.Instruction
	for _, user := range start.Parent.Users(start) {
		if user.Opcode != ir.OpAsyncDone {
			return ir.Errorf(ir.ErrAsyncGroup, user, "%s may only be used by async-done, not %s", start.Name, user.Opcode)
		}
		dones = append(dones, user)
	}
	if len(dones) != 1 {
		return ir.Errorf(ir.ErrAsyncGroup, start, "async-start needs exactly one async-done, found %d", len(dones))
	}
	return nil
}

// asyncWrapped returns the computations called by an async-start.
func asyncWrapped(m *ir.Module) map[*ir.Computation]bool {
	wrapped := map[*ir.Computation]bool{}
	for _, c := range m.Computations {
		for _, instr := range c.Instructions {
			if instr.Opcode == ir.OpAsyncStart && instr.Called != nil {
				wrapped[instr.Called] = true
			}
		}
	}
	return wrapped
}

// verifyTransferDones checks that every send and recv outside an async group
// is used by exactly one instruction, its send-done or recv-done.
func verifyTransferDones(m *ir.Module) error {
	wrapped := asyncWrapped(m)
	for _, c := range m.Computations {
		if wrapped[c] {
			continue
		}
		for _, instr := range c.Instructions {
			done := ir.OpSendDone
			switch instr.Opcode {
			case ir.OpSend:
			case ir.OpRecv:
				done = ir.OpRecvDone
			default:
				continue
			}
			users := c.Users(instr)
			if len(users) != 1 {
				return ir.Errorf(ir.ErrUnmatchedChannel, instr, "%s must have exactly one user, its %s; found %d",
					instr.Opcode, done, len(users))
			}
			if users[0].Opcode != done {
				return ir.Errorf(ir.ErrUnmatchedChannel, users[0], "%s may only be used by %s, not %s",
					instr.Name, done, users[0].Opcode)
			}
		}
	}
	return nil
}

func formatNames(instrs []*ir.Instruction) string {
	names := make([]string, len(instrs))
	for i, instr := range instrs {
		names[i] = instr.Name
	}
	return strings.Join(names, ", ")
}

func itoa(n int) string { return strconv.Itoa(n) }
