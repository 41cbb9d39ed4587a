package compiler

import (
	"github.com/roach88/collcheck/internal/ir"
	"k8s.io/klog/v2"
)

// Pass rewrites a module in place and reports whether it changed anything.
type Pass interface {
	Name() string
	Run(m *ir.Module) (changed bool, err error)
}

// PassResult records one pass run.
type PassResult struct {
	Name    string
	Changed bool
}

// DefaultPasses is the pipeline run when pass enablement is on.
func DefaultPasses() []Pass {
	return []Pass{TupleForwarding{}, DeadCodeElimination{}}
}

// runPasses runs each pass once, in order.
func runPasses(m *ir.Module, passes []Pass) ([]PassResult, error) {
	results := make([]PassResult, 0, len(passes))
	for _, p := range passes {
		changed, err := p.Run(m)
		if err != nil {
			return results, err
		}
		klog.V(2).Infof("pass %s on %s: changed=%v", p.Name(), m.Name, changed)
		results = append(results, PassResult{Name: p.Name(), Changed: changed})
	}
	return results, nil
}

// hasSideEffects reports whether instr must be kept even when its value is unused.
func hasSideEffects(instr *ir.Instruction) bool {
	switch instr.Opcode {
	case ir.OpSend, ir.OpRecv, ir.OpSendDone, ir.OpRecvDone, ir.OpAsyncStart, ir.OpAsyncDone, ir.OpParameter:
		return true
	}
	return instr.Opcode.IsCollective()
}

// TupleForwarding rewrites get-tuple-element(tuple(a, b), 1) to b for every user.
type TupleForwarding struct{}

// Name implements Pass.
func (TupleForwarding) Name() string { return "tuple-forwarding" }

// Run implements Pass.
func (TupleForwarding) Run(m *ir.Module) (bool, error) {
	changed := false
	for _, c := range m.Computations {
		for progress := true; progress; {
			progress = false
			for _, gte := range c.Instructions {
				if gte.Opcode != ir.OpGetTupleElem || gte.Operands[0].Opcode != ir.OpTuple {
					continue
				}
				replacement := gte.Operands[0].Operands[gte.Index]
				for _, user := range c.Users(gte) {
					user.ReplaceOperand(gte, replacement)
					progress = true
				}
				if c.Root == gte {
					c.Root = replacement
					progress = true
				}
			}
			changed = changed || progress
		}
	}
	return changed, nil
}

// DeadCodeElimination removes instructions that neither contribute to the
// root (through data or control edges) nor have side effects.
type DeadCodeElimination struct{}

// Name implements Pass.
func (DeadCodeElimination) Name() string { return "dce" }

// Run implements Pass.
func (DeadCodeElimination) Run(m *ir.Module) (bool, error) {
	changed := false
	for _, c := range m.Computations {
		live := map[*ir.Instruction]bool{}
		var mark func(*ir.Instruction)
		mark = func(instr *ir.Instruction) {
			if live[instr] {
				return
			}
			live[instr] = true
			for _, op := range instr.Operands {
				mark(op)
			}
			for _, pred := range instr.ControlPredecessors {
				mark(pred)
			}
		}
		mark(c.Root)
		for _, instr := range c.Instructions {
			if hasSideEffects(instr) {
				mark(instr)
			}
		}
		dead := map[*ir.Instruction]bool{}
		for _, instr := range c.Instructions {
			if !live[instr] {
				dead[instr] = true
			}
		}
		if len(dead) > 0 {
			klog.V(2).Infof("dce: removing %d instructions from %s", len(dead), c.Name)
			c.Remove(dead)
			changed = true
		}
	}
	return changed, nil
}
