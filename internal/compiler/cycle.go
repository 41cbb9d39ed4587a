package compiler

import (
	"strings"

	"github.com/roach88/collcheck/internal/ir"
)

// dependencyGraph maps an instruction to the instructions that must run after it,
// through either a data edge or a control edge.
type dependencyGraph map[*ir.Instruction][]*ir.Instruction

func buildDependencyGraph(c *ir.Computation) dependencyGraph {
	graph := make(dependencyGraph, len(c.Instructions))
	for _, instr := range c.Instructions {
		if graph[instr] == nil {
			graph[instr] = []*ir.Instruction{}
		}
		for _, op := range instr.Operands {
			graph[op] = append(graph[op], instr)
		}
		for _, pred := range instr.ControlPredecessors {
			graph[pred] = append(graph[pred], instr)
		}
	}
	return graph
}

// findCycle returns the instructions of one cycle in c (first element
// repeated at the end), or nil if c is acyclic.
//
// Strongly connected components are found with Tarjan's algorithm; any
// component of size > 1, or a single instruction depending on itself, is a cycle.
// Instructions are visited in declaration order so the reported cycle is stable.
func findCycle(c *ir.Computation) []*ir.Instruction {
	graph := buildDependencyGraph(c)
	for _, scc := range tarjanSCC(c.Instructions, graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			return reconstructCyclePath(scc, graph)
		}
	}
	return nil
}

func hasSelfLoop(node *ir.Instruction, graph dependencyGraph) bool {
	for _, next := range graph[node] {
		if next == node {
			return true
		}
	}
	return false
}

func tarjanSCC(order []*ir.Instruction, graph dependencyGraph) [][]*ir.Instruction {
	var (
		index   = 0
		stack   []*ir.Instruction
		indices = make(map[*ir.Instruction]int)
		lowlink = make(map[*ir.Instruction]int)
		onStack = make(map[*ir.Instruction]bool)
		sccs    [][]*ir.Instruction
	)

	var strongConnect func(*ir.Instruction)
	strongConnect = func(v *ir.Instruction) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []*ir.Instruction
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// reconstructCyclePath returns a shortest cycle through the first-visited
// member of scc, found by breadth-first search inside the component.
func reconstructCyclePath(scc []*ir.Instruction, graph dependencyGraph) []*ir.Instruction {
	members := make(map[*ir.Instruction]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}
	start := scc[len(scc)-1]
	parent := map[*ir.Instruction]*ir.Instruction{}
	queue := []*ir.Instruction{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, w := range graph[current] {
			if !members[w] {
				continue
			}
			if w == start {
				path := []*ir.Instruction{start}
				for node := current; node != start; node = parent[node] {
					path = append(path, node)
				}
				path = append(path, start)
				// Collected backwards from the closing edge; reverse the inner part.
				for l, r := 1, len(path)-2; l < r; l, r = l+1, r-1 {
					path[l], path[r] = path[r], path[l]
				}
				return path
			}
			if _, seen := parent[w]; !seen {
				parent[w] = current
				queue = append(queue, w)
			}
		}
	}
	return []*ir.Instruction{start, start}
}

func formatPath(path []*ir.Instruction) string {
	names := make([]string, len(path))
	for i, instr := range path {
		names[i] = instr.Name
	}
	return strings.Join(names, " -> ")
}
