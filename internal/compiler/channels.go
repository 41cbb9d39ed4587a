package compiler

import (
	"slices"

	"github.com/roach88/collcheck/internal/config"
	"github.com/roach88/collcheck/internal/ir"
)

// Channel binds the one send and the one recv that share a channel id.
type Channel struct {
	ID   int64
	Send *ir.Instruction
	Recv *ir.Instruction

	// Pairs is the explicit routing from the program, nil if the pairing policy applies.
	Pairs []ir.SourceTargetPair
}

// reachable returns the computations that can run: ENTRY and everything it calls.
func reachable(m *ir.Module) map[*ir.Computation]bool {
	seen := map[*ir.Computation]bool{}
	var visit func(*ir.Computation)
	visit = func(c *ir.Computation) {
		if c == nil || seen[c] {
			return
		}
		seen[c] = true
		for _, instr := range c.Instructions {
			visit(instr.Called)
		}
	}
	visit(m.Entry)
	return seen
}

// matchChannels pairs sends with recvs across the computations reachable from
// ENTRY. A transfer in a computation nothing calls can never rendezvous, so it
// neither satisfies nor claims a channel.
func matchChannels(m *ir.Module) (map[int64]*Channel, error) {
	channels := map[int64]*Channel{}
	var order []int64
	live := reachable(m)
	for _, c := range m.Computations {
		if !live[c] {
			continue
		}
		for _, instr := range c.Instructions {
			if instr.Opcode != ir.OpSend && instr.Opcode != ir.OpRecv {
				continue
			}
			ch := channels[instr.ChannelID]
			if ch == nil {
				ch = &Channel{ID: instr.ChannelID}
				channels[instr.ChannelID] = ch
				order = append(order, instr.ChannelID)
			}
			slot := &ch.Send
			if instr.Opcode == ir.OpRecv {
				slot = &ch.Recv
			}
			if *slot != nil {
				return nil, ir.Errorf(ir.ErrUnmatchedChannel, instr, "channel %d has more than one %s (%s and %s)",
					instr.ChannelID, instr.Opcode, (*slot).Name, instr.Name)
			}
			*slot = instr
		}
	}
	for _, id := range order {
		ch := channels[id]
		switch {
		case ch.Recv == nil:
			return nil, ir.Errorf(ir.ErrUnmatchedChannel, ch.Send, "channel %d has a send but no matching recv", id)
		case ch.Send == nil:
			return nil, ir.Errorf(ir.ErrUnmatchedChannel, ch.Recv, "channel %d has a recv but no matching send", id)
		}
		sent := ch.Send.Shape.TupleShapes[0]
		received := ch.Recv.Shape.TupleShapes[0]
		if !sent.Equal(received) {
			return nil, ir.Errorf(ir.ErrShapeMismatch, ch.Recv, "channel %d sends %s but receives %s", id, sent, received)
		}
		sendPairs, recvPairs := ch.Send.SourceTargetPairs, ch.Recv.SourceTargetPairs
		if sendPairs != nil && recvPairs != nil && !slices.Equal(sendPairs, recvPairs) {
			return nil, ir.Errorf(ir.ErrUnmatchedChannel, ch.Recv, "channel %d: send and recv declare different source-target pairs", id)
		}
		ch.Pairs = sendPairs
		if ch.Pairs == nil {
			ch.Pairs = recvPairs
		}
	}
	return channels, nil
}

// Route is the resolved replica routing of one channel.
type Route struct {
	// Target maps a sending replica to its receiver; absent means the send has no receiver.
	Target map[int]int

	// Source maps a receiving replica to its sender; absent means the recv gets zeros.
	Source map[int]int
}

// resolveRoute applies explicit pairs or the pairing policy of cfg.
func resolveRoute(ch *Channel, cfg *config.Config) (Route, error) {
	n := cfg.Replicas()
	route := Route{Target: map[int]int{}, Source: map[int]int{}}
	if ch.Pairs == nil {
		for r := 0; r < n; r++ {
			route.Target[r] = cfg.Pairing().Target(r, n)
			route.Source[r] = cfg.Pairing().Source(r, n)
		}
		return route, nil
	}
	for _, p := range ch.Pairs {
		if p.Source >= n || p.Target >= n {
			return Route{}, &CompileError{Code: ErrCodePairing, Computation: ch.Send.Parent.Name, Instruction: ch.Send.Name,
				Message: "source-target pair {" + itoa(p.Source) + "," + itoa(p.Target) + "} outside " + itoa(n) + " replicas"}
		}
		if _, dup := route.Target[p.Source]; dup {
			return Route{}, &CompileError{Code: ErrCodePairing, Computation: ch.Send.Parent.Name, Instruction: ch.Send.Name,
				Message: "replica " + itoa(p.Source) + " sends twice on one channel"}
		}
		if _, dup := route.Source[p.Target]; dup {
			return Route{}, &CompileError{Code: ErrCodePairing, Computation: ch.Recv.Parent.Name, Instruction: ch.Recv.Name,
				Message: "replica " + itoa(p.Target) + " receives twice on one channel"}
		}
		route.Target[p.Source] = p.Target
		route.Source[p.Target] = p.Source
	}
	return route, nil
}
