package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/collcheck/internal/compiler"
	"github.com/roach88/collcheck/internal/ir"
	"github.com/roach88/collcheck/internal/literal"
	"github.com/roach88/collcheck/internal/shapes"
)

// linkKey identifies the point-to-point link of one channel between two replicas.
type linkKey struct {
	channel  int64
	src, dst int
}

// fabric is the transport shared by the replicas of one execution.
type fabric struct {
	links map[linkKey]chan *literal.Literal
	trace *Trace
	stats *counters

	// inflight tracks transfer goroutines so Execute can wait for them to exit.
	inflight sync.WaitGroup

	mu sync.Mutex
	// issued holds, per replica, its transfers in issue order.
	issued map[int][]*transfer
}

func newFabric(program *compiler.Executable, trace *Trace, stats *counters) *fabric {
	f := &fabric{
		links:  map[linkKey]chan *literal.Literal{},
		issued: map[int][]*transfer{},
		trace:  trace,
		stats:  stats,
	}
	for _, id := range program.Channels() {
		route, _ := program.Route(id)
		for src, dst := range route.Target {
			f.links[linkKey{channel: id, src: src, dst: dst}] = make(chan *literal.Literal)
		}
	}
	return f
}

// transfer is one issued send or recv, completed asynchronously.
type transfer struct {
	instr   *ir.Instruction
	replica int
	channel int64
	peer    int
	done    *latch

	// data and err are written once, before done is triggered.
	data *literal.Literal
	err  error
}

func (t *transfer) finish(data *literal.Literal, err error) {
	t.data, t.err = data, err
	t.done.trigger()
}

// settle waits, until ctx is done, for every transfer the replicas issued,
// including those no done operation ever awaited. It returns the first
// transfer that failed or did not complete, in replica order, with its error.
func (f *fabric) settle(ctx context.Context, replicas int) (*transfer, error) {
	f.mu.Lock()
	issued := make([][]*transfer, replicas)
	for r := range replicas {
		issued[r] = slices.Clone(f.issued[r])
	}
	f.mu.Unlock()
	for _, ts := range issued {
		for _, t := range ts {
			if _, err := t.await(ctx); err != nil {
				return t, err
			}
		}
	}
	return nil, nil
}

// await blocks until t completes or ctx is done.
func (t *transfer) await(ctx context.Context) (*literal.Literal, error) {
	if t.done.test() {
		return t.data, t.err
	}
	select {
	case <-t.done.waitChan():
		return t.data, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fabric) newTransfer(instr *ir.Instruction, replica, peer int) *transfer {
	t := &transfer{instr: instr, replica: replica, channel: instr.ChannelID, peer: peer, done: newLatch()}
	f.mu.Lock()
	f.issued[replica] = append(f.issued[replica], t)
	f.mu.Unlock()
	f.trace.record(Event{Replica: replica, Kind: EventIssue, Instruction: instr.Name, Channel: t.channel, Peer: peer})
	return t
}

func (f *fabric) completed(t *transfer, data *literal.Literal) {
	f.trace.record(Event{Replica: t.replica, Kind: EventComplete, Instruction: t.instr.Name, Channel: t.channel, Peer: t.peer})
	t.finish(data, nil)
}

// send issues the transfer of data from replica to target. A send without a
// target completes at once.
func (f *fabric) send(ctx context.Context, instr *ir.Instruction, replica int, data *literal.Literal, target int, routed bool) *transfer {
	if !routed {
		t := f.newTransfer(instr, replica, NoPeer)
		f.stats.unrouted.Add(1)
		f.completed(t, data)
		return t
	}
	t := f.newTransfer(instr, replica, target)
	link := f.links[linkKey{channel: instr.ChannelID, src: replica, dst: target}]
	f.inflight.Add(1)
	go func() {
		defer f.inflight.Done()
		select {
		case link <- data:
			f.completed(t, data)
		case <-ctx.Done():
			t.finish(nil, ctx.Err())
		}
	}()
	return t
}

// recv issues the transfer into replica from source. A recv without a source
// completes at once with zeros of the declared data shape.
func (f *fabric) recv(ctx context.Context, instr *ir.Instruction, replica int, want shapes.Shape, source int, routed bool) *transfer {
	if !routed {
		t := f.newTransfer(instr, replica, NoPeer)
		f.stats.zeroFilled.Add(1)
		f.completed(t, literal.Zeros(want))
		return t
	}
	t := f.newTransfer(instr, replica, source)
	link := f.links[linkKey{channel: instr.ChannelID, src: source, dst: replica}]
	f.inflight.Add(1)
	go func() {
		defer f.inflight.Done()
		select {
		case data := <-link:
			if !data.Shape().Equal(want) {
				t.finish(nil, &RuntimeError{Code: ErrCodeShapeMismatch, Replica: replica, Instruction: instr.Name,
					Channel: instr.ChannelID, HasChannel: true, Peer: source,
					Message: fmt.Sprintf("received %s, want %s", data.Shape(), want)})
				return
			}
			f.stats.transfers.Add(1)
			f.stats.bytes.Add(int64(data.Shape().ByteSize()))
			f.completed(t, data)
		case <-ctx.Done():
			t.finish(nil, ctx.Err())
		}
	}()
	return t
}
