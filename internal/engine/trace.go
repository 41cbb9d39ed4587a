package engine

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

// EventKind classifies trace events.
type EventKind string

const (
	// EventIssue is recorded when a replica issues a send or recv.
	EventIssue EventKind = "issue"

	// EventComplete is recorded when a transfer has delivered (or received) its data.
	EventComplete EventKind = "complete"

	// EventAsyncStart is recorded when a replica enters an async group.
	EventAsyncStart EventKind = "async-start"

	// EventAsyncDone is recorded when a replica leaves an async group, after all its transfers completed.
	EventAsyncDone EventKind = "async-done"

	// EventFinish is recorded when a replica has produced its outputs.
	EventFinish EventKind = "finish"
)

// Event is one entry of an execution trace.
type Event struct {
	Seq         int64     `json:"seq"`
	Replica     int       `json:"replica"`
	Kind        EventKind `json:"kind"`
	Instruction string    `json:"instruction,omitempty"`
	Channel     int64     `json:"channel,omitempty"`

	// Peer is the counterpart replica of a transfer, NoPeer if it has none.
	Peer int `json:"peer"`
}

// String implements fmt.Stringer.
func (e Event) String() string {
	s := fmt.Sprintf("#%d r%d %s %s", e.Seq, e.Replica, e.Kind, e.Instruction)
	if e.Channel != 0 {
		s += fmt.Sprintf(" ch=%d", e.Channel)
		if e.Peer != NoPeer {
			s += fmt.Sprintf(" peer=%d", e.Peer)
		}
	}
	return s
}

// Trace collects the events of one execution in clock order.
type Trace struct {
	mu     sync.Mutex
	clock  *Clock
	events []Event
}

func newTrace(clock *Clock) *Trace {
	return &Trace{clock: clock}
}

func (t *Trace) record(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.Seq = t.clock.Next()
	t.events = append(t.events, e)
}

// Events returns a copy of all events in sequence order.
func (t *Trace) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.events)
}

// ForReplica returns the events of one replica from events, in order.
func ForReplica(events []Event, replica int) []Event {
	var out []Event
	for _, e := range events {
		if e.Replica == replica {
			out = append(out, e)
		}
	}
	return out
}

// Stats summarizes the transfers of one execution.
type Stats struct {
	// Transfers counts completed send/recv rendezvous.
	Transfers int64 `json:"transfers"`

	// Bytes is the total payload delivered.
	Bytes int64 `json:"bytes"`

	// ZeroFilled counts recvs that had no source replica and produced zeros.
	ZeroFilled int64 `json:"zero_filled"`

	// Unrouted counts sends that had no target replica.
	Unrouted int64 `json:"unrouted"`
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("%d transfers, %s, %d zero-filled, %d unrouted",
		s.Transfers, humanize.Bytes(uint64(s.Bytes)), s.ZeroFilled, s.Unrouted)
}

type counters struct {
	transfers, bytes, zeroFilled, unrouted atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Transfers:  c.transfers.Load(),
		Bytes:      c.bytes.Load(),
		ZeroFilled: c.zeroFilled.Load(),
		Unrouted:   c.unrouted.Load(),
	}
}
