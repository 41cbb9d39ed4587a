package engine

import "sync/atomic"

// Clock is a monotonic logical clock shared by the replicas of one execution.
//
// Trace events are stamped with Clock.Next instead of wall-clock time, so the
// relative order of events that are causally related (a transfer completing
// before the async-done that awaited it) is always visible in the trace.
//
// Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next increments the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current value without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
