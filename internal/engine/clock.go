package engine

import "sync/atomic"

// Clock is the logical dispatch clock. Every committed dispatch takes the
// next value; wall-clock time is never used for ordering.
//
// Clock is safe for concurrent use, although a Store only advances it from
// its dispatching goroutine.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock at 0. The first dispatch is seq 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock positioned at start, so the next dispatch is
// start+1. Used to continue a journal.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued value.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
