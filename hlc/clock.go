// Package hlc provides the capture clock used to stamp change events.
//
// Wall clocks can step backwards (NTP corrections, VM migration). Change
// events carry an lsn surrogate derived from capture time, and consumers
// rely on it never going backwards, so the clock remembers the last value
// it handed out and never returns anything smaller.
package hlc

import (
	"sync"
	"time"
)

// Clock hands out strictly increasing nanosecond timestamps anchored to
// physical time.
type Clock struct {
	wallTime int64
	physical func() time.Time
	mu       sync.Mutex
}

// Timestamp is a capture time in nanoseconds since the Unix epoch.
type Timestamp int64

// NewClock creates a clock backed by time.Now.
func NewClock() *Clock {
	return NewClockWithSource(time.Now)
}

// NewClockWithSource creates a clock reading physical time from fn.
func NewClockWithSource(fn func() time.Time) *Clock {
	return &Clock{physical: fn}
}

// Now returns a timestamp greater than every timestamp previously returned.
func (c *Clock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	physicalNow := c.physical().UnixNano()
	if physicalNow > c.wallTime {
		c.wallTime = physicalNow
	} else {
		// Physical time stalled or went backwards
		c.wallTime++
	}

	return Timestamp(c.wallTime)
}

// Nanos returns the timestamp as nanoseconds.
func (t Timestamp) Nanos() int64 {
	return int64(t)
}

// Seconds returns the whole-second part of the timestamp. Since timestamps
// from one clock strictly increase, Seconds never decreases.
func (t Timestamp) Seconds() int64 {
	return int64(t) / int64(time.Second)
}

// PhysicalTime returns the timestamp as time.Time
func (t Timestamp) PhysicalTime() time.Time {
	return time.Unix(0, int64(t))
}

// String returns a human-readable representation
func (t Timestamp) String() string {
	return t.PhysicalTime().Format(time.RFC3339Nano)
}
