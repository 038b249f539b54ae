package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant returned by a new Clock: 2024-01-01T00:00:00Z.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Clock is a deterministic wall clock for tests. Every call to Now returns
// the previous instant plus Step, so change times and undo history
// timestamps are identical across runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewClock creates a clock starting at Epoch that advances one second per
// call.
//
// The first call to Now() returns Epoch.
func NewClock() *Clock {
	return &Clock{now: Epoch, step: time.Second}
}

// Now returns the current instant and advances the clock by one step.
//
// Monotonic: never returns an instant before a previous one.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Peek returns the instant the next call to Now will return.
func (c *Clock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset rewinds the clock to Epoch.
//
// Used for test reuse. After Reset(), the next call to Now() returns Epoch.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = Epoch
}
