package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant a DeterministicClock returns.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a thread-safe clock for tests. Every call to Now
// advances it by one second from Epoch, so mt_last_modified values are
// predictable and strictly increasing.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	ticks int64
}

// NewDeterministicClock creates a clock whose first Now is Epoch.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Now returns the next instant.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := Epoch.Add(time.Duration(c.ticks) * time.Second)
	c.ticks++
	return t
}

// Ticks returns how many times Now was called.
func (c *DeterministicClock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Reset rewinds the clock to Epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
