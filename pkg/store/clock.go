package store

import (
	"sync"
	"time"
)

// Clock reads wall time shifted by an offset the admin API can move, so
// countdowns and expiry can be exercised without waiting. A pinned clock
// starts from a fixed instant instead of the wall clock.
type Clock struct {
	mu     sync.RWMutex
	base   time.Time
	offset time.Duration
}

// NewClock returns a clock that follows wall time.
func NewClock() *Clock { return &Clock{} }

// NewFixedClock returns a clock stopped at t. Advance still moves it.
func NewFixedClock(t time.Time) *Clock { return &Clock{base: t} }

func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	base := c.base
	if base.IsZero() {
		base = time.Now()
	}
	return base.Add(c.offset)
}

// Advance shifts the clock forward by d. Offsets accumulate.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.offset += d
	c.mu.Unlock()
}

// Reset drops the accumulated offset.
func (c *Clock) Reset() {
	c.mu.Lock()
	c.offset = 0
	c.mu.Unlock()
}

func (c *Clock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}
