package dates

import (
	"sync"
	"time"
)

// Clock supplies the current instant. The engine never reads time.Now
// directly so that tests and the server-skew correction can substitute
// their own notion of "now".
type Clock interface {
	Now() time.Time
}

// SystemClock reads the local wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// Today returns the current calendar date according to clock.
func Today(clock Clock) Date {
	return FromTime(clock.Now())
}

// SkewClock is a Clock corrected by a remote/local clock offset.
// The offset is learned from server responses and may be updated
// concurrently with reads.
type SkewClock struct {
	mu     sync.RWMutex
	offset time.Duration
}

// Now returns the local time shifted by the current offset.
func (c *SkewClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().Add(c.offset)
}

// SetOffset records a new remote-minus-local offset.
func (c *SkewClock) SetOffset(offset time.Duration) {
	c.mu.Lock()
	c.offset = offset
	c.mu.Unlock()
}

// Offset returns the current remote-minus-local offset.
func (c *SkewClock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// FixedClock always reports the same instant. Test helper.
type FixedClock struct {
	Time time.Time
}

// Now implements Clock.
func (c FixedClock) Now() time.Time { return c.Time }
