package testfixtures

import (
	"sync/atomic"
	"time"
)

// Clock is a manually driven time source. It only moves when a test moves it,
// which keeps share link expiry and slot cache TTLs deterministic.
type Clock struct {
	nanos atomic.Int64
}

// NewClock starts at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	c := &Clock{}
	c.nanos.Store(start.UTC().UnixNano())
	return c
}

// Now returns the clock's instant in UTC.
func (c *Clock) Now() time.Time {
	return time.Unix(0, c.nanos.Load()).UTC()
}

// NowFunc returns Now for injection into services. A nil clock yields wall time.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Advance moves the clock forward by d and returns the new instant.
func (c *Clock) Advance(d time.Duration) time.Time {
	return time.Unix(0, c.nanos.Add(int64(d))).UTC()
}

// AdvancePast moves the clock one second beyond deadline. Deadlines already in the
// past leave the clock where it is.
func (c *Clock) AdvancePast(deadline time.Time) time.Time {
	target := deadline.Add(time.Second).UTC().UnixNano()
	for {
		current := c.nanos.Load()
		if current >= target {
			return time.Unix(0, current).UTC()
		}
		if c.nanos.CompareAndSwap(current, target) {
			return time.Unix(0, target).UTC()
		}
	}
}
