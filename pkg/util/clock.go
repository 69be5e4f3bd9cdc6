package util

import "time"

// Clock supplies the millisecond timestamps the engine stamps on every
// mutation. The engine never reads wall time itself.
type Clock interface {
	Now() time.Time
	NowMillis() int64
}

type RealClock struct{}

func (RealClock) Now() time.Time   { return time.Now() }
func (RealClock) NowMillis() int64 { return time.Now().UnixMilli() }

// ManualClock is a settable clock for tests.
type ManualClock struct {
	Millis int64
}

func (c *ManualClock) Now() time.Time   { return time.UnixMilli(c.Millis) }
func (c *ManualClock) NowMillis() int64 { return c.Millis }

// Advance moves the manual clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.Millis += d.Milliseconds()
}
