package session

import "time"

// Clock reports the local time used for warm-ups and request timestamps
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock is the real wall clock
var SystemClock Clock = ClockFunc(time.Now)

// OffsetClock shifts Base by Offset. It simulates a drifting local clock, for
// demos and tests only.
type OffsetClock struct {
	Base   Clock
	Offset time.Duration
}

func (c OffsetClock) Now() time.Time {
	base := c.Base
	if base == nil {
		base = SystemClock
	}
	return base.Now().Add(c.Offset)
}
