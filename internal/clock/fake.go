package clock

import "time"

// FakeClock reports a manually controlled instant so tests can pin the
// timestamps stamped onto ledger rows and step time forward between
// events.
type FakeClock struct {
	current time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{current: start.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.current
}

// Advance moves the clock forward and returns the new instant.
func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.current = c.current.Add(d)
	return c.current
}
