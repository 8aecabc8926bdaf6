package docstore

import (
	"sync"
	"time"
)

// ServerClock issues write timestamps that never move backwards, even if
// the wall clock does. Ordering-relevant timestamps always come from here,
// never from a caller's clock.
type ServerClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewServerClock() *ServerClock {
	return &ServerClock{now: time.Now}
}

// NewServerClockAt uses the given time source. Tests inject a fake clock
// through this.
func NewServerClockAt(now func() time.Time) *ServerClock {
	return &ServerClock{now: now}
}

// Next returns the next write timestamp. Two consecutive calls never
// return the same instant.
func (c *ServerClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC()
	if !t.After(c.last) {
		t = c.last.Add(time.Millisecond)
	}
	c.last = t
	return t
}
