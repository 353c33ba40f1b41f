package eventloop

import (
	"sync"
	"time"
)

// Clock reports elapsed time since an arbitrary fixed origin. It must be
// monotonic.
type Clock interface {
	Now() time.Duration
}

// realClock measures wall time elapsed since construction using the
// monotonic reading of [time.Now].
type realClock struct {
	start time.Time
}

// NewRealClock returns a [Clock] backed by the host's monotonic clock.
func NewRealClock() Clock {
	return realClock{start: time.Now()}
}

func (c realClock) Now() time.Duration { return time.Since(c.start) }

// ManualClock is a [Clock] that only moves when told to. It also satisfies
// the audio clock contract (CurrentTime in seconds), so a single manual clock
// can drive both the loop and a simulated audio graph in tests.
type ManualClock struct {
	mu  sync.Mutex
	now time.Duration
}

// Now implements [Clock].
func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// CurrentTime returns Now in seconds.
func (c *ManualClock) CurrentTime() float64 {
	return c.Now().Seconds()
}

// Set moves the clock to t. Moving backwards is ignored.
func (c *ManualClock) Set(t time.Duration) {
	c.mu.Lock()
	if t > c.now {
		c.now = t
	}
	c.mu.Unlock()
}
