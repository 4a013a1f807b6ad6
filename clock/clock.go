// Package clock implements the virtual clock that drives simulated time.
//
// A reading is start + TimePassed(), where TimePassed is the wall time
// elapsed since the anchor plus an accumulated offset. Pausing freezes the
// reading; offsets added while paused accumulate separately and become
// visible only on resume, together with the negated wall pause duration, so
// a paused window contributes no simulated time of its own.
package clock

import (
	"sync"
	"time"
)

type Option func(*Clock)

// WithNowFunc replaces the wall-time source. Tests use it to make pause
// windows deterministic.
func WithNowFunc(now func() time.Time) Option {
	return func(c *Clock) {
		if now != nil {
			c.now = now
		}
	}
}

// WithStart anchors the clock at the given simulated instant instead of the
// wall time at construction.
func WithStart(start time.Time) Option {
	return func(c *Clock) { c.start = start }
}

type Clock struct {
	mu sync.RWMutex

	now       func() time.Time
	start     time.Time // simulated anchor
	realStart time.Time // wall instant of the anchor
	offset    time.Duration

	paused      bool
	pauseStart  time.Time     // wall instant of the pause
	pausePassed time.Duration // TimePassed frozen at the pause instant
	pauseOffset time.Duration // offsets accumulated while paused
}

func New(opts ...Option) *Clock {
	c := &Clock{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if c.start.IsZero() {
		c.start = c.now()
	}
	c.realStart = c.now()
	return c
}

// Reset re-anchors the clock at start, clearing offsets and any pause.
func (c *Clock) Reset(start time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = start
	c.realStart = c.now()
	c.offset = 0
	c.paused = false
	c.pauseStart = time.Time{}
	c.pausePassed = 0
	c.pauseOffset = 0
}

// TimePassed reports how much simulated time has elapsed since the anchor.
// While paused the value is frozen at its snapshot from the pause instant.
func (c *Clock) TimePassed() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timePassed()
}

func (c *Clock) timePassed() time.Duration {
	if c.paused {
		return c.pausePassed
	}
	return c.now().Sub(c.realStart) + c.offset
}

// Now returns the current simulated instant.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.start.Add(c.timePassed())
}

// Start returns the simulated anchor instant.
func (c *Clock) Start() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.start
}

// Pause freezes the clock. Pausing a paused clock is a no-op.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.pausePassed = c.timePassed()
	c.pauseStart = c.now()
	c.pauseOffset = 0
	c.paused = true
}

// Resume unfreezes the clock. The wall time spent paused is cancelled out of
// the running offset and offsets added during the pause take effect now.
// Resuming a running clock is a no-op.
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	pauseDur := c.now().Sub(c.pauseStart)
	c.offset += c.pauseOffset - pauseDur
	c.paused = false
	c.pauseStart = time.Time{}
	c.pauseOffset = 0
}

// AddOffset advances (or rewinds, for negative d) simulated time. While
// paused the offset is deferred until Resume.
func (c *Clock) AddOffset(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		c.pauseOffset += d
		return
	}
	c.offset += d
}

// SetTime jumps the clock so the next reading is target. Equivalent to
// AddOffset(target.Sub(Now())); while paused the jump lands on resume.
func (c *Clock) SetTime(target time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delta := target.Sub(c.start.Add(c.timePassed()))
	if c.paused {
		c.pauseOffset += delta
		return
	}
	c.offset += delta
}

func (c *Clock) Paused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused
}
