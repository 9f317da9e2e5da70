package engine

import (
	"sync"
	"time"
)

// Countdown fires once after its duration. It can be paused, resumed with
// the remaining time, and cancelled. Done is never closed after Cancel.
type Countdown struct {
	mu        sync.Mutex
	remaining time.Duration
	started   time.Time
	timer     *time.Timer
	gen       int
	done      chan struct{}
	fired     bool
	paused    bool
	cancelled bool
}

// StartCountdown starts a countdown running immediately.
func StartCountdown(d time.Duration) *Countdown {
	c := &Countdown{remaining: d, done: make(chan struct{})}
	c.mu.Lock()
	c.arm()
	c.mu.Unlock()
	return c
}

func (c *Countdown) arm() {
	c.gen++
	gen := c.gen
	c.started = time.Now()
	c.timer = time.AfterFunc(c.remaining, func() { c.fire(gen) })
}

func (c *Countdown) fire(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A stale timer from before a pause or cancel must not fire.
	if gen != c.gen || c.fired || c.paused || c.cancelled {
		return
	}
	c.fired = true
	c.remaining = 0
	close(c.done)
}

func (c *Countdown) Done() <-chan struct{} { return c.done }

func (c *Countdown) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.fired || c.cancelled {
		return
	}
	c.paused = true
	c.gen++
	c.timer.Stop()
	c.remaining -= time.Since(c.started)
	if c.remaining < 0 {
		c.remaining = 0
	}
}

func (c *Countdown) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused || c.cancelled {
		return
	}
	c.paused = false
	c.arm()
}

// Cancel stops the countdown for good. It is safe to call repeatedly.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	c.cancelled = true
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
	}
}

// Remaining reports the time left.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.fired || c.cancelled {
		return c.remaining
	}
	left := c.remaining - time.Since(c.started)
	if left < 0 {
		return 0
	}
	return left
}
