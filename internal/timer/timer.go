// Package timer implements the quiz countdown.
package timer

import (
	"fmt"
	"sync"
	"time"
)

// Ticker is the tick source driving a Countdown.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Option configures a Countdown.
type Option func(*Countdown)

// WithTicker replaces the wall-clock ticker.
func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(c *Countdown) { c.newTicker = newTicker }
}

// Countdown counts down from an initial number of seconds and calls onExpire
// once when it reaches zero.
type Countdown struct {
	mu        sync.Mutex
	initial   int
	remaining int
	running   bool
	gen       uint64
	stop      chan struct{}
	onExpire  func()
	newTicker func(time.Duration) Ticker
}

func New(seconds int, onExpire func(), opts ...Option) *Countdown {
	c := &Countdown{
		initial:   seconds,
		remaining: seconds,
		onExpire:  onExpire,
		newTicker: newRealTicker,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start restores the initial duration and begins ticking once per second.
// A non-positive duration expires on the first tick.
func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.haltLocked()
	c.remaining = c.initial
	c.running = true
	c.gen++
	c.stop = make(chan struct{})
	go c.loop(c.gen, c.newTicker(time.Second), c.stop)
}

// Stop halts ticking and keeps the remaining time.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.haltLocked()
}

// Reset halts ticking and restores the initial duration.
func (c *Countdown) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.haltLocked()
	c.remaining = c.initial
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Initial returns the configured duration in seconds.
func (c *Countdown) Initial() int {
	return c.initial
}

// Running reports whether the countdown is ticking.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Formatted returns the remaining time as MM:SS.
func (c *Countdown) Formatted() string {
	return Format(c.Remaining())
}

// Format renders seconds as MM:SS.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func (c *Countdown) haltLocked() {
	c.running = false
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Countdown) loop(gen uint64, t Ticker, stop <-chan struct{}) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			if c.tick(gen) {
				return
			}
		}
	}
}

// tick advances the countdown of cycle gen by one second and reports whether
// the cycle is over. The expiry callback runs without the lock held.
func (c *Countdown) tick(gen uint64) bool {
	c.mu.Lock()
	if !c.running || c.gen != gen {
		c.mu.Unlock()
		return true
	}
	if c.remaining > 1 {
		c.remaining--
		c.mu.Unlock()
		return false
	}
	c.remaining = 0
	c.running = false
	// The loop exits on its own; nothing left to close.
	c.stop = nil
	c.mu.Unlock()

	if c.onExpire != nil {
		c.onExpire()
	}
	return true
}
