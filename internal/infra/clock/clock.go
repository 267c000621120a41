// Package clock provides the current time and the timer-driven tick scheduler
// behind the sweep modulation loop.
package clock

import (
	"sync"
	"time"
)

// DefaultTickInterval is fine enough for smooth sweeps (about 60 ticks per second).
const DefaultTickInterval = 16 * time.Millisecond

// System reads the system clock.
type System struct{}

// Now returns the current time. It keeps the monotonic reading, so elapsed
// times are unaffected by wall clock adjustments.
func (System) Now() time.Time {
	return time.Now()
}

// Ticker schedules single-shot ticks at a fixed interval.
type Ticker struct {
	interval time.Duration
}

// NewTicker creates a scheduler. Non-positive intervals use DefaultTickInterval.
func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Ticker{interval: interval}
}

// Interval returns the tick interval.
func (t *Ticker) Interval() time.Duration {
	return t.interval
}

// ScheduleTick runs fn after one interval on its own goroutine. Calling the
// returned cancel function before the timer fires skips fn.
func (t *Ticker) ScheduleTick(fn func()) func() {
	var (
		mu        sync.Mutex
		cancelled bool
	)
	timer := time.AfterFunc(t.interval, func() {
		mu.Lock()
		if cancelled {
			mu.Unlock()
			return
		}
		mu.Unlock()
		fn()
	})

	return func() {
		mu.Lock()
		cancelled = true
		mu.Unlock()
		timer.Stop()
	}
}

