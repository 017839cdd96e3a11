package sim

import (
	"sync"
	"time"
)

// Clock is a virtual clock. Sleep advances it immediately, or after a scaled real delay when Speed
// is positive
type Clock struct {
	// Speed divides real sleeps. Zero means no real sleeping at all
	Speed float64

	mu    sync.Mutex
	now   time.Time
	slept time.Duration
}

// NewClock returns a Clock starting at start
func NewClock(start time.Time, speed float64) *Clock {
	return &Clock{now: start, Speed: speed}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if c.Speed > 0 {
		time.Sleep(time.Duration(float64(d) / c.Speed))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.slept += d
}

// Slept is the total virtual time spent sleeping
func (c *Clock) Slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slept
}

// LEDs records the simulated indicator
type LEDs struct {
	mu  sync.Mutex
	lit bool
	ons int
}

func (l *LEDs) On() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lit = true
	l.ons++
}

func (l *LEDs) Off() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lit = false
}

// Lit reports whether the LEDs are currently on
func (l *LEDs) Lit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lit
}

// Ons is the number of times the LEDs were turned on
func (l *LEDs) Ons() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ons
}
