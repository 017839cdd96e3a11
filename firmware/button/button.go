// Package button debounces push buttons that are sampled on a timer
package button

import (
	"context"
	"time"
)

const (
	DefaultFilter = 5
	DefaultPeriod = 10 * time.Millisecond
)

// Debouncer registers a press when the level has held a new value for Filter consecutive samples
// and that value is not the released level
type Debouncer struct {
	Filter   int
	Released bool

	state   bool
	counter int
}

// NewDebouncer creates a Debouncer for a button that reads released when idle. Buttons with a
// pull-up read high when released
func NewDebouncer(released bool) *Debouncer {
	return &Debouncer{
		Filter:   DefaultFilter,
		Released: released,
		state:    released,
	}
}

// Sample feeds one pin reading and reports whether it completed a press
func (d *Debouncer) Sample(level bool) bool {
	if level == d.state {
		d.counter = 0
		return false
	}

	d.counter++
	if d.counter < d.Filter {
		return false
	}

	d.state = level
	d.counter = 0
	return level != d.Released
}

// Button is a pin and what happens when it is pressed
type Button struct {
	Get     func() bool
	OnPress func()

	debouncer *Debouncer
}

// Sampler polls a group of buttons
type Sampler struct {
	buttons []*Button
	period  time.Duration
}

// NewSampler creates a Sampler for buttons that read released as released
func NewSampler(period time.Duration, released bool, buttons ...*Button) *Sampler {
	if period == 0 {
		period = DefaultPeriod
	}
	for _, b := range buttons {
		b.debouncer = NewDebouncer(released)
	}
	return &Sampler{buttons, period}
}

// Tick samples every button once
func (s *Sampler) Tick() {
	for _, b := range s.buttons {
		if b.debouncer.Sample(b.Get()) {
			b.OnPress()
		}
	}
}

// Run samples every period until ctx is cancelled
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}
