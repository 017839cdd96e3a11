package device

import (
	"io"
	"time"
)

const (
	DefaultAlignmentOffset     = 380
	DefaultCompartmentInterval = 30 * time.Second
	DefaultBlinkInterval       = 300 * time.Millisecond
	DefaultAlertBlinks         = 5
	DefaultIdleDelay           = 10 * time.Millisecond

	// DefaultEdgeSearchLimit is two nominal revolutions of a half-stepped 28BYJ-48
	DefaultEdgeSearchLimit = 2 * 4096
)

// StepperConfig ...
type StepperConfig struct {
	Pins      [4]Pin
	StepMode  StepMode
	StepDelay time.Duration
	Sleep     func(time.Duration)
}

// DispenseConfig has values for the wheel mechanics and dispensing timing
type DispenseConfig struct {
	// AlignmentOffset is the number of reverse steps from the position sensor edge to the boundary
	// that puts compartment 0 over the drop hole
	AlignmentOffset int
	// CompartmentInterval is the time between the start of two compartment advances
	CompartmentInterval time.Duration
	BlinkInterval       time.Duration
	// AlertBlinks is the number of blinks when a pill was not detected
	AlertBlinks int
	// EdgeSearchLimit bounds every search for a position sensor edge. Negative means unbounded
	EdgeSearchLimit int
	// IdleDelay is slept on every idle loop iteration so other goroutines can run
	IdleDelay time.Duration
}

// Config wires the device to its environment
type Config struct {
	Dispense DispenseConfig

	// Console receives status lines. Defaults to io.Discard
	Console io.Writer
	Sleep   func(time.Duration)
	Now     func() time.Time
	Verbose bool
}

func (c Config) withDefaults() Config {
	d := &c.Dispense
	if d.AlignmentOffset == 0 {
		d.AlignmentOffset = DefaultAlignmentOffset
	}
	if d.CompartmentInterval == 0 {
		d.CompartmentInterval = DefaultCompartmentInterval
	}
	if d.BlinkInterval == 0 {
		d.BlinkInterval = DefaultBlinkInterval
	}
	if d.AlertBlinks == 0 {
		d.AlertBlinks = DefaultAlertBlinks
	}
	if d.EdgeSearchLimit == 0 {
		d.EdgeSearchLimit = DefaultEdgeSearchLimit
	}
	if d.IdleDelay == 0 {
		d.IdleDelay = DefaultIdleDelay
	}

	if c.Console == nil {
		c.Console = io.Discard
	}
	if c.Sleep == nil {
		c.Sleep = time.Sleep
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
