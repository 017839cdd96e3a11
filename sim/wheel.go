// Package sim simulates the dispenser hardware so the firmware can run on a desktop and in tests
package sim

import (
	"errors"
	"time"
)

const (
	DefaultStepsPerRevolution = 4096
	DefaultCompartments       = 8
	DefaultIndexPosition      = 1000
	DefaultAlignmentOffset    = 380
)

// ErrPowerLoss is the panic value used to cut power in the middle of a motor step
var ErrPowerLoss = errors.New("simulated power loss")

// Sensors receives the simulated sensor interrupts. *device.Device implements it
type Sensors interface {
	OnPositionEdge()
	OnDropEdge()
}

// WheelConfig describes the mechanics of the simulated wheel
type WheelConfig struct {
	StepsPerRevolution int
	Compartments       int
	// IndexPosition is the absolute position where the position sensor fires
	IndexPosition int
	// AlignmentOffset is the distance from the index back to the boundary of compartment zero
	AlignmentOffset int
	// StartPosition is the absolute position at power on
	StartPosition int
	// SensorFault disables position sensor edges
	SensorFault bool

	StepDelay time.Duration
	Sleep     func(time.Duration)
}

// Wheel is a simulated motor, wheel, position sensor and drop sensor. It implements device.Motor
type Wheel struct {
	cfg     WheelConfig
	sensors Sensors

	position int
	steps    int
	cutAfter int

	pills   []bool
	dropped []int
}

// NewWheel creates an empty wheel
func NewWheel(cfg WheelConfig) *Wheel {
	if cfg.StepsPerRevolution <= 0 {
		cfg.StepsPerRevolution = DefaultStepsPerRevolution
	}
	if cfg.Compartments <= 0 {
		cfg.Compartments = DefaultCompartments
	}
	if cfg.IndexPosition == 0 {
		cfg.IndexPosition = DefaultIndexPosition
	}
	if cfg.AlignmentOffset == 0 {
		cfg.AlignmentOffset = DefaultAlignmentOffset
	}

	return &Wheel{
		cfg:      cfg,
		position: mod(cfg.StartPosition, cfg.StepsPerRevolution),
		cutAfter: -1,
		pills:    make([]bool, cfg.Compartments),
	}
}

// Attach connects the sensor interrupts
func (w *Wheel) Attach(s Sensors) {
	w.sensors = s
}

// Load puts one pill in every compartment except compartment zero
func (w *Wheel) Load() {
	for i := 1; i < len(w.pills); i++ {
		w.pills[i] = true
	}
}

// Loaded returns the number of compartments still holding a pill
func (w *Wheel) Loaded() int {
	n := 0
	for _, p := range w.pills {
		if p {
			n++
		}
	}
	return n
}

// Dropped returns the compartments that dropped a pill in the order they dropped
func (w *Wheel) Dropped() []int {
	return append([]int(nil), w.dropped...)
}

// Position returns the absolute position of the wheel
func (w *Wheel) Position() int {
	return w.position
}

// Home is the absolute position where compartment zero sits over the drop hole
func (w *Wheel) Home() int {
	return mod(w.cfg.IndexPosition-w.cfg.AlignmentOffset, w.cfg.StepsPerRevolution)
}

// Steps returns the number of steps taken in either direction
func (w *Wheel) Steps() int {
	return w.steps
}

// CutPowerAfter makes the step after the next n steps panic with ErrPowerLoss. A negative n
// disables the power cut
func (w *Wheel) CutPowerAfter(n int) {
	w.cutAfter = n
}

// StepForward turns the wheel one step in the dispensing direction
func (w *Wheel) StepForward() {
	w.step(1)

	if threshold, slot := w.dropThreshold(); threshold && w.pills[slot] {
		w.pills[slot] = false
		w.dropped = append(w.dropped, slot)
		if w.sensors != nil {
			w.sensors.OnDropEdge()
		}
	}
}

// StepReverse turns the wheel one step back. Pills never drop while reversing
func (w *Wheel) StepReverse() {
	w.step(-1)
}

func (w *Wheel) step(dir int) {
	if w.cutAfter == 0 {
		w.cutAfter = -1
		panic(ErrPowerLoss)
	}
	if w.cutAfter > 0 {
		w.cutAfter--
	}

	w.position = mod(w.position+dir, w.cfg.StepsPerRevolution)
	w.steps++

	if w.position == w.cfg.IndexPosition && !w.cfg.SensorFault && w.sensors != nil {
		w.sensors.OnPositionEdge()
	}

	if w.cfg.Sleep != nil && w.cfg.StepDelay > 0 {
		w.cfg.Sleep(w.cfg.StepDelay)
	}
}

// dropThreshold reports whether the wheel is exactly at the point where a compartment empties
// into the drop hole, which is the middle of the compartment
func (w *Wheel) dropThreshold() (bool, int) {
	r := w.cfg.StepsPerRevolution
	n := w.cfg.Compartments
	rel := mod(w.position-w.Home(), r)

	scaled := rel * 2 * n
	if scaled%r != 0 {
		return false, 0
	}
	half := scaled / r
	if half%2 == 0 {
		return false, 0
	}
	return true, (half + 1) / 2 % n
}

// RunUntilPowerLoss runs f and reports whether it was stopped by a power cut. Other panics are
// passed on
func RunUntilPowerLoss(f func()) (lost bool) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if err, ok := r.(error); ok && errors.Is(err, ErrPowerLoss) {
			lost = true
			return
		}
		panic(r)
	}()

	f()
	return false
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
