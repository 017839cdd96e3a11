package device

import (
	"errors"
	"time"
)

const defaultStepDelay = 2000 * time.Microsecond

type StepMode int

const (
	StepModeFull StepMode = iota
	StepModeHalf
)

// Pin is an output pin driving one motor coil. machine.Pin satisfies it
type Pin interface {
	Set(bool)
}

// Stepper drives a 4-coil unipolar stepper one step at a time. It implements Motor
type Stepper struct {
	pins        [4]Pin
	stepMode    StepMode
	currentStep int
	stepDelay   time.Duration
	sleep       func(time.Duration)
}

func NewStepper(cfg StepperConfig) (*Stepper, error) {
	if cfg.StepMode != StepModeFull && cfg.StepMode != StepModeHalf {
		return nil, errors.New("invalid StepMode")
	}
	for _, p := range cfg.Pins {
		if p == nil {
			return nil, errors.New("missing stepper pin")
		}
	}

	if cfg.StepDelay == 0 {
		cfg.StepDelay = defaultStepDelay
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}

	return &Stepper{
		pins:        cfg.Pins,
		stepMode:    cfg.StepMode,
		stepDelay:   cfg.StepDelay,
		sleep:       cfg.Sleep,
		currentStep: 0,
	}, nil
}

var (
	// 8-step half-step halfStepSequence
	halfStepSequence = [8][4]bool{
		{true, false, false, false},
		{true, true, false, false},
		{false, true, false, false},
		{false, true, true, false},
		{false, false, true, false},
		{false, false, true, true},
		{false, false, false, true},
		{true, false, false, true},
	}

	// 4-step sequence
	fullStepSequence = [4][4]bool{
		{true, false, false, false},
		{false, true, false, false},
		{false, false, true, false},
		{false, false, false, true},
	}
)

func (s *Stepper) sequenceLen() int {
	if s.stepMode == StepModeHalf {
		return len(halfStepSequence)
	}
	return len(fullStepSequence)
}

func (s *Stepper) applyStep() {
	var sequence [4]bool
	switch s.stepMode {
	default:
		fallthrough
	case StepModeFull:
		sequence = fullStepSequence[s.currentStep]
	case StepModeHalf:
		sequence = halfStepSequence[s.currentStep]
	}

	for i := range 4 {
		s.pins[i].Set(sequence[i])
	}
}

// StepForward turns the wheel one step in the dispensing direction and waits for the dwell time
func (s *Stepper) StepForward() {
	s.currentStep = (s.currentStep + 1) % s.sequenceLen()
	s.applyStep()
	s.sleep(s.stepDelay)
}

// StepReverse turns the wheel one step against the dispensing direction
func (s *Stepper) StepReverse() {
	n := s.sequenceLen()
	s.currentStep = (s.currentStep - 1 + n) % n
	s.applyStep()
	s.sleep(s.stepDelay)
}

// Release de-energizes all coils so the motor does not heat up while idle
func (s *Stepper) Release() {
	for _, p := range s.pins {
		p.Set(false)
	}
}
