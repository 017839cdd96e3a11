package device

import (
	"errors"
	"fmt"

	"github.com/calvinmclean/pilldispenser"
)

// ErrSensorTimeout is returned when the position sensor does not fire within EdgeSearchLimit steps
var ErrSensorTimeout = errors.New("position sensor edge not detected")

// Calibrate measures the number of steps in one revolution and parks the wheel with compartment
// zero over the drop hole. It does not persist anything
func (d *Device) Calibrate() (int, error) {
	d.calibrated = false
	d.positionEdge.Take()

	// the first edge can come at any point of the revolution
	_, err := d.seekEdge(d.motor.StepForward)
	if err != nil {
		d.release()
		return 0, fmt.Errorf("error finding first edge: %w", err)
	}

	steps, err := d.seekEdge(d.motor.StepForward)
	if err != nil {
		d.release()
		return 0, fmt.Errorf("error measuring revolution: %w", err)
	}

	d.align()
	d.release()
	d.calibrated = true

	if d.cfg.Verbose {
		d.printf("calibrated: %d steps per revolution", steps)
	}
	return steps, nil
}

// seekEdge calls step until the position sensor fires and returns the number of steps taken
func (d *Device) seekEdge(step func()) (int, error) {
	limit := d.cfg.Dispense.EdgeSearchLimit
	for n := 1; limit < 0 || n <= limit; n++ {
		step()
		if d.positionEdge.Take() {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w after %d steps", ErrSensorTimeout, limit)
}

// align reverses from the sensor edge to the compartment zero boundary
func (d *Device) align() {
	for range d.cfg.Dispense.AlignmentOffset {
		d.motor.StepReverse()
	}
}

// rehome returns the wheel to the start of the transit that was interrupted by power loss. A valid
// sub-position is reversed directly so loaded compartments never sweep back over the drop hole.
// Otherwise the wheel is found with the position sensor and the compartments before transit k,
// which are already empty, are skipped with drops ignored
func (d *Device) rehome() error {
	if d.state.CompartmentsMoved < pilldispenser.FirstDoseCompartment {
		d.state.CompartmentsMoved = pilldispenser.FirstDoseCompartment
	}

	back, ok := d.subPositionSteps()
	if ok {
		for range back {
			d.motor.StepReverse()
		}
	} else {
		err := d.rehomeWithSensor()
		if err != nil {
			return err
		}
	}

	d.positionEdge.Take()
	d.pillDrop.Take()
	d.release()

	if d.cfg.Verbose {
		d.printf("re-homed to compartment %d (reversed %d steps from sub-position: %t)", d.state.CompartmentsMoved, back, ok)
	}
	return nil
}

// subPositionSteps returns the steps taken in the interrupted transit according to the persisted
// sub-position. An erased or saturated slot, or one beyond the transit length, is not usable
func (d *Device) subPositionSteps() (int, bool) {
	sub, err := d.store.LoadMotorSubPosition()
	if err != nil {
		d.printf("error reading sub-position: %s", err)
		return 0, false
	}
	if sub == invalidSubPosition {
		return 0, false
	}

	steps := int(sub) * subPositionGroup
	if steps > d.state.StepsPerCompartment() {
		return 0, false
	}
	return steps, true
}

func (d *Device) rehomeWithSensor() error {
	d.positionEdge.Take()
	_, err := d.seekEdge(d.motor.StepReverse)
	if err != nil {
		d.release()
		return fmt.Errorf("error re-homing: %w", err)
	}
	d.align()

	seek := int(d.state.CompartmentsMoved-1) * d.state.StepsPerCompartment()
	for range seek {
		d.motor.StepForward()
	}
	return nil
}

// calibrationFailed reports a sensor failure and returns to waiting for calibration
func (d *Device) calibrationFailed(err error) {
	d.printf("error: %s", err)
	d.notify("Calibration failed. Position sensor not detected.")
	d.state = d.state.Reset()
	d.calibrated = false
	d.save()
}
