package device

import (
	"fmt"

	"github.com/calvinmclean/pilldispenser"
)

const (
	// subPositionGroup is the number of steps between sub-position checkpoints
	subPositionGroup = 4
	// invalidSubPosition is an erased sub-position slot. It is also the saturated value
	invalidSubPosition = 0xFF
)

// DispenseRemaining advances through every compartment from CompartmentsMoved to the last one.
// On return CompartmentsMoved is CompartmentCount and the phase is Finished
func (d *Device) DispenseRemaining() {
	steps := d.state.StepsPerCompartment()

	for d.state.CompartmentsMoved < pilldispenser.CompartmentCount {
		detected := d.advance(steps)

		d.state.CompartmentsMoved++
		d.state.CompartmentPhase = pilldispenser.Finished
		d.save()
		transitEnd := d.cfg.Now()

		day := d.state.CompartmentsMoved - 1
		left := d.state.PillsLeft()
		if detected {
			d.notify(fmt.Sprintf("Day %d: Pill dispensed. Number of pills left: %d.", day, left))
		} else {
			d.alert()
			d.notify(fmt.Sprintf("Day %d: Pill not dispensed. Number of pills left: %d.", day, left))
		}

		if d.state.CompartmentsMoved < pilldispenser.CompartmentCount {
			wait := d.cfg.Dispense.CompartmentInterval - d.cfg.Now().Sub(transitEnd)
			if wait > 0 {
				d.cfg.Sleep(wait)
			}
		}
	}

	d.notify("All pills dispensed. Waiting for button to calibrate.")
}

// advance moves one compartment forward and reports whether a pill drop was seen
func (d *Device) advance(steps int) bool {
	d.pillDrop.Take()
	// the sub-position is reset before the InProgress checkpoint so it never belongs to an older transit
	d.saveSubPosition(0)
	d.state.CompartmentPhase = pilldispenser.InProgress
	d.save()

	detected := false
	for i := 1; i <= steps; i++ {
		d.motor.StepForward()
		if i%subPositionGroup == 0 {
			d.saveSubPosition(i / subPositionGroup)
		}
		if d.pillDrop.Take() {
			detected = true
		}
	}
	d.release()

	return detected
}

// alert blinks the LEDs when a pill was not detected
func (d *Device) alert() {
	for range d.cfg.Dispense.AlertBlinks {
		d.leds.On()
		d.cfg.Sleep(d.cfg.Dispense.BlinkInterval)
		d.leds.Off()
		d.cfg.Sleep(d.cfg.Dispense.BlinkInterval)
	}
}

// ResetCycle returns to waiting for calibration. The log sequence is kept
func (d *Device) ResetCycle() {
	d.state = d.state.Reset()
	d.calibrated = false
	d.save()
}
