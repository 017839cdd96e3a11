package device

import (
	"context"

	"github.com/calvinmclean/pilldispenser"
)

// Run recovers from the persisted state and then polls until ctx is cancelled. Cancellation is only
// checked between iterations so a dispense run always completes
func (d *Device) Run(ctx context.Context) error {
	boot := d.Recover()
	if d.cfg.Verbose {
		d.printf("recovered: %s", boot)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		d.Poll()
	}
}

// Poll is one iteration of the control loop
func (d *Device) Poll() {
	d.runRequests()

	if d.buttonCalibrate.Take() {
		d.handleCalibrate()
	}
	if d.buttonDispense.Take() {
		d.handleDispense()
	}

	d.renderIdle()
}

func (d *Device) runRequests() {
	for {
		select {
		case f := <-d.requests:
			f()
		default:
			return
		}
	}
}

func (d *Device) handleCalibrate() {
	if d.state.SystemState != pilldispenser.CalibrationWaiting {
		if d.cfg.Verbose {
			d.printf("ignoring calibrate button in %s", d.state.SystemState)
		}
		return
	}

	d.leds.Off()
	steps, err := d.Calibrate()
	if err != nil {
		d.calibrationFailed(err)
		return
	}

	d.state.SystemState = pilldispenser.DispenseWaiting
	d.state.CompartmentPhase = pilldispenser.Finished
	d.state.CalibrationSteps = int32(steps)
	d.state.CompartmentsMoved = 0
	d.save()
	d.notify("Calibrated. Waiting for button to dispense pills.")
}

func (d *Device) handleDispense() {
	if d.state.SystemState != pilldispenser.DispenseWaiting {
		if d.cfg.Verbose {
			d.printf("ignoring dispense button in %s", d.state.SystemState)
		}
		return
	}

	d.leds.Off()
	if d.state.CompartmentsMoved < pilldispenser.FirstDoseCompartment {
		d.state.CompartmentsMoved = pilldispenser.FirstDoseCompartment
	}
	d.DispenseRemaining()
	d.ResetCycle()
}

// renderIdle blinks while waiting for calibration and stays on while waiting to dispense
func (d *Device) renderIdle() {
	switch d.state.SystemState {
	case pilldispenser.CalibrationWaiting:
		d.leds.On()
		d.cfg.Sleep(d.cfg.Dispense.BlinkInterval)
		d.leds.Off()
		d.cfg.Sleep(d.cfg.Dispense.BlinkInterval)
	case pilldispenser.DispenseWaiting:
		d.leds.On()
		d.cfg.Sleep(d.cfg.Dispense.IdleDelay)
	}
}
