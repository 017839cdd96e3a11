package device

import (
	"errors"

	"github.com/calvinmclean/pilldispenser"
)

// Boot describes the branch taken by Recover
type Boot int

const (
	// BootFresh means there was no valid persisted state
	BootFresh Boot = iota
	BootCalibrationWaiting
	// BootCalibrated means calibration had finished and no dispensing had started
	BootCalibrated
	// BootResumedBoundary means power was lost while the wheel was parked between compartments
	BootResumedBoundary
	// BootResumedTransit means power was lost while the wheel was turning
	BootResumedTransit
	// BootRehomeFailed means the position sensor was not found while re-homing
	BootRehomeFailed
)

func (b Boot) String() string {
	switch b {
	case BootFresh:
		return "Fresh"
	case BootCalibrationWaiting:
		return "CalibrationWaiting"
	case BootCalibrated:
		return "Calibrated"
	case BootResumedBoundary:
		return "ResumedBoundary"
	case BootResumedTransit:
		return "ResumedTransit"
	case BootRehomeFailed:
		return "RehomeFailed"
	default:
		return "Unknown"
	}
}

// Recover loads the persisted state and resumes from the last checkpoint. It runs once at boot before
// the control loop starts
func (d *Device) Recover() Boot {
	d.startTime = d.cfg.Now()

	state, err := d.store.LoadMachineState()
	if err != nil {
		if !errors.Is(err, pilldispenser.ErrIntegrity) {
			d.printf("error loading state: %s", err)
		} else if d.cfg.Verbose {
			d.printf("no saved state: %s", err)
		}
		d.state = pilldispenser.DefaultMachineState()
		d.waitForCalibration()
		return BootFresh
	}

	d.state = state
	if state.SystemState == pilldispenser.CalibrationWaiting {
		d.waitForCalibration()
		return BootCalibrationWaiting
	}

	d.calibrated = true
	d.leds.Off()
	d.notify("Boot.")

	switch {
	case state.CompartmentPhase == pilldispenser.InProgress:
		if state.CompartmentsMoved != 0 {
			d.notify("Powered off during dispense. Motor was turning.")
		}

		err := d.rehome()
		if err != nil {
			d.calibrationFailed(err)
			return BootRehomeFailed
		}

		d.resumeWait()
		d.state.CompartmentPhase = pilldispenser.Finished
		d.save()
		d.DispenseRemaining()
		d.ResetCycle()
		return BootResumedTransit

	case state.CompartmentsMoved == 0:
		d.notify("Booted after calibration. Waiting for button to dispense.")
		d.leds.On()
		return BootCalibrated

	default:
		d.notify("Powered off during dispense. Motor was not turning.")
		d.resumeWait()
		d.DispenseRemaining()
		d.ResetCycle()
		return BootResumedBoundary
	}
}

func (d *Device) waitForCalibration() {
	d.calibrated = false
	d.notify("Boot.")
	d.notify("Waiting for button to calibrate.")
}

// resumeWait keeps a full CompartmentInterval between boot and the next dose since the time spent
// powered off is unknown
func (d *Device) resumeWait() {
	if d.state.CompartmentsMoved < pilldispenser.CompartmentCount {
		d.cfg.Sleep(d.cfg.Dispense.CompartmentInterval)
	}
}
