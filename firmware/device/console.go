package device

import (
	"fmt"
	"io"

	"github.com/calvinmclean/pilldispenser"
)

// PrintState writes the MachineState and the last motor sub-position to the console
func (d *Device) PrintState() {
	d.printf("%s calibrated=%t", d.state, d.calibrated)

	sub, err := d.store.LoadMotorSubPosition()
	if err != nil {
		d.printf("error reading sub-position: %s", err)
	} else {
		d.printf("sub-position=%d persist-failures=%d", sub, d.persistFailures)
	}
}

// PrintLog writes every valid log entry to the console
func (d *Device) PrintLog() {
	entries, err := d.store.ReadLog(d.state.LogSequence)
	for i, e := range entries {
		d.printf("%d: %s", i+1, e)
	}
	if err != nil {
		d.printf("error reading log: %s", err)
	}
}

// EraseLog clears the log and restarts the log sequence
func (d *Device) EraseLog() {
	err := d.store.EraseLog()
	if err != nil {
		d.persistError(fmt.Errorf("error erasing log: %w", err))
		return
	}
	d.state.LogSequence = 0
	d.save()
	d.printf("log erased")
}

// EraseAll clears all persisted data. The next boot is a fresh boot
func (d *Device) EraseAll() {
	err := d.store.EraseAll()
	if err != nil {
		d.persistError(fmt.Errorf("error erasing memory: %w", err))
		return
	}
	d.state = pilldispenser.DefaultMachineState()
	d.calibrated = false
	d.printf("memory erased")
}

// Jog moves the wheel by n steps without changing the MachineState
func (d *Device) Jog(n int32) {
	step := d.motor.StepForward
	if n < 0 {
		step = d.motor.StepReverse
		n = -n
	}
	for range n {
		step()
	}
	d.release()
}

// Console adapts a Device to the serial debug console. Button presses go straight to the flags and
// everything else is queued for the control loop
type Console struct {
	d *Device
	r io.ByteReader
}

// NewConsole creates a Console reading commands from r
func NewConsole(d *Device, r io.ByteReader) *Console {
	return &Console{d, r}
}

func (c *Console) PressCalibrate() { c.d.PressCalibrate() }
func (c *Console) PressDispense()  { c.d.PressDispense() }
func (c *Console) PrintState()     { c.request(c.d.PrintState) }
func (c *Console) PrintLog()       { c.request(c.d.PrintLog) }
func (c *Console) EraseLog()       { c.request(c.d.EraseLog) }
func (c *Console) EraseAll()       { c.request(c.d.EraseAll) }
func (c *Console) Verbose()        { c.request(func() { c.d.SetVerbose(true) }) }

func (c *Console) Jog(n int32) {
	c.request(func() { c.d.Jog(n) })
}

func (c *Console) ReadByte() (byte, error) {
	return c.r.ReadByte()
}

func (c *Console) Write(p []byte) (int, error) {
	return c.d.cfg.Console.Write(p)
}

func (c *Console) request(f func()) {
	if !c.d.Do(f) {
		fmt.Fprintln(c.d.cfg.Console, "error: device busy, request dropped")
	}
}
