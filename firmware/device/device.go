package device

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/calvinmclean/pilldispenser"
)

// requestQueueSize is the number of console requests that can wait for the control loop
const requestQueueSize = 8

// Motor advances the wheel by one mechanical step per call. Each call blocks for the step dwell
type Motor interface {
	StepForward()
	StepReverse()
}

// Indicator is the group of status LEDs
type Indicator interface {
	On()
	Off()
}

// Store is the persistence used by the Device. *eeprom.Store implements it
type Store interface {
	LoadMachineState() (pilldispenser.MachineState, error)
	SaveMachineState(pilldispenser.MachineState) error
	SaveMotorSubPosition(uint8) error
	LoadMotorSubPosition() (uint8, error)
	AppendLogEntry(seq uint32, message string) error
	ReadLog(seq uint32) ([]string, error)
	EraseLog() error
	EraseAll() error
}

// Uplink is the best-effort remote half of notifications
type Uplink interface {
	Send(message string) error
}

// releaser is implemented by motors that can de-energize their coils while idle
type releaser interface {
	Release()
}

// Device is the dispenser application context. It owns the MachineState and every method except
// the sensor and button hooks must be called from the control loop goroutine
type Device struct {
	motor  Motor
	leds   Indicator
	store  Store
	uplink Uplink
	cfg    Config

	state      pilldispenser.MachineState
	calibrated bool

	positionEdge    Flag
	pillDrop        Flag
	buttonCalibrate Flag
	buttonDispense  Flag

	requests chan func()

	persistFailures int
	startTime       time.Time
}

// New creates a Device. The Indicator and Uplink are optional
func New(motor Motor, leds Indicator, store Store, uplink Uplink, cfg Config) (*Device, error) {
	if motor == nil {
		return nil, errors.New("missing motor")
	}
	if store == nil {
		return nil, errors.New("missing store")
	}
	if leds == nil {
		leds = noopIndicator{}
	}
	if uplink == nil {
		uplink = noopUplink{}
	}

	cfg = cfg.withDefaults()
	// the console goroutine writes help and errors while the control loop prints
	cfg.Console = &lockedWriter{w: cfg.Console}

	return &Device{
		motor:    motor,
		leds:     leds,
		store:    store,
		uplink:   uplink,
		cfg:      cfg,
		state:    pilldispenser.DefaultMachineState(),
		requests: make(chan func(), requestQueueSize),
	}, nil
}

// OnPositionEdge is called by the position sensor interrupt
func (d *Device) OnPositionEdge() {
	d.positionEdge.Set()
}

// OnDropEdge is called by the drop sensor interrupt
func (d *Device) OnDropEdge() {
	d.pillDrop.Set()
}

// PressCalibrate is called when button A is pressed
func (d *Device) PressCalibrate() {
	d.buttonCalibrate.Set()
}

// PressDispense is called when button B is pressed
func (d *Device) PressDispense() {
	d.buttonDispense.Set()
}

// Do queues f to run on the control loop. It returns false if the queue is full and f was dropped
func (d *Device) Do(f func()) bool {
	select {
	case d.requests <- f:
		return true
	default:
		return false
	}
}

// State returns a copy of the current MachineState
func (d *Device) State() pilldispenser.MachineState {
	return d.state
}

// Calibrated reports whether the wheel is aligned to compartment zero
func (d *Device) Calibrated() bool {
	return d.calibrated
}

// PersistFailures is the number of failed persistence writes since the Device was created
func (d *Device) PersistFailures() int {
	return d.persistFailures
}

// SetVerbose enables or disables verbose output
func (d *Device) SetVerbose(v bool) {
	d.cfg.Verbose = v
	if v {
		d.printf("Set Verbose Mode")
	}
}

// notify records a notable transition in the console, the log and the uplink
func (d *Device) notify(msg string) {
	d.printf("[event] %s", msg)

	err := d.store.AppendLogEntry(d.state.LogSequence, msg)
	if err != nil {
		d.persistError(fmt.Errorf("error appending log entry: %w", err))
	} else {
		d.state.LogSequence++
	}
	d.save()

	err = d.uplink.Send(msg)
	if err != nil && d.cfg.Verbose {
		d.printf("uplink error: %s", err)
	}
}

// save writes the MachineState checkpoint
func (d *Device) save() {
	if d.cfg.Verbose {
		d.printf("save %s", d.state)
	}
	err := d.store.SaveMachineState(d.state)
	if err != nil {
		d.persistError(fmt.Errorf("error saving state: %w", err))
	}
}

func (d *Device) saveSubPosition(groups int) {
	if groups > invalidSubPosition {
		groups = invalidSubPosition
	}
	err := d.store.SaveMotorSubPosition(uint8(groups))
	if err != nil {
		d.persistError(fmt.Errorf("error saving sub-position: %w", err))
	}
}

func (d *Device) persistError(err error) {
	d.persistFailures++
	d.printf("persist error: %s", err)
}

func (d *Device) release() {
	if r, ok := d.motor.(releaser); ok {
		r.Release()
	}
}

func (d *Device) printf(format string, args ...any) {
	fmt.Fprintf(d.cfg.Console, d.ts()+" "+format+"\n", args...)
}

// ts returns the time since boot for console output
func (d *Device) ts() string {
	if d.startTime.IsZero() {
		return "[-]"
	}
	return "[" + d.cfg.Now().Sub(d.startTime).Truncate(time.Millisecond).String() + "]"
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type noopIndicator struct{}

func (noopIndicator) On()  {}
func (noopIndicator) Off() {}

type noopUplink struct{}

func (noopUplink) Send(string) error { return nil }
