package pilldispenser

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sigurn/crc16"
)

const (
	// CompartmentCount is the number of compartments on the dispenser wheel
	CompartmentCount = 8

	// FirstDoseCompartment is the first compartment holding a dose. Compartment 0 is parked over
	// the drop hole after calibration and is always empty
	FirstDoseCompartment = 1

	// RecordSize is the encoded size of a MachineState including its checksum
	RecordSize = 22
)

// ErrIntegrity is returned when a persisted record fails its checksum or holds impossible values.
// It is treated the same as having no record at all
var ErrIntegrity = errors.New("record integrity check failed")

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Checksum calculates the CRC-16/CCITT-FALSE used for every checksummed area of the EEPROM
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// SystemState is the top-level state of the dispenser
type SystemState int32

const (
	CalibrationWaiting SystemState = iota
	DispenseWaiting
)

func (s SystemState) String() string {
	switch s {
	case CalibrationWaiting:
		return "CalibrationWaiting"
	case DispenseWaiting:
		return "DispenseWaiting"
	default:
		return "Unknown"
	}
}

// CompartmentPhase tells whether the last compartment advance completed
type CompartmentPhase int32

const (
	InProgress CompartmentPhase = iota
	Finished
)

func (p CompartmentPhase) String() string {
	switch p {
	case InProgress:
		return "InProgress"
	case Finished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// MachineState is the single record persisted across power loss
type MachineState struct {
	// LogSequence counts every log entry ever written. It survives cycle resets
	LogSequence       uint32
	SystemState       SystemState
	CompartmentPhase  CompartmentPhase
	CalibrationSteps  int32
	CompartmentsMoved int32
}

// DefaultMachineState is the state of a device that has never been calibrated
func DefaultMachineState() MachineState {
	return MachineState{
		SystemState:      CalibrationWaiting,
		CompartmentPhase: InProgress,
	}
}

// Reset returns the record for a new cycle, keeping the log sequence
func (s MachineState) Reset() MachineState {
	r := DefaultMachineState()
	r.LogSequence = s.LogSequence
	return r
}

// PillsLeft returns the number of doses still in the wheel
func (s MachineState) PillsLeft() int {
	return CompartmentCount - int(s.CompartmentsMoved)
}

// StepsPerCompartment is the number of motor steps for one compartment advance. The correction
// term is empirical and must not be changed without recalibrating against hardware
func (s MachineState) StepsPerCompartment() int {
	return int(s.CalibrationSteps)/CompartmentCount + (CompartmentCount - 1)
}

func (s MachineState) String() string {
	return fmt.Sprintf("state=%s phase=%s calibration=%d moved=%d log=%d",
		s.SystemState, s.CompartmentPhase, s.CalibrationSteps, s.CompartmentsMoved, s.LogSequence)
}

// Validate checks the field ranges of a decoded record
func (s MachineState) Validate() error {
	if s.SystemState != CalibrationWaiting && s.SystemState != DispenseWaiting {
		return fmt.Errorf("%w: invalid system state %d", ErrIntegrity, s.SystemState)
	}
	if s.CompartmentPhase != InProgress && s.CompartmentPhase != Finished {
		return fmt.Errorf("%w: invalid compartment phase %d", ErrIntegrity, s.CompartmentPhase)
	}
	if s.CalibrationSteps < 0 {
		return fmt.Errorf("%w: negative calibration steps %d", ErrIntegrity, s.CalibrationSteps)
	}
	if s.CompartmentsMoved < 0 || s.CompartmentsMoved > CompartmentCount {
		return fmt.Errorf("%w: compartments moved %d out of range", ErrIntegrity, s.CompartmentsMoved)
	}
	return nil
}

// MarshalBinary encodes the record in the packed little-endian layout and appends its checksum
func (s MachineState) MarshalBinary() ([]byte, error) {
	b := make([]byte, RecordSize)
	binary.LittleEndian.PutUint32(b[0:], s.LogSequence)
	binary.LittleEndian.PutUint32(b[4:], uint32(s.SystemState))
	binary.LittleEndian.PutUint32(b[8:], uint32(s.CompartmentPhase))
	binary.LittleEndian.PutUint32(b[12:], uint32(s.CalibrationSteps))
	binary.LittleEndian.PutUint32(b[16:], uint32(s.CompartmentsMoved))
	binary.LittleEndian.PutUint16(b[20:], Checksum(b[:RecordSize-2]))
	return b, nil
}

// UnmarshalBinary verifies the checksum before trusting any field
func (s *MachineState) UnmarshalBinary(b []byte) error {
	if len(b) != RecordSize {
		return fmt.Errorf("%w: record is %d bytes, want %d", ErrIntegrity, len(b), RecordSize)
	}

	stored := binary.LittleEndian.Uint16(b[20:])
	if calculated := Checksum(b[:RecordSize-2]); stored != calculated {
		return fmt.Errorf("%w: checksum %04x, calculated %04x", ErrIntegrity, stored, calculated)
	}

	decoded := MachineState{
		LogSequence:       binary.LittleEndian.Uint32(b[0:]),
		SystemState:       SystemState(int32(binary.LittleEndian.Uint32(b[4:]))),
		CompartmentPhase:  CompartmentPhase(int32(binary.LittleEndian.Uint32(b[8:]))),
		CalibrationSteps:  int32(binary.LittleEndian.Uint32(b[12:])),
		CompartmentsMoved: int32(binary.LittleEndian.Uint32(b[16:])),
	}
	if err := decoded.Validate(); err != nil {
		return err
	}

	*s = decoded
	return nil
}
