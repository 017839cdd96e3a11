// Package eeprom persists the dispenser state and log to a byte-addressable EEPROM
package eeprom

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/calvinmclean/pilldispenser"
)

const (
	// Size of the AT24C256 memory
	Size = 32768
	// PageSize is the largest write that does not wrap inside the chip's page buffer
	PageSize = 64
	// WriteDelay is the write cycle time of the chip
	WriteDelay = 10 * time.Millisecond

	// LogEntrySize is the slot size of one log entry
	LogEntrySize = 64
	// MaxLogEntries is the number of log slots. The log is erased when it is full
	MaxLogEntries = 32
	// MaxMessageLength leaves room for the terminator and checksum in a log slot
	MaxMessageLength = LogEntrySize - 3

	// SubPositionAddress is the single byte holding the motor sub-position
	SubPositionAddress = Size / 2
	// StateAddress is where the MachineState record is stored, at the top of memory
	StateAddress = Size - pilldispenser.RecordSize
)

var (
	ErrOutOfRange   = errors.New("address out of range")
	ErrEmptyMessage = errors.New("log message must contain at least one character")
)

// Memory is byte-addressable storage. *os.File, RAM and the AT24Cx driver all satisfy it
type Memory interface {
	io.ReaderAt
	io.WriterAt
}

// Store implements the dispenser's persistence on top of Memory
type Store struct {
	mem        Memory
	writeDelay time.Duration
	sleep      func(time.Duration)
}

// Option configures a Store
type Option func(*Store)

// WithWriteDelay overrides the delay after each page write
func WithWriteDelay(d time.Duration) Option {
	return func(s *Store) {
		s.writeDelay = d
	}
}

// WithSleep replaces time.Sleep, mostly for tests and simulation
func WithSleep(sleep func(time.Duration)) Option {
	return func(s *Store) {
		s.sleep = sleep
	}
}

// New creates a Store using the standard AT24C256 layout
func New(mem Memory, opts ...Option) *Store {
	s := &Store{
		mem:        mem,
		writeDelay: WriteDelay,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadMachineState reads and verifies the state record. Any failure wraps pilldispenser.ErrIntegrity
// unless the memory itself could not be read
func (s *Store) LoadMachineState() (pilldispenser.MachineState, error) {
	b := make([]byte, pilldispenser.RecordSize)
	if err := s.read(StateAddress, b); err != nil {
		return pilldispenser.MachineState{}, fmt.Errorf("error reading state: %w", err)
	}

	var state pilldispenser.MachineState
	if err := state.UnmarshalBinary(b); err != nil {
		return pilldispenser.MachineState{}, err
	}
	return state, nil
}

// SaveMachineState writes the record with a fresh checksum
func (s *Store) SaveMachineState(state pilldispenser.MachineState) error {
	b, err := state.MarshalBinary()
	if err != nil {
		return fmt.Errorf("error encoding state: %w", err)
	}
	return s.writePage(StateAddress, b)
}

// SaveMotorSubPosition writes one byte without waiting for the write cycle so it can be called
// between motor steps
func (s *Store) SaveMotorSubPosition(step uint8) error {
	return s.write(SubPositionAddress, []byte{step})
}

// LoadMotorSubPosition reads the last saved sub-position
func (s *Store) LoadMotorSubPosition() (uint8, error) {
	b := make([]byte, 1)
	if err := s.read(SubPositionAddress, b); err != nil {
		return 0, err
	}
	return b[0], nil
}

// AppendLogEntry writes message as entry number seq. The slot wraps every MaxLogEntries entries
// and the whole log is erased before the first slot is reused
func (s *Store) AppendLogEntry(seq uint32, message string) error {
	if len(message) == 0 {
		return ErrEmptyMessage
	}

	slot := seq % MaxLogEntries
	if slot == 0 && seq > 0 {
		if err := s.EraseLog(); err != nil {
			return fmt.Errorf("error rotating log: %w", err)
		}
	}

	return s.writePage(int64(slot)*LogEntrySize, encodeEntry(message))
}

// LogEntries returns the number of entries in the log region after seq writes
func LogEntries(seq uint32) int {
	if seq == 0 {
		return 0
	}
	return int((seq-1)%MaxLogEntries) + 1
}

// ReadLog returns the entries in the log region after seq writes. Reading stops at the first
// entry that fails its checksum
func (s *Store) ReadLog(seq uint32) ([]string, error) {
	n := LogEntries(seq)
	entries := make([]string, 0, n)

	buf := make([]byte, LogEntrySize)
	for i := range n {
		if err := s.read(int64(i)*LogEntrySize, buf); err != nil {
			return entries, fmt.Errorf("error reading log entry %d: %w", i+1, err)
		}

		msg, ok := decodeEntry(buf)
		if !ok {
			break
		}
		entries = append(entries, msg)
	}

	return entries, nil
}

// EraseLog invalidates every log slot by zeroing its first byte
func (s *Store) EraseLog() error {
	for i := range MaxLogEntries {
		if err := s.writePage(int64(i)*LogEntrySize, []byte{0}); err != nil {
			return err
		}
	}
	return nil
}

// EraseAll clears the log region, the sub-position and the state record. The next boot is a
// fresh boot
func (s *Store) EraseAll() error {
	blank := make([]byte, PageSize)
	for i := range blank {
		blank[i] = 0xFF
	}

	for addr := int64(0); addr < MaxLogEntries*LogEntrySize; addr += PageSize {
		if err := s.writePage(addr, blank); err != nil {
			return err
		}
	}
	if err := s.writePage(SubPositionAddress, blank[:1]); err != nil {
		return err
	}
	return s.writePage(StateAddress, blank[:pilldispenser.RecordSize])
}

func (s *Store) writePage(addr int64, data []byte) error {
	if addr/PageSize != (addr+int64(len(data))-1)/PageSize {
		return fmt.Errorf("%w: write of %d bytes at %d crosses a page", ErrOutOfRange, len(data), addr)
	}
	if err := s.write(addr, data); err != nil {
		return err
	}
	if s.writeDelay > 0 {
		s.sleep(s.writeDelay)
	}
	return nil
}

func (s *Store) write(addr int64, data []byte) error {
	if addr < 0 || addr+int64(len(data)) > Size {
		return fmt.Errorf("%w: %d", ErrOutOfRange, addr)
	}
	_, err := s.mem.WriteAt(data, addr)
	return err
}

func (s *Store) read(addr int64, data []byte) error {
	if addr < 0 || addr+int64(len(data)) > Size {
		return fmt.Errorf("%w: %d", ErrOutOfRange, addr)
	}
	_, err := s.mem.ReadAt(data, addr)
	return err
}

// encodeEntry lays out message, terminator and big-endian checksum
func encodeEntry(message string) []byte {
	if len(message) > MaxMessageLength {
		message = message[:MaxMessageLength]
	}

	b := make([]byte, len(message)+3)
	copy(b, message)
	crc := pilldispenser.Checksum(b[:len(message)+1])
	b[len(message)+1] = byte(crc >> 8)
	b[len(message)+2] = byte(crc)
	return b
}

func decodeEntry(b []byte) (string, bool) {
	end := -1
	for i, c := range b[:LogEntrySize-2] {
		if c == 0 {
			end = i
			break
		}
	}
	if end <= 0 {
		return "", false
	}

	stored := uint16(b[end+1])<<8 | uint16(b[end+2])
	if pilldispenser.Checksum(b[:end+1]) != stored {
		return "", false
	}
	return string(b[:end]), true
}
