package eeprom

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinmclean/pilldispenser"
)

func newTestStore() (*Store, RAM) {
	mem := NewRAM(Size)
	return New(mem, WithWriteDelay(0)), mem
}

func TestLoadMachineStateBlank(t *testing.T) {
	s, _ := newTestStore()

	_, err := s.LoadMachineState()
	assert.ErrorIs(t, err, pilldispenser.ErrIntegrity)
}

func TestMachineStateSaveLoad(t *testing.T) {
	s, mem := newTestStore()

	state := pilldispenser.MachineState{
		LogSequence:       9,
		SystemState:       pilldispenser.DispenseWaiting,
		CompartmentPhase:  pilldispenser.InProgress,
		CalibrationSteps:  4096,
		CompartmentsMoved: 4,
	}
	require.NoError(t, s.SaveMachineState(state))

	loaded, err := s.LoadMachineState()
	require.NoError(t, err)
	assert.Equal(t, state, loaded)

	// saving an unmodified record leaves identical bytes
	before := append([]byte(nil), mem[StateAddress:]...)
	require.NoError(t, s.SaveMachineState(loaded))
	assert.Equal(t, before, []byte(mem[StateAddress:]))

	reloaded, err := s.LoadMachineState()
	require.NoError(t, err)
	assert.Equal(t, loaded, reloaded)
}

func TestMachineStateCorruptByte(t *testing.T) {
	s, mem := newTestStore()
	require.NoError(t, s.SaveMachineState(pilldispenser.MachineState{SystemState: pilldispenser.DispenseWaiting, CalibrationSteps: 4096}))

	for i := StateAddress; i < Size; i++ {
		mem[i] ^= 0x10
		_, err := s.LoadMachineState()
		assert.ErrorIs(t, err, pilldispenser.ErrIntegrity, "address %d", i)
		mem[i] ^= 0x10
	}

	_, err := s.LoadMachineState()
	assert.NoError(t, err)
}

func TestSubPosition(t *testing.T) {
	sleeps := 0
	s := New(NewRAM(Size), WithSleep(func(time.Duration) { sleeps++ }))

	require.NoError(t, s.SaveMotorSubPosition(42))
	v, err := s.LoadMotorSubPosition()
	require.NoError(t, err)
	assert.Equal(t, uint8(42), v)
	assert.Zero(t, sleeps, "sub-position writes do not wait for the write cycle")

	require.NoError(t, s.SaveMachineState(pilldispenser.DefaultMachineState()))
	assert.Equal(t, 1, sleeps)
}

func TestLogAppendRead(t *testing.T) {
	s, _ := newTestStore()

	entries, err := s.ReadLog(0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	msgs := []string{"Boot.", "Waiting for button to calibrate.", "Calibrated."}
	for i, m := range msgs {
		require.NoError(t, s.AppendLogEntry(uint32(i), m))
	}

	entries, err = s.ReadLog(uint32(len(msgs)))
	require.NoError(t, err)
	assert.Equal(t, msgs, entries)
}

func TestLogTruncatesLongMessages(t *testing.T) {
	s, _ := newTestStore()

	long := strings.Repeat("x", 100)
	require.NoError(t, s.AppendLogEntry(0, long))

	entries, err := s.ReadLog(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, long[:MaxMessageLength], entries[0])
}

func TestLogEmptyMessage(t *testing.T) {
	s, _ := newTestStore()
	assert.ErrorIs(t, s.AppendLogEntry(0, ""), ErrEmptyMessage)
}

func TestLogRotation(t *testing.T) {
	s, _ := newTestStore()

	var seq uint32
	for ; seq < MaxLogEntries; seq++ {
		require.NoError(t, s.AppendLogEntry(seq, fmt.Sprintf("entry %d", seq)))
	}

	entries, err := s.ReadLog(seq)
	require.NoError(t, err)
	assert.Len(t, entries, MaxLogEntries)

	require.NoError(t, s.AppendLogEntry(seq, "after rotation"))
	seq++

	entries, err = s.ReadLog(seq)
	require.NoError(t, err)
	assert.Equal(t, []string{"after rotation"}, entries)

	// the erased slots must not come back
	for slot := 1; slot < MaxLogEntries; slot++ {
		buf := make([]byte, LogEntrySize)
		require.NoError(t, s.read(int64(slot)*LogEntrySize, buf))
		_, ok := decodeEntry(buf)
		assert.False(t, ok, "slot %d", slot)
	}
}

func TestLogEntries(t *testing.T) {
	tests := []struct {
		seq      uint32
		expected int
	}{
		{0, 0},
		{1, 1},
		{MaxLogEntries, MaxLogEntries},
		{MaxLogEntries + 1, 1},
		{2 * MaxLogEntries, MaxLogEntries},
		{2*MaxLogEntries + 5, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, LogEntries(tt.seq), "seq=%d", tt.seq)
	}
}

func TestLogStopsAtCorruptEntry(t *testing.T) {
	s, mem := newTestStore()
	for i := range uint32(3) {
		require.NoError(t, s.AppendLogEntry(i, "message"))
	}
	mem[LogEntrySize+2] ^= 0xFF

	entries, err := s.ReadLog(3)
	require.NoError(t, err)
	assert.Equal(t, []string{"message"}, entries)
}

func TestEraseAll(t *testing.T) {
	s, _ := newTestStore()
	require.NoError(t, s.SaveMachineState(pilldispenser.MachineState{SystemState: pilldispenser.DispenseWaiting}))
	require.NoError(t, s.AppendLogEntry(0, "Boot."))
	require.NoError(t, s.SaveMotorSubPosition(3))

	require.NoError(t, s.EraseAll())

	_, err := s.LoadMachineState()
	assert.ErrorIs(t, err, pilldispenser.ErrIntegrity)

	entries, err := s.ReadLog(1)
	require.NoError(t, err)
	assert.Empty(t, entries)

	v, err := s.LoadMotorSubPosition()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xFF), v)
}

func TestOpenImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eeprom.bin")

	f, err := OpenImage(path)
	require.NoError(t, err)
	s := New(f, WithWriteDelay(0))
	_, err = s.LoadMachineState()
	assert.ErrorIs(t, err, pilldispenser.ErrIntegrity)

	state := pilldispenser.MachineState{SystemState: pilldispenser.DispenseWaiting, CompartmentPhase: pilldispenser.Finished, CalibrationSteps: 4096}
	require.NoError(t, s.SaveMachineState(state))
	require.NoError(t, f.Close())

	f, err = OpenImage(path)
	require.NoError(t, err)
	defer f.Close()

	loaded, err := New(f).LoadMachineState()
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}

func TestRAMBounds(t *testing.T) {
	r := NewRAM(4)
	_, err := r.WriteAt([]byte{1, 2}, 3)
	assert.ErrorIs(t, err, ErrOutOfRange)

	n, err := r.WriteAt([]byte{1, 2}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	buf := make([]byte, 4)
	_, err = r.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFF, 1, 2}, buf)
}

func TestStoreRejectsOutOfRange(t *testing.T) {
	s, _ := newTestStore()
	assert.ErrorIs(t, s.write(Size, []byte{1}), ErrOutOfRange)
	assert.ErrorIs(t, s.writePage(PageSize-1, []byte{1, 2}), ErrOutOfRange)
}
