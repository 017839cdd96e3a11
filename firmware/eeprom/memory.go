package eeprom

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// RAM is an in-memory Memory. A new RAM reads back as erased (0xFF) like a blank chip
type RAM []byte

// NewRAM returns an erased memory of the given size
func NewRAM(size int) RAM {
	r := make(RAM, size)
	for i := range r {
		r[i] = 0xFF
	}
	return r
}

// ReadAt implements io.ReaderAt
func (r RAM) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(r)) {
		return 0, io.EOF
	}
	n := copy(p, r[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt
func (r RAM) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(r)) {
		return 0, fmt.Errorf("%w: %d", ErrOutOfRange, off)
	}
	return copy(r[off:], p), nil
}

// OpenImage opens a file holding a full EEPROM image, creating an erased one if it does not exist
func OpenImage(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error opening image: %w", err)
	}

	f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("error creating image: %w", err)
	}
	if _, err := f.WriteAt(NewRAM(Size), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("error erasing image: %w", err)
	}
	return f, nil
}
