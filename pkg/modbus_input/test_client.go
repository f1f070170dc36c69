package modbus_input

import (
	"errors"
	"sync"
)

var ErrReaderClosed = errors.New("reader is closed")

// TestButtonReader is a scripted InputReader. It reports the last value set
// through Press and Release.
type TestButtonReader struct {
	mu      sync.Mutex
	opened  bool
	pressed bool
	readErr error
	failed  bool
	reads   int
	opens   int
}

func CreateTestButtonReader() *TestButtonReader {
	return &TestButtonReader{}
}

func (reader *TestButtonReader) Open() error {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	reader.opened = true
	reader.failed = false
	reader.opens++
	return nil
}

func (reader *TestButtonReader) Close() error {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	reader.opened = false
	return nil
}

func (reader *TestButtonReader) ReadInput() (bool, error) {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	reader.reads++
	if !reader.opened {
		return false, ErrReaderClosed
	}
	if reader.readErr != nil {
		return false, reader.readErr
	}
	if reader.failed {
		return false, ErrReaderClosed
	}
	return reader.pressed, nil
}

func (reader *TestButtonReader) Press() {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	reader.pressed = true
}

func (reader *TestButtonReader) Release() {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	reader.pressed = false
}

// SetReadError makes reads fail with err until it is cleared with nil.
func (reader *TestButtonReader) SetReadError(err error) {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	reader.readErr = err
}

// DropLink fails every read until the reader is opened again, the way a
// dropped modbus TCP connection does.
func (reader *TestButtonReader) DropLink() {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	reader.failed = true
}

func (reader *TestButtonReader) Opens() int {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	return reader.opens
}

func (reader *TestButtonReader) Reads() int {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	return reader.reads
}

// ensure interface compliance
var _ InputReader = (*TestButtonReader)(nil)
var _ InputReader = (*ButtonModbusReader)(nil)
