package device

import (
	"errors"
	"fmt"
	"sync"
)

// BlockSize is the size of one transfer unit in bytes.
const BlockSize = 512

var (
	// ErrTransport matches every *TransportError.
	ErrTransport = errors.New("device: transport error")
	// ErrOutOfRange is returned for addresses beyond the end of the medium.
	ErrOutOfRange = errors.New("device: address out of range")
	// ErrBlockSize is returned when a buffer is not exactly one block long.
	ErrBlockSize = errors.New("device: buffer is not one block")
	// ErrClosed is returned by transfers on a closed device.
	ErrClosed = errors.New("device: closed")
)

// Device reads and writes single blocks at absolute addresses.
//
// Implementations are not required to be safe for concurrent use; wrap
// them with NewSerialized to get per-transfer mutual exclusion.
type Device interface {
	ReadBlock(addr uint32, buf []byte) error
	WriteBlock(addr uint32, buf []byte) error
	Close() error
}

// TransportError is a failed block transfer.
type TransportError struct {
	Op    string // "read" or "write"
	Addr  uint32
	cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("device: %s block %d: %v", e.Op, e.Addr, e.cause)
}

func (e *TransportError) Unwrap() error { return e.cause }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func transportErr(op string, addr uint32, cause error) error {
	return &TransportError{Op: op, Addr: addr, cause: cause}
}

func checkBuf(buf []byte) error {
	if len(buf) != BlockSize {
		return fmt.Errorf("%w: got %d bytes", ErrBlockSize, len(buf))
	}
	return nil
}

// Serialized holds the transport lock of one device: a mutex held for
// exactly one block transfer.
type Serialized struct {
	mu  sync.Mutex
	dev Device
}

// NewSerialized wraps dev with a transport lock. Wrapping twice is a no-op.
func NewSerialized(dev Device) *Serialized {
	if s, ok := dev.(*Serialized); ok {
		return s
	}
	return &Serialized{dev: dev}
}

func (s *Serialized) ReadBlock(addr uint32, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.ReadBlock(addr, buf)
}

func (s *Serialized) WriteBlock(addr uint32, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.WriteBlock(addr, buf)
}

func (s *Serialized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.Close()
}

// Unwrap returns the device behind the transport lock.
func (s *Serialized) Unwrap() Device { return s.dev }
