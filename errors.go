package botfs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when a volume is used after Close or before a successful load.
	ErrNotInitialized = errors.New("botfs: volume not initialized")
	// ErrOpen is returned when the volume image cannot be opened.
	ErrOpen = errors.New("botfs: cannot open volume")
	// ErrIncompatibleVersion is returned for on-disk formats older than MinVersion.
	ErrIncompatibleVersion = errors.New("botfs: incompatible volume version")
	// ErrCorrupt is returned when on-disk structures contradict each other.
	ErrCorrupt = errors.New("botfs: volume corrupt")

	ErrTooLarge     = errors.New("botfs: too large")
	ErrTooSmall     = errors.New("botfs: volume too small")
	ErrNameTooLong  = errors.New("botfs: name too long")
	ErrInvalidName  = errors.New("botfs: invalid name")
	ErrInvalidMode  = errors.New("botfs: invalid open mode")
	ErrReserved     = errors.New("botfs: reserved name")
	ErrInvalidCount = errors.New("botfs: invalid byte count")

	ErrAlreadyExists = errors.New("botfs: file already exists")
	ErrNotFound      = errors.New("botfs: file not found")

	// ErrOutOfSpace is returned when no free range is large enough.
	ErrOutOfSpace = errors.New("botfs: out of space")
	// ErrFreelistFull is returned when a released range cannot be recorded
	// because every freelist slot is taken. Blocks may still be free.
	ErrFreelistFull = errors.New("botfs: freelist full")
	// ErrDirectoryFull is returned when the root directory has no free slot.
	ErrDirectoryFull = errors.New("botfs: directory full")

	ErrInvalidPosition = errors.New("botfs: invalid position")
	ErrReadOnly        = errors.New("botfs: file opened read-only")
	ErrClosed          = errors.New("botfs: file already closed")
)

// PositionError is a block transfer outside the data range of a file.
type PositionError struct {
	Name  string
	Pos   int64 // volume block
	Start uint32
	End   uint32
}

func (e *PositionError) Error() string {
	return fmt.Sprintf("botfs: %s: position %d outside data blocks (%d, %d]", e.Name, e.Pos, e.Start, e.End)
}

func (e *PositionError) Is(target error) bool { return target == ErrInvalidPosition }

// VersionError reports a volume header older than the supported format.
type VersionError struct {
	Found uint16
	Min   uint16
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("botfs: volume version %d, need at least %d", e.Found, e.Min)
}

func (e *VersionError) Is(target error) bool { return target == ErrIncompatibleVersion }
