package botfs

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Mode is the open mode of a file.
type Mode byte

const (
	// ModeRead opens a file read-only.
	ModeRead Mode = 'r'
	// ModeReadWrite opens a file for reading and writing.
	ModeReadWrite Mode = 'R'
	// ModeTruncate opens a file for writing and clears it first.
	ModeTruncate Mode = 'W'
)

func (m Mode) valid() bool {
	return m == ModeRead || m == ModeReadWrite || m == ModeTruncate
}

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "r"
	case ModeReadWrite:
		return "R"
	case ModeTruncate:
		return "W"
	}
	return fmt.Sprintf("Mode(%d)", byte(m))
}

// File is an open file. A File is not safe for concurrent use; the volume
// assumes one writer per file.
type File struct {
	v      *Volume
	name   string
	mode   Mode
	start  uint32
	end    uint32
	pos    int64 // volume block
	used   UsedRange
	closed bool
	logger *Logger
}

// OpenFile opens name with the given mode. The position is set to the first
// data block. ModeTruncate zeroes the used data blocks and the header
// metadata and resets the used-range.
func (v *Volume) OpenFile(name string, mode Mode) (*File, error) {
	t0 := time.Now()
	f, err := v.openFile(name, mode)
	v.metrics.RecordOpen(time.Since(t0), err)
	if err != nil {
		v.logger.DebugContext(context.Background(), "open failed", "file", name, "error", err)
	}
	return f, err
}

func (v *Volume) openFile(name string, mode Mode) (*File, error) {
	if err := v.checkReady(); err != nil {
		return nil, err
	}
	if !mode.valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, byte(mode))
	}
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	if name == VolumeDataName && mode != ModeRead {
		return nil, fmt.Errorf("%w: %s is read-only", ErrReserved, name)
	}

	v.mu.lock()
	defer v.mu.unlock()

	slot, ok, err := v.find(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	f := &File{
		v:      v,
		name:   name,
		mode:   mode,
		start:  uint32(slot.entry.desc.start),
		end:    uint32(slot.entry.desc.end),
		logger: v.logger.WithFile(name),
	}
	f.pos = f.dataStart()

	hdr, err := f.ReadHeader()
	if err != nil {
		return nil, err
	}
	f.used = hdr.Used

	if mode == ModeTruncate {
		if err := f.clear(hdr); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// clear zeroes the used data blocks and the header metadata and resets the
// used-range.
func (f *File) clear(hdr *FileHeader) error {
	zero := make([]byte, BlockSize)

	if !f.used.Empty() {
		from := uint32(f.used.First)
		if from <= f.start {
			from = f.start + FileHeaderBlocks
		}
		to := min(uint32(f.used.Last), f.end)
		for b := from; b <= to; b++ {
			if err := f.v.writeBlock(b, zero); err != nil {
				return err
			}
		}
	}

	hdr.Data = [HeaderDataSize]byte{}
	hdr.Used = EmptyUsedRange
	f.used = EmptyUsedRange
	if err := f.WriteHeader(hdr); err != nil {
		return err
	}
	f.logger.DebugContext(context.Background(), "file truncated")
	return nil
}

func (f *File) dataStart() int64 { return int64(f.start) + FileHeaderBlocks }

// Name returns the normalized file name.
func (f *File) Name() string { return f.name }

// Mode returns the open mode.
func (f *File) Mode() Mode { return f.mode }

// Used returns the live used-range.
func (f *File) Used() UsedRange { return f.used }

// Size returns the number of data blocks.
func (f *File) Size() uint32 { return f.end - f.start }

// Extent returns the blocks owned by the file, header included.
func (f *File) Extent() Extent { return Extent{Start: f.start, End: f.end} }

// StartSector returns the device address of the first data block.
func (f *File) StartSector() uint32 { return f.start + FileHeaderBlocks + f.v.offset }

// Seek sets the block position relative to whence: io.SeekStart is the first
// data block, io.SeekEnd the last block. The result is not checked; the next
// read or write fails with ErrInvalidPosition when it lies outside the file.
// The returned position is relative to the first data block.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.pos = f.dataStart() + offset
	case io.SeekCurrent:
		f.pos += offset
	case io.SeekEnd:
		f.pos = int64(f.end) + offset
	default:
		return 0, fmt.Errorf("%w: whence %d", ErrInvalidPosition, whence)
	}
	return f.Tell(), nil
}

// Rewind moves to the first data block.
func (f *File) Rewind() { f.pos = f.dataStart() }

// Tell returns the block position relative to the first data block.
func (f *File) Tell() int64 { return f.pos - f.dataStart() }

func (f *File) check(buf []byte) error {
	if len(buf) != BlockSize {
		return fmt.Errorf("%w: buffer of %d bytes", ErrInvalidCount, len(buf))
	}
	if err := f.v.checkReady(); err != nil {
		return err
	}
	if f.closed {
		return ErrClosed
	}
	if f.pos <= int64(f.start) || f.pos > int64(f.end) {
		return &PositionError{Name: f.name, Pos: f.pos, Start: f.start, End: f.end}
	}
	return nil
}

// ReadBlock reads the block at the current position into buf and advances.
func (f *File) ReadBlock(buf []byte) error {
	if err := f.check(buf); err != nil {
		return err
	}
	if err := f.v.readBlock(uint32(f.pos), buf); err != nil {
		return err
	}
	f.pos++
	return nil
}

// WriteBlock writes buf at the current position, widens the used-range and
// advances.
func (f *File) WriteBlock(buf []byte) error {
	if f.mode == ModeRead {
		return fmt.Errorf("%w: %s", ErrReadOnly, f.name)
	}
	if err := f.check(buf); err != nil {
		return err
	}
	if err := f.v.writeBlock(uint32(f.pos), buf); err != nil {
		return err
	}

	p := uint16(f.pos)
	if p < f.used.First {
		f.used.First = p
	}
	if p > f.used.Last {
		f.used.Last = p
		f.used.BytesLastBlock = BlockSize
	}
	f.pos++
	return nil
}

// SetLastBlockBytes records how many bytes of the last used block are
// valid. It takes effect on the next flush.
func (f *File) SetLastBlockBytes(n int) error {
	if n < 0 || n > BlockSize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidCount, n)
	}
	if f.mode == ModeRead {
		return fmt.Errorf("%w: %s", ErrReadOnly, f.name)
	}
	f.used.BytesLastBlock = uint16(n)
	return nil
}

// FlushUsed stores the live used-range in the file header.
func (f *File) FlushUsed() error {
	if err := f.v.checkReady(); err != nil {
		return err
	}
	buf := make([]byte, BlockSize)
	if err := f.v.readBlock(f.start, buf); err != nil {
		return err
	}
	f.used.encode(buf[1:])
	return f.v.writeBlock(f.start, buf)
}

// ReadHeader reads the header block.
func (f *File) ReadHeader() (*FileHeader, error) {
	if err := f.v.checkReady(); err != nil {
		return nil, err
	}
	buf := make([]byte, BlockSize)
	if err := f.v.readBlock(f.start, buf); err != nil {
		return nil, err
	}
	return decodeFileHeader(buf), nil
}

// WriteHeader rewrites the whole header block, used-range included. Pass
// back a header obtained from ReadHeader to keep the used-range intact.
func (f *File) WriteHeader(h *FileHeader) error {
	if f.mode == ModeRead {
		return fmt.Errorf("%w: %s", ErrReadOnly, f.name)
	}
	if err := f.v.checkReady(); err != nil {
		return err
	}
	buf := make([]byte, BlockSize)
	h.encode(buf)
	return f.v.writeBlock(f.start, buf)
}

// Close flushes the used-range of writable files and invalidates the handle.
func (f *File) Close() error {
	if f.closed {
		return ErrClosed
	}
	f.closed = true
	if f.mode == ModeRead {
		return nil
	}
	return f.FlushUsed()
}
