package botfs

import (
	"fmt"
	"io"
)

// Stream reads delimited text from a file through a one-block buffer.
type Stream struct {
	f      *File
	buf    []byte
	cached int64 // volume block held in buf, -1 if none
	off    int   // byte offset in the current block
}

// NewStream rewinds f and returns a stream over its used blocks.
func NewStream(f *File) *Stream {
	f.Rewind()
	return &Stream{
		f:      f,
		buf:    make([]byte, BlockSize),
		cached: -1,
	}
}

// blockLen returns the number of valid bytes in the block at pos.
func (s *Stream) blockLen(pos int64) int {
	u := s.f.used
	if pos == int64(u.Last) && u.BytesLastBlock > 0 && u.BytesLastBlock < BlockSize {
		return int(u.BytesLastBlock)
	}
	return BlockSize
}

func (s *Stream) load() error {
	if s.f.used.Empty() || s.f.pos > int64(s.f.used.Last) {
		return io.EOF
	}
	if err := s.f.ReadBlock(s.buf); err != nil {
		return err
	}
	s.f.pos--
	s.cached = s.f.pos
	return nil
}

// ReadUntil copies bytes into p until delim (included), the end of the used
// data or len(p) bytes. A "\r" immediately before delim is dropped.
//
// A zero byte ends the data of its block: the rest of the block is padding
// and reading continues in the next block, unless p has no more room than
// the block had left. It returns 0, io.EOF when no data is left.
func (s *Stream) ReadUntil(p []byte, delim byte) (int, error) {
	if len(p) > BlockSize {
		return 0, fmt.Errorf("%w: %d > %d", ErrInvalidCount, len(p), BlockSize)
	}

	var (
		n     int
		found bool
	)
	for n < len(p) {
		if s.off >= s.blockLen(s.f.pos) {
			s.off = 0
			s.f.pos++
		}
		if s.cached != s.f.pos {
			if err := s.load(); err == io.EOF {
				break
			} else if err != nil {
				return n, err
			}
		}

		limit := s.blockLen(s.f.pos)
		room, left := len(p)-n, limit-s.off
		i, pad := 0, false
		for ; i < room && i < left; i++ {
			c := s.buf[s.off+i]
			if c == delim {
				i++
				found = true
				break
			}
			if c == 0 {
				pad = true
				break
			}
		}
		copy(p[n:], s.buf[s.off:s.off+i])
		n += i
		s.off += i

		if found {
			break
		}
		if pad {
			s.off = limit
			if n > 0 && room <= left {
				break
			}
		}
	}

	if found && n >= 2 && p[n-2] == '\r' {
		p[n-2] = delim
		n--
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// ReadLine reads up to and including the next '\n'.
func (s *Stream) ReadLine(p []byte) (int, error) {
	return s.ReadUntil(p, '\n')
}

// Tell returns the byte offset relative to the first data block.
func (s *Stream) Tell() int64 {
	return s.f.Tell()*BlockSize + int64(s.off)
}

// Seek sets the byte offset. io.SeekEnd is relative to the end of the used
// data.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = s.Tell()
	case io.SeekEnd:
		if u := s.f.used; !u.Empty() {
			base = (int64(u.Last)-s.f.dataStart())*BlockSize + int64(s.blockLen(int64(u.Last)))
		}
	default:
		return 0, fmt.Errorf("%w: whence %d", ErrInvalidPosition, whence)
	}

	target := base + offset
	if target < 0 {
		return 0, fmt.Errorf("%w: byte offset %d", ErrInvalidPosition, target)
	}
	s.f.pos = s.f.dataStart() + target/BlockSize
	s.off = int(target % BlockSize)
	return target, nil
}

// Close closes the underlying file.
func (s *Stream) Close() error {
	s.cached = -1
	return s.f.Close()
}
