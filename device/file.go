package device

import (
	"errors"
	"io"
	"os"
	"sync/atomic"

	"github.com/hupe1980/botfs/internal/fs"
)

// File is a device backed by a host image file.
type File struct {
	f      fs.File
	blocks uint32
	closed atomic.Bool
}

// OpenFile opens an existing image for reading and writing. A nil fsys
// means the local file system.
func OpenFile(fsys fs.FileSystem, path string) (*File, error) {
	if fsys == nil {
		fsys = fs.Default
	}

	f, err := fsys.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return &File{f: f, blocks: uint32(info.Size() / BlockSize)}, nil
}

// CreateImage allocates a zero-filled image of exactly size bytes,
// replacing any existing file at path.
func CreateImage(fsys fs.FileSystem, path string, size int64) error {
	if fsys == nil {
		fsys = fs.Default
	}
	if size < 0 {
		return errors.New("device: negative image size")
	}

	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Blocks returns the number of whole blocks in the image.
func (d *File) Blocks() uint32 { return d.blocks }

func (d *File) ReadBlock(addr uint32, buf []byte) error {
	if err := d.precheck(addr, buf); err != nil {
		return transportErr("read", addr, err)
	}
	if _, err := d.f.ReadAt(buf, int64(addr)*BlockSize); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return transportErr("read", addr, err)
	}
	return nil
}

func (d *File) WriteBlock(addr uint32, buf []byte) error {
	if err := d.precheck(addr, buf); err != nil {
		return transportErr("write", addr, err)
	}
	if _, err := d.f.WriteAt(buf, int64(addr)*BlockSize); err != nil {
		return transportErr("write", addr, err)
	}
	return nil
}

// Sync commits written blocks to stable storage.
func (d *File) Sync() error {
	if d.closed.Load() {
		return ErrClosed
	}
	return d.f.Sync()
}

// Close syncs and closes the image. It is idempotent.
func (d *File) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	err := d.f.Sync()
	if cerr := d.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (d *File) precheck(addr uint32, buf []byte) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if err := checkBuf(buf); err != nil {
		return err
	}
	if addr >= d.blocks {
		return ErrOutOfRange
	}
	return nil
}
