package device

import (
	"github.com/hupe1980/botfs/internal/mmap"
)

// Mapped is a device backed by a shared memory mapping of a host image.
type Mapped struct {
	m *mmap.Mapping
}

// OpenMapped maps an existing image read-write.
func OpenMapped(path string) (*Mapped, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	// Volume metadata is scattered over the image.
	_ = m.Advise(mmap.AccessRandom)
	return &Mapped{m: m}, nil
}

// Blocks returns the number of whole blocks in the mapping.
func (d *Mapped) Blocks() uint32 { return uint32(d.m.Size() / BlockSize) }

func (d *Mapped) ReadBlock(addr uint32, buf []byte) error {
	if err := d.precheck(addr, buf); err != nil {
		return transportErr("read", addr, err)
	}
	if _, err := d.m.ReadAt(buf, int64(addr)*BlockSize); err != nil {
		return transportErr("read", addr, err)
	}
	return nil
}

func (d *Mapped) WriteBlock(addr uint32, buf []byte) error {
	if err := d.precheck(addr, buf); err != nil {
		return transportErr("write", addr, err)
	}
	if _, err := d.m.WriteAt(buf, int64(addr)*BlockSize); err != nil {
		return transportErr("write", addr, err)
	}
	return nil
}

// Sync flushes dirty pages to the image.
func (d *Mapped) Sync() error { return d.m.Sync() }

// Close flushes and unmaps the image. It is idempotent.
func (d *Mapped) Close() error { return d.m.Close() }

func (d *Mapped) precheck(addr uint32, buf []byte) error {
	if err := checkBuf(buf); err != nil {
		return err
	}
	if addr >= d.Blocks() {
		return ErrOutOfRange
	}
	return nil
}
