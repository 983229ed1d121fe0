package device

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFAT16 is returned when the first partition is not FAT16.
	ErrNotFAT16 = errors.New("device: no FAT16 partition")
	// ErrImageNotFound is returned when the root directory has no such file.
	ErrImageNotFound = errors.New("device: image file not found")
	// ErrFragmented is returned when the image file is not stored in
	// consecutive clusters.
	ErrFragmented = errors.New("device: image file is fragmented")
)

// MBR and FAT16 boot sector offsets.
const (
	mbrPart0Offset = 0x1c6

	bsBytesPerSect   = 11
	bsSectPerCluster = 13
	bsReservedSect   = 14
	bsFATCopies      = 16
	bsRootEntries    = 17
	bsSectPerFAT     = 22
	bsFATName        = 54

	dirEntrySize     = 32
	deAttributes     = 11
	deFirstCluster   = 26
	attrVolumeLabel  = 0x08
	attrDirectory    = 0x10
	deletedMarker    = 0xe5
	fatEntriesPerBlk = BlockSize / 2
	endOfChain       = 0xfff8
)

type fat16 struct {
	fatStart       uint32
	rootStart      uint32
	rootBlocks     uint32
	dataStart      uint32
	sectPerCluster uint32
	sectPerFAT     uint32
}

// LocateImage looks up name in the root directory of the first FAT16
// partition of dev and returns the device block holding its first byte.
// The file must occupy consecutive clusters.
//
// A medium without partition table (the boot sector in block 0 and no boot
// code at the partition entry) is accepted as well.
func LocateImage(dev Device, name string) (uint32, error) {
	short, err := shortName(name)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, BlockSize)
	if err := dev.ReadBlock(0, buf); err != nil {
		return 0, err
	}
	first := binary.LittleEndian.Uint32(buf[mbrPart0Offset:])
	if err := dev.ReadBlock(first, buf); err != nil {
		return 0, err
	}
	part, err := decodeBootSector(first, buf)
	if err != nil {
		return 0, err
	}

	cluster, err := part.lookup(dev, short, buf)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", err, name)
	}
	if err := part.checkContiguous(dev, cluster, buf); err != nil {
		return 0, fmt.Errorf("%w: %s", err, name)
	}
	return part.dataStart + (uint32(cluster)-2)*part.sectPerCluster, nil
}

func decodeBootSector(first uint32, b []byte) (fat16, error) {
	le := binary.LittleEndian
	if !bytes.HasPrefix(b[bsFATName:bsFATName+8], []byte("FAT16")) {
		return fat16{}, fmt.Errorf("%w: file system type %q", ErrNotFAT16, bytes.TrimRight(b[bsFATName:bsFATName+8], " \x00"))
	}
	if n := le.Uint16(b[bsBytesPerSect:]); n != BlockSize {
		return fat16{}, fmt.Errorf("%w: %d bytes per sector", ErrNotFAT16, n)
	}
	part := fat16{
		sectPerCluster: uint32(b[bsSectPerCluster]),
		sectPerFAT:     uint32(le.Uint16(b[bsSectPerFAT:])),
	}
	if part.sectPerCluster == 0 || part.sectPerFAT == 0 || b[bsFATCopies] == 0 {
		return fat16{}, fmt.Errorf("%w: invalid boot sector", ErrNotFAT16)
	}
	part.fatStart = first + uint32(le.Uint16(b[bsReservedSect:]))
	part.rootStart = part.fatStart + uint32(b[bsFATCopies])*part.sectPerFAT
	part.rootBlocks = (uint32(le.Uint16(b[bsRootEntries:]))*dirEntrySize + BlockSize - 1) / BlockSize
	part.dataStart = part.rootStart + part.rootBlocks
	return part, nil
}

// lookup returns the first cluster of the file with the given 8.3 name.
func (part fat16) lookup(dev Device, short [11]byte, buf []byte) (uint16, error) {
	for blk := part.rootStart; blk < part.dataStart; blk++ {
		if err := dev.ReadBlock(blk, buf); err != nil {
			return 0, err
		}
		for off := 0; off < BlockSize; off += dirEntrySize {
			e := buf[off : off+dirEntrySize]
			switch {
			case e[0] == 0:
				return 0, ErrImageNotFound
			case e[0] == deletedMarker, e[deAttributes]&(attrVolumeLabel|attrDirectory) != 0:
				continue
			}
			if bytes.Equal(e[:11], short[:]) {
				c := binary.LittleEndian.Uint16(e[deFirstCluster:])
				if c < 2 {
					return 0, fmt.Errorf("%w: empty file", ErrImageNotFound)
				}
				return c, nil
			}
		}
	}
	return 0, ErrImageNotFound
}

// checkContiguous follows the cluster chain starting at c.
func (part fat16) checkContiguous(dev Device, c uint16, buf []byte) error {
	loaded := ^uint32(0)
	for steps := part.sectPerFAT * fatEntriesPerBlk; steps > 0; steps-- {
		blk := part.fatStart + uint32(c)/fatEntriesPerBlk
		if blk != loaded {
			if err := dev.ReadBlock(blk, buf); err != nil {
				return err
			}
			loaded = blk
		}
		next := binary.LittleEndian.Uint16(buf[(uint32(c)%fatEntriesPerBlk)*2:])
		if next >= endOfChain {
			return nil
		}
		if next != c+1 {
			return fmt.Errorf("%w: cluster %d is followed by %d", ErrFragmented, c, next)
		}
		c = next
	}
	return fmt.Errorf("%w: cluster chain does not terminate", ErrFragmented)
}

// shortName converts name into a space padded 8.3 directory name.
func shortName(name string) ([11]byte, error) {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}

	base, ext := strings.ToUpper(name), ""
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base, ext = base[:i], base[i+1:]
	}
	if base == "" || len(base) > 8 || len(ext) > 3 {
		return out, fmt.Errorf("%w: %q is not an 8.3 name", ErrImageNotFound, name)
	}
	copy(out[:8], base)
	copy(out[8:], ext)
	return out, nil
}
