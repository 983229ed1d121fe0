package testutil

import (
	"encoding/binary"
	"strings"
)

const sectorSize = 512

// FATFile is a file in the root directory of a FAT16 test medium.
type FATFile struct {
	Name     string   // 8.3 name, e.g. "botfs.img"
	Clusters []uint16 // cluster chain in FAT order
}

// FAT16Layout describes a minimal FAT16 partition.
type FAT16Layout struct {
	PartitionStart uint32 // 0 writes the boot sector to block 0 without MBR
	SectPerCluster uint8
	Reserved       uint16
	FATCopies      uint8
	SectPerFAT     uint16
	RootEntries    uint16
}

// DefaultFAT16 is a small partition starting at block 32 whose data area
// begins at block 69.
var DefaultFAT16 = FAT16Layout{
	PartitionStart: 32,
	SectPerCluster: 1,
	Reserved:       1,
	FATCopies:      2,
	SectPerFAT:     2,
	RootEntries:    512,
}

func (l FAT16Layout) fatStart() uint32 { return l.PartitionStart + uint32(l.Reserved) }

func (l FAT16Layout) rootStart() uint32 {
	return l.fatStart() + uint32(l.FATCopies)*uint32(l.SectPerFAT)
}

// DataBlock returns the absolute block of cluster c.
func (l FAT16Layout) DataBlock(c uint16) uint32 {
	root := (uint32(l.RootEntries)*32 + sectorSize - 1) / sectorSize
	return l.rootStart() + root + (uint32(c)-2)*uint32(l.SectPerCluster)
}

// Contiguous returns the chain of n clusters starting at first.
func Contiguous(first uint16, n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = first + uint16(i)
	}
	return out
}

// WriteFAT16 writes the partition table, boot sector, FAT copies and root
// directory described by l into img, a raw medium of 512 byte blocks.
func WriteFAT16(img []byte, l FAT16Layout, files ...FATFile) {
	le := binary.LittleEndian

	if l.PartitionStart > 0 {
		img[0x1c2] = 0x06
		le.PutUint32(img[0x1c6:], l.PartitionStart)
		le.PutUint16(img[510:], 0xaa55)
	}

	bs := img[l.PartitionStart*sectorSize:][:sectorSize]
	copy(bs, []byte{0xeb, 0x3c, 0x90})
	copy(bs[3:], "BOTFSTST")
	le.PutUint16(bs[11:], sectorSize)
	bs[13] = l.SectPerCluster
	le.PutUint16(bs[14:], l.Reserved)
	bs[16] = l.FATCopies
	le.PutUint16(bs[17:], l.RootEntries)
	bs[21] = 0xf8
	le.PutUint16(bs[22:], l.SectPerFAT)
	copy(bs[54:], "FAT16   ")
	le.PutUint16(bs[510:], 0xaa55)

	for k := uint32(0); k < uint32(l.FATCopies); k++ {
		fat := img[(l.fatStart()+k*uint32(l.SectPerFAT))*sectorSize:]
		le.PutUint16(fat[0:], 0xfff8)
		le.PutUint16(fat[2:], 0xffff)
		for _, f := range files {
			for i, c := range f.Clusters {
				next := uint16(0xffff)
				if i+1 < len(f.Clusters) {
					next = f.Clusters[i+1]
				}
				le.PutUint16(fat[int(c)*2:], next)
			}
		}
	}

	root := img[l.rootStart()*sectorSize:]
	copy(root[0:11], "BOTCARD    ")
	root[11] = 0x08
	for i, f := range files {
		e := root[(i+1)*32:][:32]
		copy(e[:11], shortName(f.Name))
		e[11] = 0x20
		if len(f.Clusters) > 0 {
			le.PutUint16(e[26:], f.Clusters[0])
		}
		le.PutUint32(e[28:], uint32(len(f.Clusters))*uint32(l.SectPerCluster)*sectorSize)
	}
}

func shortName(name string) string {
	base, ext, _ := strings.Cut(strings.ToUpper(name), ".")
	return padRight(base, 8) + padRight(ext, 3)
}

func padRight(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}
