package botfs

import (
	"bytes"
	"encoding/binary"

	"github.com/hupe1980/botfs/device"
)

const (
	// BlockSize is the unit of addressing and transfer.
	BlockSize = device.BlockSize

	// HeaderPos is the volume block holding the volume header.
	HeaderPos = 1

	DirBlocks          = 64
	DirEntrySize       = 128
	EntriesPerDirBlock = BlockSize / DirEntrySize
	MaxFiles           = DirBlocks * EntriesPerDirBlock

	// MaxFilename is the longest stored name, leading '/' included.
	MaxFilename = DirEntrySize - descriptorSize - 1

	FreelistBlocks          = 2
	FreelistEntriesPerBlock = BlockSize / freeEntrySize
	FreelistEntries         = FreelistBlocks * FreelistEntriesPerBlock

	FileHeaderBlocks = 1
	HeaderDataSize   = BlockSize - fileHeaderDataOffset

	Version    = 3
	MinVersion = 3

	// VolumeNameSize is the on-disk name field, NUL terminator included.
	VolumeNameSize = 32

	MaxVolumeBlocks = 1 << 16
	MaxVolumeSize   = MaxVolumeBlocks * BlockSize
	MaxFileBlocks   = 32768

	DefaultVolumeName = "BotFS-Volume"
	DefaultVolumeSize = 8 << 20
	DefaultImageName  = "botfs.img"

	// VolumeDataName is the reserved pseudo file covering blocks 0 and 1.
	VolumeDataName = "/volumedata"
)

// Volume-relative block map.
const (
	volumeDataStart = 0
	rootDirStart    = HeaderPos + 1
	rootDirEnd      = rootDirStart + DirBlocks
	freelistStart   = rootDirEnd + 1
	freelistEnd     = freelistStart + FreelistBlocks
	firstDataBlock  = freelistEnd + 1
)

const (
	descriptorSize       = 13
	freeEntrySize        = 4
	usedRangeSize        = 6
	fileHeaderDataOffset = 1 + usedRangeSize

	// volume header field offsets
	vhVersion   = 32
	vhSize      = 34
	vhRootDir   = 38
	vhFreelist  = vhRootDir + descriptorSize
	vhFirstData = vhFreelist + descriptorSize
	vhName      = vhFirstData + 2

	noBlock = 0xFFFF
)

var le = binary.LittleEndian

// UsedRange is the bounding interval of data blocks written since the
// last truncate, in volume blocks.
type UsedRange struct {
	First          uint16
	Last           uint16
	BytesLastBlock uint16
}

// EmptyUsedRange is the used-range of a truncated file.
var EmptyUsedRange = UsedRange{First: noBlock}

// Empty reports whether no block has been written.
func (u UsedRange) Empty() bool { return u.First > u.Last }

func (u UsedRange) encode(b []byte) {
	le.PutUint16(b[0:], u.First)
	le.PutUint16(b[2:], u.Last)
	le.PutUint16(b[4:], u.BytesLastBlock)
}

func decodeUsedRange(b []byte) UsedRange {
	return UsedRange{
		First:          le.Uint16(b[0:]),
		Last:           le.Uint16(b[2:]),
		BytesLastBlock: le.Uint16(b[4:]),
	}
}

// descriptor is the on-disk skeleton of a file.
type descriptor struct {
	start uint16
	end   uint16
	pos   uint16
	mode  byte
	used  UsedRange
}

func (d descriptor) encode(b []byte) {
	le.PutUint16(b[0:], d.start)
	le.PutUint16(b[2:], d.end)
	le.PutUint16(b[4:], d.pos)
	b[6] = d.mode
	d.used.encode(b[7:])
}

func decodeDescriptor(b []byte) descriptor {
	return descriptor{
		start: le.Uint16(b[0:]),
		end:   le.Uint16(b[2:]),
		pos:   le.Uint16(b[4:]),
		mode:  b[6],
		used:  decodeUsedRange(b[7:]),
	}
}

type volumeHeader struct {
	version   uint16
	size      uint32
	rootDir   descriptor
	freelist  descriptor
	firstData uint16
	name      string
}

func (h *volumeHeader) encode(b []byte) {
	clear(b[:BlockSize])
	le.PutUint16(b[vhVersion:], h.version)
	le.PutUint32(b[vhSize:], h.size)
	h.rootDir.encode(b[vhRootDir:])
	h.freelist.encode(b[vhFreelist:])
	le.PutUint16(b[vhFirstData:], h.firstData)
	putCString(b[vhName:vhName+VolumeNameSize], h.name)
}

func decodeVolumeHeader(b []byte) volumeHeader {
	return volumeHeader{
		version:   le.Uint16(b[vhVersion:]),
		size:      le.Uint32(b[vhSize:]),
		rootDir:   decodeDescriptor(b[vhRootDir:]),
		freelist:  decodeDescriptor(b[vhFreelist:]),
		firstData: le.Uint16(b[vhFirstData:]),
		name:      cString(b[vhName : vhName+VolumeNameSize]),
	}
}

type dirEntry struct {
	desc descriptor
	name string
}

func (e dirEntry) free() bool { return e.name == "" }

func (e dirEntry) encode(b []byte) {
	e.desc.encode(b)
	putCString(b[descriptorSize:DirEntrySize], e.name)
}

func decodeDirEntry(b []byte) dirEntry {
	return dirEntry{
		desc: decodeDescriptor(b),
		name: cString(b[descriptorSize:DirEntrySize]),
	}
}

type freeEntry struct {
	block uint16
	size  uint16
}

func (e freeEntry) encode(b []byte) {
	le.PutUint16(b[0:], e.block)
	le.PutUint16(b[2:], e.size)
}

func decodeFreeEntry(b []byte) freeEntry {
	return freeEntry{block: le.Uint16(b[0:]), size: le.Uint16(b[2:])}
}

// FileHeader is the first block of every file.
type FileHeader struct {
	Attributes byte
	Used       UsedRange
	Data       [HeaderDataSize]byte
}

func (h *FileHeader) encode(b []byte) {
	b[0] = h.Attributes
	h.Used.encode(b[1:])
	copy(b[fileHeaderDataOffset:BlockSize], h.Data[:])
}

func decodeFileHeader(b []byte) *FileHeader {
	h := &FileHeader{
		Attributes: b[0],
		Used:       decodeUsedRange(b[1:]),
	}
	copy(h.Data[:], b[fileHeaderDataOffset:BlockSize])
	return h
}

func putCString(dst []byte, s string) {
	clear(dst)
	copy(dst[:len(dst)-1], s)
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
