package botfs

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DirEntry describes one file of the root directory.
type DirEntry struct {
	Name  string
	Start uint32 // header block
	End   uint32 // last block
}

// DataStart returns the first data block.
func (e DirEntry) DataStart() uint32 { return e.Start + FileHeaderBlocks }

// Blocks returns the number of data blocks.
func (e DirEntry) Blocks() uint32 { return e.End - e.Start }

func (e dirEntry) info() DirEntry {
	return DirEntry{Name: e.name, Start: uint32(e.desc.start), End: uint32(e.desc.end)}
}

// dirSlot locates one directory entry on the volume.
type dirSlot struct {
	block uint32
	index int
	entry dirEntry
}

// normalizeName returns name with exactly one leading '/'.
func normalizeName(name string) (string, error) {
	if name == "" || name == "/" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.IndexByte(name, 0) >= 0 {
		return "", fmt.Errorf("%w: %q contains NUL", ErrInvalidName, name)
	}
	if name[0] != '/' {
		name = "/" + name
	}
	if len(name) > MaxFilename {
		return "", fmt.Errorf("%w: %d > %d", ErrNameTooLong, len(name), MaxFilename)
	}
	return name, nil
}

func (v *Volume) dirSlotAt(block uint32, index int) (dirSlot, error) {
	buf := make([]byte, BlockSize)
	if err := v.readBlock(block, buf); err != nil {
		return dirSlot{}, err
	}
	return dirSlot{block: block, index: index, entry: decodeDirEntry(buf[index*DirEntrySize:])}, nil
}

// scanDir calls fn for every directory slot, free ones included, until fn
// returns false.
func (v *Volume) scanDir(fn func(dirSlot) bool) error {
	buf := make([]byte, BlockSize)
	for b := uint32(v.hdr.rootDir.start) + 1; b <= uint32(v.hdr.rootDir.end); b++ {
		if err := v.readBlock(b, buf); err != nil {
			return err
		}
		for i := 0; i < EntriesPerDirBlock; i++ {
			e := decodeDirEntry(buf[i*DirEntrySize:])
			if !fn(dirSlot{block: b, index: i, entry: e}) {
				return nil
			}
		}
	}
	return nil
}

// find looks up a normalized name. The empty name selects the first free slot.
func (v *Volume) find(name string) (dirSlot, bool, error) {
	var (
		found dirSlot
		ok    bool
	)
	err := v.scanDir(func(s dirSlot) bool {
		if s.entry.name == name {
			found, ok = s, true
			return false
		}
		return true
	})
	return found, ok, err
}

func (v *Volume) putDirEntry(s dirSlot, e dirEntry) error {
	buf := make([]byte, BlockSize)
	if err := v.readBlock(s.block, buf); err != nil {
		return err
	}
	e.encode(buf[s.index*DirEntrySize:])
	return v.writeBlock(s.block, buf)
}

// Create allocates a file of size data blocks plus its header block. With
// alignment > 1 the first data block lies on a device address divisible by
// alignment.
//
// Steps are not rolled back: if no directory slot is left after the
// allocation, the allocated range stays orphaned until ReclaimOrphans.
func (v *Volume) Create(name string, size, alignment uint32) (DirEntry, error) {
	t0 := time.Now()
	de, err := v.create(name, size, alignment)
	v.metrics.RecordCreate(time.Since(t0), err)
	v.logger.LogCreate(context.Background(), name, de.Start, de.End, err)
	return de, err
}

func (v *Volume) create(name string, size, alignment uint32) (DirEntry, error) {
	if err := v.checkReady(); err != nil {
		return DirEntry{}, err
	}
	name, err := normalizeName(name)
	if err != nil {
		return DirEntry{}, err
	}
	if size == 0 {
		return DirEntry{}, fmt.Errorf("%w: file of 0 blocks", ErrInvalidCount)
	}
	if size > MaxFileBlocks {
		return DirEntry{}, fmt.Errorf("%w: %d blocks exceeds %d", ErrTooLarge, size, MaxFileBlocks)
	}

	v.mu.lock()
	defer v.mu.unlock()

	if _, ok, err := v.find(name); err != nil {
		return DirEntry{}, err
	} else if ok {
		return DirEntry{}, fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}

	ext, err := v.allocate(size+FileHeaderBlocks, alignment)
	if err != nil {
		return DirEntry{}, err
	}

	slot, ok, err := v.find("")
	if err != nil {
		return DirEntry{}, err
	}
	if !ok {
		return DirEntry{}, fmt.Errorf("%w: %d entries in use, %s orphaned", ErrDirectoryFull, MaxFiles, ext)
	}

	entry := dirEntry{
		desc: descriptor{start: uint16(ext.Start), end: uint16(ext.End), used: EmptyUsedRange},
		name: name,
	}
	if err := v.putDirEntry(slot, entry); err != nil {
		return DirEntry{}, err
	}

	// A new file is conservatively marked as fully used.
	hdr := FileHeader{Used: UsedRange{
		First:          uint16(ext.Start + FileHeaderBlocks),
		Last:           uint16(ext.End),
		BytesLastBlock: BlockSize,
	}}
	buf := make([]byte, BlockSize)
	hdr.encode(buf)
	if err := v.writeBlock(ext.Start, buf); err != nil {
		return DirEntry{}, err
	}
	return entry.info(), nil
}

// Unlink removes a file and returns its blocks to the freelist.
func (v *Volume) Unlink(name string) error {
	if err := v.checkReady(); err != nil {
		return err
	}
	v.mu.lock()
	defer v.mu.unlock()

	ext, err := v.unlink(name)
	v.metrics.RecordUnlink(err)
	v.logger.LogUnlink(context.Background(), name, ext.Start, ext.End, err)
	return err
}

// unlink requires the structural lock.
func (v *Volume) unlink(name string) (Extent, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Extent{}, err
	}
	if name == VolumeDataName {
		return Extent{}, fmt.Errorf("%w: %s", ErrReserved, name)
	}

	slot, ok, err := v.find(name)
	if err != nil {
		return Extent{}, err
	}
	if !ok {
		return Extent{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	ext := Extent{Start: uint32(slot.entry.desc.start), End: uint32(slot.entry.desc.end)}
	if err := v.putDirEntry(slot, dirEntry{}); err != nil {
		return Extent{}, err
	}
	return ext, v.release(ext.Start, ext.End)
}

// Rename renames oldName to newName in place. An existing newName is
// unlinked first.
func (v *Volume) Rename(oldName, newName string) error {
	if err := v.checkReady(); err != nil {
		return err
	}
	v.mu.lock()
	defer v.mu.unlock()

	err := v.rename(oldName, newName)
	v.metrics.RecordRename(err)
	v.logger.LogRename(context.Background(), oldName, newName, err)
	return err
}

func (v *Volume) rename(oldName, newName string) error {
	oldName, err := normalizeName(oldName)
	if err != nil {
		return err
	}
	newName, err = normalizeName(newName)
	if err != nil {
		return err
	}
	if oldName == VolumeDataName || newName == VolumeDataName {
		return fmt.Errorf("%w: %s", ErrReserved, VolumeDataName)
	}

	slot, ok, err := v.find(oldName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, oldName)
	}
	if oldName == newName {
		return nil
	}

	if _, ok, err := v.find(newName); err != nil {
		return err
	} else if ok {
		if _, err := v.unlink(newName); err != nil {
			return err
		}
	}

	slot.entry.name = newName
	return v.putDirEntry(slot, slot.entry)
}

// ReadDir lists every file in directory order, /volumedata included.
func (v *Volume) ReadDir() ([]DirEntry, error) {
	if err := v.checkReady(); err != nil {
		return nil, err
	}
	v.mu.lock()
	defer v.mu.unlock()
	return v.readDir()
}

func (v *Volume) readDir() ([]DirEntry, error) {
	var out []DirEntry
	err := v.scanDir(func(s dirSlot) bool {
		if !s.entry.free() {
			out = append(out, s.entry.info())
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stat returns the directory entry of name.
func (v *Volume) Stat(name string) (DirEntry, error) {
	if err := v.checkReady(); err != nil {
		return DirEntry{}, err
	}
	name, err := normalizeName(name)
	if err != nil {
		return DirEntry{}, err
	}

	v.mu.lock()
	defer v.mu.unlock()

	slot, ok, err := v.find(name)
	if err != nil {
		return DirEntry{}, err
	}
	if !ok {
		return DirEntry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return slot.entry.info(), nil
}
