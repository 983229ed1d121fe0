package botfs

import (
	"context"
	"fmt"
	"sort"
)

// Extent is an inclusive range of volume blocks.
type Extent struct {
	Start uint32
	End   uint32
}

// Blocks returns the number of blocks in the extent.
func (e Extent) Blocks() uint32 { return e.End - e.Start + 1 }

func (e Extent) String() string { return fmt.Sprintf("[%d, %d]", e.Start, e.End) }

type predicateKind uint8

const (
	bySize    predicateKind = iota // size >= n
	byStart                        // block == n
	byEnd                          // block + size == n
	emptySlot                      // size == 0
)

// predicate selects freelist entries during a search.
type predicate struct {
	kind predicateKind
	n    uint32
}

func (p predicate) match(e freeEntry) bool {
	switch p.kind {
	case emptySlot:
		return e.size == 0
	case bySize:
		return e.size != 0 && uint32(e.size) >= p.n
	case byStart:
		return e.size != 0 && uint32(e.block) == p.n
	case byEnd:
		return e.size != 0 && uint32(e.block)+uint32(e.size) == p.n
	}
	return false
}

// freeSlot locates one freelist entry on the volume.
type freeSlot struct {
	block uint32
	index int
	entry freeEntry
}

// scanFreelist calls fn for every freelist slot, empty ones included, until
// fn returns false.
func (v *Volume) scanFreelist(fn func(freeSlot) bool) error {
	buf := make([]byte, BlockSize)
	for b := uint32(v.hdr.freelist.start) + 1; b <= uint32(v.hdr.freelist.end); b++ {
		if err := v.readBlock(b, buf); err != nil {
			return err
		}
		for i := 0; i < FreelistEntriesPerBlock; i++ {
			e := decodeFreeEntry(buf[i*freeEntrySize:])
			if !fn(freeSlot{block: b, index: i, entry: e}) {
				return nil
			}
		}
	}
	return nil
}

// search returns the first entry matching pred.
func (v *Volume) search(pred predicate) (freeSlot, bool, error) {
	var (
		found freeSlot
		ok    bool
	)
	err := v.scanFreelist(func(s freeSlot) bool {
		if pred.match(s.entry) {
			found, ok = s, true
			return false
		}
		return true
	})
	return found, ok, err
}

func (v *Volume) putFreeEntry(s freeSlot, e freeEntry) error {
	buf := make([]byte, BlockSize)
	if err := v.readBlock(s.block, buf); err != nil {
		return err
	}
	e.encode(buf[s.index*freeEntrySize:])
	return v.writeBlock(s.block, buf)
}

// alignOffset returns the number of blocks to skip from start so that the
// first data block (the block after the header) lies on an absolute device
// address divisible by alignment.
func (v *Volume) alignOffset(start, alignment uint32) uint32 {
	if alignment <= 1 {
		return 0
	}
	abs := start + 1 + v.offset
	return (alignment - abs%alignment) % alignment
}

// allocate carves size blocks out of the free space. The fitting entry with
// the lowest start block wins. Blocks skipped for alignment are returned to
// the freelist.
func (v *Volume) allocate(size, alignment uint32) (Extent, error) {
	ctx := context.Background()

	if size == 0 {
		return Extent{}, ErrInvalidCount
	}

	var (
		best  freeSlot
		skip  uint32
		found bool
	)
	err := v.scanFreelist(func(s freeSlot) bool {
		off := v.alignOffset(uint32(s.entry.block), alignment)
		if !(predicate{kind: bySize, n: size + off}).match(s.entry) {
			return true
		}
		if !found || s.entry.block < best.entry.block {
			best, skip, found = s, off, true
		}
		return true
	})
	if err != nil {
		return Extent{}, err
	}
	if !found {
		err := fmt.Errorf("%w: %d blocks (alignment %d)", ErrOutOfSpace, size, alignment)
		v.logger.LogAllocation(ctx, size, alignment, 0, err)
		return Extent{}, err
	}

	origin := uint32(best.entry.block)
	used := size + skip
	rest := freeEntry{
		block: uint16(origin + used),
		size:  best.entry.size - uint16(used),
	}
	if rest.size == 0 {
		rest = freeEntry{}
	}
	if err := v.putFreeEntry(best, rest); err != nil {
		return Extent{}, err
	}

	if skip > 0 {
		if err := v.release(origin, origin+skip-1); err != nil {
			return Extent{}, err
		}
	}

	ext := Extent{Start: origin + skip, End: origin + used - 1}
	v.logger.LogAllocation(ctx, size, alignment, ext.Start, nil)
	return ext, nil
}

// release returns [start, end] to the free space, merging it with the
// neighbouring free ranges.
func (v *Volume) release(start, end uint32) error {
	if end < start {
		return fmt.Errorf("%w: release [%d, %d]", ErrInvalidPosition, start, end)
	}

	next, ok, err := v.search(predicate{kind: byStart, n: end + 1})
	if err != nil {
		return err
	}
	if ok {
		end = uint32(next.entry.block) + uint32(next.entry.size) - 1
		if err := v.putFreeEntry(next, freeEntry{}); err != nil {
			return err
		}
	}

	prev, ok, err := v.search(predicate{kind: byEnd, n: start})
	if err != nil {
		return err
	}
	if ok {
		prev.entry.size += uint16(end - start + 1)
		return v.putFreeEntry(prev, prev.entry)
	}

	slot, ok, err := v.search(predicate{kind: emptySlot})
	if err != nil {
		return err
	}
	if !ok {
		err := fmt.Errorf("%w: cannot record [%d, %d]", ErrFreelistFull, start, end)
		v.logger.LogAllocation(context.Background(), end-start+1, 0, start, err)
		return err
	}
	return v.putFreeEntry(slot, freeEntry{block: uint16(start), size: uint16(end - start + 1)})
}

func (v *Volume) freeRanges() ([]Extent, error) {
	var out []Extent
	err := v.scanFreelist(func(s freeSlot) bool {
		if s.entry.size != 0 {
			start := uint32(s.entry.block)
			out = append(out, Extent{Start: start, End: start + uint32(s.entry.size) - 1})
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

// FreeRanges lists the free ranges ordered by start block.
func (v *Volume) FreeRanges() ([]Extent, error) {
	if err := v.checkReady(); err != nil {
		return nil, err
	}
	v.mu.lock()
	defer v.mu.unlock()
	return v.freeRanges()
}

// FreeBlocks returns the number of free blocks.
func (v *Volume) FreeBlocks() (int, error) {
	ranges, err := v.FreeRanges()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range ranges {
		n += int(r.Blocks())
	}
	return n, nil
}
