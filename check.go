package botfs

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"
)

// FileConflict names two directory entries sharing blocks. B is
// "system area" when a file overlaps the reserved blocks.
type FileConflict struct {
	A, B string
}

const systemArea = "system area"

// CheckReport is the result of a consistency check.
type CheckReport struct {
	Blocks     uint32
	FreeBlocks uint32
	// UsedBlocks counts the system area and every file.
	UsedBlocks uint32
	Files      int

	FileOverlaps     []FileConflict
	FreeOverlaps     []Extent // free ranges overlapping another free range
	FreeFileOverlaps []Extent // free ranges overlapping the system area or a file
	OutOfRange       []Extent
	Uncoalesced      []Extent // free ranges directly following another one
	Orphans          []Extent // blocks neither free nor owned by a file
}

// Consistent reports whether the allocation state is sound. Orphans and
// uncoalesced ranges waste space but do not endanger data.
func (r *CheckReport) Consistent() bool {
	return len(r.FileOverlaps) == 0 && len(r.FreeOverlaps) == 0 &&
		len(r.FreeFileOverlaps) == 0 && len(r.OutOfRange) == 0
}

// OK reports whether the check found nothing at all.
func (r *CheckReport) OK() bool {
	return r.Consistent() && len(r.Uncoalesced) == 0 && len(r.Orphans) == 0
}

// Check cross-checks the directory against the freelist. It does not
// modify the volume.
func (v *Volume) Check() (*CheckReport, error) {
	if err := v.checkReady(); err != nil {
		return nil, err
	}
	v.mu.lock()
	defer v.mu.unlock()
	return v.check()
}

func extentBitmap(e Extent) *roaring.Bitmap {
	b := roaring.New()
	b.AddRange(uint64(e.Start), uint64(e.End)+1)
	return b
}

func (v *Volume) check() (*CheckReport, error) {
	var (
		files []DirEntry
		free  []Extent
		g     errgroup.Group
	)
	g.Go(func() error {
		var err error
		files, err = v.readDir()
		return err
	})
	g.Go(func() error {
		var err error
		free, err = v.freeRanges()
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	blocks := v.Blocks()
	report := &CheckReport{Blocks: blocks}

	system := roaring.New()
	system.AddRange(0, uint64(v.hdr.firstData))

	used := system.Clone()
	type owned struct {
		name string
		bm   *roaring.Bitmap
	}
	var owners []owned

	for _, f := range files {
		if f.Name == VolumeDataName {
			continue
		}
		report.Files++
		ext := Extent{Start: f.Start, End: f.End}
		if f.End < f.Start || f.End >= blocks {
			report.OutOfRange = append(report.OutOfRange, ext)
			continue
		}
		bm := extentBitmap(ext)
		if bm.Intersects(system) {
			report.FileOverlaps = append(report.FileOverlaps, FileConflict{A: f.Name, B: systemArea})
		}
		if bm.Intersects(used) {
			for _, o := range owners {
				if bm.Intersects(o.bm) {
					report.FileOverlaps = append(report.FileOverlaps, FileConflict{A: o.name, B: f.Name})
				}
			}
		}
		used.Or(bm)
		owners = append(owners, owned{name: f.Name, bm: bm})
	}

	freeSet := roaring.New()
	for i, r := range free {
		if r.End >= blocks || r.Start < uint32(v.hdr.firstData) {
			report.OutOfRange = append(report.OutOfRange, r)
		}
		if r.End >= blocks {
			continue
		}
		bm := extentBitmap(r)
		if bm.Intersects(freeSet) {
			report.FreeOverlaps = append(report.FreeOverlaps, r)
		}
		if bm.Intersects(used) {
			report.FreeFileOverlaps = append(report.FreeFileOverlaps, r)
		}
		if i > 0 && free[i-1].End+1 == r.Start {
			report.Uncoalesced = append(report.Uncoalesced, r)
		}
		freeSet.Or(bm)
	}

	report.FreeBlocks = uint32(freeSet.GetCardinality())
	report.UsedBlocks = uint32(used.GetCardinality())

	orphans := roaring.New()
	orphans.AddRange(0, uint64(blocks))
	orphans.AndNot(used)
	orphans.AndNot(freeSet)
	report.Orphans = runs(orphans)

	return report, nil
}

// runs splits a bitmap into maximal extents.
func runs(bm *roaring.Bitmap) []Extent {
	var out []Extent
	it := bm.Iterator()
	for it.HasNext() {
		b := it.Next()
		if n := len(out); n > 0 && out[n-1].End+1 == b {
			out[n-1].End = b
			continue
		}
		out = append(out, Extent{Start: b, End: b})
	}
	return out
}

// ReclaimOrphans returns orphaned ranges to the freelist, e.g. space left
// behind by a create that failed after the allocation. It refuses to run
// on an inconsistent volume.
func (v *Volume) ReclaimOrphans() ([]Extent, error) {
	if err := v.checkReady(); err != nil {
		return nil, err
	}
	v.mu.lock()
	defer v.mu.unlock()

	report, err := v.check()
	if err != nil {
		return nil, err
	}
	if !report.Consistent() {
		return nil, fmt.Errorf("%w: refusing to reclaim on inconsistent volume", ErrCorrupt)
	}

	for i, o := range report.Orphans {
		if err := v.release(o.Start, o.End); err != nil {
			return report.Orphans[:i], err
		}
	}
	if len(report.Orphans) > 0 {
		v.logger.InfoContext(context.Background(), "orphans reclaimed", "ranges", len(report.Orphans))
	}
	return report.Orphans, nil
}
