package botfs

import (
	"context"
	"fmt"
	"io"
	"time"
)

// CopyOptions shape the destination of Copy. All values are in blocks.
type CopyOptions struct {
	// SrcOffset skips leading source data blocks.
	SrcOffset uint32
	// DestOffset leaves leading destination data blocks unwritten.
	DestOffset uint32
	// DestTail appends unwritten blocks to the destination.
	DestTail uint32
	// DestAlign aligns the first destination data block, see Create.
	DestAlign uint32
}

// Copy creates dest and copies the used data blocks and the header metadata
// of src into it. The position of src is left after the last copied block.
func (v *Volume) Copy(src *File, dest string, opts CopyOptions) error {
	t0 := time.Now()
	n, err := v.copyFile(src, dest, opts)
	v.metrics.RecordCopy(n, time.Since(t0), err)
	if err != nil {
		v.logger.ErrorContext(context.Background(), "copy failed", "from", src.Name(), "to", dest, "error", err)
	} else {
		v.logger.DebugContext(context.Background(), "copy completed", "from", src.Name(), "to", dest, "blocks", n)
	}
	return err
}

func (v *Volume) copyFile(src *File, dest string, opts CopyOptions) (int, error) {
	if err := v.checkReady(); err != nil {
		return 0, err
	}
	size := src.Size()
	if opts.SrcOffset > size {
		return 0, fmt.Errorf("%w: source offset %d beyond %d blocks", ErrInvalidPosition, opts.SrcOffset, size)
	}

	destSize := uint64(size-opts.SrcOffset) + uint64(opts.DestOffset) + uint64(opts.DestTail)
	if destSize > MaxFileBlocks {
		return 0, fmt.Errorf("%w: destination of %d blocks", ErrTooLarge, destSize)
	}

	if _, err := v.Create(dest, uint32(destSize), opts.DestAlign); err != nil {
		return 0, err
	}
	d, err := v.OpenFile(dest, ModeTruncate)
	if err != nil {
		return 0, err
	}
	closed := false
	defer func() {
		if !closed {
			_ = d.Close()
		}
	}()

	// Blocks outside the used-range of src are not copied.
	used := src.Used()
	var skip, skipEnd uint32
	if used.Empty() {
		skip = size
	} else {
		if uint32(used.First) > src.start {
			skip = uint32(used.First) - (src.start + FileHeaderBlocks)
		}
		if uint32(used.Last) < src.end {
			skipEnd = src.end - uint32(used.Last)
		}
	}
	skip = max(skip, opts.SrcOffset)

	var toCopy uint32
	if skip+skipEnd < size {
		toCopy = size - skip - skipEnd
	}

	if _, err := src.Seek(int64(skip), io.SeekStart); err != nil {
		return 0, err
	}
	if _, err := d.Seek(int64(opts.DestOffset+skip-opts.SrcOffset), io.SeekStart); err != nil {
		return 0, err
	}

	buf := make([]byte, BlockSize)
	for i := uint32(0); i < toCopy; i++ {
		if err := src.ReadBlock(buf); err != nil {
			return int(i), err
		}
		if err := d.WriteBlock(buf); err != nil {
			return int(i), err
		}
	}

	sh, err := src.ReadHeader()
	if err != nil {
		return int(toCopy), err
	}
	if toCopy > 0 && used.BytesLastBlock > 0 {
		d.used.BytesLastBlock = used.BytesLastBlock
	}
	if err := d.WriteHeader(&FileHeader{Attributes: sh.Attributes, Used: d.used, Data: sh.Data}); err != nil {
		return int(toCopy), err
	}
	closed = true
	return int(toCopy), d.Close()
}
