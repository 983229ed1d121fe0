package botfs

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Import writes size bytes from r into name. An existing file of a
// different size is replaced; the file is always opened in ModeTruncate.
func (v *Volume) Import(name string, r io.Reader, size int64) error {
	if size < 0 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidCount, size)
	}
	blocks := max((size+BlockSize-1)/BlockSize, 1)
	if blocks > MaxFileBlocks {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}

	de, err := v.Stat(name)
	switch {
	case errors.Is(err, ErrNotFound):
		_, err = v.Create(name, uint32(blocks), 0)
	case err != nil:
	case int64(de.Blocks()) != blocks:
		if err = v.Unlink(name); err == nil {
			_, err = v.Create(name, uint32(blocks), 0)
		}
	}
	if err != nil {
		return err
	}

	f, err := v.OpenFile(name, ModeTruncate)
	if err != nil {
		return err
	}

	buf := make([]byte, BlockSize)
	for remaining := size; remaining > 0; {
		n := min(remaining, BlockSize)
		clear(buf)
		if _, err := io.ReadFull(r, buf[:n]); err != nil {
			_ = f.Close()
			return fmt.Errorf("import %s: %w", name, err)
		}
		if err := f.WriteBlock(buf); err != nil {
			_ = f.Close()
			return err
		}
		remaining -= n
		if remaining == 0 {
			if err := f.SetLastBlockBytes(int(n)); err != nil {
				_ = f.Close()
				return err
			}
		}
	}

	v.logger.DebugContext(context.Background(), "import completed", "file", name, "bytes", size)
	return f.Close()
}

// Export writes the data of name to w, from the first data block up to the
// last used block. The last block is cut to its valid byte count.
func (v *Volume) Export(name string, w io.Writer) (int64, error) {
	f, err := v.OpenFile(name, ModeRead)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	used := f.Used()
	if used.Empty() {
		return 0, nil
	}

	var written int64
	buf := make([]byte, BlockSize)
	for b := f.dataStart(); b <= int64(used.Last); b++ {
		if err := f.ReadBlock(buf); err != nil {
			return written, err
		}
		chunk := buf
		if b == int64(used.Last) && used.BytesLastBlock > 0 && used.BytesLastBlock < BlockSize {
			chunk = buf[:used.BytesLastBlock]
		}
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
