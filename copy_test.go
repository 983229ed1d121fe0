package botfs

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeBlocks creates name with size blocks and writes fill bytes 1..n
// starting at data block at.
func writeBlocks(t *testing.T, v *Volume, name string, size uint32, at int64, n int) {
	t.Helper()
	_, err := v.Create(name, size, 0)
	require.NoError(t, err)
	f, err := v.OpenFile(name, ModeTruncate)
	require.NoError(t, err)
	_, err = f.Seek(at, io.SeekStart)
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		require.NoError(t, f.WriteBlock(block(byte(i))))
	}
	require.NoError(t, f.Close())
}

func readAll(t *testing.T, v *Volume, name string) [][]byte {
	t.Helper()
	f, err := v.OpenFile(name, ModeRead)
	require.NoError(t, err)
	defer f.Close()
	var out [][]byte
	for i := uint32(0); i < f.Size(); i++ {
		buf := make([]byte, BlockSize)
		require.NoError(t, f.ReadBlock(buf))
		out = append(out, buf)
	}
	return out
}

func TestCopy(t *testing.T) {
	v, _ := newTestVolume(t, 200)
	writeBlocks(t, v, "/src", 4, 0, 4)

	src, err := v.OpenFile("/src", ModeReadWrite)
	require.NoError(t, err)
	hdr, err := src.ReadHeader()
	require.NoError(t, err)
	hdr.Attributes = 3
	copy(hdr.Data[:], "gain=12")
	require.NoError(t, src.WriteHeader(hdr))

	require.NoError(t, v.Copy(src, "/dst", CopyOptions{}))
	require.NoError(t, src.Close())

	assert.Equal(t, readAll(t, v, "/src"), readAll(t, v, "/dst"))

	dst, err := v.OpenFile("/dst", ModeRead)
	require.NoError(t, err)
	defer dst.Close()
	dh, err := dst.ReadHeader()
	require.NoError(t, err)
	assert.Equal(t, byte(3), dh.Attributes)
	assert.Equal(t, hdr.Data, dh.Data)

	de, err := v.Stat("/dst")
	require.NoError(t, err)
	assert.Equal(t, UsedRange{First: uint16(de.DataStart()), Last: uint16(de.End), BytesLastBlock: BlockSize}, dh.Used)
}

func TestCopy_Offsets(t *testing.T) {
	v, _ := newTestVolume(t, 200)
	writeBlocks(t, v, "/src", 4, 0, 4)

	src, err := v.OpenFile("/src", ModeRead)
	require.NoError(t, err)
	defer src.Close()

	opts := CopyOptions{SrcOffset: 1, DestOffset: 2, DestTail: 3, DestAlign: 4}
	require.NoError(t, v.Copy(src, "/dst", opts))

	de, err := v.Stat("/dst")
	require.NoError(t, err)
	assert.Equal(t, uint32(8), de.Blocks())
	assert.Zero(t, de.DataStart()%4)

	blocks := readAll(t, v, "/dst")
	zero := make([]byte, BlockSize)
	assert.Equal(t, zero, blocks[0])
	assert.Equal(t, zero, blocks[1])
	assert.Equal(t, block(2), blocks[2])
	assert.Equal(t, block(3), blocks[3])
	assert.Equal(t, block(4), blocks[4])

	dst, err := v.OpenFile("/dst", ModeRead)
	require.NoError(t, err)
	defer dst.Close()
	assert.Equal(t, uint16(de.DataStart()+2), dst.Used().First)
	assert.Equal(t, uint16(de.DataStart()+4), dst.Used().Last)
}

func TestCopy_PartiallyUsed(t *testing.T) {
	mc := &BasicMetricsCollector{}
	v, _ := newTestVolume(t, 200, WithMetricsCollector(mc))
	writeBlocks(t, v, "/src", 6, 1, 2)

	src, err := v.OpenFile("/src", ModeReadWrite)
	require.NoError(t, err)
	require.NoError(t, src.SetLastBlockBytes(100))
	require.NoError(t, src.FlushUsed())

	require.NoError(t, v.Copy(src, "/dst", CopyOptions{}))
	require.NoError(t, src.Close())

	de, err := v.Stat("/dst")
	require.NoError(t, err)
	assert.Equal(t, uint32(6), de.Blocks())

	dst, err := v.OpenFile("/dst", ModeRead)
	require.NoError(t, err)
	defer dst.Close()
	assert.Equal(t, UsedRange{First: uint16(de.DataStart() + 1), Last: uint16(de.DataStart() + 2), BytesLastBlock: 100}, dst.Used())

	stats := mc.GetStats()
	assert.Equal(t, int64(1), stats.CopyCount)
	assert.Equal(t, int64(2), stats.CopyBlocks)
}

func TestCopy_EmptySource(t *testing.T) {
	v, _ := newTestVolume(t, 200)
	writeBlocks(t, v, "/src", 3, 0, 0)

	src, err := v.OpenFile("/src", ModeRead)
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, v.Copy(src, "/dst", CopyOptions{}))

	dst, err := v.OpenFile("/dst", ModeRead)
	require.NoError(t, err)
	defer dst.Close()
	assert.True(t, dst.Used().Empty())
}

func TestCopy_Errors(t *testing.T) {
	mc := &BasicMetricsCollector{}
	v, _ := newTestVolume(t, 200, WithMetricsCollector(mc))
	writeBlocks(t, v, "/src", 4, 0, 4)

	src, err := v.OpenFile("/src", ModeRead)
	require.NoError(t, err)
	defer src.Close()

	require.ErrorIs(t, v.Copy(src, "/dst", CopyOptions{SrcOffset: 5}), ErrInvalidPosition)
	require.ErrorIs(t, v.Copy(src, "/dst", CopyOptions{DestTail: MaxFileBlocks}), ErrTooLarge)
	require.ErrorIs(t, v.Copy(src, "/src", CopyOptions{}), ErrAlreadyExists)
	require.ErrorIs(t, v.Copy(src, "/dst", CopyOptions{DestTail: 200}), ErrOutOfSpace)

	_, err = v.Stat("/dst")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(4), mc.GetStats().CopyErrors)
}
