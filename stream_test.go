package botfs

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openStream imports content as name and opens a stream over it.
func openStream(t *testing.T, v *Volume, name, content string) *Stream {
	t.Helper()
	require.NoError(t, v.Import(name, strings.NewReader(content), int64(len(content))))
	f, err := v.OpenFile(name, ModeRead)
	require.NoError(t, err)
	s := NewStream(f)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStream_LinesAcrossBlocks(t *testing.T) {
	v, _ := newTestVolume(t, 134)

	line1 := strings.Repeat("a", 510) + "\n"
	line2 := "bc\r\n"
	line3 := strings.Repeat("z", 84) + "\n"
	s := openStream(t, v, "/log.txt", line1+line2+line3)

	p := make([]byte, BlockSize)

	n, err := s.ReadLine(p)
	require.NoError(t, err)
	assert.Equal(t, line1, string(p[:n]))
	assert.Equal(t, int64(511), s.Tell())

	n, err = s.ReadLine(p)
	require.NoError(t, err)
	assert.Equal(t, "bc\n", string(p[:n]), "CR LF collapses to the delimiter")

	n, err = s.ReadLine(p)
	require.NoError(t, err)
	assert.Equal(t, line3, string(p[:n]))

	_, err = s.ReadLine(p)
	require.ErrorIs(t, err, io.EOF)
}

// paddedStream writes each string into its own zero-padded block of name
// and opens a stream over them.
func paddedStream(t *testing.T, v *Volume, name string, blocks ...string) *Stream {
	t.Helper()
	_, err := v.Create(name, uint32(len(blocks)), 0)
	require.NoError(t, err)

	f, err := v.OpenFile(name, ModeTruncate)
	require.NoError(t, err)
	for _, b := range blocks {
		buf := make([]byte, BlockSize)
		copy(buf, b)
		require.NoError(t, f.WriteBlock(buf))
	}
	require.NoError(t, f.Close())

	f, err = v.OpenFile(name, ModeRead)
	require.NoError(t, err)
	s := NewStream(f)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func readLines(t *testing.T, s *Stream, size int) []string {
	t.Helper()
	p := make([]byte, size)
	var lines []string
	for {
		n, err := s.ReadLine(p)
		if err == io.EOF {
			return lines
		}
		require.NoError(t, err)
		lines = append(lines, string(p[:n]))
	}
}

func TestStream_ZeroPaddedBlocks(t *testing.T) {
	for _, size := range []int{BlockSize, 64, 4} {
		t.Run(fmt.Sprint(size), func(t *testing.T) {
			v, _ := newTestVolume(t, 134)
			s := paddedStream(t, v, "/log.txt", "ab\n", "cd\n", "", "ef\n")
			assert.Equal(t, []string{"ab\n", "cd\n", "ef\n"}, readLines(t, s, size))
		})
	}
}

func TestStream_LineAcrossPadding(t *testing.T) {
	v, _ := newTestVolume(t, 134)
	s := paddedStream(t, v, "/log.txt", "xy\nabc", "def\n")

	// Room beyond the padded block carries the line into the next block.
	assert.Equal(t, []string{"xy\n", "abcdef\n"}, readLines(t, s, BlockSize))

	// A buffer that ends inside the block stops at the padding; the next
	// read resumes in the following block.
	_, err := s.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, []string{"xy\n", "abc", "def\n"}, readLines(t, s, 16))
}

func TestStream_ZeroEndsBlockData(t *testing.T) {
	v, _ := newTestVolume(t, 134)
	s := openStream(t, v, "/z.txt", "abc\x00def\n")

	p := make([]byte, 64)
	n, err := s.ReadLine(p)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(p[:n]))

	_, err = s.ReadLine(p)
	require.ErrorIs(t, err, io.EOF)
}

func TestStream_BufferLimit(t *testing.T) {
	v, _ := newTestVolume(t, 134)
	s := openStream(t, v, "/short.txt", "abcdefgh\nrest")

	p := make([]byte, 4)
	var parts []string
	for {
		n, err := s.ReadLine(p)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		parts = append(parts, string(p[:n]))
	}
	assert.Equal(t, []string{"abcd", "efgh", "\n", "rest"}, parts)

	_, err := s.ReadLine(make([]byte, BlockSize+1))
	require.ErrorIs(t, err, ErrInvalidCount)
}

func TestStream_LastBlockBytes(t *testing.T) {
	v, _ := newTestVolume(t, 134)
	_, err := v.Create("/raw", 2, 0)
	require.NoError(t, err)

	f, err := v.OpenFile("/raw", ModeTruncate)
	require.NoError(t, err)
	require.NoError(t, f.WriteBlock(block('q')))
	require.NoError(t, f.SetLastBlockBytes(5))
	require.NoError(t, f.Close())

	f, err = v.OpenFile("/raw", ModeRead)
	require.NoError(t, err)
	s := NewStream(f)
	defer s.Close()

	p := make([]byte, 100)
	n, err := s.ReadUntil(p, '\n')
	require.NoError(t, err)
	assert.Equal(t, "qqqqq", string(p[:n]))

	_, err = s.ReadUntil(p, '\n')
	require.ErrorIs(t, err, io.EOF)
}

func TestStream_Seek(t *testing.T) {
	v, _ := newTestVolume(t, 134)
	content := strings.Repeat("x", 597) + "end"
	s := openStream(t, v, "/seek.txt", content)

	end, err := s.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(600), end)

	pos, err := s.Seek(-3, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(597), pos)
	assert.Equal(t, int64(597), s.Tell())

	p := make([]byte, 16)
	n, err := s.ReadUntil(p, ';')
	require.NoError(t, err)
	assert.Equal(t, "end", string(p[:n]))

	pos, err = s.Seek(-600, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)
	n, err = s.ReadUntil(p[:2], ';')
	require.NoError(t, err)
	assert.Equal(t, "xx", string(p[:n]))

	_, err = s.Seek(-1, io.SeekStart)
	require.ErrorIs(t, err, ErrInvalidPosition)
	_, err = s.Seek(0, 9)
	require.ErrorIs(t, err, ErrInvalidPosition)
}

func TestStream_EmptyFile(t *testing.T) {
	v, _ := newTestVolume(t, 134)
	_, err := v.Create("/empty", 1, 0)
	require.NoError(t, err)

	f, err := v.OpenFile("/empty", ModeTruncate)
	require.NoError(t, err)
	s := NewStream(f)
	defer s.Close()

	_, err = s.ReadLine(make([]byte, 10))
	require.ErrorIs(t, err, io.EOF)

	end, err := s.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.Zero(t, end)
}
