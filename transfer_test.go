package botfs

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/botfs/testutil"
)

func TestImportExport(t *testing.T) {
	rng := testutil.NewRNG(3)
	v, _ := newTestVolume(t, 300)

	for _, size := range []int{1, 100, BlockSize, BlockSize + 1, 5*BlockSize - 7} {
		data := make([]byte, size)
		rng.FillBytes(data)

		require.NoError(t, v.Import("/blob", bytes.NewReader(data), int64(size)))

		de, err := v.Stat("/blob")
		require.NoError(t, err)
		assert.Equal(t, uint32((size+BlockSize-1)/BlockSize), de.Blocks(), "size %d", size)

		var out bytes.Buffer
		n, err := v.Export("/blob", &out)
		require.NoError(t, err)
		assert.Equal(t, int64(size), n)
		assert.Equal(t, data, out.Bytes(), "size %d", size)
	}

	report, err := v.Check()
	require.NoError(t, err)
	assert.True(t, report.OK(), "replaced files leave no orphans: %+v", report)
}

func TestImport_SameSizeKeepsExtent(t *testing.T) {
	v, _ := newTestVolume(t, 134)

	require.NoError(t, v.Import("/cfg", strings.NewReader("a=1\n"), 4))
	before, err := v.Stat("/cfg")
	require.NoError(t, err)

	require.NoError(t, v.Import("/cfg", strings.NewReader("b=22\n"), 5))
	after, err := v.Stat("/cfg")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	var out strings.Builder
	_, err = v.Export("/cfg", &out)
	require.NoError(t, err)
	assert.Equal(t, "b=22\n", out.String())
}

func TestImport_Empty(t *testing.T) {
	v, _ := newTestVolume(t, 134)

	require.NoError(t, v.Import("/empty", strings.NewReader(""), 0))
	de, err := v.Stat("/empty")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), de.Blocks())

	var out bytes.Buffer
	n, err := v.Export("/empty", &out)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestImport_Errors(t *testing.T) {
	v, _ := newTestVolume(t, 134)

	require.ErrorIs(t, v.Import("/x", strings.NewReader(""), -1), ErrInvalidCount)
	require.ErrorIs(t, v.Import("/x", strings.NewReader(""), (MaxFileBlocks+1)*BlockSize), ErrTooLarge)
	require.ErrorIs(t, v.Import("/x", strings.NewReader("abc"), 10), io.ErrUnexpectedEOF)
	require.ErrorIs(t, v.Import(VolumeDataName, strings.NewReader("abc"), 3), ErrReserved)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("sink full") }

func TestExport_Errors(t *testing.T) {
	v, _ := newTestVolume(t, 134)

	_, err := v.Export("/missing", io.Discard)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, v.Import("/a", strings.NewReader("hello"), 5))
	_, err = v.Export("/a", failingWriter{})
	require.EqualError(t, err, "sink full")
}
