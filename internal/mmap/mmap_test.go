package mmap

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMmap_ReadWriteSync(t *testing.T) {
	if !Supported {
		t.Skip("writable mappings not supported")
	}

	path := filepath.Join(t.TempDir(), "image.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0644))

	m, err := Open(path)
	require.NoError(t, err)

	assert.Equal(t, 4096, m.Size())
	require.NoError(t, m.Advise(AccessRandom))

	n, err := m.WriteAt([]byte("Hello, Mmap!"), 512)
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	buf := make([]byte, 5)
	n, err = m.ReadAt(buf, 519)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "Mmap!", string(buf))

	// ReadAt out of bounds
	n, err = m.ReadAt(buf, 10000)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)

	// ReadAt partial
	buf2 := make([]byte, 10)
	n, err = m.ReadAt(buf2, 4090)
	assert.Equal(t, 6, n)
	assert.Equal(t, io.EOF, err)

	_, err = m.ReadAt(buf, -1)
	assert.Equal(t, ErrInvalidOffset, err)

	_, err = m.WriteAt([]byte("xx"), 4095)
	assert.Equal(t, ErrOutOfBounds, err)

	require.NoError(t, m.Sync())
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.ReadAt(buf, 0)
	assert.Equal(t, ErrClosed, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Hello, Mmap!", string(raw[512:524]))
}

func TestMmap_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.img")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	_, err := Open(path)
	assert.Error(t, err)
}
