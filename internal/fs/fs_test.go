package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, lfs.MkdirAll(dir, 0755))

	fpath := filepath.Join(dir, "botfs.img")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)

	// Size the image, then write a block in the middle
	require.NoError(t, f.Truncate(4096))
	_, err = f.WriteAt([]byte("hello"), 1024)
	assert.NoError(t, err)
	assert.NoError(t, f.Sync())

	buf := make([]byte, 5)
	_, err = f.ReadAt(buf, 1024)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	info, err := f.Stat()
	assert.NoError(t, err)
	assert.Equal(t, int64(4096), info.Size())
	assert.Equal(t, fpath, f.Name())

	assert.NoError(t, f.Close())

	entries, err := lfs.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	newPath := filepath.Join(dir, "renamed.img")
	assert.NoError(t, lfs.Rename(fpath, newPath))

	assert.NoError(t, lfs.Remove(newPath))
	_, err = lfs.Stat(newPath)
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFS(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(LocalFS{})

	ffs.SetLimit(5) // Fail after 5 bytes

	fpath := filepath.Join(tmp, "faulty.img")
	f, err := ffs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)

	n, err := f.WriteAt([]byte("hello"), 0)
	assert.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = f.WriteAt([]byte("!"), 5)
	assert.Error(t, err)
	assert.Equal(t, 0, n)

	assert.Equal(t, int64(5), ffs.GetWritten())

	f.Close()

	assert.NoError(t, ffs.Rename(fpath, fpath+".renamed"))
	_, err = ffs.Stat(fpath + ".renamed")
	assert.NoError(t, err)
}

func TestFaultyFS_Rules(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("broken", Fault{FailAfterBytes: -1, FailReads: true, FailOnClose: true})

	f, err := ffs.OpenFile(filepath.Join(tmp, "broken.img"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)

	_, err = f.WriteAt([]byte("data"), 0)
	require.NoError(t, err)

	_, err = f.ReadAt(make([]byte, 4), 0)
	assert.Error(t, err)
	assert.Error(t, f.Close())

	ok, err := ffs.OpenFile(filepath.Join(tmp, "fine.img"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	_, err = ok.WriteAt([]byte("data"), 0)
	require.NoError(t, err)
	_, err = ok.ReadAt(make([]byte, 4), 0)
	assert.NoError(t, err)
	assert.NoError(t, ok.Close())
}

func TestFaultyFS_BadRange(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule(".img", Fault{FailAfterBytes: -1})
	ffs.AddRule("card", Fault{FailAfterBytes: -1, Bad: []BadRange{{Off: 1024, Len: 512}}})

	f, err := ffs.OpenFile(filepath.Join(tmp, "card.img"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteAt(make([]byte, 512), 512)
	require.NoError(t, err)
	_, err = f.WriteAt(make([]byte, 512), 1024)
	require.ErrorIs(t, err, ErrInjected)
	_, err = f.ReadAt(make([]byte, 2), 1535)
	require.ErrorIs(t, err, ErrInjected)
	_, err = f.WriteAt(make([]byte, 512), 1536)
	require.NoError(t, err)
}
