package botfs

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/botfs/device"
	"github.com/hupe1980/botfs/internal/fs"
	"github.com/hupe1980/botfs/testutil"
)

// newTestVolume formats an in-memory volume of the given number of blocks.
func newTestVolume(t *testing.T, blocks uint32, opts ...Option) (*Volume, *device.Memory) {
	t.Helper()
	dev := device.NewMemory(blocks)
	v, err := Format(dev, "test", int64(blocks)*BlockSize, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v, dev
}

func TestFormat(t *testing.T) {
	v, _ := newTestVolume(t, 134)

	assert.Equal(t, "test", v.Name())
	assert.Equal(t, uint32(134), v.Blocks())
	assert.Equal(t, int64(134*BlockSize), v.Size())
	assert.Equal(t, uint32(70), v.FirstData())
	assert.Equal(t, uint16(Version), v.Version())

	free, err := v.FreeRanges()
	require.NoError(t, err)
	assert.Equal(t, []Extent{{Start: 70, End: 133}}, free)

	n, err := v.FreeBlocks()
	require.NoError(t, err)
	assert.Equal(t, 64, n)

	entries, err := v.ReadDir()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, DirEntry{Name: VolumeDataName, Start: 0, End: 1}, entries[0])

	report, err := v.Check()
	require.NoError(t, err)
	assert.True(t, report.OK(), "%+v", report)
}

func TestFormat_DefaultName(t *testing.T) {
	dev := device.NewMemory(100)
	v, err := Format(dev, "", 100*BlockSize)
	require.NoError(t, err)
	defer v.Close()
	assert.Equal(t, DefaultVolumeName, v.Name())
}

func TestFormat_Geometry(t *testing.T) {
	tests := []struct {
		name   string
		volume string
		size   int64
		want   error
	}{
		{"TooLarge", "v", MaxVolumeSize + BlockSize, ErrTooLarge},
		{"TooSmall", "v", firstDataBlock * BlockSize, ErrTooSmall},
		{"NameTooLong", "0123456789012345678901234567890123", 100 * BlockSize, ErrNameTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Format(device.NewMemory(1), tt.volume, tt.size)
			require.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("SmallestVolume", func(t *testing.T) {
		v, err := Format(device.NewMemory(firstDataBlock+1), "v", (firstDataBlock+1)*BlockSize)
		require.NoError(t, err)
		defer v.Close()
		n, err := v.FreeBlocks()
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("LongestName", func(t *testing.T) {
		name := "0123456789012345678901234567890"
		v, err := Format(device.NewMemory(100), name, 100*BlockSize)
		require.NoError(t, err)
		defer v.Close()
		assert.Equal(t, name, v.Name())
	})
}

func TestMount(t *testing.T) {
	dev := device.NewMemory(134)
	v, err := Format(dev, "robot", 134*BlockSize)
	require.NoError(t, err)
	_, err = v.Create("/a", 3, 0)
	require.NoError(t, err)

	// Remount the same medium through a fresh device.
	copyDev := device.NewMemory(134)
	copy(copyDev.Bytes(), dev.Bytes())
	require.NoError(t, v.Close())

	v2, err := Mount(copyDev)
	require.NoError(t, err)
	defer v2.Close()

	assert.Equal(t, "robot", v2.Name())
	de, err := v2.Stat("a")
	require.NoError(t, err)
	assert.Equal(t, uint32(3), de.Blocks())
}

func TestMount_Errors(t *testing.T) {
	t.Run("Blank", func(t *testing.T) {
		_, err := Mount(device.NewMemory(134))
		require.ErrorIs(t, err, ErrIncompatibleVersion)
		var verr *VersionError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, uint16(0), verr.Found)
	})

	t.Run("MissingVolumeData", func(t *testing.T) {
		dev := device.NewMemory(134)
		v, err := Format(dev, "robot", 134*BlockSize)
		require.NoError(t, err)
		require.NoError(t, v.Close())

		// Wipe the first directory entry.
		off := (rootDirStart + 1) * BlockSize
		clear(dev.Bytes()[off : off+DirEntrySize])
		fresh := device.NewMemory(134)
		copy(fresh.Bytes(), dev.Bytes())

		_, err = Mount(fresh)
		require.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("BadGeometry", func(t *testing.T) {
		dev := device.NewMemory(134)
		v, err := Format(dev, "robot", 134*BlockSize)
		require.NoError(t, err)
		require.NoError(t, v.Close())

		le.PutUint16(dev.Bytes()[HeaderPos*BlockSize+vhFirstData:], 5)
		fresh := device.NewMemory(134)
		copy(fresh.Bytes(), dev.Bytes())

		_, err = Mount(fresh)
		require.ErrorIs(t, err, ErrCorrupt)
	})
}

// fatCard returns a memory card whose first FAT16 partition holds
// botfs.img in blocks clusters starting at block 69.
func fatCard(blocks uint32) *device.Memory {
	card := device.NewMemory(69 + blocks + 8)
	testutil.WriteFAT16(card.Bytes(), testutil.DefaultFAT16,
		testutil.FATFile{Name: "notes.txt", Clusters: []uint16{2}},
		testutil.FATFile{Name: "botfs.img", Clusters: testutil.Contiguous(3, int(blocks))},
	)
	return card
}

func TestMount_ImageLookup(t *testing.T) {
	card := fatCard(134)
	start := testutil.DefaultFAT16.DataBlock(3)
	bootSector := append([]byte(nil), card.Bytes()[32*BlockSize:33*BlockSize]...)

	v, err := Format(card, "card", 134*BlockSize, WithImageLookup("botfs.img"))
	require.NoError(t, err)
	_, err = v.Create("/a", 2, 0)
	require.NoError(t, err)
	require.NoError(t, v.Close())

	hdr := decodeVolumeHeader(card.Bytes()[(start+HeaderPos)*BlockSize:])
	assert.Equal(t, "card", hdr.name)
	assert.Equal(t, bootSector, card.Bytes()[32*BlockSize:33*BlockSize], "FAT16 partition is untouched")

	fresh := device.NewMemory(card.Blocks())
	copy(fresh.Bytes(), card.Bytes())
	v2, err := Mount(fresh, WithImageLookup("BOTFS.IMG"), WithDeviceOffset(5))
	require.NoError(t, err)
	defer v2.Close()

	de, err := v2.Stat("/a")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), de.Blocks())

	_, err = Mount(fatCard(134), WithImageLookup("other.img"))
	require.ErrorIs(t, err, ErrOpen)
	require.ErrorIs(t, err, device.ErrImageNotFound)
}

func TestVolume_ConcurrentStructuralOps(t *testing.T) {
	v, _ := newTestVolume(t, 2000)

	const (
		workers = 8
		rounds  = 20
	)
	size := func(w, r int) uint32 { return uint32(1 + (w+r)%4) }
	fill := func(w, r int, b uint32) byte { return byte(w*31 + r*7 + int(b)) }

	var g errgroup.Group
	for w := range workers {
		g.Go(func() error {
			buf := make([]byte, BlockSize)
			for r := range rounds {
				name := fmt.Sprintf("/w%d-%02d", w, r)
				if _, err := v.Create(name, size(w, r), 0); err != nil {
					return err
				}

				f, err := v.OpenFile(name, ModeTruncate)
				if err != nil {
					return err
				}
				for b := range size(w, r) {
					if err := f.WriteBlock(block(fill(w, r, b))); err != nil {
						return err
					}
				}
				if err := f.Close(); err != nil {
					return err
				}

				f, err = v.OpenFile(name, ModeRead)
				if err != nil {
					return err
				}
				for b := range size(w, r) {
					if err := f.ReadBlock(buf); err != nil {
						return err
					}
					if !bytes.Equal(buf, block(fill(w, r, b))) {
						return fmt.Errorf("%s: block %d corrupted", name, b)
					}
				}
				if err := f.Close(); err != nil {
					return err
				}

				switch {
				case r%3 == 0:
					err = v.Unlink(name)
				case r%2 == 1:
					err = v.Rename(name, name+".old")
				}
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		for range 20 {
			report, err := v.Check()
			if err != nil {
				return err
			}
			if !report.OK() {
				return fmt.Errorf("inconsistent volume: %+v", report)
			}
			if _, err := v.ReadDir(); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	report, err := v.Check()
	require.NoError(t, err)
	assert.True(t, report.OK(), "%+v", report)

	buf := make([]byte, BlockSize)
	for w := range workers {
		for r := range rounds {
			name := fmt.Sprintf("/w%d-%02d", w, r)
			switch {
			case r%3 == 0:
				_, err := v.Stat(name)
				require.ErrorIs(t, err, ErrNotFound)
				continue
			case r%2 == 1:
				_, err := v.Stat(name)
				require.ErrorIs(t, err, ErrNotFound)
				name += ".old"
			}

			f, err := v.OpenFile(name, ModeRead)
			require.NoError(t, err, name)
			for b := range size(w, r) {
				require.NoError(t, f.ReadBlock(buf))
				assert.Equal(t, block(fill(w, r, b)), buf, "%s block %d", name, b)
			}
			require.NoError(t, f.Close())
		}
	}
}

func TestVolume_Close(t *testing.T) {
	dev := device.NewMemory(100)
	v, err := Format(dev, "v", 100*BlockSize)
	require.NoError(t, err)

	require.NoError(t, v.Close())
	require.NoError(t, v.Close(), "close is idempotent")

	_, err = v.Create("/a", 1, 0)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = v.OpenFile("/a", ModeRead)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = v.ReadDir()
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestCreateVolumeAndInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultImageName)

	v, err := CreateVolume(path, "disk", 200*BlockSize)
	require.NoError(t, err)
	require.NoError(t, v.Import("/config.txt", strings.NewReader("speed=3\n"), 8))
	require.NoError(t, v.Close())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(200*BlockSize), fi.Size())

	for _, opts := range [][]Option{
		nil,
		{WithMappedImage()},
		{WithBlockCache(16)},
	} {
		v, err := Init(path, false, opts...)
		require.NoError(t, err)
		assert.Equal(t, "disk", v.Name())

		var out strings.Builder
		n, err := v.Export("/config.txt", &out)
		require.NoError(t, err)
		assert.Equal(t, int64(8), n)
		assert.Equal(t, "speed=3\n", out.String())
		require.NoError(t, v.Close())
	}
}

func TestInit_Missing(t *testing.T) {
	dir := t.TempDir()

	_, err := Init(filepath.Join(dir, "missing.img"), false)
	require.ErrorIs(t, err, ErrOpen)

	path := filepath.Join(dir, DefaultImageName)
	v, err := Init(path, true)
	require.NoError(t, err)
	defer v.Close()

	assert.Equal(t, DefaultVolumeName, v.Name())
	assert.Equal(t, int64(DefaultVolumeSize), v.Size())
}

func TestCreateVolume_DeviceOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card.img")

	v, err := CreateVolume(path, "card", 100*BlockSize, WithDeviceOffset(8))
	require.NoError(t, err)
	de, err := v.Create("/aligned", 4, 8)
	require.NoError(t, err)

	f, err := v.OpenFile("/aligned", ModeRead)
	require.NoError(t, err)
	assert.Zero(t, f.StartSector()%8)
	assert.Equal(t, de.DataStart()+8, f.StartSector())
	require.NoError(t, f.Close())
	require.NoError(t, v.Close())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(108*BlockSize), fi.Size())

	// Without the offset the header is not where the volume expects it.
	_, err = Init(path, false)
	require.Error(t, err)

	v, err = Init(path, false, WithDeviceOffset(8))
	require.NoError(t, err)
	require.NoError(t, v.Close())
}

func TestCreateVolume_FaultyImage(t *testing.T) {
	faulty := fs.NewFaultyFS(fs.Default)
	faulty.SetLimit(10 * BlockSize)

	path := filepath.Join(t.TempDir(), "faulty.img")
	_, err := CreateVolume(path, "v", 100*BlockSize, WithFileSystem(faulty))
	require.Error(t, err)
}

func TestVolume_Metrics(t *testing.T) {
	mc := &BasicMetricsCollector{}
	v, _ := newTestVolume(t, 134, WithMetricsCollector(mc))

	_, err := v.Create("/a", 2, 0)
	require.NoError(t, err)
	_, err = v.Create("/a", 2, 0)
	require.ErrorIs(t, err, ErrAlreadyExists)
	require.NoError(t, v.Rename("/a", "/b"))
	require.NoError(t, v.Unlink("/b"))

	stats := mc.GetStats()
	assert.Equal(t, int64(2), stats.CreateCount)
	assert.Equal(t, int64(1), stats.CreateErrors)
	assert.Equal(t, int64(1), stats.RenameCount)
	assert.Equal(t, int64(1), stats.UnlinkCount)
	assert.Positive(t, stats.BlockReads)
	assert.Positive(t, stats.BlockWrites)
}
