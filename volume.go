package botfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/botfs/device"
	"github.com/hupe1980/botfs/resource"
)

// structuralLock serializes operations that mutate the directory or the
// freelist. It is never held across payload transfers.
type structuralLock struct {
	mu sync.Mutex
}

func (l *structuralLock) lock()   { l.mu.Lock() }
func (l *structuralLock) unlock() { l.mu.Unlock() }

// Volume is a mounted BotFS volume.
//
// Structural operations (create, open, unlink, rename, listing, check,
// backup) are serialized by the volume; payload transfers of open files
// are serialized per block by the device transport lock only.
type Volume struct {
	mu     structuralLock
	dev    *device.Serialized
	offset uint32
	hdr    volumeHeader
	ready  atomic.Bool

	rc       *resource.Controller
	transfer *resource.Controller
	logger   *Logger
	metrics  MetricsCollector
}

// Init loads the volume image at path. If the image does not exist and
// create is set, a default volume is created first.
func Init(path string, create bool, optFns ...Option) (*Volume, error) {
	o := applyOptions(optFns)

	if _, err := o.fs.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) || !create {
			return nil, fmt.Errorf("%w: %s: %w", ErrOpen, path, err)
		}
		return CreateVolume(path, DefaultVolumeName, DefaultVolumeSize, optFns...)
	}

	dev, err := openImage(path, o)
	if err != nil {
		return nil, err
	}

	v, err := mount(dev, o)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	return v, nil
}

// Mount loads a volume from an already opened device. The volume owns dev
// from then on and closes it on Close; a failed Mount leaves it open.
func Mount(dev device.Device, optFns ...Option) (*Volume, error) {
	return mount(dev, applyOptions(optFns))
}

// CreateVolume allocates a zero-filled image of exactly size bytes at path,
// formats it and mounts it.
func CreateVolume(path, name string, size int64, optFns ...Option) (*Volume, error) {
	o := applyOptions(optFns)

	if err := validateGeometry(name, size, o.deviceOffset); err != nil {
		return nil, err
	}

	imageSize := size + int64(o.deviceOffset)*BlockSize
	if err := device.CreateImage(o.fs, path, imageSize); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpen, path, err)
	}

	dev, err := openImage(path, o)
	if err != nil {
		return nil, err
	}

	v, err := format(dev, name, size, o)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	return v, nil
}

// Format writes an empty volume onto dev and mounts it: the volume header,
// a cleared root directory holding only the /volumedata entry, and a
// freelist with one entry spanning the whole data region.
func Format(dev device.Device, name string, size int64, optFns ...Option) (*Volume, error) {
	o := applyOptions(optFns)
	if err := o.resolveOffset(dev); err != nil {
		return nil, err
	}
	if err := validateGeometry(name, size, o.deviceOffset); err != nil {
		return nil, err
	}
	return format(dev, name, size, o)
}

func validateGeometry(name string, size int64, offset uint32) error {
	if size > MaxVolumeSize {
		return fmt.Errorf("%w: volume size %d exceeds %d", ErrTooLarge, size, MaxVolumeSize)
	}
	if size/BlockSize < firstDataBlock+1 {
		return fmt.Errorf("%w: %d bytes", ErrTooSmall, size)
	}
	if len(name) > VolumeNameSize-1 {
		return fmt.Errorf("%w: volume name %q", ErrNameTooLong, name)
	}
	if uint64(offset)+uint64(size/BlockSize) > 1<<32 {
		return fmt.Errorf("%w: device offset %d", ErrTooLarge, offset)
	}
	return nil
}

func format(dev device.Device, name string, size int64, o options) (*Volume, error) {
	if name == "" {
		name = DefaultVolumeName
	}

	blocks := uint32(size / BlockSize)
	v := newVolume(dev, o)
	v.hdr = volumeHeader{
		version: Version,
		size:    uint32(size),
		rootDir: descriptor{
			start: rootDirStart,
			end:   rootDirEnd,
			used:  UsedRange{First: rootDirStart, Last: rootDirEnd, BytesLastBlock: BlockSize},
		},
		freelist: descriptor{
			start: freelistStart,
			end:   freelistEnd,
			used:  UsedRange{First: freelistStart, Last: freelistEnd, BytesLastBlock: BlockSize},
		},
		firstData: firstDataBlock,
		name:      name,
	}

	buf := make([]byte, BlockSize)

	// /volumedata header, then every system block zeroed.
	for b := uint32(volumeDataStart); b < firstDataBlock; b++ {
		if b == HeaderPos {
			continue
		}
		if err := v.writeBlock(b, buf); err != nil {
			return nil, err
		}
	}

	v.hdr.encode(buf)
	if err := v.writeBlock(HeaderPos, buf); err != nil {
		return nil, err
	}

	for _, d := range []descriptor{v.hdr.rootDir, v.hdr.freelist} {
		clear(buf)
		(&FileHeader{Used: d.used}).encode(buf)
		if err := v.writeBlock(uint32(d.start), buf); err != nil {
			return nil, err
		}
	}

	clear(buf)
	dirEntry{
		desc: descriptor{start: volumeDataStart, end: HeaderPos, used: EmptyUsedRange},
		name: VolumeDataName,
	}.encode(buf)
	if err := v.writeBlock(uint32(v.hdr.rootDir.start)+1, buf); err != nil {
		return nil, err
	}

	clear(buf)
	freeEntry{block: firstDataBlock, size: uint16(blocks - firstDataBlock)}.encode(buf)
	if err := v.writeBlock(uint32(v.hdr.freelist.start)+1, buf); err != nil {
		return nil, err
	}

	o.logger.InfoContext(context.Background(), "volume formatted",
		"volume", name,
		"blocks", blocks,
		"free", blocks-firstDataBlock,
	)

	if err := v.load(o.logger); err != nil {
		return nil, err
	}
	return v, nil
}

func newVolume(dev device.Device, o options) *Volume {
	rc := o.rc
	if o.ioLimit > 0 {
		dev = device.NewThrottled(dev, resource.NewController(resource.Config{IOLimitBytesPerSec: o.ioLimit}))
	} else if rc.IOLimited() {
		dev = device.NewThrottled(dev, rc)
	}
	if o.cacheBlocks > 0 {
		dev = device.NewCached(dev, o.cacheBlocks, rc)
	}
	return &Volume{
		dev:      device.NewSerialized(dev),
		offset:   o.deviceOffset,
		rc:       rc,
		transfer: o.transferController(),
		logger:   o.logger,
		metrics:  o.metricsCollector,
	}
}

func mount(dev device.Device, o options) (*Volume, error) {
	if err := o.resolveOffset(dev); err != nil {
		return nil, err
	}
	v := newVolume(dev, o)
	if err := v.load(o.logger); err != nil {
		return nil, err
	}
	return v, nil
}

// load reads and validates the volume header and marks the volume ready.
func (v *Volume) load(logger *Logger) error {
	ctx := context.Background()

	buf := make([]byte, BlockSize)
	if err := v.readBlock(HeaderPos, buf); err != nil {
		logger.LogMount(ctx, "", 0, err)
		return err
	}

	hdr := decodeVolumeHeader(buf)
	if hdr.version < MinVersion {
		err := &VersionError{Found: hdr.version, Min: MinVersion}
		logger.LogMount(ctx, hdr.name, 0, err)
		return err
	}
	if err := hdr.validate(); err != nil {
		logger.LogMount(ctx, hdr.name, 0, err)
		return err
	}

	v.hdr = hdr
	v.logger = logger.WithVolume(hdr.name)
	v.ready.Store(true)

	first, err := v.dirSlotAt(uint32(hdr.rootDir.start)+1, 0)
	if err != nil {
		v.ready.Store(false)
		return err
	}
	if first.entry.name != VolumeDataName {
		v.ready.Store(false)
		err := fmt.Errorf("%w: first directory entry is %q", ErrCorrupt, first.entry.name)
		logger.LogMount(ctx, hdr.name, 0, err)
		return err
	}

	v.logger.LogMount(ctx, hdr.name, v.Blocks(), nil)
	return nil
}

func (h volumeHeader) validate() error {
	blocks := h.size / BlockSize
	switch {
	case h.size > MaxVolumeSize:
		return fmt.Errorf("%w: volume size %d", ErrCorrupt, h.size)
	case h.rootDir.start <= HeaderPos || h.rootDir.end < h.rootDir.start:
		return fmt.Errorf("%w: root directory [%d, %d]", ErrCorrupt, h.rootDir.start, h.rootDir.end)
	case h.freelist.start <= h.rootDir.end || h.freelist.end < h.freelist.start:
		return fmt.Errorf("%w: freelist [%d, %d]", ErrCorrupt, h.freelist.start, h.freelist.end)
	case uint32(h.firstData) <= uint32(h.freelist.end) || uint32(h.firstData) > blocks:
		return fmt.Errorf("%w: first data block %d", ErrCorrupt, h.firstData)
	}
	return nil
}

// Close releases the device. It is idempotent.
func (v *Volume) Close() error {
	v.mu.lock()
	defer v.mu.unlock()

	if !v.ready.Swap(false) {
		return nil
	}
	v.logger.InfoContext(context.Background(), "volume closed")
	return v.dev.Close()
}

// Name returns the volume name.
func (v *Volume) Name() string { return v.hdr.name }

// Size returns the volume size in bytes.
func (v *Volume) Size() int64 { return int64(v.hdr.size) }

// Blocks returns the volume size in blocks.
func (v *Volume) Blocks() uint32 { return v.hdr.size / BlockSize }

// FirstData returns the first block available for allocation.
func (v *Volume) FirstData() uint32 { return uint32(v.hdr.firstData) }

// Version returns the on-disk format version.
func (v *Volume) Version() uint16 { return v.hdr.version }

func (v *Volume) checkReady() error {
	if !v.ready.Load() {
		return ErrNotInitialized
	}
	return nil
}

func (v *Volume) readBlock(block uint32, buf []byte) error {
	err := v.dev.ReadBlock(block+v.offset, buf)
	v.metrics.RecordBlockRead(err)
	if err != nil {
		v.logger.LogTransport(context.Background(), "read", block, err)
	}
	return err
}

func (v *Volume) writeBlock(block uint32, buf []byte) error {
	err := v.dev.WriteBlock(block+v.offset, buf)
	v.metrics.RecordBlockWrite(err)
	if err != nil {
		v.logger.LogTransport(context.Background(), "write", block, err)
	}
	return err
}

func openImage(path string, o options) (device.Device, error) {
	var (
		dev device.Device
		err error
	)
	if o.mapped {
		dev, err = device.OpenMapped(path)
	} else {
		dev, err = device.OpenFile(o.fs, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpen, path, err)
	}
	return dev, nil
}
