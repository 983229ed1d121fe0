package botfs

import (
	"context"
	"fmt"

	"github.com/hupe1980/botfs/device"
	"github.com/hupe1980/botfs/internal/fs"
	"github.com/hupe1980/botfs/resource"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	deviceOffset     uint32
	imageName        string
	fs               fs.FileSystem
	mapped           bool
	cacheBlocks      int
	ioLimit          int64
	transferLimit    int64
	rc               *resource.Controller
}

// Option configures volume load, creation and restore.
type Option func(*options)

func defaultOptions() options {
	return options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		fs:               fs.Default,
	}
}

func applyOptions(optFns []Option) options {
	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}
	return o
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector sets the metrics sink.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithDeviceOffset places the volume at a fixed block offset on the device,
// e.g. behind a partition table on a memory card. Every transfer adds it.
func WithDeviceOffset(blocks uint32) Option {
	return func(o *options) {
		o.deviceOffset = blocks
	}
}

// WithImageLookup locates the volume as the file name (8.3, e.g.
// "botfs.img") in the first FAT16 partition of the device and uses its
// first block as device offset. It takes precedence over WithDeviceOffset
// for Mount, Init, Format and the restore functions.
func WithImageLookup(name string) Option {
	return func(o *options) {
		o.imageName = name
	}
}

// resolveOffset runs the image lookup on dev, if one is configured.
func (o *options) resolveOffset(dev device.Device) error {
	if o.imageName == "" {
		return nil
	}
	off, err := device.LocateImage(dev, o.imageName)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOpen, err)
	}
	o.logger.DebugContext(context.Background(), "image located", "image", o.imageName, "block", off)
	o.deviceOffset = off
	return nil
}

// WithFileSystem sets the file system used for host images.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys == nil {
			fsys = fs.Default
		}
		o.fs = fsys
	}
}

// WithMappedImage accesses host images through a shared memory mapping
// instead of positional file I/O. WithFileSystem is ignored for loading.
func WithMappedImage() Option {
	return func(o *options) {
		o.mapped = true
	}
}

// WithBlockCache puts a write-through LRU cache of n blocks in front of the device.
func WithBlockCache(n int) Option {
	return func(o *options) {
		o.cacheBlocks = n
	}
}

// WithIOLimit throttles device transfers to bytesPerSec.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithResourceController shares cache budget, transfer slots and IO limit
// with other volumes of the process.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithTransferLimit caps the bandwidth of archive streams (backup uploads
// and restore downloads) at bytesPerSec, independent of device throttling.
func WithTransferLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.transferLimit = bytesPerSec
	}
}

// transferController returns the controller that meters archive streams,
// or nil if they are unlimited.
func (o options) transferController() *resource.Controller {
	if o.transferLimit <= 0 {
		return nil
	}
	return resource.NewController(resource.Config{IOLimitBytesPerSec: o.transferLimit})
}
