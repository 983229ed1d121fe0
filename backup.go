package botfs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/botfs/archive"
	"github.com/hupe1980/botfs/blobstore"
	"github.com/hupe1980/botfs/device"
	"github.com/hupe1980/botfs/resource"
)

// volumeBlocks presents the volume as blocks [0, Blocks()) for archiving.
type volumeBlocks struct{ v *Volume }

func (b volumeBlocks) ReadBlock(addr uint32, buf []byte) error { return b.v.readBlock(addr, buf) }

// offsetWriter writes archive blocks behind a device offset.
type offsetWriter struct {
	dev    device.Device
	offset uint32
}

func (w offsetWriter) WriteBlock(addr uint32, buf []byte) error {
	return w.dev.WriteBlock(addr+w.offset, buf)
}

// Backup writes an archive of the whole volume to w. The volume is locked
// until the archive has been written.
func (v *Volume) Backup(ctx context.Context, w io.Writer, opts archive.Options) (archive.Header, error) {
	if err := v.checkReady(); err != nil {
		return archive.Header{}, err
	}
	v.mu.lock()
	defer v.mu.unlock()

	return archive.Write(ctx, w, volumeBlocks{v}, v.Blocks(), opts)
}

// BackupTo writes an archive of the volume to store under name. It waits
// for a transfer slot of the resource controller first.
func (v *Volume) BackupTo(ctx context.Context, store blobstore.Store, name string, opts archive.Options) (archive.Header, error) {
	h, err := v.backupTo(ctx, store, name, opts)
	v.logger.LogBackup(ctx, "backup", name, err)
	return h, err
}

func (v *Volume) backupTo(ctx context.Context, store blobstore.Store, name string, opts archive.Options) (archive.Header, error) {
	if err := v.checkReady(); err != nil {
		return archive.Header{}, err
	}
	if err := v.rc.AcquireTransfer(ctx); err != nil {
		return archive.Header{}, err
	}
	defer v.rc.ReleaseTransfer()

	wb, err := store.Create(ctx, name)
	if err != nil {
		return archive.Header{}, err
	}

	var w io.Writer = wb
	if v.transfer.IOLimited() {
		w = resource.NewRateLimitedWriter(ctx, wb, v.transfer)
	}

	h, err := v.Backup(ctx, w, opts)
	if err != nil {
		_ = blobstore.Abort(wb)
		return archive.Header{}, err
	}
	if err := wb.Close(); err != nil {
		return archive.Header{}, err
	}
	return h, nil
}

// BackupToCatalog stores a new backup of the volume and records it as the
// next version in catalog. Archives are named <volume>/backup-<version>.img.
// If another writer commits the same version first, the archive is deleted
// and blobstore.ErrConcurrentModification is returned.
func (v *Volume) BackupToCatalog(ctx context.Context, store blobstore.Store, catalog blobstore.Catalog, opts archive.Options) (string, error) {
	if err := v.checkReady(); err != nil {
		return "", err
	}
	volume := v.Name()

	latest, _, err := catalog.Latest(ctx, volume)
	if err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		return "", err
	}
	version := latest + 1
	name := backupName(volume, version)

	if _, err := v.BackupTo(ctx, store, name, opts); err != nil {
		return "", err
	}
	if err := catalog.Commit(ctx, volume, version, name); err != nil {
		_ = store.Delete(ctx, name)
		v.logger.LogBackup(ctx, "commit", name, err)
		return "", err
	}
	return name, nil
}

func backupName(volume string, version uint64) string {
	return fmt.Sprintf("%s/backup-%06d.img", volume, version)
}

// Restore writes the archive read from r onto dev. dev must not be mounted.
// WithDeviceOffset or WithImageLookup place the image on the device;
// WithLogger and WithTransferLimit are honoured. Nothing is written unless
// the archive is intact or could be repaired.
func Restore(ctx context.Context, r io.Reader, dev device.Device, optFns ...Option) (archive.Header, error) {
	o := applyOptions(optFns)
	h, err := restore(ctx, r, dev, o)
	o.logger.LogBackup(ctx, "restore", "stream", err)
	return h, err
}

func restore(ctx context.Context, r io.Reader, dev device.Device, o options) (archive.Header, error) {
	if err := o.resolveOffset(dev); err != nil {
		return archive.Header{}, err
	}
	if rc := o.transferController(); rc.IOLimited() {
		r = resource.NewRateLimitedReader(ctx, r, rc)
	}
	h, err := archive.Read(ctx, r, offsetWriter{dev: dev, offset: o.deviceOffset})
	if err != nil {
		return h, err
	}
	if h.Repaired > 0 {
		o.logger.WarnContext(ctx, "archive repaired", "shards", h.Repaired)
	}
	return h, nil
}

// RestoreFrom restores the archive name from store onto dev.
func RestoreFrom(ctx context.Context, store blobstore.Store, name string, dev device.Device, optFns ...Option) (archive.Header, error) {
	o := applyOptions(optFns)
	h, err := restoreFrom(ctx, store, name, dev, o)
	o.logger.LogBackup(ctx, "restore", name, err)
	return h, err
}

func restoreFrom(ctx context.Context, store blobstore.Store, name string, dev device.Device, o options) (archive.Header, error) {
	if err := o.rc.AcquireTransfer(ctx); err != nil {
		return archive.Header{}, err
	}
	defer o.rc.ReleaseTransfer()

	blob, err := store.Open(ctx, name)
	if err != nil {
		return archive.Header{}, err
	}
	defer func() { _ = blob.Close() }()

	r, err := blobstore.NewReader(ctx, blob)
	if err != nil {
		return archive.Header{}, err
	}
	defer func() { _ = r.Close() }()

	return restore(ctx, r, dev, o)
}

// RestoreLatest restores the newest backup of volume recorded in catalog
// and returns its archive name.
func RestoreLatest(ctx context.Context, store blobstore.Store, catalog blobstore.Catalog, volume string, dev device.Device, optFns ...Option) (string, error) {
	_, name, err := catalog.Latest(ctx, volume)
	if err != nil {
		return "", err
	}
	if _, err := RestoreFrom(ctx, store, name, dev, optFns...); err != nil {
		return name, err
	}
	return name, nil
}
