// Package botfs is a block-addressed file system for robot controllers.
//
// A BotFS volume lives on a memory card or on a host image file and holds
// up to 256 named files in a single root directory. Files are contiguous
// block ranges carved out of a freelist; the first block of every file is
// a header carrying its used-range and 505 bytes of metadata.
//
// # Quick Start
//
//	v, err := botfs.Init("botfs.img", true) // create the image if missing
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer v.Close()
//
//	_, err = v.Create("/motors.cfg", 4, 0)
//	f, err := v.OpenFile("/motors.cfg", botfs.ModeTruncate)
//	err = f.WriteBlock(block)
//	err = f.Close() // persists the used-range
//
// Text files are read line by line through a Stream:
//
//	s := botfs.NewStream(f)
//	n, err := s.ReadLine(line)
//
// # Volume Layout
//
//	0       /volumedata header
//	1       volume header
//	2..66   root directory (header + 64 blocks)
//	67..69  freelist (header + 2 blocks)
//	70..    data
//
// All fields are little-endian.
//
// # Devices
//
// The engine only reads and writes whole blocks through a device.Device.
// Init and CreateVolume open host images; Mount and Format take any device,
// e.g. a card driver or device.NewMemory. WithDeviceOffset places the
// volume behind a partition table; WithImageLookup finds it as a
// contiguous file such as botfs.img on a FAT16 card. Create aligns the
// first data block of a file on an absolute device address.
//
// # Consistency
//
// There is no journal. Structural operations are serialized by a volume
// lock but never rolled back; Check reports overlaps and orphaned space
// and ReclaimOrphans returns orphans to the freelist.
//
// # Backups
//
// Backup writes a compressed image archive (see package archive), BackupTo
// and RestoreFrom move archives through a blobstore.Store (local disk, S3,
// MinIO), and BackupToCatalog/RestoreLatest keep numbered versions in a
// blobstore.Catalog.
package botfs
