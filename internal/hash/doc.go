// Package hash provides hardware-accelerated checksums for image archives.
//
// Archives carry a CRC32-Castagnoli (CRC32C) checksum of the raw volume
// image and one per parity shard. Go's crc32 package uses SSE4.2 or the
// ARM CRC extension when available.
//
//	h := hash.NewCRC32C()
//	h.Write(block)
//	sum := h.Sum32()
package hash
