// Package device provides the physical block transport of a volume.
//
// A [Device] reads and writes one [BlockSize] block at an absolute address.
// Implementations:
//
//   - [File]: a host image accessed with positional I/O
//   - [Memory]: a RAM-backed medium, used by tests and tools
//   - [Mapped]: a host image accessed through a shared memory mapping
//
// Wrappers compose in front of any device:
//
//   - [Serialized]: the transport lock, one mutex per transfer
//   - [Cached]: write-through LRU block cache
//   - [Throttled]: token-bucket rate limit
//
// [LocateImage] finds a volume stored as a contiguous file in the first
// FAT16 partition of a card and returns its first block.
//
// Every failed transfer is reported as a [*TransportError], which matches
// [ErrTransport] with errors.Is. Devices never retry.
package device
