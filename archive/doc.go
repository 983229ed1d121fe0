// Package archive packs a block device image into a compressed, checksummed
// stream and restores it.
//
// Layout:
//
//	[Header 48B][Body]
//
// The body is the raw image passed through the codec, or the raw image
// itself when compression saves less than 10%. With ParityShards set, the
// body is split into Reed-Solomon data and parity shards, each followed by
// its CRC32C; damaged shards are rebuilt on read.
//
// The whole image is held in memory. BotFS volumes are at most 32 MiB.
package archive
