// Package mmap provides shared, writable memory mappings of volume images.
//
// # Usage
//
//	m, err := mmap.Open("botfs.img")
//	if err != nil { ... }
//	defer m.Close()
//
//	m.Advise(mmap.AccessRandom)
//	_, err = m.WriteAt(block, 70*512)
//	err = m.Sync()
//
// # Platform Support
//
// Unix platforms use mmap(2), msync(2) and madvise(2). Elsewhere [Open]
// fails and [Supported] is false; callers fall back to positional file I/O.
//
// # Thread Safety
//
// Close is idempotent and protected by an atomic flag. Callers serialize
// ReadAt and WriteAt on overlapping ranges themselves.
package mmap
