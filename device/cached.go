package device

import (
	"github.com/hupe1980/botfs/internal/cache"
	"github.com/hupe1980/botfs/resource"
)

// Cached is a write-through block cache in front of another device.
type Cached struct {
	dev Device
	lru *cache.BlockLRU
}

// NewCached caches up to blocks blocks of dev. Cached bytes are charged to
// rc when it is non-nil.
func NewCached(dev Device, blocks int, rc *resource.Controller) *Cached {
	return &Cached{dev: dev, lru: cache.NewBlockLRU(blocks, BlockSize, rc)}
}

func (c *Cached) ReadBlock(addr uint32, buf []byte) error {
	if len(buf) == BlockSize && c.lru.Get(addr, buf) {
		return nil
	}
	if err := c.dev.ReadBlock(addr, buf); err != nil {
		return err
	}
	c.lru.Put(addr, buf)
	return nil
}

func (c *Cached) WriteBlock(addr uint32, buf []byte) error {
	if err := c.dev.WriteBlock(addr, buf); err != nil {
		// The medium state is unknown after a failed write.
		c.lru.Invalidate(addr)
		return err
	}
	c.lru.Put(addr, buf)
	return nil
}

// Stats returns cache hits and misses.
func (c *Cached) Stats() (hits, misses int64) { return c.lru.Stats() }

// Close drops the cache and closes the underlying device.
func (c *Cached) Close() error {
	c.lru.Purge()
	return c.dev.Close()
}
