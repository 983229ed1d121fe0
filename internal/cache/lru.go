package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/botfs/resource"
)

// BlockLRU caches fixed-size device blocks keyed by block address.
type BlockLRU struct {
	mu        sync.Mutex
	capacity  int // in blocks
	blockSize int
	items     map[uint32]*list.Element
	evictList *list.List
	rc        *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	addr uint32
	data []byte
}

// NewBlockLRU creates a cache holding up to capacity blocks of blockSize bytes.
// If rc is provided, cached bytes are charged against its cache budget.
func NewBlockLRU(capacity, blockSize int, rc *resource.Controller) *BlockLRU {
	return &BlockLRU{
		capacity:  capacity,
		blockSize: blockSize,
		items:     make(map[uint32]*list.Element),
		evictList: list.New(),
		rc:        rc,
	}
}

// Get copies the cached block at addr into buf.
func (c *BlockLRU) Get(addr uint32, buf []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[addr]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(el)
		copy(buf, el.Value.(*entry).data)
		return true
	}
	c.misses.Add(1)
	return false
}

// Put stores a copy of the block at addr.
func (c *BlockLRU) Put(addr uint32, data []byte) {
	if c.capacity <= 0 || len(data) != c.blockSize {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[addr]; ok {
		c.evictList.MoveToFront(el)
		copy(el.Value.(*entry).data, data)
		return
	}

	for c.evictList.Len() >= c.capacity {
		c.removeElement(c.evictList.Back())
	}

	// A full global budget means the block is simply not cached.
	if err := c.rc.AcquireCache(int64(c.blockSize)); err != nil {
		return
	}

	buf := make([]byte, c.blockSize)
	copy(buf, data)
	c.items[addr] = c.evictList.PushFront(&entry{addr: addr, data: buf})
}

// Invalidate drops the block at addr.
func (c *BlockLRU) Invalidate(addr uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[addr]; ok {
		c.removeElement(el)
	}
}

// Purge drops every cached block and returns the budget.
func (c *BlockLRU) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.evictList.Len() > 0 {
		c.removeElement(c.evictList.Back())
	}
}

// Len returns the number of cached blocks.
func (c *BlockLRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

func (c *BlockLRU) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *BlockLRU) removeElement(el *list.Element) {
	c.evictList.Remove(el)
	ent := el.Value.(*entry)
	delete(c.items, ent.addr)
	c.rc.ReleaseCache(int64(len(ent.data)))
}
