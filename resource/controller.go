package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrCacheBudgetExceeded is returned when a cached block would exceed the budget.
var ErrCacheBudgetExceeded = errors.New("cache budget exceeded")

// Config holds resource limits.
type Config struct {
	// CacheBudgetBytes is the hard limit for bytes pinned by block caches.
	// If 0, no hard limit is enforced (only tracking).
	CacheBudgetBytes int64

	// MaxTransfers is the maximum number of concurrent backup or restore jobs.
	// If 0, defaults to 1.
	MaxTransfers int64

	// IOLimitBytesPerSec caps device throughput. If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages resources shared by every device of a process.
type Controller struct {
	cfg Config

	cacheSem  *semaphore.Weighted // nil if unlimited
	cacheUsed atomic.Int64

	transferSem *semaphore.Weighted

	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxTransfers <= 0 {
		cfg.MaxTransfers = 1
	}

	c := &Controller{
		cfg:         cfg,
		transferSem: semaphore.NewWeighted(cfg.MaxTransfers),
	}

	if cfg.CacheBudgetBytes > 0 {
		c.cacheSem = semaphore.NewWeighted(cfg.CacheBudgetBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquireCache reserves cache bytes without blocking.
// Returns ErrCacheBudgetExceeded if the budget would be exceeded.
func (c *Controller) AcquireCache(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.cacheSem != nil && !c.cacheSem.TryAcquire(bytes) {
		return ErrCacheBudgetExceeded
	}

	c.cacheUsed.Add(bytes)
	return nil
}

// ReleaseCache returns reserved cache bytes.
func (c *Controller) ReleaseCache(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.cacheSem != nil {
		c.cacheSem.Release(bytes)
	}
	c.cacheUsed.Add(-bytes)
}

// CacheUsage returns the bytes currently held by block caches.
func (c *Controller) CacheUsage() int64 {
	if c == nil {
		return 0
	}
	return c.cacheUsed.Load()
}

// CacheBudget returns the configured cache budget in bytes (0 if unlimited).
func (c *Controller) CacheBudget() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.CacheBudgetBytes
}

// AcquireTransfer reserves a transfer slot, blocking while all slots are busy.
func (c *Controller) AcquireTransfer(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.transferSem.Acquire(ctx, 1)
}

// TryAcquireTransfer reserves a transfer slot without blocking.
func (c *Controller) TryAcquireTransfer() bool {
	if c == nil {
		return true
	}
	return c.transferSem.TryAcquire(1)
}

// ReleaseTransfer releases a transfer slot.
func (c *Controller) ReleaseTransfer() {
	if c == nil {
		return
	}
	c.transferSem.Release(1)
}

// WaitIO waits until the IO limit allows the specified number of bytes.
func (c *Controller) WaitIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}

// IOLimited reports whether device transfers are throttled.
func (c *Controller) IOLimited() bool {
	return c != nil && c.ioLimiter != nil
}
