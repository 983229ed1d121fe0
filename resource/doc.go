// Package resource governs resources shared by every mounted volume.
//
// A Controller manages three resource types:
//
//   - Cache: bytes pinned by block caches (non-blocking, fail-fast)
//   - Transfers: concurrent backup and restore jobs (weighted semaphore)
//   - IO: device throughput (token bucket)
//
// # Cache Budget
//
//	rc := resource.NewController(resource.Config{
//	    CacheBudgetBytes: 1 << 20,
//	})
//
//	if err := rc.AcquireCache(512); err != nil {
//	    // ErrCacheBudgetExceeded - the cache evicts or skips
//	}
//	defer rc.ReleaseCache(512)
//
// # Transfer Slots
//
//	if err := rc.AcquireTransfer(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseTransfer()
//
// # IO Rate Limiting
//
//	rc := resource.NewController(resource.Config{
//	    IOLimitBytesPerSec: 64 * 1024,
//	})
//	if err := rc.WaitIO(ctx, 512); err != nil {
//	    return err
//	}
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
