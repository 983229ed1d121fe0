package resource

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Cache(t *testing.T) {
	c := NewController(Config{CacheBudgetBytes: 1024})

	require.NoError(t, c.AcquireCache(512))
	require.NoError(t, c.AcquireCache(512))
	assert.Equal(t, int64(1024), c.CacheUsage())

	// Budget exhausted
	err := c.AcquireCache(512)
	assert.ErrorIs(t, err, ErrCacheBudgetExceeded)
	assert.Equal(t, int64(1024), c.CacheUsage())

	c.ReleaseCache(512)
	assert.Equal(t, int64(512), c.CacheUsage())

	require.NoError(t, c.AcquireCache(512))
	assert.Equal(t, int64(1024), c.CacheBudget())
}

func TestController_UnlimitedCache(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.AcquireCache(1 << 30))
	assert.Equal(t, int64(1<<30), c.CacheUsage())

	c.ReleaseCache(1 << 29)
	assert.Equal(t, int64(1<<29), c.CacheUsage())
	assert.Zero(t, c.CacheBudget())
}

func TestController_Transfers(t *testing.T) {
	c := NewController(Config{MaxTransfers: 2})

	require.NoError(t, c.AcquireTransfer(t.Context()))
	require.NoError(t, c.AcquireTransfer(t.Context()))

	assert.False(t, c.TryAcquireTransfer())

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireTransfer(ctx))

	c.ReleaseTransfer()
	assert.True(t, c.TryAcquireTransfer())
}

func TestController_IOLimit(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1024})
	assert.True(t, c.IOLimited())

	// The burst equals the per-second limit.
	require.NoError(t, c.WaitIO(t.Context(), 1024))

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.WaitIO(ctx, 1024))
}

func TestController_Nil(t *testing.T) {
	var c *Controller

	assert.NoError(t, c.AcquireCache(100))
	c.ReleaseCache(100)
	assert.Zero(t, c.CacheUsage())
	assert.NoError(t, c.AcquireTransfer(t.Context()))
	assert.True(t, c.TryAcquireTransfer())
	c.ReleaseTransfer()
	assert.NoError(t, c.WaitIO(t.Context(), 1<<20))
	assert.False(t, c.IOLimited())
}

func TestRateLimitedIO(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

	var buf bytes.Buffer
	w := NewRateLimitedWriter(t.Context(), &buf, c)
	payload := bytes.Repeat([]byte("x"), 3<<19) // larger than one burst
	n, err := w.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	r := NewRateLimitedReader(t.Context(), bytes.NewReader(payload), nil)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}
