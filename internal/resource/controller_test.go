package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(60))
	require.NoError(t, c.AcquireMemory(40))
	assert.Equal(t, int64(100), c.MemoryUsage())

	assert.ErrorIs(t, c.AcquireMemory(1), ErrMemoryLimitExceeded)
	assert.Equal(t, int64(100), c.MemoryUsage())

	c.ReleaseMemory(60)
	require.NoError(t, c.AcquireMemory(20))
	assert.Equal(t, int64(60), c.MemoryUsage())
}

func TestController_UnlimitedMemory(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.AcquireMemory(1<<40))
	c.ReleaseMemory(1 << 39)
	assert.Equal(t, int64(1<<39), c.MemoryUsage())
}

func TestController_Workers(t *testing.T) {
	c := NewController(Config{MaxWorkers: 2})
	assert.Equal(t, 2, c.MaxWorkers())

	require.NoError(t, c.AcquireWorker(t.Context()))
	require.NoError(t, c.AcquireWorker(t.Context()))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireWorker(ctx), context.DeadlineExceeded)

	c.ReleaseWorker()
	require.NoError(t, c.AcquireWorker(t.Context()))
}

func TestController_IO(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

	require.NoError(t, c.AcquireIO(t.Context(), 4096))
	// Requests above the burst are clamped instead of failing.
	require.NoError(t, c.AcquireIO(t.Context(), 4<<20))
}

func TestController_Nil(t *testing.T) {
	var c *Controller

	assert.NoError(t, c.AcquireMemory(1))
	c.ReleaseMemory(1)
	assert.Zero(t, c.MemoryUsage())
	assert.Zero(t, c.MaxWorkers())
	assert.NoError(t, c.AcquireWorker(t.Context()))
	c.ReleaseWorker()
	assert.NoError(t, c.AcquireIO(t.Context(), 1<<30))
}
