// Package resource provides process-wide limits shared by all collections:
// how many index builds may run at once, how much memory loaded vectors may
// occupy, and how fast snapshot IO may go.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// LoadedMemoryBytes caps the memory occupied by loaded indexes.
	// If 0, usage is tracked but not limited.
	LoadedMemoryBytes int64

	// MaxIndexBuilds is the number of index builds allowed to run
	// concurrently. If 0, defaults to 1.
	MaxIndexBuilds int64

	// SnapshotBytesPerSec limits snapshot read/write throughput.
	// If 0, unlimited.
	SnapshotBytesPerSec int64
}

// Controller enforces the configured limits. A nil Controller is valid and
// enforces nothing.
type Controller struct {
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	buildSem *semaphore.Weighted

	ioLimiter *rate.Limiter
}

// NewController creates a controller for the given limits.
func NewController(cfg Config) *Controller {
	if cfg.MaxIndexBuilds <= 0 {
		cfg.MaxIndexBuilds = 1
	}

	c := &Controller{
		buildSem: semaphore.NewWeighted(cfg.MaxIndexBuilds),
	}
	if cfg.LoadedMemoryBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.LoadedMemoryBytes)
	}
	if cfg.SnapshotBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.SnapshotBytesPerSec), int(cfg.SnapshotBytesPerSec))
	}
	return c
}

// AcquireMemory reserves memory for loaded vectors, blocking until the
// reservation fits under the limit or ctx is cancelled.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}
	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory returns a prior reservation.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the currently reserved bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireBuild reserves an index-build slot, blocking while all slots are
// busy.
func (c *Controller) AcquireBuild(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.buildSem.Acquire(ctx, 1)
}

// TryAcquireBuild reserves a build slot without blocking.
func (c *Controller) TryAcquireBuild() bool {
	if c == nil {
		return true
	}
	return c.buildSem.TryAcquire(1)
}

// ReleaseBuild returns a build slot.
func (c *Controller) ReleaseBuild() {
	if c == nil {
		return
	}
	c.buildSem.Release(1)
}

// WaitIO blocks until the snapshot rate limit admits n bytes.
func (c *Controller) WaitIO(ctx context.Context, n int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	return c.ioLimiter.WaitN(ctx, n)
}
