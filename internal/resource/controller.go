package resource

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when a reservation would pass the
// memory limit.
var ErrMemoryLimitExceeded = errors.New("resource: memory limit exceeded")

// Config holds process-wide limits. Zero means unlimited.
type Config struct {
	// MemoryLimitBytes bounds cached blob data.
	MemoryLimitBytes int64
	// MaxInFlight bounds concurrent range requests across all retrievals.
	MaxInFlight int64
	// IOLimitBytesPerSec bounds download throughput.
	IOLimitBytesPerSec int64
}

// Controller enforces Config. A nil *Controller imposes no limits, so
// callers can pass an optional controller around without checks.
type Controller struct {
	cfg Config

	mem      *semaphore.Weighted
	memUsed  atomic.Int64
	slots    *semaphore.Weighted
	inFlight atomic.Int64
	io       *rate.Limiter
}

// NewController creates a Controller for cfg.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}
	if cfg.MemoryLimitBytes > 0 {
		c.mem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.MaxInFlight > 0 {
		c.slots = semaphore.NewWeighted(cfg.MaxInFlight)
	}
	if cfg.IOLimitBytesPerSec > 0 {
		// One second of budget may be spent at once.
		c.io = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}
	return c
}

// AcquireMemory reserves bytes without blocking.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.mem != nil && !c.mem.TryAcquire(bytes) {
		return ErrMemoryLimitExceeded
	}
	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory returns bytes reserved by AcquireMemory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.mem != nil {
		c.mem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the reserved bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the memory limit, 0 when unlimited.
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// AcquireRequest waits for a request slot.
func (c *Controller) AcquireRequest(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.slots != nil {
		if err := c.slots.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	c.inFlight.Add(1)
	return nil
}

// TryAcquireRequest takes a request slot if one is free.
func (c *Controller) TryAcquireRequest() bool {
	if c == nil {
		return true
	}
	if c.slots != nil && !c.slots.TryAcquire(1) {
		return false
	}
	c.inFlight.Add(1)
	return true
}

// ReleaseRequest frees a slot taken by AcquireRequest or TryAcquireRequest.
func (c *Controller) ReleaseRequest() {
	if c == nil {
		return
	}
	c.inFlight.Add(-1)
	if c.slots != nil {
		c.slots.Release(1)
	}
}

// InFlight returns the number of requests holding a slot.
func (c *Controller) InFlight() int64 {
	if c == nil {
		return 0
	}
	return c.inFlight.Load()
}

// AcquireIO waits until bytes may be downloaded. Large amounts are
// charged in bursts of at most one second of budget.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.io == nil {
		return nil
	}
	burst := c.io.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.io.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}

// TryAcquireIO charges bytes if the budget allows it right now.
func (c *Controller) TryAcquireIO(bytes int) bool {
	if c == nil || c.io == nil {
		return true
	}
	return c.io.AllowN(time.Now(), bytes)
}

// NewRateLimitedReader returns r with every read charged to c. A nil
// controller reads unthrottled.
func NewRateLimitedReader(ctx context.Context, r io.Reader, c *Controller) io.Reader {
	if c == nil || c.io == nil {
		return r
	}
	return &throttledReader{ctx: ctx, r: r, c: c}
}

type throttledReader struct {
	ctx context.Context
	r   io.Reader
	c   *Controller
}

func (t *throttledReader) Read(p []byte) (int, error) {
	if burst := t.c.io.Burst(); len(p) > burst {
		p = p[:burst]
	}
	if err := t.c.AcquireIO(t.ctx, len(p)); err != nil {
		return 0, err
	}
	return t.r.Read(p)
}
