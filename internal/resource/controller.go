package resource

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds limits on calls to the block authority.
type Config struct {
	// MaxConcurrentRenewals is the maximum number of authority calls in
	// flight across all pools sharing the controller.
	// If 0, unlimited.
	MaxConcurrentRenewals int64

	// RenewalsPerSecond caps the rate of authority calls.
	// If 0, unlimited.
	RenewalsPerSecond float64

	// Burst is the rate limiter's bucket size. If 0, it is derived from
	// RenewalsPerSecond (at least 1).
	Burst int
}

// Controller throttles authority calls. A nil *Controller imposes no limits.
type Controller struct {
	cfg Config

	sem     *semaphore.Weighted // nil if unlimited
	limiter *rate.Limiter       // nil if unlimited

	inFlight atomic.Int64
	waited   atomic.Int64 // nanoseconds spent in Acquire
}

// NewController creates a new controller.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}

	if cfg.MaxConcurrentRenewals > 0 {
		c.sem = semaphore.NewWeighted(cfg.MaxConcurrentRenewals)
	}

	if cfg.RenewalsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = max(1, int(cfg.RenewalsPerSecond))
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RenewalsPerSecond), burst)
	}

	return c
}

// Acquire blocks until a renewal may call the authority. The returned
// function releases the slot and must be called exactly once.
func (c *Controller) Acquire(ctx context.Context) (func(), error) {
	if c == nil {
		return func() {}, nil
	}

	start := time.Now()
	defer func() { c.waited.Add(int64(time.Since(start))) }()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}

	c.inFlight.Add(1)
	var released atomic.Bool
	return func() {
		if !released.CompareAndSwap(false, true) {
			return
		}
		c.inFlight.Add(-1)
		if c.sem != nil {
			c.sem.Release(1)
		}
	}, nil
}

// TryAcquire is the non-blocking form of Acquire. It reports false when a
// limit would make the caller wait.
func (c *Controller) TryAcquire() (func(), bool) {
	if c == nil {
		return func() {}, true
	}
	if c.sem != nil && !c.sem.TryAcquire(1) {
		return nil, false
	}
	if c.limiter != nil && !c.limiter.Allow() {
		if c.sem != nil {
			c.sem.Release(1)
		}
		return nil, false
	}

	c.inFlight.Add(1)
	var released atomic.Bool
	return func() {
		if !released.CompareAndSwap(false, true) {
			return
		}
		c.inFlight.Add(-1)
		if c.sem != nil {
			c.sem.Release(1)
		}
	}, true
}

// InFlight returns the number of acquired, unreleased slots.
func (c *Controller) InFlight() int64 {
	if c == nil {
		return 0
	}
	return c.inFlight.Load()
}

// Waited returns the total time callers spent blocked in Acquire.
func (c *Controller) Waited() time.Duration {
	if c == nil {
		return 0
	}
	return time.Duration(c.waited.Load())
}
