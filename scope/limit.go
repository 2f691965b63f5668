package scope

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter bounds concurrent tasks within a scope.
type Limiter interface {
	Acquire(ctx context.Context) error
	Release()
}

type semLimiter struct {
	sem *semaphore.Weighted
}

func newSemaphoreLimiter(n int) Limiter {
	if n <= 0 {
		return nil
	}
	return &semLimiter{sem: semaphore.NewWeighted(int64(n))}
}

func (l *semLimiter) Acquire(ctx context.Context) error { return l.sem.Acquire(ctx, 1) }

func (l *semLimiter) Release() { l.sem.Release(1) }

type rateLimiter struct {
	lim *rate.Limiter
}

func newRateLimiter(r rate.Limit, burst int) Limiter {
	if r <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{lim: rate.NewLimiter(r, burst)}
}

func (l *rateLimiter) Acquire(ctx context.Context) error { return l.lim.Wait(ctx) }

// Release is a no-op: consumed tokens are not returned.
func (l *rateLimiter) Release() {}

// chain acquires in order and releases in reverse.
type chain []Limiter

func (c chain) Acquire(ctx context.Context) error {
	for i, l := range c {
		if err := l.Acquire(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				c[j].Release()
			}
			return err
		}
	}
	return nil
}

func (c chain) Release() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i].Release()
	}
}

// newLimiter waits for a rate token before taking a concurrency slot, so
// throttled tasks do not hold slots.
func newLimiter(o Options) Limiter {
	var c chain
	for _, l := range []Limiter{
		newRateLimiter(o.RateLimit, o.RateBurst),
		newSemaphoreLimiter(o.MaxConcurrency),
		o.Limiter,
	} {
		if l != nil {
			c = append(c, l)
		}
	}
	switch len(c) {
	case 0:
		return nil
	case 1:
		return c[0]
	default:
		return c
	}
}
