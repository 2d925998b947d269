package app

import (
	"context"
	"sync"
)

// AcquireRateLimits admits one generation for the given client key. The
// returned release func is safe to call more than once.
func (c *Container) AcquireRateLimits(ctx context.Context, clientKey string) (func(), error) {
	cfg := c.DefaultLimit
	if c.RateLimiter == nil || !cfg.Enabled() {
		return func() {}, nil
	}

	storage := "client:" + clientKey
	if err := c.RateLimiter.Allow(ctx, storage, cfg); err != nil {
		return nil, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			c.RateLimiter.Release(context.WithoutCancel(ctx), storage, cfg)
		})
	}
	return release, nil
}
