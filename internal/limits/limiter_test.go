package limits

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*RateLimiter, func()) {
	t.Helper()
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	limiter := NewRateLimiter(client)
	cleanup := func() {
		client.Close()
		server.Close()
	}
	return limiter, cleanup
}

func TestRateLimiterAllowEnforcesParallel(t *testing.T) {
	limiter, cleanup := newTestLimiter(t)
	defer cleanup()

	ctx := context.Background()
	cfg := LimitConfig{ParallelRequests: 1}
	key := "ip:10.0.0.1"

	if err := limiter.Allow(ctx, key, cfg); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}
	if err := limiter.Allow(ctx, key, cfg); err != ErrLimitExceeded {
		t.Fatalf("expected parallel limit error, got %v", err)
	}
	limiter.Release(ctx, key, cfg)
	if err := limiter.Allow(ctx, key, cfg); err != nil {
		t.Fatalf("request after release should pass: %v", err)
	}
}

func TestRateLimiterAllowEnforcesRPM(t *testing.T) {
	limiter, cleanup := newTestLimiter(t)
	defer cleanup()

	current := time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)
	limiter.now = func() time.Time { return current }

	ctx := context.Background()
	cfg := LimitConfig{RequestsPerMinute: 2}
	key := "ip:10.0.0.2"

	if err := limiter.Allow(ctx, key, cfg); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}
	if err := limiter.Allow(ctx, key, cfg); err != nil {
		t.Fatalf("second request should pass: %v", err)
	}
	if err := limiter.Allow(ctx, key, cfg); err != ErrLimitExceeded {
		t.Fatalf("expected rpm limit error, got %v", err)
	}

	current = current.Add(time.Minute)
	if err := limiter.Allow(ctx, key, cfg); err != nil {
		t.Fatalf("request in next window should pass: %v", err)
	}
}

func TestRateLimiterReleaseDoesNotGoNegative(t *testing.T) {
	limiter, cleanup := newTestLimiter(t)
	defer cleanup()

	ctx := context.Background()
	cfg := LimitConfig{ParallelRequests: 1}
	key := "ip:10.0.0.3"

	limiter.Release(ctx, key, cfg)
	limiter.Release(ctx, key, cfg)
	if err := limiter.Allow(ctx, key, cfg); err != nil {
		t.Fatalf("request should pass after spurious releases: %v", err)
	}
	if err := limiter.Allow(ctx, key, cfg); err != ErrLimitExceeded {
		t.Fatalf("expected parallel limit error, got %v", err)
	}
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	var limiter *RateLimiter
	cfg := LimitConfig{RequestsPerMinute: 1, ParallelRequests: 1}
	if cfg.Enabled() != true {
		t.Fatalf("expected config to be enabled")
	}
	for i := 0; i < 3; i++ {
		if err := limiter.Allow(context.Background(), "k", cfg); err != nil {
			t.Fatalf("nil limiter should allow: %v", err)
		}
	}
	limiter.Release(context.Background(), "k", cfg)
}
