package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ncecere/imagegen_gateway/internal/models"
)

const (
	keyPrefix  = "imagegen:idem:"
	defaultTTL = 30 * time.Minute
)

// Store persists generation results for Idempotency-Key replay.
type Store interface {
	Get(ctx context.Context, key, prompt string) (models.GenerationResult, bool)
	Set(ctx context.Context, key, prompt string, result models.GenerationResult) error
}

// IdempotencyCache stores generation results keyed by the caller's
// Idempotency-Key and the prompt it was issued with.
type IdempotencyCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdempotencyCache(client *redis.Client, ttl time.Duration) *IdempotencyCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &IdempotencyCache{client: client, ttl: ttl}
}

// Get returns a previously stored result. Misses and Redis errors both report false.
func (c *IdempotencyCache) Get(ctx context.Context, key, prompt string) (models.GenerationResult, bool) {
	if c == nil || c.client == nil || strings.TrimSpace(key) == "" {
		return models.GenerationResult{}, false
	}
	data, err := c.client.Get(ctx, keyPrefix+scopedKey(key, prompt)).Bytes()
	if err != nil {
		return models.GenerationResult{}, false
	}
	var result models.GenerationResult
	if err := json.Unmarshal(data, &result); err != nil || result.URL == "" {
		return models.GenerationResult{}, false
	}
	return result, true
}

// Set stores result for the TTL. A nil cache or empty key is a no-op.
func (c *IdempotencyCache) Set(ctx context.Context, key, prompt string, result models.GenerationResult) error {
	if c == nil || c.client == nil || strings.TrimSpace(key) == "" || result.URL == "" {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode idempotent result: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+scopedKey(key, prompt), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("store idempotent result: %w", err)
	}
	return nil
}

// scopedKey binds the key to the prompt so a reused key with a different
// prompt never replays the wrong image.
func scopedKey(key, prompt string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(prompt)))
	return strings.TrimSpace(key) + ":" + hex.EncodeToString(sum[:8])
}
