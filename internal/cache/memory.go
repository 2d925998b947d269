package cache

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/ncecere/imagegen_gateway/internal/models"
)

const defaultMemoryEntries = 1024

// MemoryIdempotency keeps replayable results in a bounded in-process LRU.
// It is used when Redis is not configured.
type MemoryIdempotency struct {
	entries *lru.Cache
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	result    models.GenerationResult
	expiresAt time.Time
}

func NewMemoryIdempotency(size int, ttl time.Duration) (*MemoryIdempotency, error) {
	if size <= 0 {
		size = defaultMemoryEntries
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	entries, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &MemoryIdempotency{entries: entries, ttl: ttl, now: time.Now}, nil
}

func (m *MemoryIdempotency) Get(_ context.Context, key, prompt string) (models.GenerationResult, bool) {
	if m == nil || strings.TrimSpace(key) == "" {
		return models.GenerationResult{}, false
	}
	scoped := scopedKey(key, prompt)
	val, ok := m.entries.Get(scoped)
	if !ok {
		return models.GenerationResult{}, false
	}
	entry := val.(memoryEntry)
	if m.now().After(entry.expiresAt) {
		m.entries.Remove(scoped)
		return models.GenerationResult{}, false
	}
	return entry.result, true
}

func (m *MemoryIdempotency) Set(_ context.Context, key, prompt string, result models.GenerationResult) error {
	if m == nil || strings.TrimSpace(key) == "" || result.URL == "" {
		return nil
	}
	m.entries.Add(scopedKey(key, prompt), memoryEntry{result: result, expiresAt: m.now().Add(m.ttl)})
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (m *MemoryIdempotency) Len() int {
	if m == nil {
		return 0
	}
	return m.entries.Len()
}
