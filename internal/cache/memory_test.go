package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ncecere/imagegen_gateway/internal/models"
)

func TestMemoryIdempotencyRoundTripAndExpiry(t *testing.T) {
	store, err := NewMemoryIdempotency(4, time.Minute)
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()
	result := models.GenerationResult{URL: "https://example.com/fox", Source: models.SourcePhotoFallback}

	require.NoError(t, store.Set(ctx, "k", "fox", result))
	got, ok := store.Get(ctx, "k", "fox ")
	require.True(t, ok)
	require.Equal(t, result, got)

	_, ok = store.Get(ctx, "k", "wolf")
	require.False(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = store.Get(ctx, "k", "fox")
	require.False(t, ok)
	require.Zero(t, store.Len())
}

func TestMemoryIdempotencyEvictsOldest(t *testing.T) {
	store, err := NewMemoryIdempotency(2, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	result := models.GenerationResult{URL: "https://example.com/x"}

	require.NoError(t, store.Set(ctx, "a", "p", result))
	require.NoError(t, store.Set(ctx, "b", "p", result))
	require.NoError(t, store.Set(ctx, "c", "p", result))

	_, ok := store.Get(ctx, "a", "p")
	require.False(t, ok)
	_, ok = store.Get(ctx, "c", "p")
	require.True(t, ok)
	require.Equal(t, 2, store.Len())
}

func TestMemoryIdempotencySkipsEmptyKeyAndResult(t *testing.T) {
	store, err := NewMemoryIdempotency(0, 0)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "", "p", models.GenerationResult{URL: "https://example.com/x"}))
	require.NoError(t, store.Set(ctx, "k", "p", models.GenerationResult{}))
	require.Zero(t, store.Len())

	var nilStore *MemoryIdempotency
	_, ok := nilStore.Get(ctx, "k", "p")
	require.False(t, ok)
}

func TestStoresImplementInterface(t *testing.T) {
	var _ Store = (*IdempotencyCache)(nil)
	var _ Store = (*MemoryIdempotency)(nil)
}
