package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T) (*KeyLock, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewKeyLock(client, time.Minute), server
}

func TestKeyLockRejectsConcurrentHolder(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	release, err := lock.Acquire(ctx, "key-1", "castle at dusk")
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, "key-1", "castle at dusk")
	require.ErrorIs(t, err, ErrInFlight)

	otherRelease, err := lock.Acquire(ctx, "key-1", "a different prompt")
	require.NoError(t, err)
	otherRelease()

	release()
	again, err := lock.Acquire(ctx, "key-1", "castle at dusk")
	require.NoError(t, err)
	again()
}

func TestKeyLockExpires(t *testing.T) {
	lock, server := newTestLock(t)
	ctx := context.Background()

	_, err := lock.Acquire(ctx, "key-2", "fox")
	require.NoError(t, err)

	server.FastForward(2 * time.Minute)
	release, err := lock.Acquire(ctx, "key-2", "fox")
	require.NoError(t, err)
	release()
}

func TestKeyLockNoopWithoutRedisOrKey(t *testing.T) {
	var lock *KeyLock
	release, err := lock.Acquire(context.Background(), "k", "p")
	require.NoError(t, err)
	release()

	require.Nil(t, NewKeyLock(nil, time.Second))

	withRedis, _ := newTestLock(t)
	release, err = withRedis.Acquire(context.Background(), " ", "p")
	require.NoError(t, err)
	release()
}

func TestKeyLockSurfacesRedisErrors(t *testing.T) {
	lock, server := newTestLock(t)
	server.Close()

	_, err := lock.Acquire(context.Background(), "k", "p")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInFlight)
}
