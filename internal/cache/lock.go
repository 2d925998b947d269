package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

const (
	lockPrefix     = "imagegen:idem-lock:"
	defaultLockTTL = 2 * time.Minute
)

// ErrInFlight reports that another instance is already generating for the
// same idempotency key and prompt.
var ErrInFlight = errors.New("request with this idempotency key is already in progress")

// KeyLock serialises generations that share an idempotency key across
// gateway instances.
type KeyLock struct {
	rs  *redsync.Redsync
	ttl time.Duration
}

// NewKeyLock returns nil when client is nil; a nil KeyLock never blocks.
func NewKeyLock(client *redis.Client, ttl time.Duration) *KeyLock {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &KeyLock{rs: redsync.New(goredis.NewPool(client)), ttl: ttl}
}

// Acquire takes the lock for key and prompt without waiting. The returned
// release func is always non-nil when err is nil.
func (l *KeyLock) Acquire(ctx context.Context, key, prompt string) (func(), error) {
	noop := func() {}
	if l == nil || strings.TrimSpace(key) == "" {
		return noop, nil
	}

	mutex := l.rs.NewMutex(lockPrefix+scopedKey(key, prompt),
		redsync.WithExpiry(l.ttl),
		redsync.WithTries(1),
	)
	if err := mutex.TryLockContext(ctx); err != nil {
		if lockHeld(err) {
			return nil, ErrInFlight
		}
		return nil, err
	}

	return func() {
		if _, err := mutex.UnlockContext(context.WithoutCancel(ctx)); err != nil {
			slog.Default().Warn("release idempotency lock failed", slog.String("error", err.Error()))
		}
	}, nil
}

func lockHeld(err error) bool {
	var taken *redsync.ErrTaken
	if errors.As(err, &taken) {
		return true
	}
	var nodeTaken *redsync.ErrNodeTaken
	if errors.As(err, &nodeTaken) {
		return true
	}
	return errors.Is(err, redsync.ErrFailed)
}
