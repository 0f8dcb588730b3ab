package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired is returned when a lock cannot be acquired
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when trying to release a lock not held
	ErrLockNotHeld = errors.New("lock not held")
)

// Lock represents a distributed lock
type Lock struct {
	client *Client
	key    string
	value  string
	ttl    time.Duration
}

// Locker provides distributed locking so only one instance runs a scheduled
// job at a time
type Locker struct {
	client    *Client
	keyPrefix string
}

// NewLocker creates a new Locker
func NewLocker(client *Client, keyPrefix string) *Locker {
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	return &Locker{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Acquire attempts to acquire a lock
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	lockKey := l.keyPrefix + key
	lockValue := uuid.New().String()

	// SET NX: only the first caller wins
	ok, err := l.client.rdb.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.client.logger.WithContext(ctx).Debugf("Acquired lock: %s", key)

	return &Lock{
		client: l.client,
		key:    lockKey,
		value:  lockValue,
		ttl:    ttl,
	}, nil
}

// Release releases the lock
func (lock *Lock) Release(ctx context.Context) error {
	// Lua script so we only delete a lock we still own
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	result, err := script.Run(ctx, lock.client.rdb, []string{lock.key}, lock.value).Int64()
	if err != nil {
		return err
	}

	if result == 0 {
		return ErrLockNotHeld
	}

	lock.client.logger.WithContext(ctx).Debugf("Released lock: %s", lock.key)
	return nil
}

// WithLock executes a function while holding a lock
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	lock, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer lock.Release(ctx)

	return fn()
}
