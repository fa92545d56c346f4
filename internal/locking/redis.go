package locking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
	"github.com/angelmondragon/sourcing-engine/pkg/logger"
)

const (
	defaultLockTTL    = 30 * time.Second
	defaultWait       = 5 * time.Second
	defaultRetryEvery = 50 * time.Millisecond
)

// redisStore defines the operations used by RedisLocker.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	LockKey(scope, id string) string
}

// RedisOptions tune lock acquisition.
type RedisOptions struct {
	Scope      string
	TTL        time.Duration
	Wait       time.Duration
	RetryEvery time.Duration
	Logger     *logger.Logger
}

// RedisLocker implements Locker with Redis SETNX + TTL so several API
// instances agree on a single owner per key.
type RedisLocker struct {
	client     redisStore
	scope      string
	ttl        time.Duration
	wait       time.Duration
	retryEvery time.Duration
	logg       *logger.Logger
}

// NewRedisLocker constructs a Redis-backed locker.
func NewRedisLocker(client redisStore, opts RedisOptions) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if opts.Scope == "" {
		return nil, errors.New("lock scope is required")
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultLockTTL
	}
	if opts.Wait <= 0 {
		opts.Wait = defaultWait
	}
	if opts.RetryEvery <= 0 {
		opts.RetryEvery = defaultRetryEvery
	}
	return &RedisLocker{
		client:     client,
		scope:      opts.Scope,
		ttl:        opts.TTL,
		wait:       opts.Wait,
		retryEvery: opts.RetryEvery,
		logg:       opts.Logger,
	}, nil
}

// Lock polls SETNX until it owns the key, the wait budget runs out or ctx ends.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lock key is required")
	}
	redisKey := l.client.LockKey(l.scope, key)
	owner := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(l.retryEvery)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(waitCtx, redisKey, owner, l.ttl)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, fmt.Errorf("setnx: %w", err), "lock unavailable")
		}
		if ok {
			return l.unlockFunc(redisKey, owner), nil
		}
		select {
		case <-waitCtx.Done():
			return nil, pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, waitCtx.Err(), "lock held by another operation")
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) unlockFunc(key, owner string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, owner) })
	}
}

// release runs on a fresh context so a cancelled caller still frees the key.
func (l *RedisLocker) release(key, owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := l.client.DelIfValue(ctx, key, owner); err != nil && l.logg != nil {
		l.logg.Error(l.logg.WithField(ctx, "lock_key", key), "failed to release lock", err)
	}
}
