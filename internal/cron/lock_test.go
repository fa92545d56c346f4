package cron

import (
	"context"
	"sync"
	"testing"
	"time"
)

type memoryRedis struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{keys: map[string]string{}}
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = value.(string)
	return true, nil
}

func (m *memoryRedis) DelIfValue(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] != value {
		return false, nil
	}
	delete(m.keys, key)
	return true, nil
}

func (m *memoryRedis) LockKey(scope, id string) string { return "sourcing:lock:" + scope + ":" + id }

func TestRedisLockIsExclusiveAcrossWorkers(t *testing.T) {
	ctx := context.Background()
	store := newMemoryRedis()
	a, err := NewRedisLock(store, "prod", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	b, _ := NewRedisLock(store, "prod", 0)

	if ok, err := a.Acquire(ctx); err != nil || !ok {
		t.Fatalf("expected a to acquire, ok=%v err=%v", ok, err)
	}
	if ok, _ := b.Acquire(ctx); ok {
		t.Fatal("expected b to lose")
	}
	// b never owned the key, so its release must not free a's lock
	if err := b.Release(ctx); err != nil {
		t.Fatalf("release b: %v", err)
	}
	if _, held := store.keys["sourcing:lock:cron:prod"]; !held {
		t.Fatal("foreign release freed the lock")
	}
	if err := a.Release(ctx); err != nil {
		t.Fatalf("release a: %v", err)
	}
	if ok, _ := b.Acquire(ctx); !ok {
		t.Fatal("expected b to acquire after release")
	}
}

func TestLocalLock(t *testing.T) {
	lock := NewLocalLock()
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected first acquire")
	}
	if ok, _ := lock.Acquire(ctx); ok {
		t.Fatal("expected overlapping acquire to fail")
	}
	_ = lock.Release(ctx)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire after release")
	}
}
