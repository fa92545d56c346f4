package locking

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	var active, maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(context.Background(), "request-1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				cur := atomic.LoadInt32(&maxActive)
				if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxActive)
	}
	if m.size() != 0 {
		t.Fatalf("expected entries to be released, got %d", m.size())
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	m := NewKeyedMutex()
	unlockA, err := m.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	unlockB, err := m.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("different key should not block: %v", err)
	}
	unlockB()
}

func TestKeyedMutexContextCancel(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.Lock(ctx, "k"); !pkgerrors.IsCode(err, pkgerrors.CodeConcurrencyConflict) {
		t.Fatalf("expected concurrency conflict, got %v", err)
	}

	unlock()
	unlock()
	if m.size() != 0 {
		t.Fatalf("expected no tracked keys, got %d", m.size())
	}
}

type stubRedis struct {
	mu     sync.Mutex
	values map[string]string
	setErr error
	dels   int
}

func newStubRedis() *stubRedis {
	return &stubRedis{values: map[string]string{}}
}

func (s *stubRedis) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return false, s.setErr
	}
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = value.(string)
	return true, nil
}

func (s *stubRedis) DelIfValue(ctx context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values[key] != value {
		return false, nil
	}
	delete(s.values, key)
	s.dels++
	return true, nil
}

func (s *stubRedis) LockKey(scope, id string) string {
	return "sourcing:lock:" + scope + ":" + id
}

func TestRedisLockerAcquireAndRelease(t *testing.T) {
	store := newStubRedis()
	locker, err := NewRedisLocker(store, RedisOptions{Scope: "select-winner", Wait: 50 * time.Millisecond, RetryEvery: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}

	unlock, err := locker.Lock(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, ok := store.values["sourcing:lock:select-winner:req-1"]; !ok {
		t.Fatalf("expected namespaced key to be set")
	}

	if _, err := locker.Lock(context.Background(), "req-1"); !pkgerrors.IsCode(err, pkgerrors.CodeConcurrencyConflict) {
		t.Fatalf("expected contention to surface as concurrency conflict, got %v", err)
	}

	unlock()
	unlock()
	if store.dels != 1 {
		t.Fatalf("expected a single release, got %d", store.dels)
	}

	unlock, err = locker.Lock(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("relock after release: %v", err)
	}
	unlock()
}

func TestRedisLockerWaitsForRelease(t *testing.T) {
	store := newStubRedis()
	locker, _ := NewRedisLocker(store, RedisOptions{Scope: "s", Wait: time.Second, RetryEvery: 5 * time.Millisecond})

	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		unlock()
	}()

	second, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("expected waiter to acquire after release: %v", err)
	}
	second()
}

func TestNewRedisLockerValidation(t *testing.T) {
	if _, err := NewRedisLocker(nil, RedisOptions{Scope: "s"}); err == nil {
		t.Fatal("expected nil client to fail")
	}
	if _, err := NewRedisLocker(newStubRedis(), RedisOptions{}); err == nil {
		t.Fatal("expected empty scope to fail")
	}
}
