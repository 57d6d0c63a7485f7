package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errStoreDown = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

type storeSpy struct {
	inner Store

	mu sync.Mutex

	getCalls     int
	putCalls     int
	tryLockCalls int
	unlockCalls  int

	failGet     bool
	failPut     bool
	failTryLock bool
	// missFirstGet hides an existing outcome from the first lookup only.
	missFirstGet bool
}

func newStoreSpy(inner Store) *storeSpy {
	return &storeSpy{inner: inner}
}

func (s *storeSpy) Get(ctx context.Context, key string) (Outcome, bool, error) {
	s.mu.Lock()
	s.getCalls++
	fail := s.failGet
	miss := s.missFirstGet && s.getCalls == 1
	s.mu.Unlock()

	if fail {
		return Outcome{}, false, storeUnavailable("idempotency get", errStoreDown)
	}
	if miss {
		return Outcome{}, false, nil
	}
	return s.inner.Get(ctx, key)
}

func (s *storeSpy) Put(ctx context.Context, key string, outcome Outcome, ttl time.Duration) error {
	s.mu.Lock()
	s.putCalls++
	fail := s.failPut
	s.mu.Unlock()

	if fail {
		return storeUnavailable("idempotency put", errStoreDown)
	}
	return s.inner.Put(ctx, key, outcome, ttl)
}

func (s *storeSpy) TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	s.tryLockCalls++
	fail := s.failTryLock
	s.mu.Unlock()

	if fail {
		return false, storeUnavailable("idempotency lock", errStoreDown)
	}
	return s.inner.TryLock(ctx, key, owner, ttl)
}

func (s *storeSpy) Unlock(ctx context.Context, key, owner string) error {
	s.mu.Lock()
	s.unlockCalls++
	s.mu.Unlock()

	return s.inner.Unlock(ctx, key, owner)
}

type storeSpySnapshot struct {
	GetCalls     int
	PutCalls     int
	TryLockCalls int
	UnlockCalls  int
}

func (s *storeSpy) Snapshot() storeSpySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return storeSpySnapshot{
		GetCalls:     s.getCalls,
		PutCalls:     s.putCalls,
		TryLockCalls: s.tryLockCalls,
		UnlockCalls:  s.unlockCalls,
	}
}
