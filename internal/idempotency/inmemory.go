package idempotency

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

type memoryItem struct {
	outcome   Outcome
	expiresAt time.Time
}

type lockItem struct {
	owner     string
	expiresAt time.Time
}

// InMemoryStore is a single-process Store. Expired entries are dropped lazily.
type InMemoryStore struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[string]memoryItem
	locks map[string]lockItem
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		now:   func() time.Time { return time.Now().UTC() },
		items: make(map[string]memoryItem),
		locks: make(map[string]lockItem),
	}
}

func (s *InMemoryStore) Get(_ context.Context, key string) (Outcome, bool, error) {
	if err := validateKey(key); err != nil {
		return Outcome{}, false, err
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok {
		return Outcome{}, false, nil
	}
	if now.After(item.expiresAt) {
		delete(s.items, key)
		return Outcome{}, false, nil
	}
	return cloneOutcome(item.outcome), true, nil
}

func (s *InMemoryStore) Put(_ context.Context, key string, outcome Outcome, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = defaultOutcomeTTL
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = memoryItem{
		outcome:   cloneOutcome(outcome),
		expiresAt: now.Add(ttl),
	}
	return nil
}

func (s *InMemoryStore) TryLock(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return false, errors.New("owner is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	now := s.now()
	lockKey := LockKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.locks[lockKey]
	if ok && now.Before(existing.expiresAt) {
		return false, nil
	}
	s.locks[lockKey] = lockItem{
		owner:     owner,
		expiresAt: now.Add(ttl),
	}
	return true, nil
}

func (s *InMemoryStore) Unlock(_ context.Context, key, owner string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return errors.New("owner is required")
	}

	lockKey := LockKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.locks[lockKey]
	if !ok || existing.owner != owner {
		return nil
	}
	delete(s.locks, lockKey)
	return nil
}

func cloneOutcome(src Outcome) Outcome {
	out := src
	out.Body = append([]byte(nil), src.Body...)
	return out
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("key is required")
	}
	return nil
}
