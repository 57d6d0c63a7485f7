package idempotency

import (
	"context"
	"time"
)

// Outcome is the cached result of a completed operation. It is written once
// per storage key and never updated in place.
type Outcome struct {
	StatusCode  int    `json:"statusCode"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body"`
	BodyHash    string `json:"bodyHash,omitempty"`
}

// Store is the shared state the coordinator synchronises through. Keys are
// storage keys from DeriveKey; lock markers live under LockKey(key).
// I/O failures must be reported as KindStoreUnavailable errors.
type Store interface {
	Get(ctx context.Context, key string) (Outcome, bool, error)
	Put(ctx context.Context, key string, outcome Outcome, ttl time.Duration) error
	// TryLock atomically creates the lock marker if it is absent.
	TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Unlock removes the lock marker if owner still holds it. A missing marker is not an error.
	Unlock(ctx context.Context, key, owner string) error
}

const (
	defaultOutcomeTTL = time.Hour
	defaultLockTTL    = 30 * time.Second
)
