package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps outcomes and lock markers in Redis:
//
//	idempotency:{prefix:}{key}       -> JSON Outcome, SET EX
//	idempotency:{prefix:}{key}:lock  -> owner token, SET NX EX
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (Outcome, bool, error) {
	if err := validateKey(key); err != nil {
		return Outcome{}, false, err
	}
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Outcome{}, false, nil
		}
		return Outcome{}, false, storeUnavailable("idempotency get", err)
	}
	var outcome Outcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		// An unreadable entry is a miss; a fresh execution overwrites it.
		return Outcome{}, false, nil
	}
	return outcome, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, outcome Outcome, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = defaultOutcomeTTL
	}
	raw, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return storeUnavailable("idempotency put", err)
	}
	return nil
}

func (s *RedisStore) TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
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
	ok, err := s.client.SetNX(ctx, LockKey(key), owner, ttl).Result()
	if err != nil {
		return false, storeUnavailable("idempotency lock", err)
	}
	return ok, nil
}

func (s *RedisStore) Unlock(ctx context.Context, key, owner string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return errors.New("owner is required")
	}
	_, err := unlockScript.Run(ctx, s.client, []string{LockKey(key)}, owner).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return storeUnavailable("idempotency unlock", err)
	}
	return nil
}

var unlockScript = redis.NewScript(`
local existing = redis.call("GET", KEYS[1])
if not existing then
  return 0
end
if existing == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)
