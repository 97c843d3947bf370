package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyStore remembers which idempotency keys were delivered.
type KeyStore interface {
	// Claim records key for ttl. It returns false when the key is already held.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release forgets key so a later delivery may claim it again.
	Release(ctx context.Context, key string) error
}

// MemoryKeyStore is an in-process KeyStore. Keys expire lazily.
type MemoryKeyStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

// NewMemoryKeyStore creates an empty MemoryKeyStore.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[string]time.Time), now: time.Now}
}

// Claim implements KeyStore. A zero ttl holds the key forever.
func (m *MemoryKeyStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if exp, ok := m.keys[key]; ok && (exp.IsZero() || now.Before(exp)) {
		return false, nil
	}

	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	m.keys[key] = exp

	// Opportunistic sweep so the map does not grow without bound.
	if len(m.keys)%256 == 0 {
		for k, e := range m.keys {
			if !e.IsZero() && !now.Before(e) {
				delete(m.keys, k)
			}
		}
	}
	return true, nil
}

// Release implements KeyStore.
func (m *MemoryKeyStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

// Len returns the number of held keys, expired ones included.
func (m *MemoryKeyStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

// RedisKeyStore is a KeyStore shared by every replica through Redis SET NX.
//
// Example:
//
//	keys := notify.NewRedisKeyStore(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    "triage",
//	)
type RedisKeyStore struct {
	client *redis.Client
	prefix string
}

// NewRedisKeyStore creates a RedisKeyStore. Keys are stored as
// "<prefix>:notify:<key>"; an empty prefix defaults to "triage".
func NewRedisKeyStore(client *redis.Client, prefix string) *RedisKeyStore {
	if prefix == "" {
		prefix = "triage"
	}
	return &RedisKeyStore{client: client, prefix: prefix}
}

func (r *RedisKeyStore) redisKey(key string) string {
	return fmt.Sprintf("%s:notify:%s", r.prefix, key)
}

// Claim implements KeyStore.
func (r *RedisKeyStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.redisKey(key), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

// Release implements KeyStore.
func (r *RedisKeyStore) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection.
func (r *RedisKeyStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
