package password

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	rdb "github.com/redis/go-redis/v9"

	"github.com/fordlabs/retroquest-notifier/pkg/config"
)

// UsedTokenStore remembers consumed token IDs until they would have expired anyway.
type UsedTokenStore interface {
	// MarkUsed records id and reports whether it was not already recorded.
	MarkUsed(ctx context.Context, id string, ttl time.Duration) (bool, error)
	IsUsed(ctx context.Context, id string) (bool, error)
}

// MemoryStore keeps used token IDs in process memory.
type MemoryStore struct{ c *gocache.Cache }

func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{c: gocache.New(defaultTTL, time.Minute)}
}

func (m *MemoryStore) MarkUsed(_ context.Context, id string, ttl time.Duration) (bool, error) {
	// Add fails when the key exists, which is exactly the single-use check.
	if err := m.c.Add(id, struct{}{}, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *MemoryStore) IsUsed(_ context.Context, id string) (bool, error) {
	_, ok := m.c.Get(id)
	return ok, nil
}

const redisKeyPrefix = "retroquest:password-reset:used:"

// RedisStore shares used token IDs between replicas.
type RedisStore struct{ c *rdb.Client }

func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{c: rdb.NewClient(&rdb.Options{Addr: addr, Password: password, DB: db})}
}

func redisKey(id string) string { return redisKeyPrefix + id }

func (r *RedisStore) MarkUsed(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := r.c.SetNX(ctx, redisKey(id), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (r *RedisStore) IsUsed(ctx context.Context, id string) (bool, error) {
	n, err := r.c.Exists(ctx, redisKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Close releases the Redis connection pool.
func (r *RedisStore) Close() error {
	return r.c.Close()
}

// NewStore builds the store selected by cfg.Store.
func NewStore(cfg config.PasswordReset, ttl time.Duration) (UsedTokenStore, error) {
	switch cfg.Store {
	case "", config.TokenStoreMemory:
		return NewMemoryStore(ttl), nil
	case config.TokenStoreRedis:
		if cfg.RedisAddress == "" {
			return nil, fmt.Errorf("passwordReset.redisAddress is required for the redis store")
		}
		return NewRedisStore(cfg.RedisAddress, cfg.RedisPassword, cfg.RedisDB), nil
	default:
		return nil, fmt.Errorf("unknown used token store %q", cfg.Store)
	}
}
