package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/taskflow-hq/taskflow/internal/platform/config"
	"github.com/taskflow-hq/taskflow/internal/search/domain/repository"
)

// RedisCache implements the sorted-set store and distributed locks on Redis
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
}

var _ repository.SortedSetStore = (*RedisCache)(nil)

// NewRedisCache creates a new Redis cache
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewFromClient(client, cfg.KeyPrefix), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client, keyPrefix string) *RedisCache {
	return &RedisCache{client: client, keyPrefix: keyPrefix}
}

// ZAdd sets the score of member, inserting it if absent
func (c *RedisCache) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := c.client.ZAdd(ctx, c.buildKey(key), redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("failed to add to sorted set: %w", err)
	}
	return nil
}

// ZIncrBy adds increment to the score of member
func (c *RedisCache) ZIncrBy(ctx context.Context, key string, increment float64, member string) error {
	if err := c.client.ZIncrBy(ctx, c.buildKey(key), increment, member).Err(); err != nil {
		return fmt.Errorf("failed to increment sorted set member: %w", err)
	}
	return nil
}

// ZRevRangeWithScores returns members ordered from highest to lowest score
func (c *RedisCache) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]repository.ScoredMember, error) {
	zs, err := c.client.ZRevRangeWithScores(ctx, c.buildKey(key), start, stop).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []repository.ScoredMember{}, nil
		}
		return nil, fmt.Errorf("failed to read sorted set: %w", err)
	}

	members := make([]repository.ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			member = fmt.Sprint(z.Member)
		}
		members = append(members, repository.ScoredMember{Member: member, Score: z.Score})
	}
	return members, nil
}

// ZRemRangeByRank removes members by ascending rank
func (c *RedisCache) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error {
	if err := c.client.ZRemRangeByRank(ctx, c.buildKey(key), start, stop).Err(); err != nil {
		return fmt.Errorf("failed to trim sorted set: %w", err)
	}
	return nil
}

// ZRem removes members
func (c *RedisCache) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := c.client.ZRem(ctx, c.buildKey(key), args...).Err(); err != nil {
		return fmt.Errorf("failed to remove from sorted set: %w", err)
	}
	return nil
}

// ZCard returns the number of members
func (c *RedisCache) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := c.client.ZCard(ctx, c.buildKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count sorted set: %w", err)
	}
	return n, nil
}

// Expire sets expiration for a key
func (c *RedisCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.client.Expire(ctx, c.buildKey(key), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set expiration: %w", err)
	}
	return nil
}

// Delete removes a key
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.buildKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete from cache: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}
	return nil
}

// Health checks the health of the cache
func (c *RedisCache) Health(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// buildKey builds the full cache key with prefix
func (c *RedisCache) buildKey(key string) string {
	if c.keyPrefix != "" {
		return fmt.Sprintf("%s:%s", c.keyPrefix, key)
	}
	return key
}

// Lock implements distributed locking using Redis
type Lock struct {
	cache *RedisCache
	key   string
	value string
	ttl   time.Duration
}

// NewLock creates a new distributed lock
func (c *RedisCache) NewLock(key string, ttl time.Duration) *Lock {
	return &Lock{
		cache: c,
		key:   fmt.Sprintf("lock:%s", key),
		value: uuid.NewString(),
		ttl:   ttl,
	}
}

// Acquire tries to acquire the lock
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.cache.client.SetNX(ctx, l.cache.buildKey(l.key), l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release releases the lock if it is still held by this owner
func (l *Lock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.cache.client, []string{l.cache.buildKey(l.key)}, l.value).Err()
}
