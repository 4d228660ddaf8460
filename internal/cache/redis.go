package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/toonranks/toonranks/pkg/config"
	"github.com/toonranks/toonranks/pkg/logging"
)

const keyPrefix = "toonranks:"

// Cache wraps Redis client
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a new Redis cache client. A disabled cache is returned as nil;
// every method on a nil *Cache reports ErrCacheDisabled.
func New(cfg *config.RedisConfig) (*Cache, error) {
	if !cfg.Enabled {
		logging.GetLogger().Info("Redis cache disabled")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetLogger().Info("Redis connection established")

	return NewWithClient(client, cfg.TTL), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

// HashKey shortens arbitrary key parts into a stable MD5 hex digest
func HashKey(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) namespaceKey(key string) string {
	return keyPrefix + key
}

// TTL returns the default expiry for cached entries
func (c *Cache) TTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}

// Get retrieves a value from cache
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	if c == nil || c.client == nil {
		return "", ErrCacheDisabled
	}
	val, err := c.client.Get(ctx, c.namespaceKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

// Set sets a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	return c.client.Set(ctx, c.namespaceKey(key), value, ttl).Err()
}

// GetJSON decodes a cached JSON value into dest
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	raw, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), dest)
}

// SetJSON stores value as JSON; ttl <= 0 uses the cache default
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	return c.Set(ctx, key, data, ttl)
}

// Delete removes keys from cache
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	namespaced := make([]string, len(keys))
	for i, k := range keys {
		namespaced[i] = c.namespaceKey(k)
	}
	return c.client.Del(ctx, namespaced...).Err()
}

// DeletePrefix removes every key starting with prefix
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	iter := c.client.Scan(ctx, 0, c.namespaceKey(prefix)+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Exists checks if a key exists
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if c == nil || c.client == nil {
		return false, ErrCacheDisabled
	}
	count, err := c.client.Exists(ctx, c.namespaceKey(key)).Result()
	return count > 0, err
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Health checks Redis health
func (c *Cache) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	return c.client.Ping(ctx).Err()
}

var (
	// ErrCacheDisabled is returned when cache operations are attempted but cache is disabled
	ErrCacheDisabled = errors.New("cache is disabled")
	// ErrCacheMiss is returned when a key is absent
	ErrCacheMiss = errors.New("cache miss")
)
