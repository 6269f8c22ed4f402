package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// errCacheMiss is returned by Cache.Get when the key is absent.
var errCacheMiss = errors.New("cache miss")

// CacheOptions configures the Redis connection.
type CacheOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// Cache is a short-lived Redis cache in front of the settings store.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCache connects to Redis. The connection is lazy; call Ping to verify it.
func NewCache(opts CacheOptions) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return newCacheWithClient(rdb, opts.TTL, opts.Prefix)
}

func newCacheWithClient(rdb *redis.Client, ttl time.Duration, prefix string) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if prefix == "" {
		prefix = "flowbook:settings:"
	}
	return &Cache{client: rdb, ttl: ttl, prefix: prefix}
}

// Ping tests the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Get returns a cached value or errCacheMiss.
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	v, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", errCacheMiss
	}
	return v, err
}

// Set caches a value for the configured TTL.
func (c *Cache) Set(ctx context.Context, key, value string) error {
	return c.client.Set(ctx, c.prefix+key, value, c.ttl).Err()
}

// Del drops a cached value.
func (c *Cache) Del(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}
