package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marcus7i/ulinks/internal"
)

const defaultKeyPrefix = "ulinks:ip:"

// RedisCache keeps lookups in Redis. Keys expire on their own once the
// freshness window has passed, on top of the enricher's own timestamp check.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

var _ Cache = (*RedisCache)(nil)

type RedisConfig struct {
	URL       string
	KeyPrefix string
	TTL       time.Duration
}

func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultFreshness
	}
	return &RedisCache{client: client, keyPrefix: prefix, ttl: ttl}, nil
}

func (c *RedisCache) key(ip string) string { return c.keyPrefix + ip }

func (c *RedisCache) Get(ctx context.Context, ip string) (*internal.IPLookup, error) {
	data, err := c.client.Get(ctx, c.key(ip)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var lookup internal.IPLookup
	if err := json.Unmarshal(data, &lookup); err != nil {
		return nil, fmt.Errorf("decode cached lookup: %w", err)
	}
	return &lookup, nil
}

func (c *RedisCache) Upsert(ctx context.Context, lookup *internal.IPLookup) error {
	data, err := json.Marshal(lookup)
	if err != nil {
		return fmt.Errorf("encode lookup: %w", err)
	}
	if err := c.client.Set(ctx, c.key(lookup.IPAddress), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error { return c.client.Close() }
