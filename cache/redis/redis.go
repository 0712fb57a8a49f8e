// Package redis implements sentinel.Cache over Redis (or a Redis-protocol
// compatible store such as DragonflyDB), the best-effort Cache (§4.B)
// fronted by the Circuit Breaker.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	sentinel "github.com/agentlens/sentinel"
)

// Cache implements sentinel.Cache over a go-redis client.
type Cache struct {
	client *goredis.Client
}

var _ sentinel.Cache = (*Cache)(nil)

// New parses url (redis://[user:pass@]host:port/db) and connects.
func New(url string) (*Cache, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	return &Cache{client: goredis.NewClient(opts)}, nil
}

// NewWithClient wraps an already-configured go-redis client, for callers
// that need options ParseURL cannot express (custom dialers, TLS configs).
func NewWithClient(client *goredis.Client) *Cache {
	return &Cache{client: client}
}

func wrap(op string, err error) error {
	if err == nil || err == goredis.Nil {
		return nil
	}
	return &sentinel.CacheUnavailableError{Op: op, Err: err}
}

func (c *Cache) Set(ctx context.Context, key, value string) error {
	return wrap("set", c.client.Set(ctx, key, value, 0).Err())
}

func (c *Cache) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	return wrap("setex", c.client.Set(ctx, key, value, ttl).Err())
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, &sentinel.CacheUnavailableError{Op: "get", Err: err}
	}
	return v, true, nil
}

func (c *Cache) Del(ctx context.Context, key string) error {
	return wrap("del", c.client.Del(ctx, key).Err())
}

func (c *Cache) HSet(ctx context.Context, key, field, value string) error {
	return wrap("hset", c.client.HSet(ctx, key, field, value).Err())
}

func (c *Cache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	v, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, &sentinel.CacheUnavailableError{Op: "hgetall", Err: err}
	}
	return v, nil
}

func (c *Cache) HIncrBy(ctx context.Context, key, field string, delta int64) error {
	return wrap("hincrby", c.client.HIncrBy(ctx, key, field, delta).Err())
}

func (c *Cache) HIncrByFloat(ctx context.Context, key, field string, delta float64) error {
	return wrap("hincrbyfloat", c.client.HIncrByFloat(ctx, key, field, delta).Err())
}

func (c *Cache) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return wrap("sadd", c.client.SAdd(ctx, key, args...).Err())
}

func (c *Cache) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return wrap("srem", c.client.SRem(ctx, key, args...).Err())
}

func (c *Cache) SMembers(ctx context.Context, key string) ([]string, error) {
	v, err := c.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, &sentinel.CacheUnavailableError{Op: "smembers", Err: err}
	}
	return v, nil
}

func (c *Cache) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return wrap("zadd", c.client.ZAdd(ctx, key, goredis.Z{Score: score, Member: member}).Err())
}

func (c *Cache) ZIncrBy(ctx context.Context, key string, delta float64, member string) error {
	return wrap("zincrby", c.client.ZIncrBy(ctx, key, delta, member).Err())
}

func (c *Cache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return wrap("expire", c.client.Expire(ctx, key, ttl).Err())
}

func (c *Cache) LPush(ctx context.Context, key string, values ...string) error {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return wrap("lpush", c.client.LPush(ctx, key, args...).Err())
}

func (c *Cache) LTrim(ctx context.Context, key string, start, stop int64) error {
	return wrap("ltrim", c.client.LTrim(ctx, key, start, stop).Err())
}

func (c *Cache) Ping(ctx context.Context) error {
	return wrap("ping", c.client.Ping(ctx).Err())
}

func (c *Cache) Close() error {
	return c.client.Close()
}
