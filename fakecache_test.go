package sentinel

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeCache is an in-memory Cache implementation used across unit tests.
// HIncrBy, HIncrByFloat, Expire and LTrim only record the call and leave
// stored values unchanged. Any key listed in failKeys causes every operation against it to
// fail, simulating an unreachable cache for specific aggregate keys.
type fakeCache struct {
	mu        sync.Mutex
	strings   map[string]string
	hashes    map[string]map[string]string
	sets      map[string]map[string]bool
	zsets     map[string]map[string]float64
	lists     map[string][]string
	failKeys  map[string]bool
	up        bool
	calls     []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		strings: make(map[string]string),
		hashes:  make(map[string]map[string]string),
		sets:    make(map[string]map[string]bool),
		zsets:   make(map[string]map[string]float64),
		lists:   make(map[string][]string),
		up:      true,
	}
}

func (c *fakeCache) fail(key string) error {
	if c.failKeys[key] {
		return errors.New("fakeCache: simulated failure for " + key)
	}
	return nil
}

func (c *fakeCache) record(call string) { c.calls = append(c.calls, call) }

func (c *fakeCache) Set(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("set:" + key)
	if err := c.fail(key); err != nil {
		return err
	}
	c.strings[key] = value
	return nil
}

func (c *fakeCache) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.Set(ctx, key, value)
}

func (c *fakeCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("get:" + key)
	if err := c.fail(key); err != nil {
		return "", false, err
	}
	v, ok := c.strings[key]
	return v, ok, nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("del:" + key)
	if err := c.fail(key); err != nil {
		return err
	}
	delete(c.strings, key)
	delete(c.hashes, key)
	delete(c.sets, key)
	delete(c.zsets, key)
	delete(c.lists, key)
	return nil
}

func (c *fakeCache) HSet(ctx context.Context, key, field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("hset:" + key + ":" + field)
	if err := c.fail(key); err != nil {
		return err
	}
	if c.hashes[key] == nil {
		c.hashes[key] = make(map[string]string)
	}
	c.hashes[key][field] = value
	return nil
}

func (c *fakeCache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail(key); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(c.hashes[key]))
	for k, v := range c.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (c *fakeCache) HIncrBy(ctx context.Context, key, field string, delta int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("hincrby:" + key + ":" + field)
	if err := c.fail(key); err != nil {
		return err
	}
	if c.hashes[key] == nil {
		c.hashes[key] = make(map[string]string)
	}
	return nil
}

func (c *fakeCache) HIncrByFloat(ctx context.Context, key, field string, delta float64) error {
	return c.HIncrBy(ctx, key, field, int64(delta))
}

func (c *fakeCache) SAdd(ctx context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("sadd:" + key)
	if err := c.fail(key); err != nil {
		return err
	}
	if c.sets[key] == nil {
		c.sets[key] = make(map[string]bool)
	}
	for _, m := range members {
		c.sets[key][m] = true
	}
	return nil
}

func (c *fakeCache) SRem(ctx context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("srem:" + key)
	if err := c.fail(key); err != nil {
		return err
	}
	for _, m := range members {
		delete(c.sets[key], m)
	}
	return nil
}

func (c *fakeCache) SMembers(ctx context.Context, key string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail(key); err != nil {
		return nil, err
	}
	var out []string
	for m := range c.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

func (c *fakeCache) ZAdd(ctx context.Context, key string, score float64, member string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("zadd:" + key)
	if err := c.fail(key); err != nil {
		return err
	}
	if c.zsets[key] == nil {
		c.zsets[key] = make(map[string]float64)
	}
	c.zsets[key][member] = score
	return nil
}

func (c *fakeCache) ZIncrBy(ctx context.Context, key string, delta float64, member string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("zincrby:" + key)
	if err := c.fail(key); err != nil {
		return err
	}
	if c.zsets[key] == nil {
		c.zsets[key] = make(map[string]float64)
	}
	c.zsets[key][member] += delta
	return nil
}

func (c *fakeCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("expire:" + key)
	return c.fail(key)
}

func (c *fakeCache) LPush(ctx context.Context, key string, values ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("lpush:" + key)
	if err := c.fail(key); err != nil {
		return err
	}
	c.lists[key] = append(values, c.lists[key]...)
	return nil
}

func (c *fakeCache) LTrim(ctx context.Context, key string, start, stop int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("ltrim:" + key)
	return c.fail(key)
}

func (c *fakeCache) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.up {
		return errors.New("fakeCache: down")
	}
	return nil
}

func (c *fakeCache) Close() error { return nil }

var _ Cache = (*fakeCache)(nil)
