package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := New("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSetAndGet(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", "v1"))
	v, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", v)

	_, ok, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHIncrByAccumulates(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	require.NoError(t, c.HIncrBy(ctx, "hourly:2026-01-01T00", "debugger:count", 1))
	require.NoError(t, c.HIncrBy(ctx, "hourly:2026-01-01T00", "debugger:count", 2))

	all, err := c.HGetAll(ctx, "hourly:2026-01-01T00")
	require.NoError(t, err)
	require.Equal(t, "3", all["debugger:count"])
}

func TestSetAndRemoveMembers(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	require.NoError(t, c.SAdd(ctx, "agents:active", "a1", "a2"))
	members, err := c.SMembers(ctx, "agents:active")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a1", "a2"}, members)

	require.NoError(t, c.SRem(ctx, "agents:active", "a1"))
	members, err = c.SMembers(ctx, "agents:active")
	require.NoError(t, err)
	require.Equal(t, []string{"a2"}, members)
}

func TestExpireSetsTTL(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", "v1"))
	require.NoError(t, c.Expire(ctx, "k1", time.Minute))
}

func TestPingFailsAfterClose(t *testing.T) {
	c := testCache(t)
	require.NoError(t, c.Ping(context.Background()))
	require.NoError(t, c.Close())

	err := c.Ping(context.Background())
	require.Error(t, err)
}
