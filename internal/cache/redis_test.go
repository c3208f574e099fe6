// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedis(RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })
	return c
}

func TestRedisCacheSetGet(t *testing.T) {
	c := newTestRedis(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, "snapshot:front:0")
	assert.False(t, ok)

	c.Set(ctx, "snapshot:front:0", []byte("jpeg"), time.Minute)
	got, ok := c.Get(ctx, "snapshot:front:0")
	require.True(t, ok)
	assert.Equal(t, []byte("jpeg"), got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestRedisCacheKeysAreNamespaced(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewRedis(RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close()) }()

	c.Set(context.Background(), "k", []byte("v"), time.Minute)
	assert.True(t, mr.Exists("reovod:k"))
}

func TestRedisCacheExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewRedis(RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close()) }()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), 30*time.Second)
	mr.FastForward(time.Minute)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisCacheDelete(t *testing.T) {
	c := newTestRedis(t)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Delete(ctx, "k")
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisCachePing(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewRedis(RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close()) }()

	require.NoError(t, c.Ping(context.Background()))
}

func TestRedisUnreachable(t *testing.T) {
	_, err := NewRedis(RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
