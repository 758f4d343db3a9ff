package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type movie struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

func exercise(t *testing.T, c Cache) {
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SetJSON(ctx, c, "m:603", movie{ID: 603, Title: "Matrix"}, time.Hour))
	var got movie
	ok, err = GetJSON(ctx, c, "m:603", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Matrix", got.Title)

	require.NoError(t, c.Delete(ctx, "m:603"))
	ok, err = GetJSON(ctx, c, "m:603", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "bad", []byte("{not json"), time.Hour))
	ok, err = GetJSON(ctx, c, "bad", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache(t *testing.T) {
	exercise(t, NewMemoryCache("test"))
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache("test")
	c.SetClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := NewRedisClientFrom(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer rc.Close()

	c := NewRedisCache(rc, "tmdb")
	exercise(t, c)

	require.NoError(t, c.Set(context.Background(), "ttl", []byte("v"), time.Minute))
	assert.True(t, mr.Exists("cinesync:tmdb:ttl"))
	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("cinesync:tmdb:ttl"))
}
