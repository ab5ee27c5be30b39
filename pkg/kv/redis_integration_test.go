//go:build integration

package kv_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dealrush/dealrush/pkg/kv"
	"github.com/dealrush/dealrush/pkg/redis"
)

const testRedisURL = "redis://localhost:6379/0"

func newTestRedisStore(t *testing.T) *kv.Redis {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = testRedisURL
	}

	ctx := context.Background()
	client, err := redis.Open(ctx, url)
	require.NoError(t, err, "failed to connect to Redis")

	t.Cleanup(func() {
		_ = client.FlushDB(ctx).Err()
		_ = client.Close()
	})

	return kv.NewRedis(client)
}

func TestRedisStore_GetSet(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrNotFound for missing key", func(t *testing.T) {
		t.Parallel()

		s := newTestRedisStore(t)
		_, err := s.Get(context.Background(), "it:missing")
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("round-trips a value with TTL", func(t *testing.T) {
		t.Parallel()

		s := newTestRedisStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "it:key", []byte("value"), time.Minute))

		got, err := s.Get(ctx, "it:key")
		require.NoError(t, err)
		require.Equal(t, []byte("value"), got)
	})

	t.Run("empty value round-trips as empty, not absent", func(t *testing.T) {
		t.Parallel()

		// Null markers depend on this distinction.
		s := newTestRedisStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "it:null", nil, time.Minute))

		got, err := s.Get(ctx, "it:null")
		require.NoError(t, err)
		require.Empty(t, got)
	})
}

func TestRedisStore_SetNX(t *testing.T) {
	t.Parallel()

	s := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "it:lock", []byte("a"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.SetNX(ctx, "it:lock", []byte("b"), time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStore_CompareAndDelete(t *testing.T) {
	t.Parallel()

	s := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "it:cad", []byte("token"), time.Minute))

	ok, err := s.CompareAndDelete(ctx, "it:cad", []byte("wrong"))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.CompareAndDelete(ctx, "it:cad", []byte("token"))
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.Get(ctx, "it:cad")
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func TestRedisStore_Incr(t *testing.T) {
	t.Parallel()

	s := newTestRedisStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := s.Incr(ctx, "it:counter")
		require.NoError(t, err)
		require.Equal(t, i, n)
	}
}
