package cachemanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type digest string

func TestInMemoryCacheManager_SetGet(t *testing.T) {
	cache := NewInMemoryCacheManager[digest, []byte]("blobs", DefaultExpiration, DefaultCleanupInterval)
	ctx := context.Background()

	cache.Set(ctx, "abc", []byte("payload"), DefaultExpiration)

	got, ok := cache.Get(ctx, "abc")
	require.True(t, ok)
	require.Equal(t, []byte("payload"), got)
	require.Equal(t, 1, cache.ItemCount())
}

func TestInMemoryCacheManager_Miss(t *testing.T) {
	cache := NewInMemoryCacheManager[digest, []byte]("blobs", DefaultExpiration, DefaultCleanupInterval)

	got, ok := cache.Get(context.Background(), "missing")
	require.False(t, ok)
	require.Nil(t, got)
}

func TestInMemoryCacheManager_WrongTypeIsAMiss(t *testing.T) {
	cache := NewInMemoryCacheManager[digest, []byte]("blobs", DefaultExpiration, DefaultCleanupInterval)
	cache.cache.Set("abc", 123, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "abc")
	require.False(t, ok)
	require.Nil(t, got)
}

func TestInMemoryCacheManager_DeleteAndFlush(t *testing.T) {
	cache := NewInMemoryCacheManager[digest, string]("names", DefaultExpiration, DefaultCleanupInterval)
	ctx := context.Background()

	cache.Set(ctx, "a", "1", DefaultExpiration)
	cache.Set(ctx, "b", "2", DefaultExpiration)

	require.NoError(t, cache.Delete(ctx))
	require.NoError(t, cache.Delete(ctx, "a"))
	_, ok := cache.Get(ctx, "a")
	require.False(t, ok)

	require.NoError(t, cache.Flush(ctx))
	require.Equal(t, 0, cache.ItemCount())
}
