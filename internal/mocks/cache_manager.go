// Package mocks holds testify mocks for modreg interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// CacheManager is a mock of cachemanager.CacheManager.
type CacheManager[K ~string, V any] struct {
	mock.Mock
}

// NewCacheManager creates a mock that asserts its expectations on cleanup.
func NewCacheManager[K ~string, V any](t interface {
	mock.TestingT
	Cleanup(func())
}) *CacheManager[K, V] {
	m := &CacheManager[K, V]{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *CacheManager[K, V]) Get(ctx context.Context, key K) (V, bool) {
	args := m.Called(ctx, key)
	var value V
	if v := args.Get(0); v != nil {
		value = v.(V)
	}
	return value, args.Bool(1)
}

func (m *CacheManager[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) {
	m.Called(ctx, key, value, ttl)
}

func (m *CacheManager[K, V]) Delete(ctx context.Context, keys ...K) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

func (m *CacheManager[K, V]) Flush(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *CacheManager[K, V]) ItemCount() int {
	args := m.Called()
	return args.Int(0)
}
