// Package cache 提供基于键值存储的泛型缓存实现.
//
// 值使用 sonic 编码为 JSON，过期由底层 KV 存储的 TTL 负责.
//
// 基本用法:
//
//	c := cache.NewCache(store, "fsi:")
//	err := cache.Set(ctx, c, "stats", stats, time.Minute)
//	stats, err := cache.Get[wire.IndexStats](ctx, c, "stats")
//
// 缓存未命中返回 kv.ErrNotFound；GetOrSet 把未命中视为正常路径.
// 线程安全性取决于底层 KV 存储，memory 与 redis 实现均可并发使用.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/yeisme/fsindex/pkg/internal/storage/kv"
)

// Cache 基于KV存储的缓存实现，所有键都带有 prefix.
type Cache struct {
	kvStore kv.KVStore
	prefix  string
}

// NewCache 创建一个新的缓存实例.
func NewCache(kvStore kv.KVStore, prefix string) *Cache {
	return &Cache{
		kvStore: kvStore,
		prefix:  prefix,
	}
}

func (c *Cache) key(k string) string { return c.prefix + k }

// Get 泛型获取缓存值.
func Get[T any](ctx context.Context, c *Cache, key string) (T, error) {
	var zero T

	data, err := c.kvStore.Get(ctx, c.key(key))
	if err != nil {
		return zero, err
	}

	var value T
	if err := sonic.Unmarshal(data, &value); err != nil {
		return zero, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	return value, nil
}

// Set 泛型设置缓存值.
func Set[T any](ctx context.Context, c *Cache, key string, value T, ttl time.Duration) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return c.kvStore.Set(ctx, c.key(key), data, ttl)
}

// Delete 删除缓存键.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.kvStore.Delete(ctx, c.key(key))
}

// Exists 检查缓存键是否存在.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	return c.kvStore.Exists(ctx, c.key(key))
}

// GetOrSet 获取缓存值，未命中或缓存不可用时调用 getter 并回填. hit 报告是否命中.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, getter func() (T, error), ttl time.Duration) (value T, hit bool, err error) {
	value, err = Get[T](ctx, c, key)
	if err == nil {
		return value, true, nil
	}

	value, err = getter()
	if err != nil {
		var zero T
		return zero, false, err
	}

	// 回填失败不影响结果.
	_ = Set(ctx, c, key, value, ttl)

	return value, false, nil
}

// Clear 删除带当前前缀的全部键.
func (c *Cache) Clear(ctx context.Context) error {
	keys, err := c.kvStore.Keys(ctx, c.prefix+"*")
	if err != nil {
		return err
	}

	var errs []error

	for _, key := range keys {
		if delErr := c.kvStore.Delete(ctx, key); delErr != nil && !errors.Is(delErr, kv.ErrNotFound) {
			errs = append(errs, delErr)
		}
	}

	return errors.Join(errs...)
}
