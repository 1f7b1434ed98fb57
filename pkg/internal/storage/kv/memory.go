package kv

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/yeisme/fsindex/pkg/configs"
)

// MemoryKV 基于 sync.Map 的进程内 KV，过期键在读取时惰性删除.
type MemoryKV struct {
	data sync.Map
	now  func() time.Time
}

// NewMemoryKV 创建内存 KV 实例.
func NewMemoryKV(context.Context, configs.KVConfig) (KVStore, error) {
	return &MemoryKV{now: time.Now}, nil
}

// Get 获取键的值.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := m.load(key)
	if !ok {
		return nil, ErrNotFound
	}

	result := make([]byte, len(value))
	copy(result, value)

	return result, nil
}

// load 读取并解开 TTL 包装，过期则删除.
func (m *MemoryKV) load(key string) ([]byte, bool) {
	raw, exists := m.data.Load(key)
	if !exists {
		return nil, false
	}

	b, ok := raw.([]byte)
	if !ok {
		return nil, false
	}

	value, expired, _, err := decodeWithTTL(b, m.now())
	if err != nil || expired {
		m.data.CompareAndDelete(key, raw)
		return nil, false
	}

	return value, true
}

// Set 设置键的值.
func (m *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	data, wrapped, err := encodeWithTTL(value, ttl, m.now())
	if err != nil {
		return err
	}

	if !wrapped {
		data = make([]byte, len(value))
		copy(data, value)
	}

	m.data.Store(key, data)

	return nil
}

// Delete 删除键.
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.data.Delete(key)
	return nil
}

// Exists 检查键是否存在.
func (m *MemoryKV) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.load(key)
	return ok, nil
}

// Keys 获取匹配 glob 模式的键.
func (m *MemoryKV) Keys(_ context.Context, pattern string) ([]string, error) {
	keys := make([]string, 0)

	m.data.Range(func(key, _ any) bool {
		k, ok := key.(string)
		if !ok {
			return true
		}

		if pattern != "" {
			if matched, _ := path.Match(pattern, k); !matched {
				return true
			}
		}

		if _, live := m.load(k); live {
			keys = append(keys, k)
		}

		return true
	})

	return keys, nil
}

// Close 关闭存储（内存实现无需操作）.
func (m *MemoryKV) Close() error {
	return nil
}

func init() {
	RegisterKVFactory(configs.KVTypeMemory, NewMemoryKV)
}
