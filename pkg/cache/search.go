package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/yeisme/fsindex/pkg/internal/storage/kv"
	"github.com/yeisme/fsindex/pkg/internal/wire"
	"github.com/yeisme/fsindex/pkg/metrics"
)

// SearchCache 按 (索引代数, 查询) 缓存搜索结果. 索引变化会推进代数，旧条目随 TTL 过期.
type SearchCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewSearchCache 创建搜索缓存.
func NewSearchCache(store kv.KVStore, prefix string, ttl time.Duration) *SearchCache {
	return &SearchCache{cache: NewCache(store, prefix), ttl: ttl}
}

// Key 返回 generation 与 q 对应的缓存键（不含前缀）.
func (s *SearchCache) Key(generation int64, q wire.Search) string {
	sum := xxhash.Sum64String(q.Encode())

	return strconv.FormatInt(generation, 10) + ":" + strconv.FormatUint(sum, 16)
}

// Search 优先返回缓存结果，否则调用 search 并缓存.
func (s *SearchCache) Search(ctx context.Context, generation int64, q wire.Search, search func() (wire.FileList, error)) (wire.FileList, error) {
	files, hit, err := GetOrSet(ctx, s.cache, s.Key(generation, q), search, s.ttl)
	if err != nil {
		return nil, err
	}

	if hit {
		metrics.SearchCache.WithLabelValues("hit").Inc()
	} else {
		metrics.SearchCache.WithLabelValues("miss").Inc()
	}

	return files, nil
}

// Purge 清空全部搜索结果.
func (s *SearchCache) Purge(ctx context.Context) error {
	return s.cache.Clear(ctx)
}
