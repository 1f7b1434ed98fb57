package indexer

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 64

// UpsertResult Upsert 的结果.
type UpsertResult int

const (
	Unchanged UpsertResult = iota // 命中，元数据未变化
	Inserted                      // 新标识
	Updated                       // 命中并刷新了元数据
)

func (r UpsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

type shard struct {
	mu    sync.RWMutex
	files map[Identity]*IndexedFile
}

type pathShard struct {
	mu  sync.RWMutex
	ids map[string]Identity
}

// Index 以 Identity 为键的并发索引. 按键哈希分片，不相关的键互不阻塞.
type Index struct {
	shards     [shardCount]shard
	paths      [shardCount]pathShard
	size       atomic.Int64
	generation atomic.Int64
}

// NewIndex 创建空索引.
func NewIndex() *Index {
	ix := &Index{}
	for i := range ix.shards {
		ix.shards[i].files = make(map[Identity]*IndexedFile)
		ix.paths[i].ids = make(map[string]Identity)
	}

	return ix
}

func shardOf(key string) int {
	return int(xxhash.Sum64String(key) % shardCount)
}

func (ix *Index) shard(id Identity) *shard {
	return &ix.shards[shardOf(string(id))]
}

func (ix *Index) pathShard(path string) *pathShard {
	return &ix.paths[shardOf(path)]
}

// Upsert 命中时原地刷新，未命中时插入. 对同一键是原子的.
func (ix *Index) Upsert(obs Observation) (IndexedFile, UpsertResult) {
	s := ix.shard(obs.ID)

	s.mu.Lock()

	var (
		result  UpsertResult
		oldPath string
	)

	f, ok := s.files[obs.ID]
	if ok {
		oldPath = f.Path
		if f.refresh(obs) {
			result = Updated
		}
	} else {
		f = newIndexedFile(obs)
		s.files[obs.ID] = f
		result = Inserted
	}

	snapshot := f.clone()
	s.mu.Unlock()

	if result == Inserted {
		ix.size.Add(1)
	}

	if result != Unchanged {
		ix.generation.Add(1)
	}

	if oldPath != obs.Path {
		ix.bindPath(oldPath, obs.Path, obs.ID)
	}

	return snapshot, result
}

// bindPath 更新路径到标识的映射.
func (ix *Index) bindPath(oldPath, newPath string, id Identity) {
	if oldPath != "" {
		ps := ix.pathShard(oldPath)
		ps.mu.Lock()

		if ps.ids[oldPath] == id {
			delete(ps.ids, oldPath)
		}

		ps.mu.Unlock()
	}

	ps := ix.pathShard(newPath)
	ps.mu.Lock()
	ps.ids[newPath] = id
	ps.mu.Unlock()
}

// Get 按标识查找.
func (ix *Index) Get(id Identity) (IndexedFile, bool) {
	s := ix.shard(id)

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	if !ok {
		return IndexedFile{}, false
	}

	return f.clone(), true
}

// LookupPath 按规范化路径查找标识.
func (ix *Index) LookupPath(path string) (Identity, bool) {
	ps := ix.pathShard(path)

	ps.mu.RLock()
	id, ok := ps.ids[path]
	ps.mu.RUnlock()

	if !ok {
		return "", false
	}

	// 映射可能落后于并发的改名，以条目本身的路径为准.
	f, found := ix.Get(id)
	if !found || f.Path != path {
		return "", false
	}

	return id, true
}

// Mutate 在键的锁内修改条目，fn 返回 true 表示有变化.
func (ix *Index) Mutate(id Identity, fn func(f *IndexedFile) bool) (IndexedFile, bool) {
	s := ix.shard(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return IndexedFile{}, false
	}

	if fn(f) {
		ix.generation.Add(1)
	}

	return f.clone(), true
}

// Select 返回满足 pred 的条目副本. pred 在分片读锁内调用，不得保留参数.
func (ix *Index) Select(pred func(f *IndexedFile) bool) []IndexedFile {
	var out []IndexedFile

	for i := range ix.shards {
		s := &ix.shards[i]

		s.mu.RLock()
		for _, f := range s.files {
			if pred == nil || pred(f) {
				out = append(out, f.clone())
			}
		}
		s.mu.RUnlock()
	}

	return out
}

// Identities 返回全部标识.
func (ix *Index) Identities() []Identity {
	ids := make([]Identity, 0, ix.Len())

	for i := range ix.shards {
		s := &ix.shards[i]

		s.mu.RLock()
		for id := range s.files {
			ids = append(ids, id)
		}
		s.mu.RUnlock()
	}

	return ids
}

// CountByCategory 按类别计数.
func (ix *Index) CountByCategory() map[Category]int64 {
	counts := make(map[Category]int64)

	for i := range ix.shards {
		s := &ix.shards[i]

		s.mu.RLock()
		for _, f := range s.files {
			counts[f.Category]++
		}
		s.mu.RUnlock()
	}

	return counts
}

// Len 条目数.
func (ix *Index) Len() int {
	return int(ix.size.Load())
}

// Generation 每次内容变化递增，用作缓存失效的版本号.
func (ix *Index) Generation() int64 {
	return ix.generation.Load()
}
