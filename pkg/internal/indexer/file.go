package indexer

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/yeisme/fsindex/pkg/internal/wire"
)

// IndexedFile 索引中的一个文件，每个 Identity 只有一条.
type IndexedFile struct {
	ID        Identity
	Name      string
	Extension string // 小写，不含点
	Path      string // 规范化的绝对路径
	Size      int64
	Created   time.Time // UTC，与线上编码一致
	Modified  time.Time // UTC
	Category  Category
	Tags      []string
	Keywords  map[string]struct{}
}

// Observation 一次扫描看到的文件元数据.
type Observation struct {
	ID        Identity
	Name      string
	Extension string
	Path      string
	Size      int64
	Created   time.Time
	Modified  time.Time
}

func newIndexedFile(obs Observation) *IndexedFile {
	return &IndexedFile{
		ID:        obs.ID,
		Name:      obs.Name,
		Extension: obs.Extension,
		Path:      obs.Path,
		Size:      obs.Size,
		Created:   obs.Created.UTC(),
		Modified:  obs.Modified.UTC(),
		Category:  Classify(obs.Extension),
		Tags:      []string{},
		Keywords:  map[string]struct{}{},
	}
}

// refresh 用新的观测刷新已有条目，返回是否有变化. 标签、关键词与创建时间保持不变.
func (f *IndexedFile) refresh(obs Observation) bool {
	category := Classify(obs.Extension)

	changed := f.Name != obs.Name ||
		f.Extension != obs.Extension ||
		f.Path != obs.Path ||
		f.Size != obs.Size ||
		!f.Modified.Equal(obs.Modified) ||
		f.Category != category

	f.Name = obs.Name
	f.Extension = obs.Extension
	f.Path = obs.Path
	f.Size = obs.Size
	f.Modified = obs.Modified.UTC()
	f.Category = category

	return changed
}

// clone 深拷贝，返回给调用方的值不与索引共享切片和 map.
func (f *IndexedFile) clone() IndexedFile {
	c := *f
	c.Tags = slices.Clone(f.Tags)

	c.Keywords = make(map[string]struct{}, len(f.Keywords))
	for k := range f.Keywords {
		c.Keywords[k] = struct{}{}
	}

	return c
}

// HasTag 不区分大小写.
func (f *IndexedFile) HasTag(tag string) bool {
	return slices.ContainsFunc(f.Tags, func(t string) bool {
		return strings.EqualFold(t, tag)
	})
}

// HasKeyword 不区分大小写.
func (f *IndexedFile) HasKeyword(keyword string) bool {
	_, ok := f.Keywords[normalizeKeyword(keyword)]
	return ok
}

// SortedKeywords 按字典序返回关键词.
func (f *IndexedFile) SortedKeywords() []string {
	keywords := make([]string, 0, len(f.Keywords))
	for k := range f.Keywords {
		keywords = append(keywords, k)
	}

	sort.Strings(keywords)

	return keywords
}

// Record 转换为传输形式.
func (f *IndexedFile) Record() wire.FileRecord {
	return wire.FileRecord{
		ID:        string(f.ID),
		Name:      f.Name,
		Extension: f.Extension,
		Path:      f.Path,
		Size:      f.Size,
		Created:   f.Created,
		Modified:  f.Modified,
		Category:  string(f.Category),
		Tags:      slices.Clone(f.Tags),
		Keywords:  f.SortedKeywords(),
	}
}

func normalizeKeyword(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}
