// Package indexer 遍历文件系统并维护以文件标识为键的并发内存索引.
//
// 扫描从若干根目录递归下降：命中排除列表、隐藏或系统目录的子树整棵剪除；
// 隐藏文件与被禁止的扩展名单独跳过；其余文件解析出 Identity 后写入索引，
// 已有条目原地刷新，新标识插入. 单个节点的 I/O 错误只记录日志，不会中断扫描.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/yeisme/fsindex/pkg/internal/wire"
	"github.com/yeisme/fsindex/pkg/log"
	"github.com/yeisme/fsindex/pkg/metrics"
)

// DefaultWorkers 默认并发遍历子目录的上限.
const DefaultWorkers = 8

// ErrInvalid 参数不合法.
var ErrInvalid = errors.New("indexer: invalid argument")

// EventSink 接收索引变化，实现方不得阻塞扫描.
type EventSink interface {
	FileIndexed(ctx context.Context, f IndexedFile)
	FileUpdated(ctx context.Context, f IndexedFile)
	ScanCompleted(ctx context.Context, report wire.ScanReport)
}

// Options 引擎配置.
type Options struct {
	Roots          []string      // 默认扫描根目录
	Exclusions     *ExclusionSet // nil 时只使用默认受保护路径
	SkipExtensions []string      // nil 时使用 DefaultSkipExtensions
	Workers        int
	Events         EventSink // 可为 nil
}

// Engine 索引引擎. 多次扫描可以并发进行，共享同一个索引.
type Engine struct {
	index      *Index
	exclusions *ExclusionSet
	skip       skipSet
	workers    int
	roots      []string
	events     EventSink

	lastScan atomic.Pointer[time.Time]
	logger   zerolog.Logger
}

// NewEngine 创建引擎.
func NewEngine(opts Options) *Engine {
	if opts.Exclusions == nil {
		opts.Exclusions = NewExclusionSet(DefaultProtectedPaths())
	}

	if opts.SkipExtensions == nil {
		opts.SkipExtensions = DefaultSkipExtensions
	}

	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	return &Engine{
		index:      NewIndex(),
		exclusions: opts.Exclusions,
		skip:       newSkipSet(opts.SkipExtensions),
		workers:    opts.Workers,
		roots:      opts.Roots,
		events:     opts.Events,
		logger:     log.Component("indexer"),
	}
}

// Index 返回底层索引.
func (e *Engine) Index() *Index { return e.index }

// Exclusions 返回排除集合.
func (e *Engine) Exclusions() *ExclusionSet { return e.exclusions }

// Roots 返回默认扫描根目录.
func (e *Engine) Roots() []string { return e.roots }

// Resolve 把文件标识或绝对路径解析为索引中的 Identity.
func (e *Engine) Resolve(ref string) (Identity, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty file reference", ErrInvalid)
	}

	if LooksLikeIdentity(ref) {
		if _, ok := e.index.Get(Identity(ref)); ok {
			return Identity(ref), nil
		}
	}

	path, err := NormalizePath(ref)
	if err != nil {
		return "", err
	}

	if id, ok := e.index.LookupPath(path); ok {
		return id, nil
	}

	return "", fmt.Errorf("%w: file %s", ErrNotFound, ref)
}

// AddTag 为文件追加标签，已存在的标签（不区分大小写）不重复添加.
func (e *Engine) AddTag(ref, tag string) (IndexedFile, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return IndexedFile{}, fmt.Errorf("%w: empty tag", ErrInvalid)
	}

	return e.mutate(ref, func(f *IndexedFile) bool {
		if f.HasTag(tag) {
			return false
		}

		f.Tags = append(f.Tags, tag)

		return true
	})
}

// AddKeyword 为文件添加关键词，关键词以小写保存.
func (e *Engine) AddKeyword(ref, keyword string) (IndexedFile, error) {
	keyword = normalizeKeyword(keyword)
	if keyword == "" {
		return IndexedFile{}, fmt.Errorf("%w: empty keyword", ErrInvalid)
	}

	return e.mutate(ref, func(f *IndexedFile) bool {
		if _, ok := f.Keywords[keyword]; ok {
			return false
		}

		f.Keywords[keyword] = struct{}{}

		return true
	})
}

func (e *Engine) mutate(ref string, fn func(f *IndexedFile) bool) (IndexedFile, error) {
	id, err := e.Resolve(ref)
	if err != nil {
		return IndexedFile{}, err
	}

	f, ok := e.index.Mutate(id, fn)
	if !ok {
		return IndexedFile{}, fmt.Errorf("%w: file %s", ErrNotFound, ref)
	}

	return f, nil
}

// Stats 返回索引概况.
func (e *Engine) Stats() wire.IndexStats {
	stats := wire.IndexStats{
		Files:      int64(e.index.Len()),
		Generation: e.index.Generation(),
		ByCategory: make(map[string]int64),
	}

	if t := e.lastScan.Load(); t != nil {
		stats.LastScan = *t
	}

	for c, n := range e.index.CountByCategory() {
		stats.ByCategory[string(c)] = n
	}

	return stats
}

func (e *Engine) markScanned(t time.Time) {
	e.lastScan.Store(&t)
	metrics.IndexedFiles.Set(float64(e.index.Len()))
}
