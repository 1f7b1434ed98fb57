// Package service 把 RPC 方法绑定到索引引擎，并把索引事件同步到存储端口.
package service

import (
	"context"
	"errors"
	"slices"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/yeisme/fsindex/pkg/cache"
	"github.com/yeisme/fsindex/pkg/internal/indexer"
	"github.com/yeisme/fsindex/pkg/internal/rpc"
	"github.com/yeisme/fsindex/pkg/internal/storage"
	"github.com/yeisme/fsindex/pkg/internal/wire"
	"github.com/yeisme/fsindex/pkg/log"
)

// RPC 方法名.
const (
	MethodPing          = "ping"
	MethodSearch        = "search"
	MethodAddTag        = "addTag"
	MethodAddKeyword    = "addKeyword"
	MethodScan          = "scan"
	MethodStats         = "stats"
	MethodExclusions    = "exclusions"
	MethodExcludeAdd    = "excludeAdd"
	MethodExcludeRemove = "excludeRemove"
	MethodPersist       = "persist"
)

// Registrar 可以注册 RPC 方法，由 *rpc.Server 实现.
type Registrar interface {
	RegisterMethod(name string, h rpc.Handler)
}

// Service RPC 方法的实现.
type Service struct {
	engine *indexer.Engine
	search *cache.SearchCache // 可为 nil
	files  storage.Connector  // 可为 nil，persist 方法需要
	events indexer.EventSink  // 可为 nil，标注变化后发布更新事件
	limit  int                // 查询未带 limit: 时的默认上限，0 表示不限
	logger zerolog.Logger
}

// Option Service 选项.
type Option func(*Service)

// WithSearchCache 启用搜索结果缓存.
func WithSearchCache(c *cache.SearchCache) Option {
	return func(s *Service) { s.search = c }
}

// WithStorage 设置存储端口.
func WithStorage(c storage.Connector) Option {
	return func(s *Service) { s.files = c }
}

// WithEvents 设置事件接收方.
func WithEvents(sink indexer.EventSink) Option {
	return func(s *Service) { s.events = sink }
}

// WithSearchLimit 设置默认结果上限.
func WithSearchLimit(n int) Option {
	return func(s *Service) { s.limit = n }
}

// New 创建 Service.
func New(engine *indexer.Engine, opts ...Option) *Service {
	s := &Service{engine: engine, logger: log.Component("service")}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register 注册全部方法.
func (s *Service) Register(r Registrar) {
	r.RegisterMethod(MethodPing, handle(func(context.Context, wire.Empty) (wire.Value, error) {
		return wire.Empty{}, nil
	}))
	r.RegisterMethod(MethodSearch, handle(s.Search))
	r.RegisterMethod(MethodAddTag, handle(s.AddTag))
	r.RegisterMethod(MethodAddKeyword, handle(s.AddKeyword))
	r.RegisterMethod(MethodScan, handle(s.Scan))
	r.RegisterMethod(MethodStats, handle(func(context.Context, wire.Empty) (wire.Value, error) {
		return s.engine.Stats(), nil
	}))
	r.RegisterMethod(MethodExclusions, handle(func(context.Context, wire.Empty) (wire.Value, error) {
		return wire.StringList(s.engine.Exclusions().Paths()), nil
	}))
	r.RegisterMethod(MethodExcludeAdd, handle(s.ExcludeAdd))
	r.RegisterMethod(MethodExcludeRemove, handle(s.ExcludeRemove))

	if s.files != nil {
		r.RegisterMethod(MethodPersist, handle(s.Persist))
	}
}

// handle 解码负载并调用 fn，把领域错误转换为 ErrorMessage.
func handle[T any, PT wire.Decodable[T]](fn func(ctx context.Context, payload T) (wire.Value, error)) rpc.Handler {
	return func(ctx context.Context, req wire.Request) (wire.Response, error) {
		payload, err := wire.Decode[T, PT](req.Body)
		if err != nil {
			return wire.Response{}, wire.NewError(wire.KindFormat, "%s: %v", req.Method, err)
		}

		v, err := fn(ctx, payload)
		if err != nil {
			return wire.Response{}, toErrorMessage(err)
		}

		return wire.OK(v), nil
	}
}

// Search 执行搜索，启用缓存时按索引代数缓存结果. 查询没有 limit: 时套用默认上限.
func (s *Service) Search(ctx context.Context, q wire.Search) (wire.Value, error) {
	_, limited, err := indexer.SearchLimit(q)
	if err != nil {
		return nil, err
	}

	if !limited && s.limit > 0 {
		q.Filters = append(slices.Clone(q.Filters), indexer.LimitFilter+strconv.Itoa(s.limit))
	}

	run := func() (wire.FileList, error) {
		files, err := s.engine.Search(q)
		if err != nil {
			return nil, err
		}

		list := make(wire.FileList, 0, len(files))
		for _, f := range files {
			list = append(list, f.Record())
		}

		return list, nil
	}

	if s.search == nil {
		return runList(run)
	}

	var filterErr *indexer.FilterError

	list, err := s.search.Search(ctx, s.engine.Index().Generation(), q, run)
	if err != nil && !errors.As(err, &filterErr) {
		// 缓存不可用时直接查询.
		s.logger.Warn().Err(err).Msg("search cache failed")
		return runList(run)
	}

	return list, err
}

func runList(run func() (wire.FileList, error)) (wire.Value, error) {
	list, err := run()
	if err != nil {
		return nil, err
	}

	return list, nil
}

// AddTag 为文件添加标签.
func (s *Service) AddTag(ctx context.Context, a wire.Annotation) (wire.Value, error) {
	f, err := s.engine.AddTag(a.File, a.Value)
	if err != nil {
		return nil, err
	}

	s.annotated(ctx, f)

	return f.Record(), nil
}

// AddKeyword 为文件添加关键词.
func (s *Service) AddKeyword(ctx context.Context, a wire.Annotation) (wire.Value, error) {
	f, err := s.engine.AddKeyword(a.File, a.Value)
	if err != nil {
		return nil, err
	}

	s.annotated(ctx, f)

	return f.Record(), nil
}

func (s *Service) annotated(ctx context.Context, f indexer.IndexedFile) {
	if s.events != nil {
		s.events.FileUpdated(ctx, f)
	}
}

// Scan 扫描指定根目录，为空时扫描默认根目录.
func (s *Service) Scan(ctx context.Context, req wire.ScanRequest) (wire.Value, error) {
	report, err := s.engine.Scan(ctx, req.Roots...)
	if err != nil {
		return nil, err
	}

	return report, nil
}

// ExcludeAdd 添加排除路径并返回新的排除列表.
func (s *Service) ExcludeAdd(_ context.Context, paths wire.StringList) (wire.Value, error) {
	return s.editExclusions(paths, s.engine.Exclusions().Add)
}

// ExcludeRemove 移除排除路径并返回新的排除列表.
func (s *Service) ExcludeRemove(_ context.Context, paths wire.StringList) (wire.Value, error) {
	return s.editExclusions(paths, s.engine.Exclusions().Remove)
}

func (s *Service) editExclusions(paths wire.StringList, edit func(string) error) (wire.Value, error) {
	if len(paths) == 0 {
		return nil, wire.NewError(wire.KindBadRequest, "no paths given")
	}

	for _, p := range paths {
		if err := edit(p); err != nil {
			return nil, err
		}
	}

	return wire.StringList(s.engine.Exclusions().Paths()), nil
}

// Persist 立即把文件写入存储端口，返回各文件的存储主键.
func (s *Service) Persist(ctx context.Context, refs wire.StringList) (wire.Value, error) {
	ids := make(wire.StringList, 0, len(refs))

	for _, ref := range refs {
		id, err := s.engine.Resolve(ref)
		if err != nil {
			return nil, err
		}

		f, ok := s.engine.Index().Get(id)
		if !ok {
			return nil, wire.NewError(wire.KindNotFound, "file %s", ref)
		}

		stored, _, err := save(ctx, s.files, RecordFromFile(f))
		if err != nil {
			return nil, err
		}

		ids = append(ids, strconv.FormatUint(uint64(stored), 10))
	}

	return ids, nil
}
