package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	nctx "github.com/yeisme/fsindex/pkg/context"
	"github.com/yeisme/fsindex/pkg/internal/wire"
	"github.com/yeisme/fsindex/pkg/metrics"
	"github.com/yeisme/fsindex/pkg/tracing"
)

// TraversalError 某个节点上的 I/O 错误，该节点被跳过.
type TraversalError struct {
	Path string
	Op   string
	Err  error
}

func (e *TraversalError) Error() string {
	return fmt.Sprintf("indexer: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TraversalError) Unwrap() error { return e.Err }

// scan 一次扫描的状态.
type scan struct {
	engine *Engine
	ctx    context.Context
	group  errgroup.Group
	logger zerolog.Logger

	seen     atomic.Int64
	inserted atomic.Int64
	updated  atomic.Int64
	skipped  atomic.Int64
	pruned   atomic.Int64
	errors   atomic.Int64
}

// Scan 从 roots（为空时使用默认根目录）递归扫描. 单个节点的错误计入报告但不返回；
// 只有 ctx 被取消时返回错误，此时报告包含已完成的部分.
func (e *Engine) Scan(ctx context.Context, roots ...string) (wire.ScanReport, error) {
	if len(roots) == 0 {
		roots = e.roots
	}

	runID := nctx.NewID()
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, "indexer.scan")
	defer span.End()

	span.SetAttributes(attribute.String("scan.run_id", runID), attribute.StringSlice("scan.roots", roots))

	s := &scan{
		engine: e,
		ctx:    ctx,
		logger: e.logger.With().Str("run_id", runID).Logger(),
	}
	s.group.SetLimit(e.workers)

	normalized := make([]string, 0, len(roots))

	for _, root := range roots {
		path, err := NormalizePath(root)
		if err != nil {
			s.fail(root, "normalize", err)
			continue
		}

		normalized = append(normalized, path)
		s.visitRoot(path)
	}

	_ = s.group.Wait()

	report := wire.ScanReport{
		RunID:        runID,
		Roots:        normalized,
		Seen:         s.seen.Load(),
		Inserted:     s.inserted.Load(),
		Updated:      s.updated.Load(),
		SkippedFiles: s.skipped.Load(),
		PrunedDirs:   s.pruned.Load(),
		Errors:       s.errors.Load(),
		Duration:     time.Since(start),
	}

	metrics.ScanDuration.Observe(report.Duration.Seconds())

	if err := ctx.Err(); err != nil {
		s.logger.Warn().Err(err).Stringer("report", report).Msg("scan cancelled")
		return report, err
	}

	e.markScanned(time.Now())
	s.logger.Info().Stringer("report", report).Msg("scan finished")

	if e.events != nil {
		e.events.ScanCompleted(ctx, report)
	}

	return report, nil
}

func (s *scan) visitRoot(root string) {
	if s.engine.exclusions.Contains(root) {
		s.pruned.Add(1)
		s.logger.Debug().Str("path", root).Msg("root is excluded")

		return
	}

	info, err := os.Lstat(root)
	if err != nil {
		s.fail(root, "stat", err)
		return
	}

	switch {
	case info.IsDir():
		s.spawn(root)
	case info.Mode().IsRegular():
		s.visitFile(root, fs.FileInfoToDirEntry(info))
	default:
		s.skipped.Add(1)
	}
}

// spawn 有空闲名额时并发遍历子目录，否则在当前协程内遍历.
func (s *scan) spawn(dir string) {
	if s.group.TryGo(func() error {
		s.walkDir(dir)
		return nil
	}) {
		return
	}

	s.walkDir(dir)
}

func (s *scan) walkDir(dir string) {
	if s.ctx.Err() != nil {
		return
	}

	// ReadDir 出错时仍可能返回部分条目.
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.fail(dir, "readdir", err)
	}

	for _, entry := range entries {
		if s.ctx.Err() != nil {
			return
		}

		path := filepath.Join(dir, entry.Name())

		switch {
		case entry.Type()&fs.ModeSymlink != 0:
			s.skipped.Add(1)
		case entry.IsDir():
			if s.engine.exclusions.ContainsExact(path) || pruneDirEntry(entry) {
				s.pruned.Add(1)
				continue
			}

			s.spawn(path)
		case entry.Type().IsRegular():
			s.visitFile(path, entry)
		default:
			s.skipped.Add(1)
		}
	}
}

func (s *scan) visitFile(path string, entry fs.DirEntry) {
	name := entry.Name()
	ext := normalizeExt(filepath.Ext(name))

	if s.engine.exclusions.ContainsExact(path) || skipFileEntry(entry, ext, s.engine.skip) {
		s.skipped.Add(1)
		metrics.ScanFiles.WithLabelValues("skipped").Inc()

		return
	}

	info, err := entry.Info()
	if err != nil {
		s.fail(path, "stat", err)
		return
	}

	s.seen.Add(1)

	st := statFile(path, info)
	if st.Links > 1 {
		path, name, ext = s.engine.linkedPath(st.ID, path, name, ext)
	}

	f, result := s.engine.index.Upsert(Observation{
		ID:        st.ID,
		Name:      name,
		Extension: ext,
		Path:      path,
		Size:      st.Size,
		Created:   st.Created,
		Modified:  st.Modified,
	})

	switch result {
	case Inserted:
		s.inserted.Add(1)
		metrics.ScanFiles.WithLabelValues("inserted").Inc()

		if s.engine.events != nil {
			s.engine.events.FileIndexed(s.ctx, f)
		}
	case Updated:
		s.updated.Add(1)
		metrics.ScanFiles.WithLabelValues("updated").Inc()

		if s.engine.events != nil {
			s.engine.events.FileUpdated(s.ctx, f)
		}
	case Unchanged:
	}
}

func (s *scan) fail(path, op string, err error) {
	s.errors.Add(1)
	metrics.ScanErrors.Inc()

	s.logger.Warn().
		Err(&TraversalError{Path: path, Op: op, Err: err}).
		Str("path", path).
		Msg("跳过无法访问的节点")
}

// linkedPath 同一标识有多个硬链接时，只要已记录的路径仍指向该文件就沿用它，
// 避免每次扫描在各个链接之间来回改写路径.
func (e *Engine) linkedPath(id Identity, path, name, ext string) (string, string, string) {
	existing, ok := e.index.Get(id)
	if !ok || existing.Path == path {
		return path, name, ext
	}

	info, err := os.Lstat(existing.Path)
	if err != nil || !info.Mode().IsRegular() || statFile(existing.Path, info).ID != id {
		return path, name, ext
	}

	return existing.Path, existing.Name, existing.Extension
}
