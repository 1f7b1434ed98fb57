// Package app 按配置构建各组件并管理它们的生命周期.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/yeisme/fsindex/pkg/cache"
	"github.com/yeisme/fsindex/pkg/configs"
	"github.com/yeisme/fsindex/pkg/internal/indexer"
	"github.com/yeisme/fsindex/pkg/internal/jobs"
	"github.com/yeisme/fsindex/pkg/internal/rpc"
	"github.com/yeisme/fsindex/pkg/internal/service"
	"github.com/yeisme/fsindex/pkg/internal/storage"
	"github.com/yeisme/fsindex/pkg/internal/transport"
	"github.com/yeisme/fsindex/pkg/log"
	"github.com/yeisme/fsindex/pkg/metrics"
	"github.com/yeisme/fsindex/pkg/queue"
	"github.com/yeisme/fsindex/pkg/scheduler"
	"github.com/yeisme/fsindex/pkg/tracing"
)

// routerStartTimeout 等待事件消费者就绪的上限.
const routerStartTimeout = 10 * time.Second

// App 进程内的全部组件，由 New 构建，Run 运行到 ctx 结束.
type App struct {
	config  *configs.AppConfig
	engine  *indexer.Engine
	storage *storage.Manager
	server  *rpc.Server
	sched   *scheduler.Scheduler
	debug   *metrics.DebugServer
	logger  zerolog.Logger

	// stopJobs 取消定时任务的 ctx，关闭时让进行中的扫描尽快返回.
	stopJobs context.CancelFunc
}

// New 初始化可观测性组件、存储、索引引擎与 RPC 服务. 失败时释放已创建的资源.
func New(ctx context.Context, config *configs.AppConfig) (*App, error) {
	if err := tracing.InitTracer(config.Tracing); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	if err := metrics.InitMetrics(config.Metrics); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	l := log.Logger()
	gin.DefaultWriter = log.NewGinWriter(l, zerolog.InfoLevel)
	gin.DefaultErrorWriter = log.NewGinWriter(l, zerolog.ErrorLevel)

	configs.OnReload(func(c *configs.AppConfig) {
		log.SetLevel(c.Log.Level)
	})

	var registry prometheus.Registerer
	if config.Metrics.Enabled {
		registry = metrics.GetRegistry()
	}

	mgr, err := storage.NewManager(ctx, config, registry)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	var (
		opts   []service.Option
		events indexer.EventSink
	)

	if mgr.MQ != nil {
		pub := queue.NewPublisher(mgr.MQ, config.Events, config.Index.StorageSync)
		events = pub
		opts = append(opts, service.WithEvents(pub))
	}

	engine, err := NewEngine(*config, events)
	if err != nil {
		return nil, errors.Join(err, mgr.Close())
	}

	if mgr.KV != nil {
		opts = append(opts, service.WithSearchCache(cache.NewSearchCache(mgr.KV, config.Cache.Prefix, config.Cache.TTL)))
	}

	if mgr.Files != nil && mgr.MQ != nil {
		service.NewStorageSync(mgr.Files).Subscribe(mgr.MQ)
		opts = append(opts, service.WithStorage(mgr.Files))
	}

	server := rpc.NewServer(ServerOptions(*config))
	opts = append(opts, service.WithSearchLimit(config.Index.SearchLimit))
	service.New(engine, opts...).Register(server)

	sched, err := scheduler.NewScheduler()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("init scheduler: %w", err), mgr.Close())
	}

	// 任务的生命周期跟随 App 而不是调用 New 的 ctx，由 close 取消.
	jobCtx, stopJobs := context.WithCancel(context.WithoutCancel(ctx))

	if _, err := jobs.RegisterRescan(jobCtx, sched, engine, config.Index); err != nil {
		stopJobs()
		return nil, errors.Join(fmt.Errorf("register rescan: %w", err), sched.Shutdown(), mgr.Close())
	}

	return &App{
		config:  config,
		engine:  engine,
		storage: mgr,
		server:  server,
		sched:   sched,
		debug:   metrics.NewDebugServer(config.Metrics, healthFunc(mgr, sched, engine)),
		logger:  log.Component("app"),

		stopJobs: stopJobs,
	}, nil
}

// healthFunc 汇总存储状态、索引规模与定时任务.
func healthFunc(mgr *storage.Manager, sched *scheduler.Scheduler, engine *indexer.Engine) metrics.HealthFunc {
	return func(ctx context.Context) (map[string]any, error) {
		status, err := mgr.Health(ctx)
		status["files"] = engine.Index().Len()
		status["generation"] = engine.Index().Generation()
		status["jobs"] = sched.GetJobInfos()

		return status, err
	}
}

// NewEngine 按索引配置创建引擎，排除列表从配置文件加载. events 可为 nil.
func NewEngine(config configs.AppConfig, events indexer.EventSink) (*indexer.Engine, error) {
	protected := append(indexer.DefaultProtectedPaths(), config.Index.ProtectedPaths...)

	exclusions, err := indexer.LoadExclusions(config.Index.ExclusionFile, protected)
	if err != nil {
		return nil, fmt.Errorf("load exclusions: %w", err)
	}

	return indexer.NewEngine(indexer.Options{
		Roots:          config.Index.Roots,
		Exclusions:     exclusions,
		SkipExtensions: config.Index.SkipExtensions,
		Workers:        config.Index.ScanWorkers,
		Events:         events,
	}), nil
}

// ServerOptions 由服务配置生成 RPC 服务端选项.
func ServerOptions(config configs.AppConfig) rpc.Options {
	opts := rpc.Options{
		SocketPath: config.Server.SocketPath,
		Workers:    config.Server.Workers,
		Transport: transport.Options{
			MaxLines:     config.Server.MaxMessageLines,
			MaxLineBytes: config.Server.MaxLineBytes,
		},
		ReadTimeout: config.Server.ReadTimeout,
	}

	if config.RateLimit.Enabled {
		opts.Limiter = rate.NewLimiter(rate.Limit(config.RateLimit.RPS), config.RateLimit.Burst)
	}

	return opts
}

// Engine 返回索引引擎.
func (a *App) Engine() *indexer.Engine { return a.engine }

// Run 监听 socket 并运行到 ctx 结束，然后优雅关闭全部组件.
func (a *App) Run(ctx context.Context) error {
	if err := a.server.Listen(); err != nil {
		return errors.Join(err, a.close(ctx))
	}

	if a.debug != nil {
		if err := a.debug.Start(); err != nil {
			a.logger.Warn().Err(err).Msg("debug server disabled")
			a.debug = nil
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.server.Serve(); !errors.Is(err, rpc.ErrServerClosed) {
			return err
		}

		return nil
	})

	if mq := a.storage.MQ; mq != nil && mq.Consumers() > 0 {
		g.Go(func() error { return mq.Run(gctx) })

		// 首次扫描的事件需要消费者已经订阅.
		select {
		case <-mq.Running():
		case <-time.After(routerStartTimeout):
			a.logger.Warn().Msg("event consumers not running, early events may be lost")
		case <-gctx.Done():
		}
	}

	a.sched.Start()

	if a.config.Index.ScanOnStart {
		g.Go(func() error {
			if _, err := a.engine.Scan(gctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Msg("initial scan failed")
			}

			return nil
		})
	}

	a.logger.Info().
		Str("socket", a.config.Server.SocketPath).
		Strs("roots", a.engine.Roots()).
		Strs("methods", a.server.Methods()).
		Msg("fsindex serving")

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.Server.ShutdownTimeout)
		defer cancel()

		return a.close(shutdownCtx)
	})

	return g.Wait()
}

// close 依次关闭 RPC 服务、调度器、调试服务、存储与追踪.
func (a *App) close(ctx context.Context) error {
	a.logger.Info().Msg("shutting down")

	a.stopJobs()

	errs := []error{
		a.server.Shutdown(ctx),
		a.sched.Shutdown(),
	}

	if a.debug != nil {
		errs = append(errs, a.debug.Shutdown(ctx))
	}

	errs = append(errs, a.storage.Close(), tracing.ShutdownTracer(ctx))

	return errors.Join(errs...)
}
