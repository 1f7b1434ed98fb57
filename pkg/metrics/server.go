package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yeisme/fsindex/pkg/configs"
	"github.com/yeisme/fsindex/pkg/log"
	"github.com/yeisme/fsindex/pkg/middleware"
)

const readHeaderTimeout = 5 * time.Second

// HealthFunc 返回健康检查附加信息，返回 error 时 /healthz 响应 503.
type HealthFunc func(ctx context.Context) (map[string]any, error)

// DebugServer 提供 /metrics、/healthz 与可选 pprof 的 HTTP 服务.
type DebugServer struct {
	srv *http.Server
	ln  net.Listener
}

// NewDebugServer 创建调试服务，配置未启用时返回 nil.
func NewDebugServer(config configs.MetricsConfig, health HealthFunc) *DebugServer {
	if !config.Enabled {
		return nil
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.Tracing(), middleware.Logger())

	if config.Gzip {
		engine.Use(gzip.Gzip(gzip.DefaultCompression))
	}

	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(Gatherer(), promhttp.HandlerOpts{})))
	engine.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok"}

		if health != nil {
			extra, err := health(c.Request.Context())
			for k, v := range extra {
				body[k] = v
			}

			if err != nil {
				body["status"] = "unavailable"
				body["error"] = err.Error()
				c.JSON(http.StatusServiceUnavailable, body)

				return
			}
		}

		c.JSON(http.StatusOK, body)
	})

	// 如果启用pprof，注册pprof端点
	if config.Pprof {
		group := engine.Group("/debug/pprof")
		group.GET("/", gin.WrapF(pprof.Index))
		group.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		group.GET("/profile", gin.WrapF(pprof.Profile))
		group.GET("/symbol", gin.WrapF(pprof.Symbol))
		group.GET("/trace", gin.WrapF(pprof.Trace))
		group.GET("/:name", func(c *gin.Context) {
			pprof.Handler(c.Param("name")).ServeHTTP(c.Writer, c.Request)
		})
	}

	return &DebugServer{
		srv: &http.Server{
			Addr:              config.Endpoint,
			Handler:           engine,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// Handler 返回 HTTP handler，便于测试.
func (s *DebugServer) Handler() http.Handler {
	return s.srv.Handler
}

// Start 监听并在后台提供服务.
func (s *DebugServer) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}

	s.ln = ln
	logger := log.Component("debug-http")

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("debug server stopped")
		}
	}()

	logger.Info().Str("addr", ln.Addr().String()).Msg("debug server listening")

	return nil
}

// Shutdown 优雅关闭.
func (s *DebugServer) Shutdown(ctx context.Context) error {
	if s.ln == nil {
		return nil
	}

	return s.srv.Shutdown(ctx)
}
