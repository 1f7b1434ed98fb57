// Package middleware 提供调试 HTTP 服务使用的 gin 中间件.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	fsictx "github.com/yeisme/fsindex/pkg/context"
)

// Logger 使用 zerolog 记录请求日志. /metrics 被频繁抓取，成功请求只在 debug 级别输出.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		logger := fsictx.Logger(c.Request.Context())

		event := logger.Debug()
		if status >= 500 || len(c.Errors) > 0 {
			event = logger.Warn()
		}

		event = event.
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("client_ip", c.ClientIP())

		if len(c.Errors) > 0 {
			event = event.Str("error", c.Errors.String())
		}

		event.Msg("HTTP request")
	}
}
