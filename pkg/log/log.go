// Package log 基于 zerolog 的全局日志. stderr 按配置输出 console 或 JSON，
// 可选的文件输出由 lumberjack 轮转.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yeisme/fsindex/pkg/configs"
)

var (
	logger   zerolog.Logger
	initOnce sync.Once
)

// Init 按全局配置初始化 logger，只生效一次.
func Init() {
	initOnce.Do(initLogger)
}

func initLogger() {
	cfg := configs.GetConfig()

	SetLevel(cfg.Log.Level)

	logger = New(cfg.Log, os.Stderr, cfg.Server.Debug)
	log.Logger = logger

	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
}

// New 按配置构建 logger，stderr 为 console 输出的目标. debug 时附带调用位置.
func New(cfg configs.LogConfig, stderr io.Writer, debug bool) zerolog.Logger {
	var out io.Writer = stderr
	if cfg.Format != configs.LogFormatJSON {
		out = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = stderr
			w.TimeFormat = time.TimeOnly
		})
	}

	if cfg.EnableFile && cfg.FilePath != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}

	ctx := zerolog.New(out).With().Timestamp().Int("pid", os.Getpid())
	if debug {
		ctx = ctx.Caller()
	}

	return ctx.Logger()
}

// SetLevel 设置全局日志级别，非法取值回退到 info. 配置热重载时也会调用.
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		fmt.Fprintf(os.Stderr, "invalid log level %q, defaulting to info\n", level)

		lvl = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(lvl)
}

// Component 返回带 component 字段的子 logger.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// Logger 返回全局 logger，首次调用时初始化.
func Logger() *zerolog.Logger {
	initOnce.Do(initLogger)

	return &logger
}

// GinWriter 把 gin 的文本输出逐行转为日志事件.
type GinWriter struct {
	logger *zerolog.Logger
	level  zerolog.Level
}

func NewGinWriter(logger *zerolog.Logger, level zerolog.Level) *GinWriter {
	return &GinWriter{logger: logger, level: level}
}

func (w *GinWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimSpace(string(p)), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			w.logger.WithLevel(w.level).Str("component", "gin").Msg(line)
		}
	}

	return len(p), nil
}
