// Package context 拓展上下文功能，将请求标识、方法名与日志集成到上下文中，方便在 handler 各处传递和使用.
package context

import (
	"context"
	crand "crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	nlog "github.com/yeisme/fsindex/pkg/log"
)

type ContextKey string

const (
	RequestIDKey ContextKey = "requestID"
	MethodKey    ContextKey = "method"
	LoggerKey    ContextKey = "logger"
)

var (
	// ulid.Monotonic 不是并发安全的.
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(crand.Reader, 0)
)

// NewID 生成按时间排序的唯一标识，用于请求与扫描批次.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// WithRequest 把请求标识与方法名存入 context，并附带一个带这两个字段的 logger.
func WithRequest(ctx context.Context, requestID, method string) context.Context {
	ctx = context.WithValue(ctx, RequestIDKey, requestID)
	ctx = context.WithValue(ctx, MethodKey, method)

	l := nlog.Logger().With().
		Str("request_id", requestID).
		Str("method", method).
		Logger()

	return context.WithValue(ctx, LoggerKey, &l)
}

// GetRequestID 从 context 中获取请求标识.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}

	return ""
}

// GetMethod 从 context 中获取 RPC 方法名.
func GetMethod(ctx context.Context) string {
	if m, ok := ctx.Value(MethodKey).(string); ok {
		return m
	}

	return ""
}

// Logger 返回请求级 logger，若 context 中带有追踪信息则附加 trace_id / span_id.
func Logger(ctx context.Context) *zerolog.Logger {
	l, ok := ctx.Value(LoggerKey).(*zerolog.Logger)
	if !ok {
		l = nlog.Logger()
	}

	traced := WithTraceContext(ctx, *l)

	return &traced
}

// WithTraceContext 创建带有追踪上下文的logger.
func WithTraceContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		return logger.With().
			Str("trace_id", span.SpanContext().TraceID().String()).
			Str("span_id", span.SpanContext().SpanID().String()).
			Logger()
	}

	return logger
}
