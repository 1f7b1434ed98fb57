// Package rpc 在本地 unix socket 上实现一问一答的 RPC 服务端与客户端.
//
// 每个连接只承载一对 Request / Response：客户端发送请求，服务端分发到按方法名注册的
// Handler，写回响应后关闭连接.
//
// Example:
//
//	srv := rpc.NewServer(rpc.Options{SocketPath: "/run/user/1000/fsindex.sock", Workers: 8})
//	srv.RegisterMethod("ping", func(ctx context.Context, req wire.Request) (wire.Response, error) {
//		return wire.OK(wire.Empty{}), nil
//	})
//	if err := srv.Listen(); err != nil {
//		return err
//	}
//	go srv.Serve()
//	defer srv.Shutdown(context.Background())
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	nctx "github.com/yeisme/fsindex/pkg/context"
	"github.com/yeisme/fsindex/pkg/internal/transport"
	"github.com/yeisme/fsindex/pkg/internal/wire"
	"github.com/yeisme/fsindex/pkg/log"
	"github.com/yeisme/fsindex/pkg/metrics"
	"github.com/yeisme/fsindex/pkg/tracing"
)

const (
	// DefaultWorkers 默认工作协程数.
	DefaultWorkers = 8
	// staleDialTimeout 探测遗留 socket 是否仍有服务在监听.
	staleDialTimeout = 500 * time.Millisecond
)

// ErrServerClosed Shutdown 之后 Serve 返回该错误.
var ErrServerClosed = errors.New("rpc: server closed")

// Handler 处理一个请求. 返回的 error 会被转换为 Err 响应：
// wire.ErrorMessage 原样返回，其他错误归为 HandlerFailure.
type Handler func(ctx context.Context, req wire.Request) (wire.Response, error)

// State 服务端生命周期状态.
type State int32

const (
	StateCreated State = iota
	StateListening
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateListening:
		return "listening"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options 服务端配置.
type Options struct {
	SocketPath string
	Workers    int               // 同时处理的连接数上限
	Transport  transport.Options // 读取上限
	Limiter    *rate.Limiter     // accept 速率限制，nil 表示不限
	// ReadTimeout 读取请求的时限，0 表示不限. 防止空闲连接长期占用工作协程.
	ReadTimeout time.Duration
}

type job struct {
	conn    net.Conn
	methods map[string]Handler
}

// Server 单 accept 循环 + 固定大小的工作池.
type Server struct {
	opts Options

	regMu   sync.Mutex
	methods atomic.Pointer[map[string]Handler]

	listener net.Listener
	jobs     chan job
	workers  sync.WaitGroup

	// ctx 在强制关闭时取消，传递给所有 handler.
	ctx    context.Context
	cancel context.CancelFunc

	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	// startMu 保证工作协程的启动与进入 Draining 互斥.
	startMu      sync.Mutex
	state        atomic.Int32
	serveOnce    sync.Once
	shutdownOnce sync.Once
	shutdownErr  error

	logger zerolog.Logger
}

// NewServer 创建服务端，此时尚未监听.
func NewServer(opts Options) *Server {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		opts:   opts,
		jobs:   make(chan job),
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[net.Conn]struct{}),
		logger: log.Component("rpc-server"),
	}

	empty := map[string]Handler{}
	s.methods.Store(&empty)

	return s
}

// RegisterMethod 注册方法，同名后注册者生效. 已被 accept 的连接使用注册时的快照.
func (s *Server) RegisterMethod(name string, h Handler) {
	s.regMu.Lock()
	defer s.regMu.Unlock()

	current := *s.methods.Load()
	next := make(map[string]Handler, len(current)+1)

	for k, v := range current {
		next[k] = v
	}

	next[name] = h
	s.methods.Store(&next)
}

// Methods 返回已注册的方法名.
func (s *Server) Methods() []string {
	current := *s.methods.Load()
	names := make([]string, 0, len(current))

	for name := range current {
		names = append(names, name)
	}

	return names
}

// State 返回当前状态.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Addr 返回监听地址，未监听时为 nil.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Listen 在 SocketPath 上监听. 遗留的 socket 文件若无人监听会被删除.
func (s *Server) Listen() error {
	if s.State() != StateCreated {
		return fmt.Errorf("rpc: listen in state %s", s.State())
	}

	path := s.opts.SocketPath
	if path == "" {
		return errors.New("rpc: empty socket path")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("rpc: create socket dir: %w", err)
	}

	if err := removeStaleSocket(path); err != nil {
		return err
	}

	l, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", path, err)
	}

	if err := os.Chmod(path, 0o600); err != nil {
		s.logger.Warn().Err(err).Str("socket", path).Msg("无法收紧 socket 权限")
	}

	return s.useListener(l)
}

// ServeListener 在给定 listener 上服务，常用于测试.
func (s *Server) ServeListener(l net.Listener) error {
	if err := s.useListener(l); err != nil {
		return err
	}

	return s.Serve()
}

func (s *Server) useListener(l net.Listener) error {
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateListening)) {
		_ = l.Close()
		return fmt.Errorf("rpc: listen in state %s", s.State())
	}

	s.listener = l
	s.logger.Info().Str("addr", l.Addr().String()).Int("workers", s.opts.Workers).Msg("rpc server listening")

	return nil
}

// Serve 运行 accept 循环直到 Shutdown. 正常关闭时返回 ErrServerClosed.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("rpc: server is not listening")
	}

	err := ErrServerClosed

	s.serveOnce.Do(func() {
		err = s.acceptLoop()
	})

	return err
}

func (s *Server) acceptLoop() error {
	s.startMu.Lock()
	if s.State() != StateListening {
		s.startMu.Unlock()
		return ErrServerClosed
	}

	for range s.opts.Workers {
		s.workers.Add(1)

		go s.worker()
	}
	s.startMu.Unlock()

	// jobs 关闭后工作协程处理完队列中的连接再退出.
	defer close(s.jobs)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.State() >= StateDraining {
				return ErrServerClosed
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}

			return fmt.Errorf("rpc: accept: %w", err)
		}

		if s.opts.Limiter != nil {
			if err := s.opts.Limiter.Wait(s.ctx); err != nil {
				_ = conn.Close()
				continue
			}
		}

		s.track(conn)

		select {
		case s.jobs <- job{conn: conn, methods: *s.methods.Load()}:
		case <-s.ctx.Done():
			s.untrack(conn)
			_ = conn.Close()
		}
	}
}

func (s *Server) worker() {
	defer s.workers.Done()

	for j := range s.jobs {
		s.serveConn(j)
	}
}

// serveConn 处理一个连接：读一个请求，分发，写回响应，关闭.
func (s *Server) serveConn(j job) {
	defer func() {
		s.untrack(j.conn)
		_ = j.conn.Close()
	}()

	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	start := time.Now()

	if s.opts.ReadTimeout > 0 {
		_ = j.conn.SetReadDeadline(start.Add(s.opts.ReadTimeout))
	}

	conn := transport.NewConn(j.conn, s.opts.Transport)

	text, err := conn.Receive()
	if err != nil {
		metrics.RPCRequests.WithLabelValues("", "protocol").Inc()
		s.logger.Warn().Err(err).Msg("丢弃无法读取的请求")

		return
	}

	requestID := nctx.NewID()

	req, err := wire.Decode[wire.Request](text)
	if err != nil {
		metrics.RPCRequests.WithLabelValues("", "err").Inc()
		s.logger.Warn().Err(err).Str("request_id", requestID).Msg("请求解码失败")
		s.reply(conn, requestID, wire.Fail(wire.NewError(wire.KindFormat, "%s", err.Error())).Encode())

		return
	}

	ctx := nctx.WithRequest(s.ctx, requestID, req.Method)
	ctx, span := tracing.StartSpan(ctx, "rpc."+req.Method)
	span.SetAttributes(
		attribute.String("rpc.method", req.Method),
		attribute.String("rpc.request_id", requestID),
	)

	resp, text := s.encode(ctx, req.Method, s.dispatch(ctx, j.methods, req))

	result := "ok"
	if !resp.OK {
		result = "err"

		span.SetStatus(codes.Error, "err response")
	}

	span.End()

	elapsed := time.Since(start)
	metrics.RPCRequests.WithLabelValues(req.Method, result).Inc()
	metrics.RPCDuration.WithLabelValues(req.Method).Observe(elapsed.Seconds())

	nctx.Logger(ctx).Debug().Str("result", result).Dur("duration", elapsed).Msg("rpc request handled")

	s.reply(conn, requestID, text)
}

// encode 编码响应. 超出传输上限的响应客户端无法读取，改为 BadRequest.
func (s *Server) encode(ctx context.Context, method string, resp wire.Response) (wire.Response, string) {
	text := resp.Encode()

	err := s.opts.Transport.Check(text)
	if err == nil {
		return resp, text
	}

	nctx.Logger(ctx).Warn().Err(err).Msg("response too large")

	resp = wire.Fail(wire.NewError(wire.KindBadRequest, "%s: response too large (%v), narrow the request", method, err))

	return resp, resp.Encode()
}

func (s *Server) reply(conn *transport.Conn, requestID, text string) {
	if err := conn.Send(text); err != nil {
		s.logger.Warn().Err(err).Str("request_id", requestID).Msg("写回响应失败")
	}
}

// dispatch 查找 handler 并执行，handler 的错误与 panic 都转换为 Err 响应.
func (s *Server) dispatch(ctx context.Context, methods map[string]Handler, req wire.Request) (resp wire.Response) {
	h, ok := methods[req.Method]
	if !ok {
		return wire.Fail(wire.NewError(wire.KindMethodNotFound, "method %q is not registered", req.Method))
	}

	defer func() {
		if r := recover(); r != nil {
			nctx.Logger(ctx).Error().Interface("panic", r).Msg("handler panic")

			resp = wire.Fail(wire.NewError(wire.KindHandler, "handler %q panicked: %v", req.Method, r))
		}
	}()

	resp, err := h(ctx, req)
	if err != nil {
		if msg, ok := wire.AsErrorMessage(err); ok {
			return wire.Fail(msg)
		}

		nctx.Logger(ctx).Warn().Err(err).Msg("handler failed")

		return wire.Fail(wire.NewError(wire.KindHandler, "%s", err.Error()))
	}

	return resp
}

// Shutdown 停止 accept，等待进行中的请求直到 ctx 结束，然后取消剩余 handler 并强制关闭连接.
// 监听资源只释放一次，重复调用返回第一次的结果.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(ctx)
	})

	return s.shutdownErr
}

func (s *Server) shutdown(ctx context.Context) error {
	s.startMu.Lock()
	s.state.Store(int32(StateDraining))
	s.startMu.Unlock()

	var err error

	if s.listener != nil {
		if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}

	done := make(chan struct{})

	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("shutdown timeout, cancelling in-flight requests")
		s.cancel()
		s.closeConns()
		<-done
	}

	s.cancel()
	s.state.Store(int32(StateClosed))
	s.logger.Info().Msg("rpc server closed")

	return err
}

func (s *Server) track(c net.Conn) {
	s.connMu.Lock()
	s.conns[c] = struct{}{}
	s.connMu.Unlock()
}

func (s *Server) untrack(c net.Conn) {
	s.connMu.Lock()
	delete(s.conns, c)
	s.connMu.Unlock()
}

func (s *Server) closeConns() {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	for c := range s.conns {
		_ = c.Close()
	}
}

// removeStaleSocket 删除无人监听的遗留 socket 文件，有服务在监听时返回错误.
func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("rpc: stat socket: %w", err)
	}

	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("rpc: %s exists and is not a socket", path)
	}

	conn, err := net.DialTimeout("unix", path, staleDialTimeout)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("rpc: another server is listening on %s", path)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("rpc: remove stale socket: %w", err)
	}

	return nil
}
