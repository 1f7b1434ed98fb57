package rpc_test

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yeisme/fsindex/pkg/internal/rpc"
	"github.com/yeisme/fsindex/pkg/internal/transport"
	"github.com/yeisme/fsindex/pkg/internal/wire"
)

// socketPath unix socket 路径有长度限制，不使用 t.TempDir.
func socketPath(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "fsi")
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	return filepath.Join(dir, "s.sock")
}

func echo(_ context.Context, req wire.Request) (wire.Response, error) {
	list, err := wire.Decode[wire.StringList](req.Body)
	if err != nil {
		return wire.Response{}, wire.NewError(wire.KindFormat, "%s", err.Error())
	}

	return wire.OK(list), nil
}

// startServer 启动服务端，测试结束时关闭.
func startServer(t *testing.T, opts rpc.Options, methods map[string]rpc.Handler) (*rpc.Server, *rpc.Client) {
	t.Helper()

	if opts.SocketPath == "" {
		opts.SocketPath = socketPath(t)
	}

	srv := rpc.NewServer(opts)
	for name, h := range methods {
		srv.RegisterMethod(name, h)
	}

	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	done := make(chan error, 1)

	go func() { done <- srv.Serve() }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		_ = srv.Shutdown(ctx)

		if err := <-done; !errors.Is(err, rpc.ErrServerClosed) {
			t.Errorf("Serve = %v, want ErrServerClosed", err)
		}
	})

	return srv, rpc.NewClient(opts.SocketPath, rpc.WithTimeout(2*time.Second))
}

// TestDispatch 请求按方法名分发并原样返回负载.
func TestDispatch(t *testing.T) {
	srv, client := startServer(t, rpc.Options{}, map[string]rpc.Handler{"echo": echo})

	if srv.State() != rpc.StateListening {
		t.Errorf("State = %s", srv.State())
	}

	want := wire.StringList{"a", "multi\nline", `back\slash`}

	got, err := rpc.Invoke[wire.StringList](context.Background(), client, "echo", want)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// TestUnknownMethod 未注册方法返回 MethodNotFound 且消息包含方法名.
func TestUnknownMethod(t *testing.T) {
	_, client := startServer(t, rpc.Options{}, nil)

	resp, err := client.Call(context.Background(), "frobnicate", wire.Empty{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	msg, ok := wire.AsErrorMessage(resp.Err())
	if !ok {
		t.Fatalf("Err() = %v", resp.Err())
	}

	if msg.Kind != wire.KindMethodNotFound || !strings.Contains(msg.Message, "frobnicate") {
		t.Errorf("msg = %+v", msg)
	}
}

// TestHandlerFailures handler 的普通错误、ErrorMessage 与 panic 都变成 Err 响应，服务继续可用.
func TestHandlerFailures(t *testing.T) {
	_, client := startServer(t, rpc.Options{Workers: 2}, map[string]rpc.Handler{
		"echo": echo,
		"fail": func(context.Context, wire.Request) (wire.Response, error) {
			return wire.Response{}, errors.New("disk on fire")
		},
		"missing": func(context.Context, wire.Request) (wire.Response, error) {
			return wire.Response{}, wire.NewError(wire.KindNotFound, "no such file")
		},
		"panic": func(context.Context, wire.Request) (wire.Response, error) {
			panic("boom")
		},
	})

	tests := []struct {
		method string
		kind   wire.ErrorKind
		text   string
	}{
		{"fail", wire.KindHandler, "disk on fire"},
		{"missing", wire.KindNotFound, "no such file"},
		{"panic", wire.KindHandler, "boom"},
	}

	for _, tt := range tests {
		_, err := rpc.Invoke[wire.Empty](context.Background(), client, tt.method, wire.Empty{})

		msg, ok := wire.AsErrorMessage(err)
		if !ok {
			t.Errorf("%s: err = %v", tt.method, err)
			continue
		}

		if msg.Kind != tt.kind || !strings.Contains(msg.Message, tt.text) {
			t.Errorf("%s: msg = %+v", tt.method, msg)
		}
	}

	if _, err := rpc.Invoke[wire.StringList](context.Background(), client, "echo", wire.StringList{"ok"}); err != nil {
		t.Errorf("server unusable after failures: %v", err)
	}
}

// TestMalformedRequest 无法解码的请求得到 FormatError 响应.
func TestMalformedRequest(t *testing.T) {
	path := socketPath(t)
	startServer(t, rpc.Options{SocketPath: path}, nil)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	tc := transport.NewConn(conn, transport.Options{})
	if err := tc.Send("not-a-request: 1\n"); err != nil {
		t.Fatal(err)
	}

	text, err := tc.Receive()
	if err != nil {
		t.Fatal(err)
	}

	resp, err := wire.Decode[wire.Response](text)
	if err != nil {
		t.Fatal(err)
	}

	msg, ok := wire.AsErrorMessage(resp.Err())
	if !ok || msg.Kind != wire.KindFormat {
		t.Errorf("resp = %+v, err = %v", resp, resp.Err())
	}
}

// TestConcurrentCalls 多个客户端并发调用.
func TestConcurrentCalls(t *testing.T) {
	_, client := startServer(t, rpc.Options{Workers: 4}, map[string]rpc.Handler{"echo": echo})

	var wg sync.WaitGroup

	for i := range 32 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			want := strings.Repeat("x", i)

			got, err := rpc.Invoke[wire.StringList](context.Background(), client, "echo", wire.StringList{want})
			if err != nil {
				t.Errorf("call %d: %v", i, err)
				return
			}

			if len(got) != 1 || got[0] != want {
				t.Errorf("call %d: got %v", i, got)
			}
		}()
	}

	wg.Wait()
}

// TestShutdown 关闭后拒绝连接，重复关闭返回相同结果.
func TestShutdown(t *testing.T) {
	path := socketPath(t)

	srv := rpc.NewServer(rpc.Options{SocketPath: path})
	srv.RegisterMethod("echo", echo)

	if err := srv.Listen(); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)

	go func() { done <- srv.Serve() }()

	client := rpc.NewClient(path, rpc.WithTimeout(time.Second))
	if _, err := client.Call(context.Background(), "echo", wire.StringList{}); err != nil {
		t.Fatalf("Call: %v", err)
	}

	first := srv.Shutdown(context.Background())
	second := srv.Shutdown(context.Background())

	if first != nil || second != nil {
		t.Errorf("Shutdown = %v, %v", first, second)
	}

	if err := <-done; !errors.Is(err, rpc.ErrServerClosed) {
		t.Errorf("Serve = %v", err)
	}

	if srv.State() != rpc.StateClosed {
		t.Errorf("State = %s", srv.State())
	}

	_, err := client.Call(context.Background(), "echo", wire.StringList{})

	var ce *rpc.ConnectionError
	if !errors.As(err, &ce) || ce.Op != "dial" {
		t.Errorf("call after shutdown = %v, want dial ConnectionError", err)
	}
}

// TestShutdownCancelsSlowHandler 超时后取消仍在运行的 handler.
func TestShutdownCancelsSlowHandler(t *testing.T) {
	path := socketPath(t)
	started := make(chan struct{})

	srv := rpc.NewServer(rpc.Options{SocketPath: path})
	srv.RegisterMethod("slow", func(ctx context.Context, _ wire.Request) (wire.Response, error) {
		close(started)
		<-ctx.Done()

		return wire.Response{}, ctx.Err()
	})

	if err := srv.Listen(); err != nil {
		t.Fatal(err)
	}

	go func() { _ = srv.Serve() }()

	callErr := make(chan error, 1)

	go func() {
		_, err := rpc.NewClient(path).Call(context.Background(), "slow", wire.Empty{})
		callErr <- err
	}()

	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}

	select {
	case <-callErr:
	case <-time.After(2 * time.Second):
		t.Fatal("client still blocked after forced shutdown")
	}
}

// TestStaleSocket 遗留的 socket 文件会被清理，仍在服务的 socket 不会被抢占.
func TestStaleSocket(t *testing.T) {
	path := socketPath(t)

	l, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}

	l.(*net.UnixListener).SetUnlinkOnClose(false)
	_ = l.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stale socket missing: %v", err)
	}

	srv := rpc.NewServer(rpc.Options{SocketPath: path})
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen over stale socket: %v", err)
	}

	defer srv.Shutdown(context.Background())

	other := rpc.NewServer(rpc.Options{SocketPath: path})
	if err := other.Listen(); err == nil {
		t.Error("second server took over a live socket")
	}
}

// TestCallCancelled ctx 取消时调用返回 ConnectionError 并带有 ctx 的错误.
func TestCallCancelled(t *testing.T) {
	_, client := startServer(t, rpc.Options{}, map[string]rpc.Handler{
		"hang": func(ctx context.Context, _ wire.Request) (wire.Response, error) {
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}

			return wire.OK(wire.Empty{}), nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Call(ctx, "hang", wire.Empty{})

	var ce *rpc.ConnectionError
	if !errors.As(err, &ce) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want ConnectionError wrapping DeadlineExceeded", err)
	}
}

// TestOversizedResponse 超出传输上限的响应被替换为 BadRequest，连接层不报错.
func TestOversizedResponse(t *testing.T) {
	limits := transport.Options{MaxLines: 20}

	sock := socketPath(t)
	_, _ = startServer(t, rpc.Options{Workers: 1, Transport: limits, SocketPath: sock}, map[string]rpc.Handler{
		"echo": echo,
		"big": func(context.Context, wire.Request) (wire.Response, error) {
			items := make(wire.StringList, 50)
			for i := range items {
				items[i] = "item"
			}

			return wire.OK(items), nil
		},
	})

	client := rpc.NewClient(sock, rpc.WithTimeout(2*time.Second), rpc.WithTransportOptions(limits))

	_, err := rpc.Invoke[wire.StringList](context.Background(), client, "big", wire.Empty{})

	msg, ok := wire.AsErrorMessage(err)
	if !ok || msg.Kind != wire.KindBadRequest || !strings.Contains(msg.Message, "too large") {
		t.Fatalf("err = %v, want BadRequest response", err)
	}

	got, err := rpc.Invoke[wire.StringList](context.Background(), client, "echo", wire.StringList{"small"})
	if err != nil || len(got) != 1 {
		t.Errorf("echo = %v, %v", got, err)
	}
}
