package rpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/yeisme/fsindex/pkg/internal/transport"
	"github.com/yeisme/fsindex/pkg/internal/wire"
)

// ConnectionError 连接层失败：拨号、发送或接收.
type ConnectionError struct {
	Op  string // dial / send / receive
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("rpc: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Client 每次调用新建一个连接，不重试.
type Client struct {
	socketPath string
	timeout    time.Duration
	transport  transport.Options
	dialer     net.Dialer
}

// ClientOption 客户端选项.
type ClientOption func(*Client)

// WithTimeout 为每次调用设置总时限，0 表示不限.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithTransportOptions 设置读取响应时的上限.
func WithTransportOptions(opts transport.Options) ClientOption {
	return func(c *Client) {
		c.transport = opts
	}
}

// NewClient 创建客户端.
func NewClient(socketPath string, opts ...ClientOption) *Client {
	c := &Client{socketPath: socketPath}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Call 发送一个请求并等待唯一的响应. 连接失败返回 *ConnectionError；
// 响应无法解码返回 *wire.FormatError. Err 响应不视为调用失败，由调用方通过 Response.Err 检查.
func (c *Client) Call(ctx context.Context, method string, payload wire.Value) (wire.Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return wire.Response{}, &ConnectionError{Op: "dial", Err: err}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	// ctx 取消时关闭连接，解除阻塞的读写.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	tc := transport.NewConn(conn, c.transport)

	if err := tc.Send(wire.NewRequest(method, payload).Encode()); err != nil {
		return wire.Response{}, &ConnectionError{Op: "send", Err: c.cause(ctx, err)}
	}

	text, err := tc.Receive()
	if err != nil {
		return wire.Response{}, &ConnectionError{Op: "receive", Err: c.cause(ctx, err)}
	}

	return wire.Decode[wire.Response](text)
}

// cause 连接因 ctx 结束被关闭时，返回 ctx 的错误而不是底层的 use of closed connection.
func (c *Client) cause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}

	// 读写截止时间可能先于 ctx 的定时器触发.
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}

	return err
}

// Invoke 调用 method 并按期望类型解码成功响应；Err 响应返回对应的 wire.ErrorMessage.
func Invoke[T any, PT wire.Decodable[T]](ctx context.Context, c *Client, method string, payload wire.Value) (T, error) {
	resp, err := c.Call(ctx, method, payload)
	if err != nil {
		var zero T
		return zero, err
	}

	return wire.Result[T, PT](resp)
}
