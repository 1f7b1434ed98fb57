// Package transport 在流式连接上按帧收发一条消息.
//
// 帧格式：
//
//	FSINDEX/1 BEGIN
//	<非空的消息行>...
//	FSINDEX/1 END
//
// 每次 Send / Receive 恰好处理一条消息，同一连接上消息不会交错.
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// HeaderLine 帧头.
	HeaderLine = "FSINDEX/1 BEGIN"
	// TrailerLine 帧尾.
	TrailerLine = "FSINDEX/1 END"

	// DefaultMaxLines 单条消息最多读取的行数（含帧头帧尾）.
	DefaultMaxLines = 100_000
	// DefaultMaxLineBytes 单行最大字节数.
	DefaultMaxLineBytes = 1 << 20

	lineSeparator = "\n"
)

// ErrorKind 协议错误类别.
type ErrorKind string

const (
	KindHeaderMismatch ErrorKind = "headerMismatch" // 第一行不是帧头
	KindTooLong        ErrorKind = "tooLong"        // 超过行数或单行长度上限
	KindTruncated      ErrorKind = "truncated"      // 读到帧尾之前连接结束
	KindInvalidBody    ErrorKind = "invalidBody"    // 待发送的消息行与帧头/帧尾冲突
)

// ProtocolError 帧格式错误，对当前消息是致命的.
type ProtocolError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := "transport: " + string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsKind 判断 err 是否为指定类别的 ProtocolError.
func IsKind(err error, kind ErrorKind) bool {
	var pe *ProtocolError
	return errors.As(err, &pe) && pe.Kind == kind
}

// Options 读取上限.
type Options struct {
	MaxLines     int
	MaxLineBytes int
}

func (o Options) withDefaults() Options {
	if o.MaxLines <= 0 {
		o.MaxLines = DefaultMaxLines
	}

	if o.MaxLineBytes <= 0 {
		o.MaxLineBytes = DefaultMaxLineBytes
	}

	return o
}

// Check 判断 text 组帧后能否被同样上限的接收方读取，超出时返回 tooLong.
func (o Options) Check(text string) error {
	o = o.withDefaults()
	lines := 2

	for line := range strings.SplitSeq(text, lineSeparator) {
		if line == "" {
			continue
		}

		if len(line) > o.MaxLineBytes {
			return &ProtocolError{Kind: KindTooLong, Detail: fmt.Sprintf("line exceeds %d bytes", o.MaxLineBytes)}
		}

		lines++
	}

	if lines > o.MaxLines {
		return &ProtocolError{Kind: KindTooLong, Detail: fmt.Sprintf("%d lines, limit %d", lines, o.MaxLines)}
	}

	return nil
}

// Conn 在一个 io.ReadWriter 上收发帧. 读缓冲跟随 Conn，不要对同一连接创建多个 Conn.
type Conn struct {
	r    *bufio.Reader
	w    *bufio.Writer
	opts Options
}

// NewConn 包装连接.
func NewConn(rw io.ReadWriter, opts Options) *Conn {
	return &Conn{
		r:    bufio.NewReader(rw),
		w:    bufio.NewWriter(rw),
		opts: opts.withDefaults(),
	}
}

// Send 写入帧头、消息的非空行、帧尾，然后 flush.
func (c *Conn) Send(text string) error {
	return SendMessage(c.w, text)
}

// Receive 读取一条完整消息并返回其文本（每行以 \n 结尾）.
func (c *Conn) Receive() (string, error) {
	return receive(c.r, c.opts)
}

// SendMessage 向 w 写入一帧. w 若实现了 Flush 会被调用.
func SendMessage(w io.Writer, text string) error {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}

	lines := strings.Split(text, lineSeparator)

	for _, line := range lines {
		if line == HeaderLine || line == TrailerLine {
			return &ProtocolError{Kind: KindInvalidBody, Detail: fmt.Sprintf("body line %q collides with framing", line)}
		}
	}

	if _, err := bw.WriteString(HeaderLine + lineSeparator); err != nil {
		return err
	}

	for _, line := range lines {
		if line == "" {
			continue
		}

		if _, err := bw.WriteString(line + lineSeparator); err != nil {
			return err
		}
	}

	if _, err := bw.WriteString(TrailerLine + lineSeparator); err != nil {
		return err
	}

	return bw.Flush()
}

// ReceiveMessage 从 r 读取一帧. r 应在整个连接生命周期内复用.
func ReceiveMessage(r *bufio.Reader, opts Options) (string, error) {
	return receive(r, opts.withDefaults())
}

func receive(r *bufio.Reader, opts Options) (string, error) {
	var (
		b     strings.Builder
		count int
	)

	for {
		line, err := readLine(r, opts.MaxLineBytes)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", &ProtocolError{Kind: KindTruncated, Detail: fmt.Sprintf("after %d lines", count), Err: err}
			}

			return "", err
		}

		count++
		if count > opts.MaxLines {
			return "", &ProtocolError{Kind: KindTooLong, Detail: fmt.Sprintf("more than %d lines", opts.MaxLines)}
		}

		if count == 1 {
			if line != HeaderLine {
				return "", &ProtocolError{Kind: KindHeaderMismatch, Detail: fmt.Sprintf("got %q", truncate(line))}
			}

			continue
		}

		if line == TrailerLine {
			return b.String(), nil
		}

		if line == "" {
			continue
		}

		b.WriteString(line)
		b.WriteString(lineSeparator)
	}
}

// readLine 读取一行并去掉行尾 \n / \r\n，超过 maxBytes 返回 tooLong.
func readLine(r *bufio.Reader, maxBytes int) (string, error) {
	var buf []byte

	for {
		chunk, err := r.ReadSlice('\n')
		if len(buf)+len(chunk) > maxBytes+2 {
			return "", &ProtocolError{Kind: KindTooLong, Detail: fmt.Sprintf("line exceeds %d bytes", maxBytes)}
		}

		buf = append(buf, chunk...)

		if err == nil {
			break
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		return "", err
	}

	line := strings.TrimSuffix(string(buf), "\n")

	return strings.TrimSuffix(line, "\r"), nil
}

func truncate(s string) string {
	const maxShown = 64
	if len(s) <= maxShown {
		return s
	}

	return s[:maxShown] + "..."
}
