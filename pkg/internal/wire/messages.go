package wire

import (
	"errors"
	"fmt"
)

const (
	resultOK  = "ok"
	resultErr = "err"
)

// ErrorKind 错误消息的类别.
type ErrorKind string

const (
	KindMethodNotFound ErrorKind = "MethodNotFound" // 未注册的方法
	KindFormat         ErrorKind = "FormatError"    // 负载解码失败
	KindBadRequest     ErrorKind = "BadRequest"     // 负载合法但语义错误
	KindNotFound       ErrorKind = "NotFound"       // 目标不存在
	KindHandler        ErrorKind = "HandlerFailure" // handler 返回错误或 panic
	KindStorage        ErrorKind = "StorageError"   // 外部存储失败
	KindUnavailable    ErrorKind = "Unavailable"    // 服务暂不可用（正在关闭等）
)

// ErrorMessage 通过 Err 响应传递的错误，同时实现 error，handler 可以直接返回.
type ErrorMessage struct {
	Kind    ErrorKind
	Message string
}

// NewError 创建 ErrorMessage.
func NewError(kind ErrorKind, format string, args ...any) ErrorMessage {
	return ErrorMessage{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (m ErrorMessage) Error() string {
	return string(m.Kind) + ": " + m.Message
}

// Encode 编码为文本.
func (m ErrorMessage) Encode() string {
	return NewEncoder().
		String("kind", string(m.Kind)).
		String("message", m.Message).
		Encode()
}

// Decode 从文本解码.
func (m *ErrorMessage) Decode(text string) error {
	d := NewDecoder(text)

	kind, err := d.String("kind")
	if err != nil {
		return err
	}

	msg, err := d.String("message")
	if err != nil {
		return err
	}

	if err := d.End(); err != nil {
		return err
	}

	*m = ErrorMessage{Kind: ErrorKind(kind), Message: msg}

	return nil
}

// AsErrorMessage 从错误链中取出 ErrorMessage（值或指针）.
func AsErrorMessage(err error) (ErrorMessage, bool) {
	var v ErrorMessage
	if errors.As(err, &v) {
		return v, true
	}

	var p *ErrorMessage
	if errors.As(err, &p) && p != nil {
		return *p, true
	}

	return ErrorMessage{}, false
}

// Request 一次 RPC 调用：方法名 + 不透明负载.
type Request struct {
	Method string
	Body   string // 负载的编码文本
}

// NewRequest 以 payload 的编码构造 Request.
func NewRequest(method string, payload Value) Request {
	body := ""
	if payload != nil {
		body = payload.Encode()
	}

	return Request{Method: method, Body: body}
}

// Encode 编码为文本.
func (r Request) Encode() string {
	return NewEncoder().
		String("method", r.Method).
		Block("body", r.Body).
		Encode()
}

// Decode 从文本解码.
func (r *Request) Decode(text string) error {
	d := NewDecoder(text)

	method, err := d.String("method")
	if err != nil {
		return err
	}

	body, err := d.Block("body")
	if err != nil {
		return err
	}

	if err := d.End(); err != nil {
		return err
	}

	*r = Request{Method: method, Body: body}

	return nil
}

// Response 一次 RPC 的结果：ok/err 标记 + 不透明负载.
type Response struct {
	OK   bool
	Body string
}

// OK 构造成功响应.
func OK(payload Value) Response {
	body := ""
	if payload != nil {
		body = payload.Encode()
	}

	return Response{OK: true, Body: body}
}

// Fail 构造失败响应，负载为 ErrorMessage.
func Fail(msg ErrorMessage) Response {
	return Response{OK: false, Body: msg.Encode()}
}

// Encode 编码为文本.
func (r Response) Encode() string {
	result := resultOK
	if !r.OK {
		result = resultErr
	}

	return NewEncoder().
		String("result", result).
		Block("body", r.Body).
		Encode()
}

// Decode 从文本解码.
func (r *Response) Decode(text string) error {
	d := NewDecoder(text)

	result, err := d.String("result")
	if err != nil {
		return err
	}

	if result != resultOK && result != resultErr {
		return &FormatError{Expected: "result", Got: "result: " + result}
	}

	body, err := d.Block("body")
	if err != nil {
		return err
	}

	if err := d.End(); err != nil {
		return err
	}

	*r = Response{OK: result == resultOK, Body: body}

	return nil
}

// Err 对 err 响应解出 ErrorMessage；ok 响应返回 nil.
func (r Response) Err() error {
	if r.OK {
		return nil
	}

	msg, err := Decode[ErrorMessage](r.Body)
	if err != nil {
		return err
	}

	return msg
}

// Result 按期望的负载类型解码响应；err 响应返回其 ErrorMessage.
func Result[T any, PT Decodable[T]](r Response) (T, error) {
	if err := r.Err(); err != nil {
		var zero T
		return zero, err
	}

	return Decode[T, PT](r.Body)
}

// Empty 无内容的负载.
type Empty struct{}

// Encode 编码为空文本.
func (Empty) Encode() string { return "" }

// Decode 只接受空文本.
func (*Empty) Decode(text string) error {
	return NewDecoder(text).End()
}
