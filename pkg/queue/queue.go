// Package queue 把索引变化封装为事件，通过 watermill 发布.
//
// 每条消息的负载是一个 JSON 信封：
//
//	{
//	  "header":  {"topic": "fsi.file.indexed", "producer": "fsindex", "occurred_at": "...", "version": "v1"},
//	  "payload": { ... 由主题决定 ... }
//	}
//
// 消息 ID 为 ulid，按发布时间有序. header 同时写入 watermill metadata，
// 中间件与日志无需解码负载即可读取.
package queue

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"

	fsictx "github.com/yeisme/fsindex/pkg/context"
)

// PayloadVersionV1 当前信封版本. 消费者拒绝不认识的主版本.
const PayloadVersionV1 = "v1"

// HeaderOption 修改事件头.
type HeaderOption func(*EventHeader)

// WithTraceID 设置 TraceID.
func WithTraceID(id string) HeaderOption { return func(h *EventHeader) { h.TraceID = id } }

// WithProducer 设置 Producer.
func WithProducer(p string) HeaderOption { return func(h *EventHeader) { h.Producer = p } }

// NewEventHeader 创建事件头，时间取当前 UTC.
func NewEventHeader(topic string, opts ...HeaderOption) EventHeader {
	hdr := EventHeader{
		Topic:      topic,
		OccurredAt: time.Now().UTC(),
		Version:    PayloadVersionV1,
	}
	for _, opt := range opts {
		opt(&hdr)
	}

	return hdr
}

// NewWatermillMessage 编码信封并构造 watermill 消息.
func NewWatermillMessage[T any](topic string, payload T, opts ...HeaderOption) (*message.Message, error) {
	header := NewEventHeader(topic, opts...)

	data, err := sonic.Marshal(Message[T]{Header: header, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", topic, err)
	}

	msg := message.NewMessage(fsictx.NewID(), data)
	msg.Metadata.Set("topic", topic)
	msg.Metadata.Set("occurred_at", header.OccurredAt.Format(time.RFC3339Nano))
	msg.Metadata.Set("version", header.Version)

	if header.TraceID != "" {
		msg.Metadata.Set("trace_id", header.TraceID)
	}

	if header.Producer != "" {
		msg.Metadata.Set("producer", header.Producer)
	}

	return msg, nil
}

// ParseWatermillMessage 解码信封. 版本不是 v1 时返回错误.
func ParseWatermillMessage[T any](msg *message.Message) (Message[T], error) {
	var env Message[T]
	if err := sonic.Unmarshal(msg.Payload, &env); err != nil {
		return env, fmt.Errorf("decode event %s: %w", msg.UUID, err)
	}

	if env.Header.Version != "" && env.Header.Version != PayloadVersionV1 {
		return env, fmt.Errorf("event %s: unsupported version %q", msg.UUID, env.Header.Version)
	}

	return env, nil
}
