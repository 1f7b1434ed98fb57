package queue

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/yeisme/fsindex/pkg/configs"
	"github.com/yeisme/fsindex/pkg/internal/indexer"
	"github.com/yeisme/fsindex/pkg/internal/wire"
	"github.com/yeisme/fsindex/pkg/log"
	"github.com/yeisme/fsindex/pkg/tracing"
)

// Bus 事件的发布端，由 mq.Client 实现.
type Bus interface {
	Publish(ctx context.Context, topic string, msgs ...*message.Message) error
}

// Publisher 把索引变化发布到 Bus，实现 indexer.EventSink.
// 发布失败只记录日志，不影响扫描.
type Publisher struct {
	bus      Bus
	topics   map[string]bool
	producer string
	logger   zerolog.Logger
}

var _ indexer.EventSink = (*Publisher)(nil)

// NewPublisher 按事件开关创建发布者. forceFiles 为 true 时无论开关如何都发布文件事件，供存储同步使用.
func NewPublisher(bus Bus, cfg configs.EventsConfig, forceFiles bool) *Publisher {
	return &Publisher{
		bus: bus,
		topics: map[string]bool{
			TopicFileIndexed:   forceFiles || (cfg.Enabled && cfg.FileIndexed),
			TopicFileUpdated:   forceFiles || (cfg.Enabled && cfg.FileUpdated),
			TopicScanCompleted: cfg.Enabled && cfg.ScanCompleted,
		},
		producer: configs.AppName,
		logger:   log.Component("events"),
	}
}

// Enabled 报告主题是否会被发布.
func (p *Publisher) Enabled(topic string) bool { return p.topics[topic] }

// FileIndexed 发布 fsi.file.indexed.
func (p *Publisher) FileIndexed(ctx context.Context, f indexer.IndexedFile) {
	publish(ctx, p, TopicFileIndexed, NewFilePayload(f))
}

// FileUpdated 发布 fsi.file.updated.
func (p *Publisher) FileUpdated(ctx context.Context, f indexer.IndexedFile) {
	publish(ctx, p, TopicFileUpdated, NewFilePayload(f))
}

// ScanCompleted 发布 fsi.scan.completed.
func (p *Publisher) ScanCompleted(ctx context.Context, report wire.ScanReport) {
	publish(ctx, p, TopicScanCompleted, NewScanCompletedPayload(report))
}

func publish[T any](ctx context.Context, p *Publisher, topic string, payload T) {
	if !p.topics[topic] {
		return
	}

	opts := []HeaderOption{WithProducer(p.producer)}
	if id := tracing.TraceID(ctx); id != "" {
		opts = append(opts, WithTraceID(id))
	}

	msg, err := NewWatermillMessage(topic, payload, opts...)
	if err != nil {
		p.logger.Error().Err(err).Str("topic", topic).Msg("encode event")
		return
	}

	if err := p.bus.Publish(ctx, topic, msg); err != nil {
		p.logger.Warn().Err(err).Str("topic", topic).Msg("publish event")
	}
}
