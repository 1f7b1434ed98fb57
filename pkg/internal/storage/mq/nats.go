package mq

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/yeisme/fsindex/pkg/configs"
)

const (
	DefaultDrainTimeout   = 30 * time.Second
	DefaultFlusherTimeout = 10 * time.Second
)

// init 注册 NATS 工厂.
func init() {
	RegisterFactory(configs.MQTypeNATS, natsFactory)
}

// buildNatsOptions 构建 NATS 连接选项.
func buildNatsOptions(cfg configs.MQConfig) []nc.Option {
	opts := []nc.Option{
		nc.Name(cfg.Common.ClientID),
		nc.MaxReconnects(cfg.Common.MaxReconnects),
		nc.ReconnectWait(cfg.Common.ReconnectWait),
		nc.DrainTimeout(DefaultDrainTimeout),
		nc.FlusherTimeout(DefaultFlusherTimeout),
		nc.RetryOnFailedConnect(true),
	}

	if cfg.Common.BufferSize > 0 {
		opts = append(opts, nc.ReconnectBufSize(int(cfg.Common.BufferSize)))
	}

	if cfg.Common.User != "" {
		opts = append(opts, nc.UserInfo(cfg.Common.User, cfg.Common.Password))
	}

	return opts
}

// natsFactory 使用核心 NATS（不启用 JetStream），订阅者以队列组方式共享消息，主题统一加上 subject_prefix.
func natsFactory(_ context.Context, cfg configs.MQConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	opts := buildNatsOptions(cfg)
	marshaler := &nats.JSONMarshaler{}
	js := nats.JetStreamConfig{Disabled: true}

	pub, err := nats.NewPublisher(nats.PublisherConfig{
		URL:         cfg.Common.URL,
		NatsOptions: opts,
		Marshaler:   marshaler,
		JetStream:   js,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	sub, err := nats.NewSubscriber(nats.SubscriberConfig{
		URL:              cfg.Common.URL,
		QueueGroupPrefix: cfg.NATS.QueueGroup,
		SubscribersCount: cfg.NATS.SubscribersN,
		NatsOptions:      opts,
		Unmarshaler:      marshaler,
		JetStream:        js,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, nil, err
	}

	logger.Info("NATS pub/sub ready", watermill.LogFields{
		"url":            cfg.Common.URL,
		"queue_group":    cfg.NATS.QueueGroup,
		"subject_prefix": cfg.NATS.SubjectPrefix,
	})

	prefix := cfg.NATS.SubjectPrefix

	return prefixedPublisher{Publisher: pub, prefix: prefix}, prefixedSubscriber{Subscriber: sub, prefix: prefix}, nil
}

// prefixedPublisher 为主题加上前缀，隔离共享 NATS 上的不同部署.
type prefixedPublisher struct {
	message.Publisher
	prefix string
}

func (p prefixedPublisher) Publish(topic string, msgs ...*message.Message) error {
	return p.Publisher.Publish(p.prefix+topic, msgs...)
}

type prefixedSubscriber struct {
	message.Subscriber
	prefix string
}

func (s prefixedSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return s.Subscriber.Subscribe(ctx, s.prefix+topic)
}
