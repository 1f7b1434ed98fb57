// Package mq 基于 Watermill 提供统一的发布/订阅客户端，承载索引事件.
//
// 支持的 MQ 类型：
//   - gochannel（进程内，默认）
//   - NATS
//
// 使用示例：
//
//	client, err := mq.New(ctx, cfg.MQ, metrics.GetRegistry())
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	client.AddConsumer("storage-sync", "fsi.file.indexed", func(msg *message.Message) error {
//		return persist(msg.Payload)
//	})
//	go client.Run(ctx)
//
//	err = client.Publish(ctx, "fsi.file.indexed", message.NewMessage(watermill.NewUUID(), payload))
package mq

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yeisme/fsindex/pkg/configs"
	nlog "github.com/yeisme/fsindex/pkg/log"
)

const (
	// DefaultRouterCloseTimeout 关闭时等待消费者处理完当前消息的时间.
	DefaultRouterCloseTimeout = 10 * time.Second
	// DefaultHandlerRetries 消费者失败后的重试次数.
	DefaultHandlerRetries = 3
	// DefaultRetryInterval 首次重试间隔.
	DefaultRetryInterval = 200 * time.Millisecond
)

// Factory 定义创建 Publisher + Subscriber 的工厂函数.
type Factory func(ctx context.Context, cfg configs.MQConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error)

var factories = map[configs.MQType]Factory{}

// RegisterFactory 注册指定 MQType 的工厂.
func RegisterFactory(t configs.MQType, f Factory) {
	factories[t] = f
}

// GetRegisteredTypes 返回已注册的 MQ 类型.
func GetRegisteredTypes() []configs.MQType {
	types := make([]configs.MQType, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}

// Client 封装 watermill Publisher、Subscriber 与消费者 Router.
type Client struct {
	Type configs.MQType

	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router

	mu        sync.Mutex
	consumers int
	closeOnce sync.Once
	closeErr  error
}

// New 按配置创建客户端. registry 非 nil 时为发布、订阅与 Router 注册 prometheus 指标.
func New(ctx context.Context, cfg configs.MQConfig, registry prometheus.Registerer) (*Client, error) {
	factory, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported mq type: %s", cfg.Type)
	}

	logger := NewLoggerAdapter(nlog.Component("mq"))

	pub, sub, err := factory(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init mq (%s): %w", cfg.Type, err)
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: DefaultRouterCloseTimeout}, logger)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create router: %w", err), pub.Close(), sub.Close())
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      DefaultHandlerRetries,
			InitialInterval: DefaultRetryInterval,
			Multiplier:      2,
			Logger:          logger,
		}.Middleware,
	)

	if registry != nil {
		builder := metrics.NewPrometheusMetricsBuilder(registry, "fsindex", "mq")
		builder.AddPrometheusRouterMetrics(router)

		if pub, err = builder.DecoratePublisher(pub); err != nil {
			return nil, fmt.Errorf("decorate publisher with metrics: %w", err)
		}

		if sub, err = builder.DecorateSubscriber(sub); err != nil {
			return nil, fmt.Errorf("decorate subscriber with metrics: %w", err)
		}
	}

	nlog.Logger().Info().Str("type", string(cfg.Type)).Msg("MQ 客户端已初始化")

	return &Client{
		Type:       cfg.Type,
		publisher:  pub,
		subscriber: sub,
		router:     router,
	}, nil
}

// Publish 发布消息.
func (c *Client) Publish(ctx context.Context, topic string, msgs ...*message.Message) error {
	if c == nil || c.publisher == nil {
		return errors.New("mq publisher not initialized")
	}

	for _, m := range msgs {
		m.SetContext(ctx)
	}

	return c.publisher.Publish(topic, msgs...)
}

// Subscribe 直接订阅主题，调用方负责 Ack/Nack.
func (c *Client) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if c == nil || c.subscriber == nil {
		return nil, errors.New("mq subscriber not initialized")
	}

	return c.subscriber.Subscribe(ctx, topic)
}

// AddConsumer 注册一个消费者. handler 返回错误时按退避重试，仍失败则 Nack.
// 必须在 Run 之前调用.
func (c *Client) AddConsumer(name, topic string, handler message.NoPublishHandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.router.AddConsumerHandler(name, topic, c.subscriber, handler)
	c.consumers++
}

// Run 运行消费者直到 ctx 结束或 Close. 没有消费者时立即返回.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	n := c.consumers
	c.mu.Unlock()

	if n == 0 {
		return nil
	}

	return c.router.Run(ctx)
}

// Consumers 已注册的消费者数量.
func (c *Client) Consumers() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.consumers
}

// Running 在 Router 启动完成后关闭.
func (c *Client) Running() chan struct{} {
	return c.router.Running()
}

// Close 关闭 Router、Publisher 与 Subscriber，可重复调用.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		var errs []error

		if err := c.router.Close(); err != nil {
			errs = append(errs, err)
		}

		if err := c.publisher.Close(); err != nil {
			errs = append(errs, err)
		}

		if err := c.subscriber.Close(); err != nil {
			errs = append(errs, err)
		}

		c.closeErr = errors.Join(errs...)
	})

	return c.closeErr
}
