package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/yeisme/fsindex/pkg/configs"
)

// redeliverDelay Nack 之后重新投递前的等待.
const redeliverDelay = 100 * time.Millisecond

func init() {
	RegisterFactory(configs.MQTypeRedis, redisFactory)
}

// redisFrame 频道上传输的消息，保留 UUID 与元数据.
type redisFrame struct {
	UUID     string            `json:"uuid"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  []byte            `json:"payload"`
}

func encodeFrame(msg *message.Message) ([]byte, error) {
	return sonic.Marshal(redisFrame{UUID: msg.UUID, Metadata: msg.Metadata, Payload: msg.Payload})
}

func decodeFrame(data []byte) (*message.Message, error) {
	var f redisFrame
	if err := sonic.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode redis frame: %w", err)
	}

	if f.UUID == "" {
		return nil, errors.New("decode redis frame: missing uuid")
	}

	msg := message.NewMessage(f.UUID, f.Payload)
	for k, v := range f.Metadata {
		msg.Metadata.Set(k, v)
	}

	return msg, nil
}

// redisFactory 基于 Redis Pub/Sub，发布与订阅各用一个连接池.
func redisFactory(ctx context.Context, cfg configs.MQConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	newClient := func() *redis.Client {
		return redis.NewClient(&redis.Options{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			ClientName: cfg.Common.ClientID,
		})
	}

	pubClient := newClient()
	if err := pubClient.Ping(ctx).Err(); err != nil {
		_ = pubClient.Close()
		return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
	}

	pub := &redisPublisher{client: pubClient, prefix: cfg.Redis.ChannelPrefix}
	sub := &redisSubscriber{
		client: newClient(),
		prefix: cfg.Redis.ChannelPrefix,
		buffer: int(cfg.Common.BufferSize),
		logger: logger,
		done:   make(chan struct{}),
	}

	logger.Info("Redis pub/sub ready", watermill.LogFields{
		"addr":           cfg.Redis.Addr,
		"channel_prefix": cfg.Redis.ChannelPrefix,
	})

	return pub, sub, nil
}

type redisPublisher struct {
	client *redis.Client
	prefix string
}

func (p *redisPublisher) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		data, err := encodeFrame(msg)
		if err != nil {
			return err
		}

		if err := p.client.Publish(msg.Context(), p.prefix+topic, data).Err(); err != nil {
			return fmt.Errorf("publish %s to %s: %w", msg.UUID, topic, err)
		}
	}

	return nil
}

func (p *redisPublisher) Close() error {
	return p.client.Close()
}

type redisSubscriber struct {
	client *redis.Client
	prefix string
	buffer int
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	subs   []*redis.PubSub
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// Subscribe 订阅一个频道. 上一条消息 Ack 之前不会投递下一条；Nack 的消息会重新投递.
func (s *redisSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("redis subscriber closed")
	}

	ps := s.client.Subscribe(ctx, s.prefix+topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	s.subs = append(s.subs, ps)

	out := make(chan *message.Message, max(s.buffer, 0))
	in := ps.Channel(redis.WithChannelSize(max(s.buffer, 100)))

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case raw, ok := <-in:
				if !ok {
					return
				}

				msg, err := decodeFrame([]byte(raw.Payload))
				if err != nil {
					s.logger.Error("Dropping malformed message", err, watermill.LogFields{"topic": topic})
					continue
				}

				if !s.deliver(ctx, out, msg) {
					return
				}
			}
		}
	}()

	return out, nil
}

// deliver 投递直到被 Ack，订阅结束时返回 false.
func (s *redisSubscriber) deliver(ctx context.Context, out chan<- *message.Message, msg *message.Message) bool {
	for {
		attempt := msg.Copy()
		attempt.SetContext(ctx)

		select {
		case out <- attempt:
		case <-ctx.Done():
			return false
		case <-s.done:
			return false
		}

		select {
		case <-attempt.Acked():
			return true
		case <-attempt.Nacked():
		case <-ctx.Done():
			return false
		case <-s.done:
			return false
		}

		select {
		case <-time.After(redeliverDelay):
		case <-ctx.Done():
			return false
		case <-s.done:
			return false
		}
	}
}

func (s *redisSubscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.closed = true
	close(s.done)

	var errs []error
	for _, ps := range s.subs {
		errs = append(errs, ps.Close())
	}
	s.mu.Unlock()

	s.wg.Wait()

	return errors.Join(append(errs, s.client.Close())...)
}
