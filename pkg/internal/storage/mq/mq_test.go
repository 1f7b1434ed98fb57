package mq_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yeisme/fsindex/pkg/configs"
	"github.com/yeisme/fsindex/pkg/internal/storage/mq"
)

func newGoChannel(t *testing.T, registry prometheus.Registerer) *mq.Client {
	t.Helper()

	cfg := configs.MQConfig{Type: configs.MQTypeGoChannel}
	cfg.Common.BufferSize = 16

	client, err := mq.New(context.Background(), cfg, registry)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	t.Cleanup(func() { _ = client.Close() })

	return client
}

// TestConsumerReceives 消费者收到发布的消息，失败的消息会被重试.
func TestConsumerReceives(t *testing.T) {
	client := newGoChannel(t, prometheus.NewRegistry())

	var attempts atomic.Int32

	got := make(chan string, 1)

	client.AddConsumer("test", "fsi.test", func(msg *message.Message) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient")
		}

		got <- string(msg.Payload)

		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = client.Run(ctx) }()

	select {
	case <-client.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}

	if err := client.Publish(ctx, "fsi.test", message.NewMessage(watermill.NewUUID(), []byte("hello"))); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case payload := <-got:
		if payload != "hello" {
			t.Errorf("payload = %q", payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}

	if n := attempts.Load(); n != 2 {
		t.Errorf("attempts = %d, want 2", n)
	}
}

// TestRunWithoutConsumers 没有消费者时 Run 立即返回.
func TestRunWithoutConsumers(t *testing.T) {
	client := newGoChannel(t, nil)

	if err := client.Run(context.Background()); err != nil {
		t.Errorf("Run = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestUnknownType(t *testing.T) {
	if _, err := mq.New(context.Background(), configs.MQConfig{Type: "kafka"}, nil); err == nil {
		t.Error("unknown mq type accepted")
	}

	types := mq.GetRegisteredTypes()
	if len(types) != 2 || types[0] != configs.MQTypeGoChannel || types[1] != configs.MQTypeNATS {
		t.Errorf("registered = %v", types)
	}
}
