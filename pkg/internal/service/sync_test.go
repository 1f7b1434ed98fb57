package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/yeisme/fsindex/pkg/configs"
	"github.com/yeisme/fsindex/pkg/internal/indexer"
	"github.com/yeisme/fsindex/pkg/internal/service"
	"github.com/yeisme/fsindex/pkg/internal/storage/mq"
	"github.com/yeisme/fsindex/pkg/queue"
)

func indexedFile(size int64) indexer.IndexedFile {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	return indexer.IndexedFile{
		ID:        indexer.NativeIdentity(8, 99),
		Name:      "report.pdf",
		Extension: "pdf",
		Path:      "/data/report.pdf",
		Size:      size,
		Created:   created,
		Modified:  created,
		Category:  indexer.CategoryDocument,
		Tags:      []string{},
		Keywords:  map[string]struct{}{},
	}
}

// TestStorageSyncHandle 首次事件插入，同一元数据的后续事件更新.
func TestStorageSyncHandle(t *testing.T) {
	conn := &memConnector{}
	syncer := service.NewStorageSync(conn)

	for _, topic := range []string{queue.TopicFileIndexed, queue.TopicFileUpdated} {
		msg, err := queue.NewWatermillMessage(topic, queue.NewFilePayload(indexedFile(10)))
		if err != nil {
			t.Fatal(err)
		}

		if err := syncer.Handle(msg); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}

	if conn.len() != 1 {
		t.Fatalf("stored %d records, want 1", conn.len())
	}

	if rec := conn.records[1]; rec.Identity != "n:8:63" || rec.Path != "/data/report.pdf" {
		t.Errorf("record = %+v", rec)
	}

	// 无法解码与存储失败都被确认，不会重复投递.
	if err := syncer.Handle(message.NewMessage("bad", []byte("{"))); err != nil {
		t.Errorf("Handle(bad) = %v", err)
	}

	conn.fail = errors.New("db down")

	msg, _ := queue.NewWatermillMessage(queue.TopicFileIndexed, queue.NewFilePayload(indexedFile(20)))
	if err := syncer.Handle(msg); err != nil {
		t.Errorf("Handle with failing storage = %v", err)
	}
}

// TestStorageSyncOverBus 通过 gochannel 事件总线把扫描结果同步到存储.
func TestStorageSyncOverBus(t *testing.T) {
	cfg := configs.MQConfig{Type: configs.MQTypeGoChannel}
	cfg.Common.BufferSize = 64

	client, err := mq.New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("mq.New: %v", err)
	}

	t.Cleanup(func() { _ = client.Close() })

	conn := &memConnector{}
	service.NewStorageSync(conn).Subscribe(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = client.Run(ctx) }()

	select {
	case <-client.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}

	pub := queue.NewPublisher(client, configs.EventsConfig{}, true)
	pub.FileIndexed(ctx, indexedFile(1))
	pub.FileIndexed(ctx, indexedFile(2))

	deadline := time.Now().Add(5 * time.Second)
	for conn.len() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("synced %d records, want 2", conn.len())
		}

		time.Sleep(10 * time.Millisecond)
	}
}
