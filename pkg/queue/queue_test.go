package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/yeisme/fsindex/pkg/configs"
	"github.com/yeisme/fsindex/pkg/internal/indexer"
	"github.com/yeisme/fsindex/pkg/internal/wire"
	"github.com/yeisme/fsindex/pkg/queue"
)

// recordingBus 记录发布的消息.
type recordingBus struct {
	mu   sync.Mutex
	msgs map[string][]*message.Message
	err  error
}

func (b *recordingBus) Publish(_ context.Context, topic string, msgs ...*message.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.msgs == nil {
		b.msgs = map[string][]*message.Message{}
	}

	b.msgs[topic] = append(b.msgs[topic], msgs...)

	return b.err
}

func (b *recordingBus) count(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.msgs[topic])
}

func sampleFile() indexer.IndexedFile {
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	return indexer.IndexedFile{
		ID:        indexer.NativeIdentity(1, 2),
		Name:      "report.pdf",
		Extension: "pdf",
		Path:      "/home/u/report.pdf",
		Size:      42,
		Created:   created,
		Modified:  created.Add(time.Hour),
		Category:  indexer.Classify("pdf"),
		Tags:      []string{"work"},
		Keywords:  map[string]struct{}{"invoice": {}},
	}
}

// TestEnvelope 信封编码后可以还原负载与头部.
func TestEnvelope(t *testing.T) {
	msg, err := queue.NewWatermillMessage(queue.TopicFileIndexed, queue.NewFilePayload(sampleFile()),
		queue.WithProducer("test"), queue.WithTraceID("abc"))
	if err != nil {
		t.Fatalf("NewWatermillMessage: %v", err)
	}

	if msg.Metadata.Get("topic") != queue.TopicFileIndexed || msg.Metadata.Get("trace_id") != "abc" {
		t.Errorf("metadata = %v", msg.Metadata)
	}

	env, err := queue.ParseWatermillMessage[queue.FilePayload](msg)
	if err != nil {
		t.Fatalf("ParseWatermillMessage: %v", err)
	}

	if env.Header.Topic != queue.TopicFileIndexed || env.Header.Producer != "test" || env.Header.Version != queue.PayloadVersionV1 {
		t.Errorf("header = %+v", env.Header)
	}

	p := env.Payload
	if p.Identity != "n:1:2" || p.Path != "/home/u/report.pdf" || p.Size != 42 || p.Category != "Document" {
		t.Errorf("payload = %+v", p)
	}

	if len(p.Keywords) != 1 || p.Keywords[0] != "invoice" || len(p.Tags) != 1 {
		t.Errorf("tags/keywords = %v / %v", p.Tags, p.Keywords)
	}

	if !p.Created.Equal(sampleFile().Created) {
		t.Errorf("created = %v", p.Created)
	}
}

// TestEnvelopeVersion 不认识的信封版本被拒绝.
func TestEnvelopeVersion(t *testing.T) {
	msg := message.NewMessage("m1", []byte(`{"header":{"topic":"fsi.file.indexed","version":"v2"},"payload":{}}`))

	if _, err := queue.ParseWatermillMessage[queue.FilePayload](msg); err == nil {
		t.Error("v2 envelope accepted")
	}

	msg = message.NewMessage("m2", []byte(`not json`))
	if _, err := queue.ParseWatermillMessage[queue.FilePayload](msg); err == nil {
		t.Error("malformed envelope accepted")
	}
}

// TestPublisherToggles 各主题按开关发布，forceFiles 强制发布文件事件.
func TestPublisherToggles(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		cfg        configs.EventsConfig
		force      bool
		wantCounts map[string]int
	}{
		{
			name:       "disabled",
			cfg:        configs.EventsConfig{Enabled: false, FileIndexed: true, FileUpdated: true, ScanCompleted: true},
			wantCounts: map[string]int{queue.TopicFileIndexed: 0, queue.TopicFileUpdated: 0, queue.TopicScanCompleted: 0},
		},
		{
			name:       "defaults",
			cfg:        configs.EventsConfig{Enabled: true, FileIndexed: true, ScanCompleted: true},
			wantCounts: map[string]int{queue.TopicFileIndexed: 1, queue.TopicFileUpdated: 0, queue.TopicScanCompleted: 1},
		},
		{
			name:       "forced",
			cfg:        configs.EventsConfig{},
			force:      true,
			wantCounts: map[string]int{queue.TopicFileIndexed: 1, queue.TopicFileUpdated: 1, queue.TopicScanCompleted: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &recordingBus{}
			p := queue.NewPublisher(bus, tt.cfg, tt.force)

			p.FileIndexed(ctx, sampleFile())
			p.FileUpdated(ctx, sampleFile())
			p.ScanCompleted(ctx, wire.ScanReport{RunID: "r1", Roots: []string{"/tmp"}})

			for topic, want := range tt.wantCounts {
				if got := bus.count(topic); got != want {
					t.Errorf("%s: got %d messages, want %d", topic, got, want)
				}
			}
		})
	}
}

// TestPublisherSwallowsErrors 发布失败不会 panic 也不会向上传播.
func TestPublisherSwallowsErrors(t *testing.T) {
	bus := &recordingBus{err: errors.New("broker down")}
	p := queue.NewPublisher(bus, configs.EventsConfig{Enabled: true, ScanCompleted: true}, false)

	p.ScanCompleted(context.Background(), wire.ScanReport{RunID: "r1"})

	if bus.count(queue.TopicScanCompleted) != 1 {
		t.Error("publish was not attempted")
	}
}
