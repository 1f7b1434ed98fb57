package service

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/yeisme/fsindex/pkg/internal/indexer"
	"github.com/yeisme/fsindex/pkg/internal/storage"
	"github.com/yeisme/fsindex/pkg/log"
	"github.com/yeisme/fsindex/pkg/metrics"
	"github.com/yeisme/fsindex/pkg/queue"
)

// Consumers 可以挂载消息处理函数，由 *mq.Client 实现.
type Consumers interface {
	AddConsumer(name, topic string, handler message.NoPublishHandlerFunc)
}

// StorageSync 消费文件事件并写入存储端口. 存储失败只记录日志，不影响内存索引.
type StorageSync struct {
	files  storage.Connector
	logger zerolog.Logger
}

// NewStorageSync 创建同步器.
func NewStorageSync(files storage.Connector) *StorageSync {
	return &StorageSync{files: files, logger: log.Component("storage-sync")}
}

// Subscribe 为每个文件主题挂载消费者.
func (s *StorageSync) Subscribe(c Consumers) {
	for _, topic := range queue.FileTopics {
		c.AddConsumer("storage-sync:"+topic, topic, s.Handle)
	}
}

// Handle 处理一条文件事件. 无法解码的消息直接确认，避免反复投递.
func (s *StorageSync) Handle(msg *message.Message) error {
	env, err := queue.ParseWatermillMessage[queue.FilePayload](msg)
	if err != nil {
		s.logger.Error().Err(err).Str("message_id", msg.UUID).Msg("decode file event")
		return nil
	}

	id, op, err := save(msg.Context(), s.files, RecordFromPayload(env.Payload))
	if err != nil {
		level := zerolog.WarnLevel
		if errors.Is(err, storage.ErrUnavailable) {
			level = zerolog.DebugLevel
		}

		s.logger.WithLevel(level).Err(err).
			Str("identity", env.Payload.Identity).
			Str("path", env.Payload.Path).
			Msg("sync file to storage")

		return nil
	}

	s.logger.Debug().Str("identity", env.Payload.Identity).Str("op", op).Uint("id", id).Msg("file synced")

	return nil
}

// save 调用 storage.Save 并记录指标.
func save(ctx context.Context, c storage.Connector, rec storage.Record) (uint, string, error) {
	id, op, err := storage.Save(ctx, c, rec)

	result := "ok"
	if err != nil {
		result = "err"
	}

	metrics.StorageSync.WithLabelValues(op, result).Inc()

	return id, op, err
}

// RecordFromFile 由索引条目构造存储记录.
func RecordFromFile(f indexer.IndexedFile) storage.Record {
	return RecordFromPayload(queue.NewFilePayload(f))
}

// RecordFromPayload 由事件负载构造存储记录.
func RecordFromPayload(p queue.FilePayload) storage.Record {
	return storage.Record{
		Identity:  p.Identity,
		Name:      p.Name,
		Extension: p.Extension,
		Path:      p.Path,
		Size:      p.Size,
		Created:   p.Created,
		Modified:  p.Modified,
		Category:  p.Category,
		Tags:      p.Tags,
		Keywords:  p.Keywords,
	}
}
