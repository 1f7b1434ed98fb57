package queue

import (
	"time"

	"github.com/yeisme/fsindex/pkg/internal/indexer"
	"github.com/yeisme/fsindex/pkg/internal/wire"
)

// EventHeader 定义所有事件的通用头部元数据.
type EventHeader struct {
	// Topic 冗余记录消息主题，便于离线处理或转储后定位来源主题.
	Topic string `json:"topic"`
	// TraceID 分布式追踪 ID，发布时取自 context 中的 span.
	TraceID string `json:"trace_id,omitempty"`
	// Producer 生产者标识.
	Producer string `json:"producer,omitempty"`
	// OccurredAt 事件发生时间（UTC，RFC3339）.
	OccurredAt time.Time `json:"occurred_at"`
	// Version 事件负载版本.
	Version string `json:"version,omitempty"`
}

// Message 是统一的消息封装，Header + Payload.
type Message[T any] struct {
	Header  EventHeader `json:"header"`
	Payload T           `json:"payload"`
}

// FilePayload fsi.file.indexed / fsi.file.updated 的负载.
type FilePayload struct {
	Identity  string    `json:"identity"`
	Name      string    `json:"name"`
	Extension string    `json:"extension,omitempty"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Created   time.Time `json:"created"`
	Modified  time.Time `json:"modified"`
	Category  string    `json:"category"`
	Tags      []string  `json:"tags,omitempty"`
	Keywords  []string  `json:"keywords,omitempty"`
}

// NewFilePayload 由索引条目构造负载.
func NewFilePayload(f indexer.IndexedFile) FilePayload {
	return FilePayload{
		Identity:  string(f.ID),
		Name:      f.Name,
		Extension: f.Extension,
		Path:      f.Path,
		Size:      f.Size,
		Created:   f.Created.UTC(),
		Modified:  f.Modified.UTC(),
		Category:  string(f.Category),
		Tags:      f.Tags,
		Keywords:  f.SortedKeywords(),
	}
}

// ScanCompletedPayload fsi.scan.completed 的负载.
type ScanCompletedPayload struct {
	RunID        string        `json:"run_id"`
	Roots        []string      `json:"roots"`
	Seen         int64         `json:"seen"`
	Inserted     int64         `json:"inserted"`
	Updated      int64         `json:"updated"`
	SkippedFiles int64         `json:"skipped_files"`
	PrunedDirs   int64         `json:"pruned_dirs"`
	Errors       int64         `json:"errors"`
	Duration     time.Duration `json:"duration"`
}

// NewScanCompletedPayload 由扫描统计构造负载.
func NewScanCompletedPayload(r wire.ScanReport) ScanCompletedPayload {
	return ScanCompletedPayload{
		RunID:        r.RunID,
		Roots:        r.Roots,
		Seen:         r.Seen,
		Inserted:     r.Inserted,
		Updated:      r.Updated,
		SkippedFiles: r.SkippedFiles,
		PrunedDirs:   r.PrunedDirs,
		Errors:       r.Errors,
		Duration:     r.Duration,
	}
}
