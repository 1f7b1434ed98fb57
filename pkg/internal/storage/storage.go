// Package storage 定义索引记录的持久化端口，并聚合数据库、KV 与消息队列客户端.
//
// 索引引擎不依赖任何 SQL，只通过 Connector 读写记录：
//
//	rec, err := conn.FindByMetadata(ctx, storage.Metadata{Size: 42, Created: t, Extension: "pdf"})
//	if errors.Is(err, storage.ErrNotFound) {
//		id, err := conn.Insert(ctx, rec)
//	}
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound 按元数据没有找到记录.
var ErrNotFound = errors.New("storage: record not found")

// Error 存储端口的失败，Op 为 find / insert / update.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Metadata 按元数据查找记录的条件.
type Metadata struct {
	Size      int64
	Created   time.Time
	Extension string
}

// Record 持久化的文件记录.
type Record struct {
	ID        uint // 存储分配的主键，Insert 之前为 0
	Identity  string
	Name      string
	Extension string
	Path      string
	Size      int64
	Created   time.Time
	Modified  time.Time
	Category  string
	Tags      []string
	Keywords  []string
}

// Metadata 返回记录对应的查找条件.
func (r Record) Metadata() Metadata {
	return Metadata{Size: r.Size, Created: r.Created, Extension: r.Extension}
}

// Connector 存储端口.
type Connector interface {
	// FindByMetadata 按 (size, created, extension) 查找，未命中返回 ErrNotFound.
	FindByMetadata(ctx context.Context, meta Metadata) (Record, error)
	// Insert 插入记录并返回主键.
	Insert(ctx context.Context, rec Record) (uint, error)
	// Update 按主键更新记录.
	Update(ctx context.Context, rec Record) error
}

// Save 命中则更新，未命中则插入，返回记录主键与执行的操作.
// 元数据相同但标识不同的记录是另一个文件（例如 cp -p 的副本），按未命中处理.
func Save(ctx context.Context, c Connector, rec Record) (uint, string, error) {
	found, err := c.FindByMetadata(ctx, rec.Metadata())
	if err == nil && found.Identity != "" && rec.Identity != "" && found.Identity != rec.Identity {
		err = ErrNotFound
	}

	switch {
	case err == nil:
		rec.ID = found.ID
		return rec.ID, "update", c.Update(ctx, rec)
	case errors.Is(err, ErrNotFound):
		id, err := c.Insert(ctx, rec)
		return id, "insert", err
	default:
		return 0, "find", err
	}
}
