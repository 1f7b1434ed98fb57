package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yeisme/fsindex/pkg/internal/model"
	dbc "github.com/yeisme/fsindex/pkg/internal/storage/db"
)

// FileStore 基于 gorm 的 Connector 实现.
type FileStore struct {
	db *gorm.DB
}

var _ Connector = (*FileStore)(nil)

// NewFileStore 创建 FileStore 并迁移表结构.
func NewFileStore(ctx context.Context, client *dbc.Client) (*FileStore, error) {
	db := client.WithContext(ctx)
	if err := db.AutoMigrate(&model.File{}); err != nil {
		return nil, &Error{Op: "migrate", Err: err}
	}

	return &FileStore{db: client.DB}, nil
}

// FindByMetadata 按 (size, birth_time, extension) 查找，多条命中时取最早插入的一条.
func (s *FileStore) FindByMetadata(ctx context.Context, meta Metadata) (Record, error) {
	var f model.File

	err := s.db.WithContext(ctx).
		Where("size = ? AND birth_time = ? AND extension = ?", meta.Size, meta.Created.UTC(), meta.Extension).
		Order("id").
		First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrNotFound
	}

	if err != nil {
		return Record{}, &Error{Op: "find", Err: err}
	}

	rec, err := fromModel(f)
	if err != nil {
		return Record{}, &Error{Op: "find", Err: err}
	}

	return rec, nil
}

// Insert 插入记录. 标识已存在时（文件被修改后元数据不再匹配）改为覆盖该行.
func (s *FileStore) Insert(ctx context.Context, rec Record) (uint, error) {
	f, err := toModel(rec)
	if err != nil {
		return 0, &Error{Op: "insert", Err: err}
	}

	f.ID = 0

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identity"}},
			DoUpdates: clause.AssignmentColumns(updatableColumns),
		}).
		Create(&f).Error
	if err != nil {
		return 0, &Error{Op: "insert", Err: err}
	}

	if f.ID == 0 {
		// 冲突更新时部分驱动不回填主键.
		if err := s.db.WithContext(ctx).Where("identity = ?", f.Identity).Select("id").First(&f).Error; err != nil {
			return 0, &Error{Op: "insert", Err: err}
		}
	}

	return f.ID, nil
}

// Update 按主键更新记录.
func (s *FileStore) Update(ctx context.Context, rec Record) error {
	if rec.ID == 0 {
		return &Error{Op: "update", Err: errors.New("record has no id")}
	}

	f, err := toModel(rec)
	if err != nil {
		return &Error{Op: "update", Err: err}
	}

	res := s.db.WithContext(ctx).Model(&model.File{ID: rec.ID}).Select(updatableColumns).Updates(&f)
	if res.Error != nil {
		return &Error{Op: "update", Err: res.Error}
	}

	if res.RowsAffected == 0 {
		return &Error{Op: "update", Err: ErrNotFound}
	}

	return nil
}

// Count 记录总数.
func (s *FileStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.File{}).Count(&n).Error; err != nil {
		return 0, &Error{Op: "count", Err: err}
	}

	return n, nil
}

// updatableColumns 更新时写入的列. 一行的 identity 写入后不再改变.
var updatableColumns = []string{
	"name", "extension", "path", "size", "birth_time", "mod_time",
	"category", "tags_json", "keywords_json", "updated_at",
}

func toModel(rec Record) (model.File, error) {
	f := model.File{
		ID:        rec.ID,
		Identity:  rec.Identity,
		Name:      rec.Name,
		Extension: rec.Extension,
		Path:      rec.Path,
		Size:      rec.Size,
		BirthTime: rec.Created.UTC(),
		ModTime:   rec.Modified.UTC(),
		Category:  rec.Category,
		UpdatedAt: time.Now().UTC(),
	}

	if err := f.SetTags(rec.Tags); err != nil {
		return f, err
	}

	if err := f.SetKeywords(rec.Keywords); err != nil {
		return f, err
	}

	return f, nil
}

func fromModel(f model.File) (Record, error) {
	tags, err := f.Tags()
	if err != nil {
		return Record{}, err
	}

	keywords, err := f.Keywords()
	if err != nil {
		return Record{}, err
	}

	return Record{
		ID:        f.ID,
		Identity:  f.Identity,
		Name:      f.Name,
		Extension: f.Extension,
		Path:      f.Path,
		Size:      f.Size,
		Created:   f.BirthTime.UTC(),
		Modified:  f.ModTime.UTC(),
		Category:  f.Category,
		Tags:      tags,
		Keywords:  keywords,
	}, nil
}
