// Package model 持久化存储使用的 gorm 模型.
package model

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// File 已索引文件的持久化记录.
// (size, birth_time, extension) 是存储端口按元数据查找时使用的组合索引.
type File struct {
	ID uint `gorm:"primaryKey" json:"id"`
	// Identity 文件标识（dev/inode 或退化哈希），唯一
	Identity  string    `gorm:"size:128;uniqueIndex"   json:"identity"`
	Name      string    `gorm:"size:512;index"         json:"name"`
	Extension string    `gorm:"size:64;index:idx_meta" json:"extension"`
	Path      string    `gorm:"type:text"              json:"path"`
	Size      int64     `gorm:"index:idx_meta"         json:"size"`
	BirthTime time.Time `gorm:"index:idx_meta"         json:"birth_time"`
	ModTime   time.Time `json:"mod_time"`
	Category  string    `gorm:"size:32;index"          json:"category"`
	// Tags / Keywords 以 JSON 数组文本存储
	TagsJSON     string `gorm:"type:text" json:"-"`
	KeywordsJSON string `gorm:"type:text" json:"-"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 表名.
func (File) TableName() string {
	return "indexed_files"
}

// SetTags 写入标签列表.
func (f *File) SetTags(tags []string) error {
	s, err := encodeList(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	f.TagsJSON = s

	return nil
}

// Tags 读取标签列表.
func (f *File) Tags() ([]string, error) {
	return decodeList(f.TagsJSON)
}

// SetKeywords 写入关键词列表.
func (f *File) SetKeywords(keywords []string) error {
	s, err := encodeList(keywords)
	if err != nil {
		return fmt.Errorf("encode keywords: %w", err)
	}

	f.KeywordsJSON = s

	return nil
}

// Keywords 读取关键词列表.
func (f *File) Keywords() ([]string, error) {
	return decodeList(f.KeywordsJSON)
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}

	return sonic.MarshalString(values)
}

func decodeList(s string) ([]string, error) {
	values := []string{}
	if s == "" {
		return values, nil
	}

	if err := sonic.UnmarshalString(s, &values); err != nil {
		return nil, err
	}

	return values, nil
}
