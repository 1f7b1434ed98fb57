package wire

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Search 结构化查询：关键词、标签与过滤条件.
type Search struct {
	Keywords []string
	Tags     []string
	Filters  []string // 形如 name:<term>
}

// Encode 编码为文本.
func (s Search) Encode() string {
	return NewEncoder().
		Strings("keyword", s.Keywords).
		Strings("tag", s.Tags).
		Strings("filter", s.Filters).
		Encode()
}

// Decode 从文本解码.
func (s *Search) Decode(text string) error {
	d := NewDecoder(text)

	keywords, err := d.Strings("keyword")
	if err != nil {
		return err
	}

	tags, err := d.Strings("tag")
	if err != nil {
		return err
	}

	filters, err := d.Strings("filter")
	if err != nil {
		return err
	}

	if err := d.End(); err != nil {
		return err
	}

	*s = Search{Keywords: keywords, Tags: tags, Filters: filters}

	return nil
}

// FileRecord 索引中一个文件的传输形式.
type FileRecord struct {
	ID        string
	Name      string
	Extension string
	Path      string
	Size      int64
	Created   time.Time
	Modified  time.Time
	Category  string
	Tags      []string
	Keywords  []string // 已排序
}

// Encode 编码为文本.
func (f FileRecord) Encode() string {
	return NewEncoder().
		String("id", f.ID).
		String("name", f.Name).
		String("extension", f.Extension).
		String("path", f.Path).
		Int("size", f.Size).
		Time("created", f.Created).
		Time("modified", f.Modified).
		String("category", f.Category).
		Strings("tag", f.Tags).
		Strings("keyword", f.Keywords).
		Encode()
}

// Decode 从文本解码.
func (f *FileRecord) Decode(text string) error {
	var (
		r   FileRecord
		err error
	)

	d := NewDecoder(text)

	if r.ID, err = d.String("id"); err != nil {
		return err
	}

	if r.Name, err = d.String("name"); err != nil {
		return err
	}

	if r.Extension, err = d.String("extension"); err != nil {
		return err
	}

	if r.Path, err = d.String("path"); err != nil {
		return err
	}

	if r.Size, err = d.Int("size"); err != nil {
		return err
	}

	if r.Created, err = d.Time("created"); err != nil {
		return err
	}

	if r.Modified, err = d.Time("modified"); err != nil {
		return err
	}

	if r.Category, err = d.String("category"); err != nil {
		return err
	}

	if r.Tags, err = d.Strings("tag"); err != nil {
		return err
	}

	if r.Keywords, err = d.Strings("keyword"); err != nil {
		return err
	}

	if err := d.End(); err != nil {
		return err
	}

	*f = r

	return nil
}

// FileList 文件记录列表.
type FileList []FileRecord

// Encode 编码为文本.
func (l FileList) Encode() string { return EncodeList(l) }

// Decode 从文本解码.
func (l *FileList) Decode(text string) error {
	items, err := DecodeList[FileRecord](text)
	if err != nil {
		return err
	}

	*l = items

	return nil
}

// ErrorList 错误消息列表.
type ErrorList []ErrorMessage

// Encode 编码为文本.
func (l ErrorList) Encode() string { return EncodeList(l) }

// Decode 从文本解码.
func (l *ErrorList) Decode(text string) error {
	items, err := DecodeList[ErrorMessage](text)
	if err != nil {
		return err
	}

	*l = items

	return nil
}

// StringList 字符串列表.
type StringList []string

// Encode 编码为文本.
func (l StringList) Encode() string {
	return NewEncoder().Strings("value", l).Encode()
}

// Decode 从文本解码.
func (l *StringList) Decode(text string) error {
	d := NewDecoder(text)

	values, err := d.Strings("value")
	if err != nil {
		return err
	}

	if err := d.End(); err != nil {
		return err
	}

	*l = values

	return nil
}

// Annotation addTag / addKeyword 的负载.
type Annotation struct {
	File  string // 文件标识或绝对路径
	Value string
}

// Encode 编码为文本.
func (a Annotation) Encode() string {
	return NewEncoder().
		String("file", a.File).
		String("value", a.Value).
		Encode()
}

// Decode 从文本解码.
func (a *Annotation) Decode(text string) error {
	d := NewDecoder(text)

	file, err := d.String("file")
	if err != nil {
		return err
	}

	value, err := d.String("value")
	if err != nil {
		return err
	}

	if err := d.End(); err != nil {
		return err
	}

	*a = Annotation{File: file, Value: value}

	return nil
}

// ScanRequest scan 方法的负载，Roots 为空时使用服务端配置的根目录.
type ScanRequest struct {
	Roots []string
}

// Encode 编码为文本.
func (s ScanRequest) Encode() string {
	return NewEncoder().Strings("root", s.Roots).Encode()
}

// Decode 从文本解码.
func (s *ScanRequest) Decode(text string) error {
	d := NewDecoder(text)

	roots, err := d.Strings("root")
	if err != nil {
		return err
	}

	if err := d.End(); err != nil {
		return err
	}

	*s = ScanRequest{Roots: roots}

	return nil
}

// ScanReport 一次扫描的统计.
type ScanReport struct {
	RunID        string
	Roots        []string
	Seen         int64 // 检查过的文件
	Inserted     int64
	Updated      int64
	SkippedFiles int64
	PrunedDirs   int64
	Errors       int64
	Duration     time.Duration
}

// Encode 编码为文本.
func (s ScanReport) Encode() string {
	return NewEncoder().
		String("run", s.RunID).
		Strings("root", s.Roots).
		Int("seen", s.Seen).
		Int("inserted", s.Inserted).
		Int("updated", s.Updated).
		Int("skipped", s.SkippedFiles).
		Int("pruned", s.PrunedDirs).
		Int("errors", s.Errors).
		Int("duration-ns", int64(s.Duration)).
		Encode()
}

// Decode 从文本解码.
func (s *ScanReport) Decode(text string) error {
	var (
		r   ScanReport
		err error
		ns  int64
	)

	d := NewDecoder(text)

	if r.RunID, err = d.String("run"); err != nil {
		return err
	}

	if r.Roots, err = d.Strings("root"); err != nil {
		return err
	}

	counters := []struct {
		key string
		dst *int64
	}{
		{"seen", &r.Seen},
		{"inserted", &r.Inserted},
		{"updated", &r.Updated},
		{"skipped", &r.SkippedFiles},
		{"pruned", &r.PrunedDirs},
		{"errors", &r.Errors},
		{"duration-ns", &ns},
	}
	for _, c := range counters {
		if *c.dst, err = d.Int(c.key); err != nil {
			return err
		}
	}

	if err := d.End(); err != nil {
		return err
	}

	r.Duration = time.Duration(ns)
	*s = r

	return nil
}

// IndexStats 索引概况.
type IndexStats struct {
	Files      int64
	Generation int64
	LastScan   time.Time
	ByCategory map[string]int64
}

// Encode 编码为文本，分类计数按名称排序.
func (s IndexStats) Encode() string {
	names := make([]string, 0, len(s.ByCategory))
	for name := range s.ByCategory {
		names = append(names, name)
	}

	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+strconv.FormatInt(s.ByCategory[name], 10))
	}

	return NewEncoder().
		Int("files", s.Files).
		Int("generation", s.Generation).
		Time("last-scan", s.LastScan).
		Strings("category", pairs).
		Encode()
}

// Decode 从文本解码.
func (s *IndexStats) Decode(text string) error {
	var (
		r   IndexStats
		err error
	)

	d := NewDecoder(text)

	if r.Files, err = d.Int("files"); err != nil {
		return err
	}

	if r.Generation, err = d.Int("generation"); err != nil {
		return err
	}

	if r.LastScan, err = d.Time("last-scan"); err != nil {
		return err
	}

	pairs, err := d.Strings("category")
	if err != nil {
		return err
	}

	if err := d.End(); err != nil {
		return err
	}

	r.ByCategory = make(map[string]int64, len(pairs))

	for _, p := range pairs {
		name, count, ok := strings.Cut(p, "=")
		if !ok {
			return &FormatError{Expected: "category", Got: "category: " + p}
		}

		n, err := strconv.ParseInt(count, 10, 64)
		if err != nil {
			return &FormatError{Expected: "category", Got: "category: " + p}
		}

		r.ByCategory[name] = n
	}

	*s = r

	return nil
}

// String 便于 CLI 输出.
func (s ScanReport) String() string {
	return fmt.Sprintf("run=%s seen=%d inserted=%d updated=%d skipped=%d pruned=%d errors=%d duration=%s",
		s.RunID, s.Seen, s.Inserted, s.Updated, s.SkippedFiles, s.PrunedDirs, s.Errors, s.Duration)
}
