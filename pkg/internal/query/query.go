// Package query 把用户输入的搜索串编译为结构化的 wire.Search.
//
//	tag:work keyword:invoice report  =>  tags=[work] keywords=[invoice] filters=[name:report]
package query

import (
	"strings"

	"github.com/yeisme/fsindex/pkg/internal/wire"
)

const (
	TagPrefix     = "tag:"
	KeywordPrefix = "keyword:"
	// NameFilter 裸词生成的过滤条件前缀.
	NameFilter = "name:"
)

// filterKeys 可以直接写在搜索串里的过滤条件，原样进入 Filters.
var filterKeys = []string{"name:", "ext:", "category:", "path:", "limit:"}

// Compile 按空白切分 raw. tag: / keyword: 前缀的词分别进入 Tags / Keywords，
// 显式的过滤条件原样保留，其余裸词变成 name:<term>. 前缀后为空的词被忽略.
func Compile(raw string) wire.Search {
	s := wire.Search{
		Keywords: []string{},
		Tags:     []string{},
		Filters:  []string{},
	}

	for _, term := range strings.Fields(raw) {
		if v, ok := strings.CutPrefix(term, TagPrefix); ok {
			if v != "" {
				s.Tags = append(s.Tags, v)
			}

			continue
		}

		if v, ok := strings.CutPrefix(term, KeywordPrefix); ok {
			if v != "" {
				s.Keywords = append(s.Keywords, v)
			}

			continue
		}

		if key, ok := filterKey(term); ok {
			if len(term) > len(key) {
				s.Filters = append(s.Filters, term)
			}

			continue
		}

		s.Filters = append(s.Filters, NameFilter+term)
	}

	return s
}

func filterKey(term string) (string, bool) {
	for _, key := range filterKeys {
		if strings.HasPrefix(term, key) {
			return key, true
		}
	}

	return "", false
}
