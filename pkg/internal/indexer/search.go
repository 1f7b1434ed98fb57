package indexer

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/yeisme/fsindex/pkg/internal/wire"
)

// FilterError 无法识别的过滤条件.
type FilterError struct {
	Filter string
	Reason string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("indexer: bad filter %q: %s", e.Filter, e.Reason)
}

type predicate func(f *IndexedFile) bool

// LimitFilter 限制返回条数的过滤条件前缀，limit:0 表示不限.
const LimitFilter = "limit:"

// SearchLimit 返回 q 中最后一个 limit: 的值，没有时 ok 为 false.
func SearchLimit(q wire.Search) (n int, ok bool, err error) {
	for _, filter := range q.Filters {
		v, found := strings.CutPrefix(filter, LimitFilter)
		if !found {
			continue
		}

		n, err = strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, false, &FilterError{Filter: filter, Reason: "limit must be a non-negative integer"}
		}

		ok = true
	}

	return n, ok, nil
}

// compileFilter 支持 name:<子串>、ext:<扩展名>、category:<类别>、path:<目录前缀>.
func compileFilter(filter string) (predicate, error) {
	key, value, ok := strings.Cut(filter, ":")
	if !ok {
		return nil, &FilterError{Filter: filter, Reason: "missing key"}
	}

	if value == "" {
		return nil, &FilterError{Filter: filter, Reason: "empty value"}
	}

	switch key {
	case "name":
		needle := strings.ToLower(value)

		return func(f *IndexedFile) bool {
			return strings.Contains(strings.ToLower(f.Name), needle)
		}, nil
	case "ext":
		ext := normalizeExt(value)

		return func(f *IndexedFile) bool {
			return f.Extension == ext
		}, nil
	case "category":
		c, ok := ParseCategory(value)
		if !ok {
			return nil, &FilterError{Filter: filter, Reason: "unknown category"}
		}

		return func(f *IndexedFile) bool {
			return f.Category == c
		}, nil
	case "path":
		prefix, err := NormalizePath(value)
		if err != nil {
			return nil, &FilterError{Filter: filter, Reason: err.Error()}
		}

		return func(f *IndexedFile) bool {
			return isWithin(f.Path, prefix)
		}, nil
	default:
		return nil, &FilterError{Filter: filter, Reason: "unknown key"}
	}
}

// isWithin path 等于 dir 或位于其下.
func isWithin(path, dir string) bool {
	if path == dir {
		return true
	}

	if !strings.HasSuffix(dir, string(filepath.Separator)) {
		dir += string(filepath.Separator)
	}

	return strings.HasPrefix(path, dir)
}

// Search 返回同时满足全部关键词、全部标签与全部过滤条件的文件，按路径排序.
// 带 limit:N 时只返回排序后的前 N 个.
func (e *Engine) Search(q wire.Search) ([]IndexedFile, error) {
	limit, _, err := SearchLimit(q)
	if err != nil {
		return nil, err
	}

	preds := make([]predicate, 0, len(q.Filters)+2)

	for _, filter := range q.Filters {
		if strings.HasPrefix(filter, LimitFilter) {
			continue
		}

		p, err := compileFilter(filter)
		if err != nil {
			return nil, err
		}

		preds = append(preds, p)
	}

	if len(q.Keywords) > 0 {
		keywords := q.Keywords
		preds = append(preds, func(f *IndexedFile) bool {
			for _, k := range keywords {
				if !f.HasKeyword(k) {
					return false
				}
			}

			return true
		})
	}

	if len(q.Tags) > 0 {
		tags := q.Tags
		preds = append(preds, func(f *IndexedFile) bool {
			for _, t := range tags {
				if !f.HasTag(t) {
					return false
				}
			}

			return true
		})
	}

	files := e.index.Select(func(f *IndexedFile) bool {
		for _, p := range preds {
			if !p(f) {
				return false
			}
		}

		return true
	})

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})

	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}

	return files, nil
}
