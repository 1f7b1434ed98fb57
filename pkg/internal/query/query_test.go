package query_test

import (
	"reflect"
	"testing"

	"github.com/yeisme/fsindex/pkg/internal/query"
	"github.com/yeisme/fsindex/pkg/internal/wire"
)

// TestCompile 测试搜索串的编译结果.
func TestCompile(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want wire.Search
	}{
		{
			name: "mixed terms",
			raw:  "tag:work keyword:invoice report",
			want: wire.Search{Keywords: []string{"invoice"}, Tags: []string{"work"}, Filters: []string{"name:report"}},
		},
		{
			name: "empty",
			raw:  "   ",
			want: wire.Search{Keywords: []string{}, Tags: []string{}, Filters: []string{}},
		},
		{
			name: "explicit filters kept",
			raw:  "ext:pdf category:Document path:/home/u name:tax",
			want: wire.Search{
				Keywords: []string{},
				Tags:     []string{},
				Filters:  []string{"ext:pdf", "category:Document", "path:/home/u", "name:tax"},
			},
		},
		{
			name: "limit passed through",
			raw:  "ext:txt limit:50",
			want: wire.Search{Keywords: []string{}, Tags: []string{}, Filters: []string{"ext:txt", "limit:50"}},
		},
		{
			name: "empty suffix ignored",
			raw:  "tag: keyword: ext: a",
			want: wire.Search{Keywords: []string{}, Tags: []string{}, Filters: []string{"name:a"}},
		},
		{
			name: "repeated prefixes keep order",
			raw:  "tag:a\ttag:b\nkeyword:x keyword:y",
			want: wire.Search{Keywords: []string{"x", "y"}, Tags: []string{"a", "b"}, Filters: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := query.Compile(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Compile(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

// TestCompileRoundTrip 编译结果可以无损经过编解码.
func TestCompileRoundTrip(t *testing.T) {
	s := query.Compile("tag:work keyword:invoice report")

	got, err := wire.Decode[wire.Search](s.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !reflect.DeepEqual(got, s) {
		t.Errorf("round trip = %+v, want %+v", got, s)
	}
}
