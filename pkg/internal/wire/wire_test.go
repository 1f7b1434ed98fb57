package wire_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/yeisme/fsindex/pkg/internal/wire"
)

func sampleRecord() wire.FileRecord {
	return wire.FileRecord{
		ID:        "n:803:2a",
		Name:      "report: final\nv2.pdf",
		Extension: "pdf",
		Path:      `C:\Users\me\report.pdf`,
		Size:      4096,
		Created:   time.Date(2024, 3, 1, 8, 30, 0, 123, time.UTC),
		Modified:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Category:  "Document",
		Tags:      []string{"work", "tax 2024"},
		Keywords:  []string{"invoice"},
	}
}

// TestRequestCarriesPayload 请求与响应各自嵌套负载，解码后负载不变.
func TestRequestCarriesPayload(t *testing.T) {
	search := wire.Search{
		Keywords: []string{"invoice"},
		Tags:     []string{"work"},
		Filters:  []string{"name:report", "ext:pdf"},
	}

	req, err := wire.Decode[wire.Request](wire.NewRequest("search", search).Encode())
	if err != nil {
		t.Fatalf("decode request: %v", err)
	}

	if req.Method != "search" {
		t.Errorf("Method = %q", req.Method)
	}

	got, err := wire.Decode[wire.Search](req.Body)
	if err != nil {
		t.Fatalf("decode search: %v", err)
	}

	if !reflect.DeepEqual(got, search) {
		t.Errorf("search = %+v, want %+v", got, search)
	}

	list := wire.FileList{sampleRecord(), sampleRecord()}
	list[1].ID = "h:00000000000000ff"

	resp, err := wire.Decode[wire.Response](wire.OK(list).Encode())
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}

	files, err := wire.Result[wire.FileList](resp)
	if err != nil {
		t.Fatalf("result: %v", err)
	}

	if !reflect.DeepEqual(files, list) {
		t.Errorf("files = %+v\nwant %+v", files, list)
	}
}

// TestEmptySlicesAndValues 空列表与空字符串都能编码.
func TestEmptySlicesAndValues(t *testing.T) {
	got, err := wire.Decode[wire.Search](wire.Search{}.Encode())
	if err != nil {
		t.Fatal(err)
	}

	if len(got.Keywords)+len(got.Tags)+len(got.Filters) != 0 {
		t.Errorf("unexpected values: %+v", got)
	}

	a, err := wire.Decode[wire.Annotation](wire.Annotation{File: "/x"}.Encode())
	if err != nil {
		t.Fatal(err)
	}

	if a.File != "/x" || a.Value != "" {
		t.Errorf("annotation = %+v", a)
	}

	if _, err := wire.Decode[wire.Response](wire.OK(wire.Empty{}).Encode()); err != nil {
		t.Errorf("empty response: %v", err)
	}
}

// TestErrorResponse err 响应解出 ErrorMessage，并可用 errors.As 取回.
func TestErrorResponse(t *testing.T) {
	resp := wire.Fail(wire.NewError(wire.KindNotFound, "file %q is not indexed", "/tmp/a"))

	decoded, err := wire.Decode[wire.Response](resp.Encode())
	if err != nil {
		t.Fatal(err)
	}

	if decoded.OK {
		t.Fatal("decoded response is ok")
	}

	_, err = wire.Result[wire.FileRecord](decoded)

	var msg wire.ErrorMessage
	if !errors.As(err, &msg) {
		t.Fatalf("error %v is not an ErrorMessage", err)
	}

	if msg.Kind != wire.KindNotFound || !strings.Contains(msg.Message, "/tmp/a") {
		t.Errorf("msg = %+v", msg)
	}

	if m, ok := wire.AsErrorMessage(errors.Join(errors.New("ctx"), msg)); !ok || m != msg {
		t.Errorf("AsErrorMessage = %+v, %v", m, ok)
	}
}

// TestStatsAndReport 统计与扫描报告.
func TestStatsAndReport(t *testing.T) {
	stats := wire.IndexStats{
		Files:      3,
		Generation: 9,
		LastScan:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		ByCategory: map[string]int64{"Document": 2, "Music": 1},
	}

	gotStats, err := wire.Decode[wire.IndexStats](stats.Encode())
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(gotStats, stats) {
		t.Errorf("stats = %+v, want %+v", gotStats, stats)
	}

	report := wire.ScanReport{
		RunID: "01J0", Roots: []string{"/home"}, Seen: 10, Inserted: 4, Updated: 1,
		SkippedFiles: 2, PrunedDirs: 3, Errors: 1, Duration: 1500 * time.Millisecond,
	}

	gotReport, err := wire.Decode[wire.ScanReport](report.Encode())
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(gotReport, report) {
		t.Errorf("report = %+v, want %+v", gotReport, report)
	}
}

// TestCorruptedInput 截断、篡改或多余的行均返回 FormatError.
func TestCorruptedInput(t *testing.T) {
	full := sampleRecord().Encode()
	lines := strings.SplitAfter(strings.TrimSuffix(full, "\n"), "\n")

	tests := map[string]string{
		"truncated":      strings.Join(lines[:len(lines)-1], ""),
		"trailing":       full + "extra: 1\n",
		"renamed key":    strings.Replace(full, "size: ", "bytes: ", 1),
		"bad int":        strings.Replace(full, "size: 4096", "size: four", 1),
		"bad time":       strings.Replace(full, "modified: 2025", "modified: x2025", 1),
		"short count":    strings.Replace(full, "tag-length: 2", "tag-length: 9", 1),
		"negative count": strings.Replace(full, "tag-length: 2", "tag-length: -1", 1),
		"bad escape":     strings.Replace(full, `\n`, `\q`, 1),
		"empty":          "",
	}

	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := wire.Decode[wire.FileRecord](text)

			var fe *wire.FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("err = %v, want *FormatError", err)
			}
		})
	}
}

// TestResponseRejectsUnknownResult result 只能是 ok 或 err.
func TestResponseRejectsUnknownResult(t *testing.T) {
	_, err := wire.Decode[wire.Response]("result: maybe\nbody-length: 0\n")

	var fe *wire.FormatError
	if !errors.As(err, &fe) || fe.Expected != "result" {
		t.Errorf("err = %v", err)
	}
}
