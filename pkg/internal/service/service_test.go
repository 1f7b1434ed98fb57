package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/yeisme/fsindex/pkg/cache"
	"github.com/yeisme/fsindex/pkg/configs"
	"github.com/yeisme/fsindex/pkg/internal/indexer"
	"github.com/yeisme/fsindex/pkg/internal/rpc"
	"github.com/yeisme/fsindex/pkg/internal/service"
	"github.com/yeisme/fsindex/pkg/internal/storage"
	"github.com/yeisme/fsindex/pkg/internal/storage/kv"
	"github.com/yeisme/fsindex/pkg/internal/wire"
)

// methods 记录注册的 handler.
type methods map[string]rpc.Handler

func (m methods) RegisterMethod(name string, h rpc.Handler) { m[name] = h }

func (m methods) call(t *testing.T, method string, payload wire.Value) wire.Response {
	t.Helper()

	h, ok := m[method]
	if !ok {
		t.Fatalf("method %q not registered", method)
	}

	resp, err := h(context.Background(), wire.NewRequest(method, payload))
	if err != nil {
		if msg, ok := wire.AsErrorMessage(err); ok {
			return wire.Fail(msg)
		}

		t.Fatalf("%s: unexpected error %v", method, err)
	}

	return resp
}

func wantKind(t *testing.T, resp wire.Response, kind wire.ErrorKind) {
	t.Helper()

	msg, ok := wire.AsErrorMessage(resp.Err())
	if !ok || msg.Kind != kind {
		t.Fatalf("response error = %v, want kind %s", resp.Err(), kind)
	}
}

// memConnector 内存中的存储端口.
type memConnector struct {
	mu      sync.Mutex
	records map[uint]storage.Record
	nextID  uint
	fail    error
}

func (c *memConnector) FindByMetadata(_ context.Context, meta storage.Metadata) (storage.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail != nil {
		return storage.Record{}, &storage.Error{Op: "find", Err: c.fail}
	}

	for _, r := range c.records {
		if r.Size == meta.Size && r.Created.Equal(meta.Created) && r.Extension == meta.Extension {
			return r, nil
		}
	}

	return storage.Record{}, storage.ErrNotFound
}

func (c *memConnector) Insert(_ context.Context, rec storage.Record) (uint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.records == nil {
		c.records = map[uint]storage.Record{}
	}

	c.nextID++
	rec.ID = c.nextID
	c.records[rec.ID] = rec

	return rec.ID, nil
}

func (c *memConnector) Update(_ context.Context, rec storage.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.records[rec.ID]; !ok {
		return &storage.Error{Op: "update", Err: storage.ErrNotFound}
	}

	c.records[rec.ID] = rec

	return nil
}

func (c *memConnector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.records)
}

func setup(t *testing.T, opts ...service.Option) (methods, string) {
	t.Helper()

	root := t.TempDir()
	for name, content := range map[string]string{
		"report.pdf":      "pdf",
		"holiday.jpg":     "jpg",
		"notes/draft.txt": "draft",
	} {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}

		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	engine := indexer.NewEngine(indexer.Options{
		Roots:      []string{root},
		Exclusions: indexer.NewExclusionSet([]string{"/proc"}),
	})

	m := methods{}
	service.New(engine, opts...).Register(m)

	resp := m.call(t, service.MethodScan, wire.ScanRequest{})

	report, err := wire.Result[wire.ScanReport](resp)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	if report.Inserted != 3 {
		t.Fatalf("scan inserted %d files, want 3", report.Inserted)
	}

	return m, root
}

// TestSearch 过滤条件生效，错误的过滤条件返回 BadRequest.
func TestSearch(t *testing.T) {
	m, _ := setup(t)

	files, err := wire.Result[wire.FileList](m.call(t, service.MethodSearch, wire.Search{Filters: []string{"name:REPORT"}}))
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if len(files) != 1 || files[0].Name != "report.pdf" || files[0].Category != "Document" {
		t.Errorf("files = %+v", files)
	}

	all, err := wire.Result[wire.FileList](m.call(t, service.MethodSearch, wire.Search{}))
	if err != nil || len(all) != 3 {
		t.Errorf("empty search = %d files, %v", len(all), err)
	}

	wantKind(t, m.call(t, service.MethodSearch, wire.Search{Filters: []string{"size:1"}}), wire.KindBadRequest)
}

// TestAnnotate 标签与关键词写入索引并可被搜索.
func TestAnnotate(t *testing.T) {
	m, root := setup(t)
	path := filepath.Join(root, "report.pdf")

	rec, err := wire.Result[wire.FileRecord](m.call(t, service.MethodAddTag, wire.Annotation{File: path, Value: "work"}))
	if err != nil {
		t.Fatalf("addTag: %v", err)
	}

	if len(rec.Tags) != 1 || rec.Tags[0] != "work" {
		t.Errorf("tags = %v", rec.Tags)
	}

	// 也可以用标识引用文件.
	rec, err = wire.Result[wire.FileRecord](m.call(t, service.MethodAddKeyword, wire.Annotation{File: rec.ID, Value: "Invoice"}))
	if err != nil {
		t.Fatalf("addKeyword: %v", err)
	}

	if len(rec.Keywords) != 1 || rec.Keywords[0] != "invoice" {
		t.Errorf("keywords = %v", rec.Keywords)
	}

	files, err := wire.Result[wire.FileList](m.call(t, service.MethodSearch, wire.Search{Tags: []string{"work"}, Keywords: []string{"invoice"}}))
	if err != nil || len(files) != 1 {
		t.Errorf("search by tag+keyword = %d files, %v", len(files), err)
	}

	wantKind(t, m.call(t, service.MethodAddTag, wire.Annotation{File: filepath.Join(root, "missing.pdf"), Value: "x"}), wire.KindNotFound)
	wantKind(t, m.call(t, service.MethodAddTag, wire.Annotation{File: path, Value: "  "}), wire.KindBadRequest)
}

// TestMalformedPayload 负载无法解码时返回 FormatError.
func TestMalformedPayload(t *testing.T) {
	m, _ := setup(t)

	resp, err := m[service.MethodAddTag](context.Background(), wire.Request{Method: service.MethodAddTag, Body: "bogus: 1\n"})
	if err == nil {
		t.Fatalf("expected error, got %+v", resp)
	}

	msg, ok := wire.AsErrorMessage(err)
	if !ok || msg.Kind != wire.KindFormat {
		t.Errorf("err = %v, want FormatError", err)
	}
}

// TestStatsAndExclusions 统计与排除列表编辑.
func TestStatsAndExclusions(t *testing.T) {
	m, root := setup(t)

	stats, err := wire.Result[wire.IndexStats](m.call(t, service.MethodStats, wire.Empty{}))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	if stats.Files != 3 || stats.ByCategory["Image"] != 1 || stats.LastScan.IsZero() {
		t.Errorf("stats = %+v", stats)
	}

	notes := filepath.Join(root, "notes")

	list, err := wire.Result[wire.StringList](m.call(t, service.MethodExcludeAdd, wire.StringList{notes}))
	if err != nil {
		t.Fatalf("excludeAdd: %v", err)
	}

	if len(list) != 2 {
		t.Errorf("exclusions = %v", list)
	}

	wantKind(t, m.call(t, service.MethodExcludeRemove, wire.StringList{"/proc"}), wire.KindBadRequest)
	wantKind(t, m.call(t, service.MethodExcludeRemove, wire.StringList{filepath.Join(root, "nope")}), wire.KindNotFound)
	wantKind(t, m.call(t, service.MethodExcludeAdd, wire.StringList{}), wire.KindBadRequest)

	if _, err := wire.Result[wire.StringList](m.call(t, service.MethodExcludeRemove, wire.StringList{notes})); err != nil {
		t.Fatalf("excludeRemove: %v", err)
	}

	list, _ = wire.Result[wire.StringList](m.call(t, service.MethodExclusions, wire.Empty{}))
	if len(list) != 1 {
		t.Errorf("exclusions after remove = %v", list)
	}

	if _, err := wire.Result[wire.Empty](m.call(t, service.MethodPing, wire.Empty{})); err != nil {
		t.Errorf("ping: %v", err)
	}
}

// TestSearchCached 启用缓存后结果一致，标注变化会使缓存失效.
func TestSearchCached(t *testing.T) {
	store, err := kv.NewMemoryKV(context.Background(), configs.KVConfig{})
	if err != nil {
		t.Fatal(err)
	}

	m, root := setup(t, service.WithSearchCache(cache.NewSearchCache(store, "fsi:search:", time.Minute)))
	q := wire.Search{Tags: []string{"work"}}

	files, err := wire.Result[wire.FileList](m.call(t, service.MethodSearch, q))
	if err != nil || len(files) != 0 {
		t.Fatalf("search before tagging = %d files, %v", len(files), err)
	}

	m.call(t, service.MethodAddTag, wire.Annotation{File: filepath.Join(root, "holiday.jpg"), Value: "work"})

	files, err = wire.Result[wire.FileList](m.call(t, service.MethodSearch, q))
	if err != nil || len(files) != 1 {
		t.Fatalf("search after tagging = %d files, %v", len(files), err)
	}

	wantKind(t, m.call(t, service.MethodSearch, wire.Search{Filters: []string{"category:nope"}}), wire.KindBadRequest)
}

// TestPersist 立即写入存储端口，存储失败返回 StorageError.
func TestPersist(t *testing.T) {
	conn := &memConnector{}
	m, root := setup(t, service.WithStorage(conn))
	path := filepath.Join(root, "report.pdf")

	ids, err := wire.Result[wire.StringList](m.call(t, service.MethodPersist, wire.StringList{path, path}))
	if err != nil {
		t.Fatalf("persist: %v", err)
	}

	if len(ids) != 2 || ids[0] != "1" || ids[1] != "1" {
		t.Errorf("ids = %v, want [1 1]", ids)
	}

	if conn.len() != 1 {
		t.Errorf("stored %d records, want 1", conn.len())
	}

	conn.fail = errors.New("disk full")
	wantKind(t, m.call(t, service.MethodPersist, wire.StringList{path}), wire.KindStorage)
}

// TestEndToEnd 通过真实的 socket 调用.
func TestEndToEnd(t *testing.T) {
	m, _ := setup(t)
	client := serve(t, m)

	files, err := rpc.Invoke[wire.FileList](context.Background(), client, service.MethodSearch, wire.Search{Filters: []string{"ext:jpg"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if len(files) != 1 || files[0].Name != "holiday.jpg" {
		t.Errorf("files = %+v", files)
	}
}

// serve 在临时 socket 上启动服务端并返回客户端.
func serve(t *testing.T, m methods) *rpc.Client {
	t.Helper()

	dir, err := os.MkdirTemp("", "fsi")
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	sock := filepath.Join(dir, "s.sock")
	srv := rpc.NewServer(rpc.Options{SocketPath: sock, Workers: 2})

	for name, h := range m {
		srv.RegisterMethod(name, h)
	}

	if err := srv.Listen(); err != nil {
		t.Fatal(err)
	}

	go func() { _ = srv.Serve() }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		_ = srv.Shutdown(ctx)
	})

	return rpc.NewClient(sock, rpc.WithTimeout(10*time.Second))
}

// largeIndex 构造一个含 n 个 .txt 文件的引擎，不触碰文件系统.
func largeIndex(n int) *indexer.Engine {
	engine := indexer.NewEngine(indexer.Options{Exclusions: indexer.NewExclusionSet(nil)})
	now := time.Now()

	for i := range n {
		name := fmt.Sprintf("file-%05d.txt", i)
		engine.Index().Upsert(indexer.Observation{
			ID:        indexer.NativeIdentity(1, uint64(i)),
			Name:      name,
			Extension: "txt",
			Path:      "/data/" + name,
			Size:      int64(i),
			Created:   now,
			Modified:  now,
		})
	}

	return engine
}

// TestSearchLargeIndex 大索引上的搜索要么按上限截断，要么返回 BadRequest，
// 不会发出客户端读不了的帧.
func TestSearchLargeIndex(t *testing.T) {
	const total = 10_000

	engine := largeIndex(total)
	ctx := context.Background()
	txt := wire.Search{Filters: []string{"ext:txt"}}

	limited := methods{}
	service.New(engine, service.WithSearchLimit(configs.DefaultSearchLimit)).Register(limited)
	client := serve(t, limited)

	files, err := rpc.Invoke[wire.FileList](ctx, client, service.MethodSearch, txt)
	if err != nil {
		t.Fatalf("search with default limit: %v", err)
	}

	if len(files) != configs.DefaultSearchLimit || files[0].Name != "file-00000.txt" {
		t.Errorf("got %d files, first %+v", len(files), files[0])
	}

	files, err = rpc.Invoke[wire.FileList](ctx, client, service.MethodSearch, wire.Search{Filters: []string{"ext:txt", "limit:5"}})
	if err != nil || len(files) != 5 {
		t.Fatalf("limit:5 = %d files, %v", len(files), err)
	}

	for _, filter := range []string{"limit:0", "limit:-1"} {
		_, err = rpc.Invoke[wire.FileList](ctx, client, service.MethodSearch, wire.Search{Filters: []string{"ext:txt", filter}})

		msg, ok := wire.AsErrorMessage(err)
		if !ok || msg.Kind != wire.KindBadRequest {
			t.Errorf("%s: err = %v, want BadRequest", filter, err)
		}
	}

	unlimited := methods{}
	service.New(engine).Register(unlimited)

	_, err = rpc.Invoke[wire.FileList](ctx, serve(t, unlimited), service.MethodSearch, txt)

	msg, ok := wire.AsErrorMessage(err)
	if !ok || msg.Kind != wire.KindBadRequest {
		t.Fatalf("unlimited search err = %v, want BadRequest", err)
	}
}
