package indexer_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yeisme/fsindex/pkg/internal/indexer"
	"github.com/yeisme/fsindex/pkg/internal/wire"
)

func observation(id, path string, size int64) indexer.Observation {
	return indexer.Observation{
		ID:        indexer.Identity(id),
		Name:      path,
		Extension: "txt",
		Path:      "/data/" + path,
		Size:      size,
		Created:   time.Unix(1700000000, 0),
		Modified:  time.Unix(1700000000, 0),
	}
}

// TestUpsert 测试插入、未变化与更新三种结果.
func TestUpsert(t *testing.T) {
	ix := indexer.NewIndex()

	_, res := ix.Upsert(observation("n:1:1", "a.txt", 10))
	if res != indexer.Inserted {
		t.Fatalf("first upsert = %s, want inserted", res)
	}

	_, res = ix.Upsert(observation("n:1:1", "a.txt", 10))
	if res != indexer.Unchanged {
		t.Fatalf("repeat upsert = %s, want unchanged", res)
	}

	moved := observation("n:1:1", "b.txt", 20)

	f, res := ix.Upsert(moved)
	if res != indexer.Updated {
		t.Fatalf("changed upsert = %s, want updated", res)
	}

	if f.Size != 20 || f.Path != "/data/b.txt" {
		t.Errorf("entry not refreshed: %+v", f)
	}

	if ix.Len() != 1 {
		t.Errorf("Len = %d, want 1", ix.Len())
	}

	if _, ok := ix.LookupPath("/data/a.txt"); ok {
		t.Error("old path still resolves after rename")
	}

	if id, ok := ix.LookupPath("/data/b.txt"); !ok || id != "n:1:1" {
		t.Errorf("LookupPath(new) = %q, %v", id, ok)
	}

	if ix.Generation() != 2 {
		t.Errorf("Generation = %d, want 2", ix.Generation())
	}
}

// TestGetReturnsCopy 返回值修改不影响索引.
func TestGetReturnsCopy(t *testing.T) {
	ix := indexer.NewIndex()
	ix.Upsert(observation("n:1:2", "a.txt", 1))

	ix.Mutate("n:1:2", func(f *indexer.IndexedFile) bool {
		f.Tags = append(f.Tags, "keep")
		return true
	})

	f, _ := ix.Get("n:1:2")
	f.Tags[0] = "changed"
	f.Keywords["leak"] = struct{}{}

	again, _ := ix.Get("n:1:2")
	if again.Tags[0] != "keep" || len(again.Keywords) != 0 {
		t.Errorf("index shared state with caller: %+v", again)
	}
}

// TestConcurrentUpsert 并发插入与更新不丢失、不重复条目.
func TestConcurrentUpsert(t *testing.T) {
	const (
		goroutines = 32
		perWorker  = 200
		shared     = 50
	)

	ix := indexer.NewIndex()

	var wg sync.WaitGroup

	for g := range goroutines {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range perWorker {
				ix.Upsert(observation(fmt.Sprintf("n:%d:%d", g, i), fmt.Sprintf("%d-%d.txt", g, i), int64(i)))

				// 所有协程反复命中同一批键.
				k := i % shared
				ix.Upsert(observation(fmt.Sprintf("n:shared:%d", k), fmt.Sprintf("shared-%d.txt", k), int64(g)))
			}
		}()
	}

	wg.Wait()

	want := goroutines*perWorker + shared
	if ix.Len() != want {
		t.Errorf("Len = %d, want %d", ix.Len(), want)
	}

	if n := len(ix.Identities()); n != want {
		t.Errorf("Identities = %d, want %d", n, want)
	}

	if n := len(ix.Select(nil)); n != want {
		t.Errorf("Select = %d, want %d", n, want)
	}
}

// TestTimesStoredInUTC 本地时区的时间以 UTC 保存，编码往返后可以直接比较.
func TestTimesStoredInUTC(t *testing.T) {
	ix := indexer.NewIndex()
	zone := time.FixedZone("UTC+8", 8*60*60)

	obs := observation("n:1:1", "a.txt", 10)
	obs.Created = time.Date(2024, 3, 1, 8, 30, 0, 123, zone)
	obs.Modified = obs.Created

	f, _ := ix.Upsert(obs)
	if f.Created.Location() != time.UTC || f.Modified.Location() != time.UTC {
		t.Fatalf("locations = %v, %v", f.Created.Location(), f.Modified.Location())
	}

	obs.Modified = obs.Modified.Add(time.Hour)

	f, res := ix.Upsert(obs)
	if res != indexer.Updated || f.Modified.Location() != time.UTC {
		t.Fatalf("refresh = %s, %v", res, f.Modified.Location())
	}

	rec := f.Record()

	got, err := wire.Decode[wire.FileRecord](rec.Encode())
	if err != nil {
		t.Fatal(err)
	}

	if got.Created != rec.Created || got.Modified != rec.Modified {
		t.Errorf("times = %v, %v, want %v, %v", got.Created, got.Modified, rec.Created, rec.Modified)
	}
}
