package indexer_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yeisme/fsindex/pkg/internal/indexer"
)

// TestLoadExclusions 测试注释、空行与空白的处理，以及受保护路径的并集.
func TestLoadExclusions(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "exclusions.conf")
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	protected := filepath.Join(dir, "protected")

	content := strings.Join([]string{
		"# comment",
		"",
		"   " + a + "   ",
		"\t",
		filepath.Join(dir, "x", "..", "b"),
		"  # indented comment",
	}, "\n")
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	e, err := indexer.LoadExclusions(file, []string{protected})
	if err != nil {
		t.Fatalf("LoadExclusions: %v", err)
	}

	user := e.UserPaths()
	if len(user) != 2 || user[0] != a || user[1] != b {
		t.Errorf("UserPaths = %v, want [%s %s]", user, a, b)
	}

	if !e.Contains(protected) {
		t.Error("protected path missing from set")
	}

	if len(e.Paths()) != 3 {
		t.Errorf("Paths = %v, want 3 entries", e.Paths())
	}
}

// TestLoadExclusionsMissingFile 文件不存在时只有受保护路径.
func TestLoadExclusionsMissingFile(t *testing.T) {
	dir := t.TempDir()

	e, err := indexer.LoadExclusions(filepath.Join(dir, "none.conf"), []string{dir})
	if err != nil {
		t.Fatalf("LoadExclusions: %v", err)
	}

	if len(e.UserPaths()) != 0 || len(e.Paths()) != 1 {
		t.Errorf("Paths = %v", e.Paths())
	}
}

// TestExclusionContains 测试自身、后代与同前缀兄弟目录.
func TestExclusionContains(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	e := indexer.NewExclusionSet(nil, data)

	tests := []struct {
		path string
		want bool
	}{
		{data, true},
		{filepath.Join(data, "x"), true},
		{filepath.Join(data, "x", "y", "z.txt"), true},
		{filepath.Join(dir, "database"), false},
		{dir, false},
	}

	for _, tt := range tests {
		if got := e.Contains(tt.path); got != tt.want {
			t.Errorf("Contains(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

// TestExclusionEdit 编辑后整体写回文件，受保护路径不可移除.
func TestExclusionEdit(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "conf", "exclusions.conf")
	protected := filepath.Join(dir, "sys")
	target := filepath.Join(dir, "tmp")

	e, err := indexer.LoadExclusions(file, []string{protected})
	if err != nil {
		t.Fatal(err)
	}

	if err := e.Add(target); err != nil {
		t.Fatalf("Add: %v", err)
	}

	reloaded, err := indexer.LoadExclusions(file, []string{protected})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}

	if !reloaded.Contains(filepath.Join(target, "f")) {
		t.Error("added path not persisted")
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}

	if strings.Contains(string(data), protected) {
		t.Error("protected paths must not be written to the user file")
	}

	if err := e.Remove(protected); !errors.Is(err, indexer.ErrProtected) {
		t.Errorf("Remove(protected) = %v, want ErrProtected", err)
	}

	if err := e.Remove(filepath.Join(dir, "never-added")); !errors.Is(err, indexer.ErrNotFound) {
		t.Errorf("Remove(unknown) = %v, want ErrNotFound", err)
	}

	if err := e.Remove(target); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	reloaded, err = indexer.LoadExclusions(file, []string{protected})
	if err != nil {
		t.Fatal(err)
	}

	if reloaded.Contains(target) {
		t.Error("removed path still persisted")
	}

	if !reloaded.Contains(protected) {
		t.Error("protected path lost after edits")
	}

	entries, _ := os.ReadDir(filepath.Dir(file))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}
