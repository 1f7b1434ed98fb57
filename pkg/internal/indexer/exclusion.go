package indexer

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrProtected 受保护的排除路径不能被移除.
	ErrProtected = errors.New("indexer: path is protected")
	// ErrNotFound 文件或排除路径不存在.
	ErrNotFound = errors.New("indexer: not found")
)

const exclusionFileHeader = "# fsindex exclusions: one absolute path per line\n"

// DefaultProtectedPaths 当前平台固定排除的虚拟文件系统与系统目录.
func DefaultProtectedPaths() []string {
	switch runtime.GOOS {
	case "linux":
		return []string{"/proc", "/sys", "/dev", "/run"}
	case "windows":
		return []string{`C:\$Recycle.Bin`, `C:\System Volume Information`, `C:\Windows`}
	case "darwin":
		return []string{"/dev", "/System/Volumes", "/private/var/vm"}
	default:
		return []string{"/dev"}
	}
}

// ExclusionSet 受保护路径与用户路径的并集. 受保护路径始终存在，用户路径编辑后整体写回文件.
type ExclusionSet struct {
	mu        sync.RWMutex
	file      string
	protected map[string]struct{}
	user      map[string]struct{}
}

// NewExclusionSet 创建不关联文件的排除集合.
func NewExclusionSet(protected []string, user ...string) *ExclusionSet {
	e := &ExclusionSet{
		protected: make(map[string]struct{}),
		user:      make(map[string]struct{}),
	}

	for _, p := range protected {
		if n, err := NormalizePath(p); err == nil {
			e.protected[n] = struct{}{}
		}
	}

	for _, p := range user {
		if n, err := NormalizePath(p); err == nil {
			e.user[n] = struct{}{}
		}
	}

	return e
}

// LoadExclusions 从行格式文件加载用户排除路径：忽略空行与 # 注释，每行去除首尾空白并转为绝对路径.
// 文件不存在视为空列表.
func LoadExclusions(file string, protected []string) (*ExclusionSet, error) {
	e := NewExclusionSet(protected)
	e.file = file

	if file == "" {
		return e, nil
	}

	data, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		return e, nil
	}

	if err != nil {
		return nil, fmt.Errorf("indexer: read exclusions: %w", err)
	}

	paths, err := parseExclusions(data)
	if err != nil {
		return nil, fmt.Errorf("indexer: parse %s: %w", file, err)
	}

	for _, p := range paths {
		e.user[p] = struct{}{}
	}

	return e, nil
}

func parseExclusions(data []byte) ([]string, error) {
	var paths []string

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		p, err := NormalizePath(line)
		if err != nil {
			return nil, err
		}

		paths = append(paths, p)
	}

	return paths, sc.Err()
}

// NormalizePath 返回清理后的绝对路径.
func NormalizePath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("indexer: normalize %q: %w", p, err)
	}

	return filepath.Clean(abs), nil
}

// Contains path 等于某个排除路径或位于其下时返回 true. path 应已规范化.
func (e *ExclusionSet) Contains(path string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for p := path; ; {
		if e.has(p) {
			return true
		}

		parent := filepath.Dir(p)
		if parent == p {
			return false
		}

		p = parent
	}
}

// ContainsExact 只检查 path 本身.
func (e *ExclusionSet) ContainsExact(path string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.has(path)
}

func (e *ExclusionSet) has(p string) bool {
	if _, ok := e.protected[p]; ok {
		return true
	}

	_, ok := e.user[p]

	return ok
}

// IsProtected 是否为受保护路径.
func (e *ExclusionSet) IsProtected(path string) bool {
	n, err := NormalizePath(path)
	if err != nil {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, ok := e.protected[n]

	return ok
}

// Add 添加用户排除路径并写回文件.
func (e *ExclusionSet) Add(path string) error {
	n, err := NormalizePath(path)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.user[n]; ok {
		return nil
	}

	e.user[n] = struct{}{}
	if err := e.persist(); err != nil {
		delete(e.user, n)
		return err
	}

	return nil
}

// Remove 移除用户排除路径并写回文件，受保护路径返回 ErrProtected.
func (e *ExclusionSet) Remove(path string) error {
	n, err := NormalizePath(path)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.protected[n]; ok {
		return fmt.Errorf("%w: %s", ErrProtected, n)
	}

	if _, ok := e.user[n]; !ok {
		return fmt.Errorf("%w: exclusion %s", ErrNotFound, n)
	}

	delete(e.user, n)

	if err := e.persist(); err != nil {
		e.user[n] = struct{}{}
		return err
	}

	return nil
}

// Paths 排序后的全部排除路径.
func (e *ExclusionSet) Paths() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return sortedKeys(e.protected, e.user)
}

// UserPaths 排序后的用户排除路径.
func (e *ExclusionSet) UserPaths() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return sortedKeys(e.user)
}

// File 关联的配置文件路径.
func (e *ExclusionSet) File() string {
	return e.file
}

// persist 写临时文件再 rename，整体替换配置文件. 调用方持有写锁.
func (e *ExclusionSet) persist() error {
	if e.file == "" {
		return nil
	}

	dir := filepath.Dir(e.file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("indexer: create exclusion dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(e.file)+".*.tmp")
	if err != nil {
		return fmt.Errorf("indexer: write exclusions: %w", err)
	}

	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	w := bufio.NewWriter(tmp)
	_, _ = w.WriteString(exclusionFileHeader)

	for _, p := range sortedKeys(e.user) {
		_, _ = w.WriteString(p + "\n")
	}

	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("indexer: write exclusions: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("indexer: sync exclusions: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("indexer: close exclusions: %w", err)
	}

	if err := os.Rename(tmp.Name(), e.file); err != nil {
		return fmt.Errorf("indexer: replace exclusions: %w", err)
	}

	return nil
}

func sortedKeys(sets ...map[string]struct{}) []string {
	seen := make(map[string]struct{})

	var out []string

	for _, set := range sets {
		for k := range set {
			if _, dup := seen[k]; dup {
				continue
			}

			seen[k] = struct{}{}
			out = append(out, k)
		}
	}

	sort.Strings(out)

	return out
}
