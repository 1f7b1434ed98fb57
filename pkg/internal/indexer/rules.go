package indexer

import (
	"io/fs"
	"strings"
)

// systemDirFragments 目录名包含这些片段（不区分大小写）时整棵子树被剪除.
var systemDirFragments = []string{
	"$recycle.bin",
	"system volume information",
	"$windows.~bt",
	"$windows.~ws",
	"windowsapps",
	"lost+found",
}

// DefaultSkipExtensions 默认跳过的可执行文件、库与临时文件扩展名.
var DefaultSkipExtensions = []string{
	"exe", "dll", "so", "sys", "bat", "cmd", "msi", "dylib", "com", "lnk", "tmp",
}

func isHiddenName(name string) bool {
	return strings.HasPrefix(name, ".")
}

func isSystemDirName(name string) bool {
	lower := strings.ToLower(name)
	for _, fragment := range systemDirFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}

	return false
}

// skipSet 跳过的扩展名集合.
type skipSet map[string]struct{}

func newSkipSet(exts []string) skipSet {
	s := make(skipSet, len(exts))
	for _, ext := range exts {
		if ext = normalizeExt(strings.TrimSpace(ext)); ext != "" {
			s[ext] = struct{}{}
		}
	}

	return s
}

func (s skipSet) has(ext string) bool {
	_, ok := s[ext]
	return ok
}

// pruneDirEntry 目录是否因隐藏或系统目录而剪除（不含排除列表）.
func pruneDirEntry(entry fs.DirEntry) bool {
	name := entry.Name()

	return isHiddenName(name) || isSystemDirName(name) || hasHiddenAttr(entry)
}

// skipFileEntry 文件是否因隐藏或扩展名被跳过.
func skipFileEntry(entry fs.DirEntry, ext string, skip skipSet) bool {
	return isHiddenName(entry.Name()) || skip.has(ext) || hasHiddenAttr(entry)
}
