//go:build windows

package indexer

import (
	"io/fs"
	"syscall"
)

// hasHiddenAttr 检查 FILE_ATTRIBUTE_HIDDEN / FILE_ATTRIBUTE_SYSTEM.
func hasHiddenAttr(entry fs.DirEntry) bool {
	info, err := entry.Info()
	if err != nil {
		return false
	}

	data, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return false
	}

	return data.FileAttributes&(syscall.FILE_ATTRIBUTE_HIDDEN|syscall.FILE_ATTRIBUTE_SYSTEM) != 0
}
