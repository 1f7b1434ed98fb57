//go:build !windows

package indexer

import "io/fs"

// hasHiddenAttr 非 Windows 平台只按点前缀判断隐藏.
func hasHiddenAttr(fs.DirEntry) bool { return false }
