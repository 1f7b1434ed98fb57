//go:build windows

package indexer

import (
	"io/fs"
	"syscall"
	"time"
)

// NativeIdentitySupported 当前平台能否取得原生文件标识.
const NativeIdentitySupported = false

// statFile 使用 Win32 创建时间计算退化标识.
func statFile(path string, info fs.FileInfo) fileStat {
	var created time.Time
	if data, ok := info.Sys().(*syscall.Win32FileAttributeData); ok {
		created = time.Unix(0, data.CreationTime.Nanoseconds())
	}

	return fallbackStat(path, info, created)
}
