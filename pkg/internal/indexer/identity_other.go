//go:build !unix && !windows

package indexer

import (
	"io/fs"
	"time"
)

// NativeIdentitySupported 当前平台能否取得原生文件标识.
const NativeIdentitySupported = false

func statFile(path string, info fs.FileInfo) fileStat {
	return fallbackStat(path, info, time.Time{})
}
