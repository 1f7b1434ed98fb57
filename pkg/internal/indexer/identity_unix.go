//go:build unix && !linux

package indexer

import (
	"io/fs"
	"syscall"
	"time"
)

// NativeIdentitySupported 当前平台能否取得原生文件标识.
const NativeIdentitySupported = true

// statFile 从 syscall.Stat_t 读取 dev/ino，创建时间使用修改时间.
func statFile(path string, info fs.FileInfo) fileStat {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fallbackStat(path, info, time.Time{})
	}

	return fileStat{
		ID:       NativeIdentity(uint64(st.Dev), uint64(st.Ino)), //nolint:gosec,unconvert // 各平台 Dev/Ino 类型不同
		Created:  info.ModTime(),
		Modified: info.ModTime(),
		Size:     info.Size(),
		Links:    uint64(st.Nlink), //nolint:unconvert // darwin 上为 uint16
	}
}
