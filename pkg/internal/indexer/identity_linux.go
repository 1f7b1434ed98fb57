//go:build linux

package indexer

import (
	"io/fs"
	"time"

	"golang.org/x/sys/unix"
)

// NativeIdentitySupported 当前平台能否取得原生文件标识.
const NativeIdentitySupported = true

// statFile 使用 statx 读取 dev/ino 与出生时间；文件系统不提供出生时间时退化为修改时间.
func statFile(path string, info fs.FileInfo) fileStat {
	var stx unix.Statx_t

	mask := unix.STATX_INO | unix.STATX_BTIME | unix.STATX_SIZE | unix.STATX_MTIME | unix.STATX_NLINK
	if err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, mask, &stx); err != nil ||
		stx.Mask&unix.STATX_INO == 0 {
		return fallbackStat(path, info, time.Time{})
	}

	created := info.ModTime()
	if stx.Mask&unix.STATX_BTIME != 0 {
		created = time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
	}

	links := uint64(1)
	if stx.Mask&unix.STATX_NLINK != 0 {
		links = uint64(stx.Nlink)
	}

	return fileStat{
		ID:       NativeIdentity(unix.Mkdev(stx.Dev_major, stx.Dev_minor), stx.Ino),
		Created:  created,
		Modified: info.ModTime(),
		Size:     info.Size(),
		Links:    links,
	}
}
