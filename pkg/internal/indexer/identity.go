package indexer

import (
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Identity 跨扫描识别同一个文件的键.
//
// 原生形式 "n:<dev>:<ino>" 来自操作系统；拿不到时退化为 "h:<xxhash>"，
// 由规范化路径、大小与创建时间计算. 退化形式在纯改名或移动后会变化，
// 改名后的文件会被当作新文件收录.
type Identity string

const (
	nativePrefix   = "n:"
	fallbackPrefix = "h:"
)

// NativeIdentity 由设备号与 inode 构造原生标识.
func NativeIdentity(dev, ino uint64) Identity {
	return Identity(fmt.Sprintf("%s%x:%x", nativePrefix, dev, ino))
}

// FallbackIdentity 由路径、大小与创建时间计算退化标识.
// 路径参与计算，重命名或移动后的文件会得到新的标识，旧条目保留.
func FallbackIdentity(path string, size int64, created time.Time) Identity {
	d := xxhash.New()
	_, _ = d.WriteString(path)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.FormatInt(size, 10))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.FormatInt(created.UnixNano(), 10))

	return Identity(fmt.Sprintf("%s%016x", fallbackPrefix, d.Sum64()))
}

// IsNative 是否为原生标识.
func (id Identity) IsNative() bool {
	return strings.HasPrefix(string(id), nativePrefix)
}

// LooksLikeIdentity 判断字符串是否具有标识的形式，用于区分标识与路径.
func LooksLikeIdentity(s string) bool {
	return strings.HasPrefix(s, nativePrefix) || strings.HasPrefix(s, fallbackPrefix)
}

// fileStat 解析出的文件元数据.
type fileStat struct {
	ID       Identity
	Created  time.Time
	Modified time.Time
	Size     int64
	Links    uint64 // 硬链接数，未知时为 1
}

// fallbackStat 无法取得原生标识时使用，创建时间退化为修改时间.
func fallbackStat(path string, info fs.FileInfo, created time.Time) fileStat {
	if created.IsZero() {
		created = info.ModTime()
	}

	return fileStat{
		ID:       FallbackIdentity(path, info.Size(), created),
		Created:  created,
		Modified: info.ModTime(),
		Size:     info.Size(),
		Links:    1,
	}
}
