package configs

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultExclusionFileName = "exclusions.conf" // 排除列表文件名
	DefaultScanWorkers       = 8                 // 并发遍历子目录的上限
	DefaultRescanInterval    = 0 * time.Second   // 周期重扫间隔，0 表示关闭
	DefaultScanOnStart       = true              // 启动后立即扫描一次
	DefaultStorageSync       = false             // 是否把索引同步到数据库
	DefaultSearchLimit       = 1000              // 未指定 limit: 时的结果上限
)

// DefaultSkipExtensions 默认跳过的可执行文件与库扩展名.
var DefaultSkipExtensions = []string{
	"exe", "dll", "so", "sys", "bat", "cmd", "msi", "dylib", "com", "lnk", "tmp",
}

// IndexConfig 索引引擎配置.
type IndexConfig struct {
	Roots          []string      `mapstructure:"roots"           rule:"dive,required"`
	ExclusionFile  string        `mapstructure:"exclusion_file"`
	ProtectedPaths []string      `mapstructure:"protected_paths"`
	SkipExtensions []string      `mapstructure:"skip_extensions" rule:"dive,fileext"`
	ScanWorkers    int           `mapstructure:"scan_workers"    rule:"min=1,max=512"`
	RescanInterval time.Duration `mapstructure:"rescan_interval" rule:"min=0"`
	RescanCron     string        `mapstructure:"rescan_cron"`
	ScanOnStart    bool          `mapstructure:"scan_on_start"`
	StorageSync    bool          `mapstructure:"storage_sync"`
	SearchLimit    int           `mapstructure:"search_limit"    rule:"min=0"` // 0 表示不限
}

// DefaultExclusionFile 返回用户配置目录下的排除列表路径.
func DefaultExclusionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}

	return filepath.Join(dir, AppName, DefaultExclusionFileName)
}

// setDefaults 设置索引配置的默认值.
func (c *IndexConfig) setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v.SetDefault("index.roots", []string{home})
	v.SetDefault("index.exclusion_file", DefaultExclusionFile())
	v.SetDefault("index.protected_paths", []string{})
	v.SetDefault("index.skip_extensions", DefaultSkipExtensions)
	v.SetDefault("index.scan_workers", DefaultScanWorkers)
	v.SetDefault("index.rescan_interval", DefaultRescanInterval)
	v.SetDefault("index.rescan_cron", "")
	v.SetDefault("index.scan_on_start", DefaultScanOnStart)
	v.SetDefault("index.storage_sync", DefaultStorageSync)
	v.SetDefault("index.search_limit", DefaultSearchLimit)
}
