package configs

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// 日志输出格式.
const (
	LogFormatConsole = "console" // 人类可读，带颜色
	LogFormatJSON    = "json"    // 每行一个 JSON 对象
)

const (
	DefaultLogEnableFile = false            // 是否额外写入轮转日志文件
	DefaultLogFormat     = LogFormatConsole // stderr 输出格式
	DefaultLogMaxSize    = 50               // 单个日志文件上限（MB）
	DefaultLogMaxBackups = 5                // 保留的旧文件数量
	DefaultLogMaxAge     = 14               // 旧文件保留天数
	DefaultLogCompress   = true             // 是否压缩旧文件
	DefaultLogLevel      = "info"           // 日志级别
)

// LogConfig 日志配置. 文件输出总是 JSON.
type LogConfig struct {
	Level      string `mapstructure:"level"        rule:"oneof=trace debug info warn error fatal panic disabled"`
	Format     string `mapstructure:"format"       rule:"oneof=console json"`
	EnableFile bool   `mapstructure:"enable_file"`
	FilePath   string `mapstructure:"file_path"    rule:"required_if=EnableFile true"`
	MaxSize    int    `mapstructure:"max_size_mb"  rule:"min=0"`
	MaxBackups int    `mapstructure:"max_backups"  rule:"min=0"`
	MaxAge     int    `mapstructure:"max_age_days" rule:"min=0"`
	Compress   bool   `mapstructure:"compress"`
}

// DefaultLogFile 返回用户缓存目录下的日志文件路径.
func DefaultLogFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}

	return filepath.Join(dir, AppName, AppName+".log")
}

func (l *LogConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("log.enable_file", DefaultLogEnableFile)
	v.SetDefault("log.file_path", DefaultLogFile())
	v.SetDefault("log.max_size_mb", DefaultLogMaxSize)
	v.SetDefault("log.max_backups", DefaultLogMaxBackups)
	v.SetDefault("log.max_age_days", DefaultLogMaxAge)
	v.SetDefault("log.compress", DefaultLogCompress)
}
