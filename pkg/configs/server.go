package configs

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultSocketName      = "fsindex.sock"   // 默认 socket 文件名
	DefaultWorkers         = 8                // RPC 工作协程数
	DefaultMaxMessageLines = 100_000          // 单条消息最大行数
	DefaultMaxLineBytes    = 1 << 20          // 单行最大字节数
	DefaultShutdownTimeout = 10 * time.Second // 优雅关闭等待时间
	DefaultClientTimeout   = 0 * time.Second  // 客户端单次调用超时，0 表示不限
	DefaultReadTimeout     = 30 * time.Second // 服务端读取请求的时限
	DefaultReloadConfig    = true             // 是否启用配置热重载
	DefaultDebug           = false            // 是否启用调试模式
)

type (
	// ServerConfig RPC 服务配置.
	ServerConfig struct {
		SocketPath      string        `mapstructure:"socket_path"       rule:"required,sockpath"`
		Workers         int           `mapstructure:"workers"           rule:"min=1,max=1024"`
		MaxMessageLines int           `mapstructure:"max_message_lines" rule:"min=3"`
		MaxLineBytes    int           `mapstructure:"max_line_bytes"    rule:"min=64"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"  rule:"min=0"`
		ClientTimeout   time.Duration `mapstructure:"client_timeout"    rule:"min=0"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"      rule:"min=0"`
		ReloadConfig    bool          `mapstructure:"reload_config"`
		Debug           bool          `mapstructure:"debug"`
	}
)

// DefaultSocketPath 返回默认 socket 路径，优先使用 XDG_RUNTIME_DIR.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, DefaultSocketName)
	}

	return filepath.Join(os.TempDir(), DefaultSocketName)
}

// setDefaults 设置服务器配置的默认值.
func (s *ServerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("server.socket_path", DefaultSocketPath())
	v.SetDefault("server.workers", DefaultWorkers)
	v.SetDefault("server.max_message_lines", DefaultMaxMessageLines)
	v.SetDefault("server.max_line_bytes", DefaultMaxLineBytes)
	v.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)
	v.SetDefault("server.client_timeout", DefaultClientTimeout)
	v.SetDefault("server.read_timeout", DefaultReadTimeout)
	v.SetDefault("server.reload_config", DefaultReloadConfig)
	v.SetDefault("server.debug", DefaultDebug)
}
