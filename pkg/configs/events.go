package configs

import "github.com/spf13/viper"

// EventsConfig 控制索引事件发布的开关（全局与分主题）。
type EventsConfig struct {
	Enabled       bool `mapstructure:"enabled"` // 总开关
	FileIndexed   bool `mapstructure:"file_indexed"`
	FileUpdated   bool `mapstructure:"file_updated"`
	ScanCompleted bool `mapstructure:"scan_completed"`
}

func (c *EventsConfig) setDefaults(v *viper.Viper) {
	// 总开关：默认启用事件系统
	v.SetDefault("events.enabled", true)

	v.SetDefault("events.file_indexed", true)
	v.SetDefault("events.scan_completed", true)
	// 重扫时每个文件都会触发更新事件，默认关闭
	v.SetDefault("events.file_updated", false)
}
