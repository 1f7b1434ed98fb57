// Package configs 管理应用程序配置，包括Metrics的配置信息.
//
// Example:
//
//	config := configs.GetConfig()
//	metricsConfig := config.Metrics
//	if metricsConfig.Enabled {
//		// 初始化Metrics
//	}
package configs

import (
	"github.com/spf13/viper"
)

// MetricsConfig Metrics相关配置.
type MetricsConfig struct {
	Enabled        bool   `mapstructure:"enabled"`                                         // 是否启用Metrics
	Endpoint       string `mapstructure:"endpoint"        rule:"required_if=Enabled true"` // 调试 HTTP 服务监听地址
	RuntimeMetrics bool   `mapstructure:"runtime_metrics"`                                 // 是否收集运行时指标
	Pprof          bool   `mapstructure:"pprof"`                                           // 是否暴露 /debug/pprof
	Gzip           bool   `mapstructure:"gzip"`                                            // 是否压缩 /metrics 响应
}

// setDefaults 设置Metrics配置的默认值.
func (c *MetricsConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.endpoint", "127.0.0.1:9465")
	v.SetDefault("metrics.runtime_metrics", true)
	v.SetDefault("metrics.pprof", false)
	v.SetDefault("metrics.gzip", true)
}
