package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultCacheEnabled = true            // 是否缓存搜索结果
	DefaultCacheTTL     = 5 * time.Minute // 搜索结果缓存时长
	DefaultCachePrefix  = "fsi:search:"   // 缓存 key 前缀
)

// CacheConfig 搜索结果缓存配置.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"     rule:"min=0"`
	Prefix  string        `mapstructure:"prefix"`
}

func (c *CacheConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("cache.enabled", DefaultCacheEnabled)
	v.SetDefault("cache.ttl", DefaultCacheTTL)
	v.SetDefault("cache.prefix", DefaultCachePrefix)
}
