// Package configs 管理应用程序配置，包括 RPC 服务、索引引擎、存储和队列的配置信息.
// configs 包支持多种配置格式（YAML、JSON、TOML、dotenv）并启用热重载.
//
// Example:
//
//	import "github.com/yeisme/fsindex/pkg/configs"
//
//	err := configs.InitConfig("./")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	config := configs.GetConfig()
//	fmt.Println(config.Server.SocketPath)
//
// Example accessing Index config:
//
//	config := configs.GetConfig()
//	for _, root := range config.Index.Roots {
//		fmt.Println("root:", root)
//	}
//
// Example accessing DB config:
//
//	config := configs.GetConfig()
//	dsn := config.DB.GetDSN()
//	fmt.Println("DSN:", dsn)
package configs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/yeisme/fsindex/pkg/rule"
)

const (
	// AppName 应用名，用作环境变量前缀和默认文件名.
	AppName = "fsindex"
	// AppVersion 应用版本.
	AppVersion = "0.3.0"
	// EnvPrefix 环境变量前缀，例如 FSINDEX_SERVER_WORKERS.
	EnvPrefix = "FSINDEX"
)

type (
	// AppConfig 全局应用程序配置.
	AppConfig struct {
		Server         ServerConfig         `mapstructure:"server"`          // RPC 服务配置
		Log            LogConfig            `mapstructure:"log"`             // 日志相关配置
		Index          IndexConfig          `mapstructure:"index"`           // 索引引擎配置
		DB             DBConfig             `mapstructure:"db"`              // 存储端口使用的数据库
		KV             KVConfig             `mapstructure:"kv"`              // 键值存储，搜索缓存使用
		Cache          CacheConfig          `mapstructure:"cache"`           // 搜索结果缓存
		MQ             MQConfig             `mapstructure:"mq"`              // 索引事件总线
		Events         EventsConfig         `mapstructure:"events"`          // 事件开关
		Metrics        MetricsConfig        `mapstructure:"metrics"`         // Prometheus 指标
		Tracing        TracingConfig        `mapstructure:"tracing"`         // OpenTelemetry
		RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`      // accept 循环限流
		CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"` // 存储端口熔断
	}
)

var (
	// globalConfig 全局配置实例.
	globalConfig AppConfig
	// appViper 全局 Viper 实例.
	appViper *viper.Viper
	// onReload 热重载后的回调.
	onReload []func(*AppConfig)
)

// InitConfig 加载应用程序配置，支持多种格式(yaml、json、toml、dotenv)并启用热重载.
// 找不到配置文件不是错误，此时使用默认值与环境变量.
func InitConfig(path string) error {
	appViper = viper.New()
	// 设置默认值
	setAllDefaults(appViper)

	if path == "" {
		path = "."
	}

	// 检查path是否是文件
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		// 是文件，使用SetConfigFile，Viper会自动检测类型
		appViper.SetConfigFile(path)
	} else {
		// 是目录，设置配置名和路径
		appViper.SetConfigName("config")
		appViper.AddConfigPath(path)
		appViper.AddConfigPath(filepath.Join(path, "configs"))

		exts := []string{"yaml", "yml", "json", "toml", "env", "dotenv"}

		for _, ext := range exts {
			cfg := filepath.Join(path, "config."+ext)
			if _, err := os.Stat(cfg); err == nil {
				appViper.SetConfigFile(cfg)

				break
			}
		}
	}

	appViper.SetEnvPrefix(EnvPrefix)
	appViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	appViper.AutomaticEnv()

	// 读取配置
	if err := appViper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg AppConfig
	if err := appViper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := rule.ValidateStruct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	globalConfig = cfg

	reloadConfigs(appViper, globalConfig.Server.ReloadConfig)

	return nil
}

// setAllDefaults 设置所有配置的默认值.
func setAllDefaults(v *viper.Viper) {
	var (
		serverConfig  ServerConfig
		logConfig     LogConfig
		indexConfig   IndexConfig
		dbConfig      DBConfig
		kvConfig      KVConfig
		cacheConfig   CacheConfig
		mqConfig      MQConfig
		eventsConfig  EventsConfig
		metricsConfig MetricsConfig
		tracingConfig TracingConfig
		rateLimit     RateLimitConfig
		breaker       CircuitBreakerConfig
	)

	serverConfig.setDefaults(v)
	logConfig.setDefaults(v)
	indexConfig.setDefaults(v)
	dbConfig.setDefaults(v)
	kvConfig.setDefaults(v)
	cacheConfig.setDefaults(v)
	mqConfig.setDefaults(v)
	eventsConfig.setDefaults(v)
	metricsConfig.setDefaults(v)
	tracingConfig.setDefaults(v)
	rateLimit.setDefaults(v)
	breaker.setDefaults(v)
}

// OnReload 注册热重载回调，只在校验通过后调用.
func OnReload(fn func(*AppConfig)) {
	onReload = append(onReload, fn)
}

func reloadConfigs(v *viper.Viper, isHotReload bool) {
	if !isHotReload || v.ConfigFileUsed() == "" {
		return
	}
	// 启用配置热重载
	v.OnConfigChange(func(e fsnotify.Event) {
		fmt.Fprintln(os.Stderr, "Config file changed:", e.Name)

		var cfg AppConfig
		if err := v.Unmarshal(&cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error reloading config: %v\n", err)
			return
		}

		if err := rule.ValidateStruct(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Ignoring invalid config: %v\n", err)
			return
		}

		globalConfig = cfg

		for _, fn := range onReload {
			fn(&globalConfig)
		}
	})
	v.WatchConfig()
}

// GetConfig 返回全局配置实例.
func GetConfig() *AppConfig {
	return &globalConfig
}

// GetViper 返回加载配置使用的 viper 实例，未初始化时为 nil.
func GetViper() *viper.Viper {
	return appViper
}
