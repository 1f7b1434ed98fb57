package configs

import (
	"time"

	"github.com/spf13/viper"
)

// MQType 消息队列类型.
type MQType string

const (
	MQTypeGoChannel MQType = "gochannel"
	MQTypeNATS      MQType = "nats"
	MQTypeRedis     MQType = "redis"

	DefaultMQURL         = "nats://localhost:4222"
	DefaultMaxReconnects = 5               // 默认最大重连次数.
	DefaultReconnectWait = 2 * time.Second // 默认重连等待时间.
	DefaultMQClientID    = "fsindex"       // 默认客户端ID
	DefaultBufferSize    = 1024            // gochannel 订阅缓冲

	DefaultSubjectPrefix = "fsindex."
	DefaultQueueGroup    = "fsindex-sync"
)

// MQConfig 消息队列配置.
type MQConfig struct {
	Type   MQType         `mapstructure:"type"   rule:"oneof=gochannel nats redis"`
	Common MQCommonConfig `mapstructure:"common"`
	NATS   MQNATSConfig   `mapstructure:"nats"`
	Redis  MQRedisConfig  `mapstructure:"redis"`
}

// MQCommonConfig 通用MQ配置.
type MQCommonConfig struct {
	URL           string        `mapstructure:"url"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	ClientID      string        `mapstructure:"client_id"`
	MaxReconnects int           `mapstructure:"max_reconnects" rule:"min=-1,max=100"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait" rule:"min=0"`
	BufferSize    int64         `mapstructure:"buffer_size"    rule:"min=0"`
}

// MQNATSConfig NATS MQ 配置.
type MQNATSConfig struct {
	SubjectPrefix string `mapstructure:"subject_prefix"`
	QueueGroup    string `mapstructure:"queue_group"`
	SubscribersN  int    `mapstructure:"subscribers"    rule:"min=1,max=64"`
}

// MQRedisConfig Redis Pub/Sub 配置. Redis 不保留离线期间的消息.
type MQRedisConfig struct {
	Addr          string `mapstructure:"addr"           rule:"hostname_port"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"             rule:"min=0,max=15"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// GetMQType 返回当前配置的消息队列类型.
func (c *MQConfig) GetMQType() MQType {
	return c.Type
}

// setDefaults 设置MQ配置的默认值.
func (c *MQConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("mq.type", MQTypeGoChannel)

	// Common 默认值
	v.SetDefault("mq.common.url", DefaultMQURL)
	v.SetDefault("mq.common.user", "")
	v.SetDefault("mq.common.password", "")
	v.SetDefault("mq.common.client_id", DefaultMQClientID)
	v.SetDefault("mq.common.max_reconnects", DefaultMaxReconnects)
	v.SetDefault("mq.common.reconnect_wait", DefaultReconnectWait)
	v.SetDefault("mq.common.buffer_size", DefaultBufferSize)

	// NATS 默认值
	v.SetDefault("mq.nats.subject_prefix", DefaultSubjectPrefix)
	v.SetDefault("mq.nats.queue_group", DefaultQueueGroup)
	v.SetDefault("mq.nats.subscribers", 1)

	v.SetDefault("mq.redis.addr", "127.0.0.1:6379")
	v.SetDefault("mq.redis.db", 0)
	v.SetDefault("mq.redis.channel_prefix", DefaultSubjectPrefix)
}
