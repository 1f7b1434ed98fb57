package configs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DBType 数据库类型，同一驱动可以有多个别名.
type DBType string

const (
	PostgreSQL DBType = "postgresql"
	Postgres   DBType = "postgres"
	Pg         DBType = "pg"
	MySQL      DBType = "mysql"
	MariaDB    DBType = "mariadb"
	SQLite     DBType = "sqlite"
)

// SQLiteMemory 使用进程内共享内存库.
const SQLiteMemory = ":memory:"

const (
	DefaultDatabaseHost      = "localhost"            // 网络数据库主机
	DefaultDatabasePort      = 5432                   // 网络数据库端口
	DefaultDatabaseUser      = "fsindex"              // 网络数据库用户
	DefaultDatabaseSSLMode   = "disable"              // PostgreSQL sslmode
	DefaultMaxOpenConns      = 4                      // 连接池上限
	DefaultMaxIdleConns      = 2                      // 空闲连接上限
	DefaultConnMaxLifetime   = 30 * time.Minute       // 连接最长存活时间
	DefaultSlowThreshold     = 200 * time.Millisecond // 超过即记录慢查询
	DefaultSQLiteBusyTimeout = 5 * time.Second        // SQLite 写锁等待时间
)

// DBConfig 数据库配置. 只在 index.storage_sync 开启时使用.
type DBConfig struct {
	Type            DBType        `mapstructure:"type"              rule:"oneof=postgresql postgres pg mysql mariadb sqlite"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"              rule:"min=0,max=65535"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"          rule:"required"` // SQLite 时为文件路径
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"    rule:"min=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    rule:"min=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" rule:"min=0"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"    rule:"min=0"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"      rule:"min=0"`
	Metrics         bool          `mapstructure:"metrics"` // gorm prometheus 插件
}

// IsSQLite 是否为 SQLite.
func (c *DBConfig) IsSQLite() bool { return c.Type == SQLite }

// GetDBType 返回驱动名.
func (c *DBConfig) GetDBType() string {
	switch c.Type {
	case PostgreSQL, Postgres, Pg:
		return "PostgreSQL"
	case MySQL, MariaDB:
		return "MySQL"
	case SQLite:
		return "SQLite"
	default:
		return "Unknown"
	}
}

// GetDSN 按类型生成连接串，未知类型返回空串.
func (c *DBConfig) GetDSN() string {
	switch c.Type {
	case PostgreSQL, Postgres, Pg:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
	case MySQL, MariaDB:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case SQLite:
		if c.Database == SQLiteMemory {
			return "file::memory:?cache=shared"
		}

		path := c.Database
		if filepath.Ext(path) == "" {
			path += ".db"
		}

		return "file:" + path
	default:
		return ""
	}
}

// Target 日志中展示的连接目标，不含凭据.
func (c *DBConfig) Target() string {
	if c.IsSQLite() {
		return c.Database
	}

	return fmt.Sprintf("%s:%d/%s", c.Host, c.Port, strings.TrimPrefix(c.Database, "/"))
}

// DefaultDatabaseFile 返回用户数据目录下的 SQLite 文件路径.
func DefaultDatabaseFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}

	return filepath.Join(dir, AppName, AppName+".db")
}

func (c *DBConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("db.type", SQLite)
	v.SetDefault("db.host", DefaultDatabaseHost)
	v.SetDefault("db.port", DefaultDatabasePort)
	v.SetDefault("db.user", DefaultDatabaseUser)
	v.SetDefault("db.password", "")
	v.SetDefault("db.database", DefaultDatabaseFile())
	v.SetDefault("db.sslmode", DefaultDatabaseSSLMode)
	v.SetDefault("db.max_open_conns", DefaultMaxOpenConns)
	v.SetDefault("db.max_idle_conns", DefaultMaxIdleConns)
	v.SetDefault("db.conn_max_lifetime", DefaultConnMaxLifetime)
	v.SetDefault("db.slow_threshold", DefaultSlowThreshold)
	v.SetDefault("db.busy_timeout", DefaultSQLiteBusyTimeout)
	v.SetDefault("db.metrics", false)
}
