// Package db 打开 gorm 连接，驱动按构建标签注册.
package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormPrometheus "gorm.io/plugin/prometheus"

	"github.com/yeisme/fsindex/pkg/configs"
	nlog "github.com/yeisme/fsindex/pkg/log"
)

const metricsRefreshSeconds = 15

// DialectorFactory 由连接串创建 dialector.
type DialectorFactory func(dsn string) gorm.Dialector

var dialectorFactories = map[configs.DBType]DialectorFactory{}

// RegisterDialectorFactory 注册驱动，由各驱动文件的 init 调用.
func RegisterDialectorFactory(dbType configs.DBType, factory DialectorFactory) {
	dialectorFactories[dbType] = factory
}

// GetRegisteredDBTypes 返回已编译进来的数据库类型，已排序.
func GetRegisteredDBTypes() []configs.DBType {
	types := make([]configs.DBType, 0, len(dialectorFactories))
	for t := range dialectorFactories {
		types = append(types, t)
	}

	slices.Sort(types)

	return types
}

// Client gorm 连接.
type Client struct {
	*gorm.DB
	Type configs.DBType
}

// New 打开数据库并检查连通性. SQLite 会先创建父目录并启用 WAL.
func New(ctx context.Context, cfg configs.DBConfig) (*Client, error) {
	factory, ok := dialectorFactories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("database type %q not compiled in (have %v)", cfg.Type, GetRegisteredDBTypes())
	}

	if cfg.IsSQLite() && cfg.Database != configs.SQLiteMemory {
		if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o750); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	l := nlog.Component("db")

	gdb, err := gorm.Open(factory(cfg.GetDSN()), &gorm.Config{
		Logger: logger.New(&l, logger.Config{
			SlowThreshold:             cfg.SlowThreshold,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.GetDBType(), err)
	}

	c := &Client{DB: gdb, Type: cfg.Type}

	if err := c.configure(ctx, cfg); err != nil {
		return nil, errors.Join(err, c.Close())
	}

	if cfg.Metrics {
		if err := c.Use(gormPrometheus.New(gormPrometheus.Config{
			DBName:          filepath.Base(cfg.Database),
			RefreshInterval: metricsRefreshSeconds,
		})); err != nil {
			return nil, errors.Join(fmt.Errorf("register gorm metrics: %w", err), c.Close())
		}
	}

	l.Info().Str("type", cfg.GetDBType()).Str("target", cfg.Target()).Msg("database connected")

	return c, nil
}

// configure 设置连接池，SQLite 额外设置 pragma，最后 ping 一次.
func (c *Client) configure(ctx context.Context, cfg configs.DBConfig) error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if cfg.IsSQLite() {
		pragmas := []string{fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds())}
		if cfg.Database != configs.SQLiteMemory {
			pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
		}

		for _, p := range pragmas {
			if err := c.WithContext(ctx).Exec(p).Error; err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
		}
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	return nil
}

// Ping 检查连通性.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}

// Close 关闭连接池.
func (c *Client) Close() error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}
