package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yeisme/fsindex/pkg/configs"
	dbc "github.com/yeisme/fsindex/pkg/internal/storage/db"
	"github.com/yeisme/fsindex/pkg/internal/storage/kv"
	"github.com/yeisme/fsindex/pkg/internal/storage/mq"
	nlog "github.com/yeisme/fsindex/pkg/log"
)

// Manager 聚合外部资源. 未启用的资源为 nil.
type Manager struct {
	DB    *dbc.Client
	KV    *kv.Client
	MQ    *mq.Client
	Files Connector // 带熔断的存储端口，仅在启用存储同步时存在
}

// NewManager 按配置创建资源，任何一步失败都会关闭已创建的资源.
// registry 非 nil 时消息队列注册指标.
func NewManager(ctx context.Context, cfg *configs.AppConfig, registry prometheus.Registerer) (*Manager, error) {
	m := &Manager{}
	logger := nlog.Component("storage")

	if cfg.Cache.Enabled {
		client, err := kv.NewKVClient(ctx, cfg.KV)
		if err != nil {
			return nil, fmt.Errorf("kv: %w", err)
		}

		m.KV = client
	}

	// 存储同步依赖事件总线.
	if cfg.Events.Enabled || cfg.Index.StorageSync {
		client, err := mq.New(ctx, cfg.MQ, registry)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("mq: %w", err), m.Close())
		}

		m.MQ = client
	}

	if cfg.Index.StorageSync {
		client, err := dbc.New(ctx, cfg.DB)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("db: %w", err), m.Close())
		}

		m.DB = client

		store, err := NewFileStore(ctx, client)
		if err != nil {
			return nil, errors.Join(err, m.Close())
		}

		m.Files = WithBreaker(store, cfg.CircuitBreaker)
	}

	logger.Info().
		Bool("kv", m.KV != nil).
		Bool("mq", m.MQ != nil).
		Bool("db", m.DB != nil).
		Msg("storage manager initialized")

	return m, nil
}

// Health 报告各资源的状态，数据库不可达时返回错误.
func (m *Manager) Health(ctx context.Context) (map[string]any, error) {
	status := map[string]any{}

	if m.KV != nil {
		status["kv"] = string(m.KV.Type)
	}

	if m.MQ != nil {
		status["mq"] = string(m.MQ.Type)
	}

	if m.DB == nil {
		return status, nil
	}

	if err := m.DB.Ping(ctx); err != nil {
		status["db"] = "down"
		return status, fmt.Errorf("db: %w", err)
	}

	status["db"] = "up"

	return status, nil
}

// Close 关闭全部资源，可重复调用.
func (m *Manager) Close() error {
	var errs []error

	if m.MQ != nil {
		errs = append(errs, m.MQ.Close())
	}

	if m.KV != nil {
		errs = append(errs, m.KV.Close())
		m.KV = nil
	}

	if m.DB != nil {
		errs = append(errs, m.DB.Close())
		m.DB = nil
	}

	return errors.Join(errs...)
}
