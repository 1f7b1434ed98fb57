// Package metrics 提供监控指标功能.
// 支持Prometheus标准，收集 RPC、扫描与存储同步指标.
//
// Example:
//
//	import "github.com/yeisme/fsindex/pkg/metrics"
//
//	err := metrics.InitMetrics(config.Metrics)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// 记录指标
//	metrics.RPCRequests.WithLabelValues("search", "ok").Inc()
//	metrics.RPCDuration.WithLabelValues("search").Observe(0.002)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/yeisme/fsindex/pkg/configs"
)

const namespace = "fsindex"

// 全局指标变量.
var (
	// RPCRequests RPC 请求计数，result 取 ok / err / protocol.
	RPCRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Total number of RPC requests",
		},
		[]string{"method", "result"},
	)

	// RPCDuration RPC 处理耗时.
	RPCDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_request_duration_seconds",
			Help:      "RPC request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// ActiveConnections 正在处理的连接数.
	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rpc_active_connections",
			Help:      "Number of connections being served",
		},
	)

	// ScanFiles 扫描过程中按结果统计的文件数，outcome 取 inserted / updated / skipped.
	ScanFiles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_files_total",
			Help:      "Files visited by scans, by outcome",
		},
		[]string{"outcome"},
	)

	// ScanErrors 遍历错误数.
	ScanErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_errors_total",
			Help:      "Traversal errors encountered while scanning",
		},
	)

	// ScanDuration 单次扫描耗时.
	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of a full scan",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)

	// IndexedFiles 索引中的文件数.
	IndexedFiles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_files",
			Help:      "Number of files held by the in-memory index",
		},
	)

	// StorageSync 存储同步结果，op 取 insert / update，result 取 ok / err.
	StorageSync = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_sync_total",
			Help:      "Records synchronised to the storage port",
		},
		[]string{"op", "result"},
	)

	// SearchCache 搜索缓存命中情况，result 取 hit / miss.
	SearchCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_cache_total",
			Help:      "Search cache lookups",
		},
		[]string{"result"},
	)

	// JobRuns 定时任务执行次数，result 取 ok / panic.
	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job executions",
		},
		[]string{"job", "result"},
	)

	// registry Prometheus注册表.
	registry = prometheus.NewRegistry()

	registerOnce sync.Once
)

// InitMetrics 初始化Metrics，重复调用只注册一次.
func InitMetrics(config configs.MetricsConfig) error {
	if !config.Enabled {
		return nil
	}

	registerOnce.Do(func() {
		// 运行时指标由默认注册表提供，/metrics 同时汇总默认注册表（gorm 插件也注册在那里）.
		if !config.RuntimeMetrics {
			prometheus.Unregister(collectors.NewGoCollector())
			prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		}

		registry.MustRegister(
			RPCRequests, RPCDuration, ActiveConnections,
			ScanFiles, ScanErrors, ScanDuration, IndexedFiles,
			StorageSync, SearchCache, JobRuns,
		)
	})

	return nil
}

// GetRegistry 获取Prometheus注册表.
func GetRegistry() *prometheus.Registry {
	return registry
}

// Gatherer 汇总本包注册表与 prometheus 默认注册表.
func Gatherer() prometheus.Gatherer {
	return prometheus.Gatherers{registry, prometheus.DefaultGatherer}
}
