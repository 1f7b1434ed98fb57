// Package jobs 负责注册周期性的业务任务（基于 scheduler）.
package jobs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yeisme/fsindex/pkg/configs"
	"github.com/yeisme/fsindex/pkg/internal/indexer"
	"github.com/yeisme/fsindex/pkg/log"
	"github.com/yeisme/fsindex/pkg/scheduler"
)

// RegisterRescan 按配置注册周期重扫：rescan_cron 优先，其次 rescan_interval.
// 两者都未设置时不注册任务，返回 false.
func RegisterRescan(ctx context.Context, sched *scheduler.Scheduler, engine *indexer.Engine, cfg configs.IndexConfig) (bool, error) {
	if sched == nil || engine == nil {
		return false, errors.New("jobs: scheduler and engine are required")
	}

	run := func(ctx context.Context) { runRescan(ctx, engine) }

	switch {
	case strings.TrimSpace(cfg.RescanCron) != "":
		return true, sched.AddCron(ctx, JobRescan, cfg.RescanCron, run)
	case cfg.RescanInterval > 0:
		return true, sched.AddInterval(ctx, JobRescan, cfg.RescanInterval, run)
	default:
		return false, nil
	}
}

// runRescan 对默认根目录执行一次扫描，结果只记录日志.
func runRescan(ctx context.Context, engine *indexer.Engine) {
	l := log.Component("jobs").With().Str("job", JobRescan).Logger()

	start := time.Now()

	report, err := engine.Scan(ctx)
	if err != nil {
		l.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("rescan interrupted")
		return
	}

	l.Info().Stringer("report", report).Msg("rescan done")
}
