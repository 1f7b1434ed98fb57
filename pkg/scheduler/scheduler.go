// Package scheduler 在 gocron/v2 之上管理命名的周期任务，并记录每个任务的运行情况.
//
// 任务以单例模式运行：上一轮还没结束时，到期的触发会被跳过并重新排期.
package scheduler

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yeisme/fsindex/pkg/log"
	"github.com/yeisme/fsindex/pkg/metrics"
)

// State 任务当前所处的状态.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateFailed  State = "failed"
)

// Job 某个任务的快照.
type Job struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Schedule    string    `json:"schedule"` // cron 表达式或 every <间隔>
	State       State     `json:"state"`
	Runs        int64     `json:"runs"`
	Failures    int64     `json:"failures"`
	LastError   string    `json:"last_error,omitempty"`
	LastStart   time.Time `json:"last_start,omitzero"`
	LastSuccess time.Time `json:"last_success,omitzero"`
	NextRun     time.Time `json:"next_run,omitzero"`
}

type entry struct {
	handle gocron.Job
	info   Job
}

// Scheduler 命名任务的集合. 名称唯一.
type Scheduler struct {
	cron   gocron.Scheduler
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry

	stopOnce sync.Once
	stopErr  error
}

// NewScheduler 创建调度器，任务在 Start 之后才开始触发.
func NewScheduler() (*Scheduler, error) {
	logger := log.Component("scheduler")

	cron, err := gocron.NewScheduler(gocron.WithLogger(gocronLogger{logger}))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &Scheduler{
		cron:    cron,
		logger:  logger,
		entries: make(map[string]*entry),
	}, nil
}

// AddCron 按 cron 表达式（五段）注册任务.
func (s *Scheduler) AddCron(ctx context.Context, name, expr string, fn func(context.Context)) error {
	return s.add(ctx, name, expr, gocron.CronJob(expr, false), fn)
}

// AddInterval 按固定间隔注册任务，第一次在一个间隔之后执行.
func (s *Scheduler) AddInterval(ctx context.Context, name string, every time.Duration, fn func(context.Context)) error {
	if every <= 0 {
		return fmt.Errorf("job %s: interval must be positive, got %s", name, every)
	}

	return s.add(ctx, name, "every "+every.String(), gocron.DurationJob(every), fn)
}

func (s *Scheduler) add(ctx context.Context, name, schedule string, def gocron.JobDefinition, fn func(context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("job %s already registered", name)
	}

	handle, err := s.cron.NewJob(def,
		gocron.NewTask(s.wrap(name, fn), ctx),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}

	s.entries[name] = &entry{
		handle: handle,
		info: Job{
			ID:       handle.ID(),
			Name:     name,
			Schedule: schedule,
			State:    StateIdle,
		},
	}

	s.logger.Info().Str("job", name).Str("schedule", schedule).Msg("Job registered")

	return nil
}

// wrap 记录每次运行的开始、结果与 panic，panic 不会传给 gocron.
func (s *Scheduler) wrap(name string, fn func(context.Context)) func(context.Context) {
	return func(ctx context.Context) {
		s.update(name, func(j *Job) {
			j.State = StateRunning
			j.LastStart = time.Now()
		})

		defer func() {
			r := recover()

			result := "ok"
			if r != nil {
				result = "panic"
				s.logger.Error().Str("job", name).Interface("panic", r).Msg("Job panicked")
			}

			metrics.JobRuns.WithLabelValues(name, result).Inc()

			s.update(name, func(j *Job) {
				j.Runs++
				if r != nil {
					j.State = StateFailed
					j.Failures++
					j.LastError = fmt.Sprint(r)

					return
				}

				j.State = StateIdle
				j.LastError = ""
				j.LastSuccess = time.Now()
			})
		}()

		fn(ctx)
	}
}

func (s *Scheduler) update(name string, fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[name]; ok {
		fn(&e.info)
	}
}

// RemoveJobByName 注销任务.
func (s *Scheduler) RemoveJobByName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}

	if err := s.cron.RemoveJob(e.info.ID); err != nil {
		return fmt.Errorf("remove job %s: %w", name, err)
	}

	delete(s.entries, name)

	return nil
}

// RunNow 立即执行一次，不改变原有排期.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}

	return e.handle.RunNow()
}

// GetJobInfoByName 返回任务快照.
func (s *Scheduler) GetJobInfoByName(name string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return Job{}, fmt.Errorf("job %s not registered", name)
	}

	return e.snapshot(), nil
}

// GetJobInfos 按名称排序返回全部任务快照.
func (s *Scheduler) GetJobInfos() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]Job, 0, len(s.entries))
	for _, name := range slices.Sorted(maps.Keys(s.entries)) {
		jobs = append(jobs, s.entries[name].snapshot())
	}

	return jobs
}

// 下次运行时间直接问 gocron，调度器未启动时为零值.
func (e *entry) snapshot() Job {
	info := e.info
	if next, err := e.handle.NextRun(); err == nil {
		info.NextRun = next
	}

	return info
}

// Start 开始触发已注册的任务.
func (s *Scheduler) Start() {
	s.logger.Info().Int("jobs", len(s.GetJobInfos())).Msg("Scheduler started")
	s.cron.Start()
}

// Shutdown 停止调度并等待运行中的任务返回，可重复调用.
func (s *Scheduler) Shutdown() error {
	s.stopOnce.Do(func() {
		s.stopErr = s.cron.Shutdown()
		s.logger.Info().Err(s.stopErr).Msg("Scheduler stopped")
	})

	return s.stopErr
}

// gocronLogger 把 gocron 的日志接到 zerolog.
type gocronLogger struct {
	l zerolog.Logger
}

func (g gocronLogger) Debug(msg string, args ...any) { g.l.Debug().Fields(args).Msg(msg) }
func (g gocronLogger) Info(msg string, args ...any)  { g.l.Info().Fields(args).Msg(msg) }
func (g gocronLogger) Warn(msg string, args ...any)  { g.l.Warn().Fields(args).Msg(msg) }
func (g gocronLogger) Error(msg string, args ...any) { g.l.Error().Fields(args).Msg(msg) }
