package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/yeisme/fsindex/pkg/configs"
	"github.com/yeisme/fsindex/pkg/log"
)

// ErrUnavailable 熔断器打开，暂不访问存储.
var ErrUnavailable = errors.New("storage: circuit open")

// breakerConnector 用熔断器包装 Connector. ErrNotFound 视为成功.
type breakerConnector struct {
	next Connector
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker 按配置为 Connector 加上熔断，未启用时原样返回.
func WithBreaker(next Connector, cfg configs.CircuitBreakerConfig) Connector {
	if !cfg.Enabled {
		return next
	}

	logger := log.Component("storage-breaker")

	settings := gobreaker.Settings{
		Name:        "storage",
		MaxRequests: cfg.MaxRequestsInHalf,
		Interval:    time.Duration(cfg.IntervalSeconds) * time.Second,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}

			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRate
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("熔断器状态变化")
		},
	}

	return &breakerConnector{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *breakerConnector) FindByMetadata(ctx context.Context, meta Metadata) (Record, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.next.FindByMetadata(ctx, meta)
	})
	if err != nil {
		return Record{}, b.wrap("find", err)
	}

	return v.(Record), nil
}

func (b *breakerConnector) Insert(ctx context.Context, rec Record) (uint, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.next.Insert(ctx, rec)
	})
	if err != nil {
		return 0, b.wrap("insert", err)
	}

	return v.(uint), nil
}

func (b *breakerConnector) Update(ctx context.Context, rec Record) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.Update(ctx, rec)
	})

	return b.wrap("update", err)
}

// wrap 把熔断器自身的拒绝转换为 ErrUnavailable，其余错误原样返回.
func (b *breakerConnector) wrap(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &Error{Op: op, Err: errors.Join(ErrUnavailable, err)}
	}

	return err
}
