package ai

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/IMBotPlatform/IMBotChat/pkg/metrics"
)

// BreakerConfig 配置模型调用的熔断器。
type BreakerConfig struct {
	// Failures 是触发熔断的连续失败次数，0 表示不启用熔断。
	Failures uint32 `json:"failures" yaml:"failures"`
	// Timeout 是熔断打开后进入半开状态前的等待时间。
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// newBreaker 为指定模型创建熔断器；未启用时返回 nil。
func newBreaker(model string, cfg BreakerConfig, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	if cfg.Failures == 0 {
		return nil
	}
	metrics.CircuitBreakerState.WithLabelValues(model).Set(float64(gobreaker.StateClosed))
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        model,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Failures
		},
		// 客户端主动取消不算模型故障。
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("model", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
}

// execute 通过熔断器执行 fn；熔断打开时返回 ErrGeneratorUnavailable。
func execute(cb *gobreaker.CircuitBreaker, fn func() (string, error)) (string, error) {
	if cb == nil {
		return fn()
	}
	out, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", ErrGeneratorUnavailable
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
