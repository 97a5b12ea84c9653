// internal/pkg/database/retry.go
package database

import (
	"context"
	"errors"
	"time"

	"lensmart/internal/pkg/apperr"
	"lensmart/internal/pkg/logger"
	"lensmart/internal/pkg/metrics"
)

// RetryPolicy 控制 Conflict 的有限次重试
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Do 执行 fn，遇到 Conflict 时按线性退避重试，超过上限返回 RetryExhausted。
// 每次尝试都是一个新事务，PENDING 守卫会被重新检查。
func (p RetryPolicy) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if !errors.Is(err, apperr.ErrConflict) {
			return err
		}
		if attempt >= attempts {
			logger.Ctx(ctx).Error().Err(err).Str("operation", operation).Int("attempts", attempt).Msg("retry exhausted")
			return apperr.RetryExhausted(operation, attempt)
		}

		metrics.ConflictRetries.WithLabelValues(operation).Inc()
		logger.Ctx(ctx).Warn().Err(err).Str("operation", operation).Int("attempt", attempt).Msg("lock contention, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff * time.Duration(attempt)):
		}
	}
}
