// Package retry backs the infrastructure connect paths: ClickHouse and
// Redis being cold for the first seconds of a deployment is routine, so
// connects are retried with exponential backoff instead of failing the
// service at boot. The core fetch pipeline never retries; a failed source
// waits for the next cycle.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Config defines retry behavior.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter spreads concurrent reconnects so both services do not hammer
	// a recovering dependency in lockstep.
	Jitter bool
}

// DefaultConfig covers a dependency that takes up to a minute or two to
// come up, well inside the connect deadline of the callers.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  8,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// WithBackoff runs fn until it succeeds, the attempts are exhausted, or the
// context is done. Every failed attempt is logged with the delay before the
// next one.
func (cfg Config) WithBackoff(ctx context.Context, logger *zap.Logger, operation string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		default:
		}

		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("Operation succeeded after retries",
					zap.String("operation", operation),
					zap.Int("attempts", attempt))
			}
			return nil
		}

		if attempt == cfg.MaxAttempts {
			return fmt.Errorf("%s failed after %d attempts: %w", operation, cfg.MaxAttempts, lastErr)
		}

		delay := cfg.delayFor(attempt)

		logger.Warn("Operation failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.Duration("retry_in", delay),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return lastErr
}

// WithBackoff runs fn under cfg; see Config.WithBackoff.
func WithBackoff(ctx context.Context, cfg Config, logger *zap.Logger, operation string, fn func() error) error {
	return cfg.WithBackoff(ctx, logger, operation, fn)
}

// delayFor is the capped exponential delay before the next attempt, with
// up to ±15% jitter when enabled.
func (cfg Config) delayFor(attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	delay = math.Min(delay, float64(cfg.MaxDelay))

	if cfg.Jitter {
		delay *= 1 + 0.15*(2*rand.Float64()-1)
	}

	return time.Duration(delay)
}
