// Package resilience retries transient failures with jittered exponential
// backoff. The indexer uses it for index-event publishes, where a lost event
// leaves searchers with a stale lexicon cache.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig zero values take the defaults: 3 attempts, 100ms doubling to
// at most 10s, 10% jitter.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = 0.1
	}
	return c
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Retry returns it unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn until it succeeds, returns a Permanent error, the attempts
// run out or ctx ends.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	logger := slog.Default().With("component", "retry", "operation", name)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= cfg.MaxAttempts {
			return fmt.Errorf("%s failed after %d attempts: %w", name, attempt, err)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s aborted: %w", name, ctx.Err())
		}

		delay := computeDelay(attempt, cfg)
		logger.Warn("attempt failed",
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"next_delay", delay,
			"error", err,
		)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s aborted during backoff: %w", name, ctx.Err())
		}
	}
}

// computeDelay is InitialDelay * Multiplier^(attempt-1), jittered by
// +/- JitterFraction and capped at MaxDelay.
func computeDelay(attempt int, cfg RetryConfig) time.Duration {
	d := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	d *= 1 + cfg.JitterFraction*(2*rand.Float64()-1)
	d = math.Min(d, float64(cfg.MaxDelay))
	if d <= 0 {
		return cfg.InitialDelay
	}
	return time.Duration(d)
}
