// Package retry runs store operations again when they lose a write race.
//
// Only apperrors.ErrConcurrencyConflict is retried. Every other error,
// including business rejections such as ErrUnavailable, is returned on the
// first attempt.
package retry

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/mrlokans/campuslib/internal/apperrors"
)

const (
	DefaultMaxAttempts  = 5
	DefaultBaseDelay    = 10 * time.Millisecond
	DefaultJitterFactor = 0.3
)

var (
	ErrInvalidMaxAttempts  = errors.New("max attempts must be positive")
	ErrNegativeBaseDelay   = errors.New("base delay must not be negative")
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

type Func func(ctx context.Context) error

type config struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
	label        string
}

type Option func(*config) error

// WithMaxAttempts bounds the total number of calls, first attempt included.
func WithMaxAttempts(attempts int) Option {
	return func(c *config) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		c.maxAttempts = attempts
		return nil
	}
}

// WithBaseDelay sets the wait before the second attempt; each further wait doubles it.
func WithBaseDelay(delay time.Duration) Option {
	return func(c *config) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}
		c.baseDelay = delay
		return nil
	}
}

// WithJitterFactor adds up to factor*delay of random extra wait.
func WithJitterFactor(factor float64) Option {
	return func(c *config) error {
		if factor < 0.0 || factor > 1.0 {
			return ErrInvalidJitterFactor
		}
		c.jitterFactor = factor
		return nil
	}
}

// WithLabel names the operation in retry log lines.
func WithLabel(label string) Option {
	return func(c *config) error {
		c.label = label
		return nil
	}
}

// Do calls fn until it succeeds, fails with a non-retryable error, the
// attempts run out or ctx is done. The waits between attempts are
// baseDelay, 2*baseDelay, 4*baseDelay... plus jitter.
func Do(ctx context.Context, fn Func, options ...Option) error {
	cfg := &config{
		maxAttempts:  DefaultMaxAttempts,
		baseDelay:    DefaultBaseDelay,
		jitterFactor: DefaultJitterFactor,
		label:        "operation",
	}
	for _, option := range options {
		if err := option(cfg); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		if attempt > 0 {
			wait := Backoff(cfg.baseDelay, attempt, cfg.jitterFactor)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !apperrors.IsConcurrencyConflict(lastErr) {
			return lastErr
		}
		if attempt < cfg.maxAttempts-1 {
			log.Printf("[RETRY] %s lost a write race (attempt %d/%d): %v", cfg.label, attempt+1, cfg.maxAttempts, lastErr)
		}
	}

	log.Printf("[RETRY] %s gave up after %d attempts: %v", cfg.label, cfg.maxAttempts, lastErr)
	return lastErr
}

// Backoff returns the wait before the given (1-based) retry.
func Backoff(base time.Duration, attempt int, jitterFactor float64) time.Duration {
	if attempt < 1 {
		return 0
	}
	delay := base * time.Duration(1<<(attempt-1))
	jitter := rand.Float64() * float64(delay) * jitterFactor //nolint:gosec // jitter does not need crypto randomness
	return delay + time.Duration(jitter)
}
