package cron

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig controls exponential backoff for failed jobs. A job's own
// Retries field overrides MaxRetries.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig does not retry: a script may have side effects that must
// not repeat.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 0,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// ExecuteWithRetry runs fn, retrying on error with exponential backoff and
// jitter. It stops early when ctx is done.
func ExecuteWithRetry(ctx context.Context, fn func() (string, error), cfg RetryConfig) (result string, attempts int, err error) {
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err = fn()
		if err == nil {
			return result, attempt + 1, nil
		}

		if attempt < cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return result, attempt + 1, err
			case <-time.After(backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt)):
			}
		}
	}
	return result, cfg.MaxRetries + 1, err
}

// backoffWithJitter computes delay = min(base * 2^attempt, max) + jitter(±25%).
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		delay = max
	}

	quarter := delay / 4
	if quarter > 0 {
		jitter := time.Duration(rand.Int64N(int64(quarter*2))) - quarter
		delay += jitter
	}
	return delay
}
