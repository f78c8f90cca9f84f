package ledger

import (
	"context"
	"math/rand"
	"time"

	"github.com/tunevault/service_layer/internal/apperr"
)

// RetryConfig controls backoff for read-only ledger calls. Mutating calls
// are never retried through this path.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Jitter            float64
}

// DefaultRetryConfig returns the retry policy used for quotes and stats.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2,
		Jitter:            0.2,
	}
}

// Do runs fn, retrying with exponential backoff and jitter while the error
// stays transient. Terminal ledger errors (RPC rejections) return
// immediately.
func (c RetryConfig) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := c.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			jitter := time.Duration(float64(backoff) * c.Jitter * (rand.Float64()*2 - 1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff + jitter):
			}

			backoff = time.Duration(float64(backoff) * c.BackoffMultiplier)
			if backoff > c.MaxBackoff {
				backoff = c.MaxBackoff
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !apperr.IsRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
