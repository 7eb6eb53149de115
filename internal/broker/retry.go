package broker

import (
	"context"
	"math"
	"time"

	laderrors "github.com/stefanopk/ladderbot/internal/errors"
)

// RetryConfig holds configuration for retrying idempotent broker reads
type RetryConfig struct {
	MaxRetries    int           `json:"maxRetries"`
	InitialDelay  time.Duration `json:"initialDelay"`
	MaxDelay      time.Duration `json:"maxDelay"`
	BackoffFactor float64       `json:"backoffFactor"`
	JitterEnabled bool          `json:"jitterEnabled"`
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// Retry executes fn with exponential backoff. Only retryable errors (as
// classified by the errors package) are retried; ErrNoData and validation
// failures surface immediately. Intended for idempotent reads, never for
// order placement.
func Retry(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if attempt == config.MaxRetries {
			break
		}

		if err == ErrNoData || !laderrors.IsRetryable(err) {
			break
		}

		delay := backoffDelay(attempt, config)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

func backoffDelay(attempt int, config RetryConfig) time.Duration {
	delay := config.InitialDelay

	if attempt > 0 {
		delay = time.Duration(float64(config.InitialDelay) * math.Pow(config.BackoffFactor, float64(attempt)))
	}

	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if config.JitterEnabled {
		jitter := time.Duration(float64(delay) * 0.1 * (2*randFloat() - 1))
		delay += jitter
	}

	return delay
}

func randFloat() float64 {
	return float64(time.Now().UnixNano()%1000) / 1000.0
}
