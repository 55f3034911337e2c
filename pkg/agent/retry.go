package agent

import (
	"context"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ErrInvalidInput marks validation failures raised by this package
var ErrInvalidInput = errors.New("invalid input")

// invalidInput builds an error with msg as its message, matching ErrInvalidInput
func invalidInput(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidInput)
}

// RetryPolicy configures RetryWithBackoff
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int
	// BackoffFactor is raised to the attempt number to get the delay in seconds
	BackoffFactor float64
	Logger        zerolog.Logger
	// OnRetry runs before each sleep, with the zero-based attempt that failed
	OnRetry func(attempt int, err error)
}

// sleepFn waits for d or until ctx is done; tests replace it
var sleepFn = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MaxRetryDelay caps a single backoff wait
const MaxRetryDelay = 10 * time.Minute

// Delay returns the wait after the given zero-based failed attempt, capped at
// MaxRetryDelay
func (p RetryPolicy) Delay(attempt int) time.Duration {
	seconds := math.Pow(p.BackoffFactor, float64(attempt))
	if math.IsNaN(seconds) || seconds >= MaxRetryDelay.Seconds() {
		return MaxRetryDelay
	}
	return time.Duration(seconds * float64(time.Second))
}

// RetryWithBackoff calls fn up to MaxRetries+1 times. After failed attempt i
// it sleeps BackoffFactor^i seconds, except after the last attempt. The last
// error is returned when every attempt fails.
func RetryWithBackoff[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if policy.MaxRetries < 0 {
		return zero, invalidInput("max_retries must be non-negative")
	}
	if policy.BackoffFactor <= 1.0 {
		return zero, invalidInput("backoff_factor must be greater than 1.0")
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == policy.MaxRetries {
			break
		}

		delay := policy.Delay(attempt)
		policy.Logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", policy.MaxRetries+1).
			Dur("delay", delay).
			Msg("Attempt failed, retrying")

		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err)
		}

		if err := sleepFn(ctx, delay); err != nil {
			return zero, errors.WithSecondaryError(errors.Wrap(err, "retry aborted"), lastErr)
		}
	}

	policy.Logger.Error().
		Err(lastErr).
		Int("attempts", policy.MaxRetries+1).
		Msg("All attempts failed")

	return zero, lastErr
}
