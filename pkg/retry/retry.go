package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "igengage/pkg/errors"
	"igengage/pkg/logger"
)

// Operation performs one attempt. attempt is zero-based.
type Operation func(attempt int) error

// OperationWithResult is an attempt that also returns a value
type OperationWithResult[T any] func(attempt int) (T, error)

// SleepFunc suspends the calling goroutine for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the total number of attempts, including the first one
	MaxAttempts int
	// Backoff strategy to use between attempts
	Backoff BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called after a retryable failure, before sleeping
	OnRetry func(attempt int, err error, delay time.Duration)
	// Sleep waits between attempts; defaults to Wait
	Sleep SleepFunc
	// Context for cancellation
	Context context.Context
	// Logger for retry attempts
	Logger logger.Logger
}

// ExhaustedError is returned when every attempt failed with a retryable error
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("max retry attempts (%d) exceeded: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// CancelledError is returned when the context ends while waiting between attempts
type CancelledError struct {
	Attempt int
	Last    error
	Err     error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("retry cancelled after attempt %d: %v", e.Attempt+1, e.Err)
}

func (e *CancelledError) Unwrap() error {
	return e.Err
}

// DefaultConfig returns the retry policy used for profile fetches:
// three attempts with 2s, 4s, 8s... between them.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Sleep:       Wait,
		Context:     context.Background(),
		Logger:      logger.GetLogger(),
	}
}

// DefaultRetryIf retries only classified transient errors
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if appErr, ok := apperrors.As(err); ok {
		return apperrors.IsRetryable(appErr.Type)
	}
	return false
}

// Do executes op until it succeeds, returns a non-retryable error, or runs
// out of attempts. No delay follows the final attempt.
func Do(op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = Wait
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	log := logger.OrDefault(cfg.Logger)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := op(attempt)
		if err == nil {
			if attempt > 0 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt + 1,
				})
			}
			return nil
		}
		lastErr = err

		if !retryIf(err) {
			log.DebugWithFields("error is not retryable", map[string]interface{}{
				"attempt": attempt + 1,
				"error":   err.Error(),
			})
			return err
		}

		if attempt == maxAttempts-1 {
			break
		}

		delay := time.Duration(0)
		if cfg.Backoff != nil {
			delay = cfg.Backoff.NextDelay(attempt + 1)
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		if err := sleep(ctx, delay); err != nil {
			log.WarnWithFields("retry cancelled", map[string]interface{}{
				"attempt": attempt + 1,
				"reason":  err.Error(),
			})
			return &CancelledError{Attempt: attempt, Last: lastErr, Err: err}
		}
	}

	log.DebugWithFields("max retry attempts exceeded", map[string]interface{}{
		"attempts":   maxAttempts,
		"last_error": lastErr.Error(),
	})
	return &ExhaustedError{Attempts: maxAttempts, Last: lastErr}
}

// DoWithResult executes an operation that returns a result with retry logic.
// The result of the last attempt is returned alongside any error.
func DoWithResult[T any](op OperationWithResult[T], cfg *Config) (T, error) {
	var result T

	err := Do(func(attempt int) error {
		var opErr error
		result, opErr = op(attempt)
		return opErr
	}, cfg)

	return result, err
}
