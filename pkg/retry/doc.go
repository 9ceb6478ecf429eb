// Package retry runs an operation as a bounded sequence of attempts with an
// explicit backoff policy between them.
//
// Only errors accepted by RetryIf are retried; anything else ends the loop
// immediately. When every attempt fails, Do returns an *ExhaustedError that
// wraps the last error. Cancellation while waiting yields a *CancelledError.
//
//	cfg := &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     retry.DefaultExponentialBackoff(), // 2s, 4s, 8s
//		RetryIf:     retry.DefaultRetryIf,
//		Context:     ctx,
//	}
//	err := retry.Do(func(attempt int) error {
//		return fetchOnce(attempt)
//	}, cfg)
package retry
