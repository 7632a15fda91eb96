// Package retry provides exponential backoff retry logic for transient failures.
//
// # Overview
//
// Do runs an operation up to MaxAttempts times. After failed attempt n it waits
// InitialDelay * Multiplier^(n-1), capped at MaxDelay, with optional jitter.
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms then 200ms (document operations)
//   - Startup(): 10 attempts, 50ms-1s delay with jitter (backend connection at startup)
//
// # Classification
//
// Set Config.Retryable to restrict retries to a class of errors. Anything the classifier
// rejects is returned immediately and unmodified, so callers can still match it with
// errors.Is / errors.As. NonRetryable marks a single error as final without a classifier.
//
//	cfg := retry.DefaultConfig()
//	cfg.Retryable = errors.IsTransient
//	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
//	    logger.Warn("retrying", "attempt", attempt, "delay", delay, "error", err)
//	}
//	token, err := retry.DoWithResult(ctx, cfg, func() (uint64, error) {
//	    return remote.Put(ctx, key, payload, cond)
//	})
//
// # Context Cancellation
//
// The context is checked before every attempt and during every backoff sleep. A cancelled
// context never starts another attempt, and the returned error wraps ctx.Err().
//
// # Thread Safety
//
// All functions are safe for concurrent use. Jitter draws from math/rand/v2.
package retry
