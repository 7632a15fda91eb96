// Package retry provides exponential backoff retry logic for transient failures
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// NonRetryableError marks an error as final regardless of the classifier
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps err so Do returns it without retrying
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err was marked with NonRetryable
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Config provides retry configuration
type Config struct {
	MaxAttempts  int           // attempts in total, including the first; <= 0 runs once
	InitialDelay time.Duration // wait after the first failure
	MaxDelay     time.Duration // cap on any single wait
	Multiplier   float64       // growth per failure, typically 2.0
	AddJitter    bool          // add up to 25% to each wait

	// Retryable classifies failures. When set, only errors it accepts are retried and
	// everything else is returned immediately and unmodified. Nil retries every error
	// not marked NonRetryable.
	Retryable func(error) bool

	// OnRetry is called before each backoff sleep with the attempt that just failed.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig returns the document operation schedule: 3 attempts, waiting 100ms then 200ms.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// Startup returns a patient schedule for establishing backend connections: 10 attempts
// growing from 50ms to at most 1s, with jitter.
func Startup() Config {
	return Config{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   1.5,
		AddJitter:    true,
	}
}

// Delay returns the un-jittered wait after failed attempt n (1-based): InitialDelay * Multiplier^(n-1),
// capped at MaxDelay.
func (cfg Config) Delay(n int) time.Duration {
	delay := cfg.InitialDelay
	for i := 1; i < n; i++ {
		next := float64(delay) * cfg.Multiplier
		if next > float64(cfg.MaxDelay) || next > float64(time.Duration(1<<63-1)) {
			return cfg.MaxDelay
		}
		delay = time.Duration(next)
	}
	return delay
}

// wait returns the sleep after failed attempt n, jittered when configured
func (cfg Config) wait(n int) time.Duration {
	d := cfg.Delay(n)
	if cfg.AddJitter && d >= 4 {
		d += rand.N(d / 4)
	}
	return d
}

// normalize fills zero fields with the defaults and rejects negative ones
func (cfg Config) normalize() (Config, error) {
	switch {
	case cfg.InitialDelay < 0:
		return cfg, errors.New("retry: InitialDelay cannot be negative")
	case cfg.MaxDelay < 0:
		return cfg, errors.New("retry: MaxDelay cannot be negative")
	case cfg.Multiplier < 0:
		return cfg, errors.New("retry: Multiplier cannot be negative")
	}

	d := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = d.InitialDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = d.MaxDelay
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = d.Multiplier
	}
	cfg.Multiplier = min(cfg.Multiplier, 1000)

	if cfg.MaxDelay < cfg.InitialDelay {
		return cfg, errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	return cfg, nil
}

// retryable reports whether a failed attempt may be followed by another
func (cfg Config) retryable(err error) bool {
	if IsNonRetryable(err) {
		return false
	}
	return cfg.Retryable == nil || cfg.Retryable(err)
}

// Do executes fn with exponential backoff retry.
//
// A cancelled context stops the loop before the next attempt starts, so cancellation never
// consumes an attempt. Errors rejected by cfg.Retryable or marked NonRetryable are returned as-is.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg, err := cfg.normalize()
	if err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt, ctx.Err())
		}

		err := fn()
		switch {
		case err == nil:
			return nil
		case !cfg.retryable(err):
			return err
		case ctx.Err() != nil:
			// the failure may be the transport noticing our own cancellation
			return fmt.Errorf("retry cancelled after attempt %d (last error: %v): %w", attempt, err, ctx.Err())
		case attempt >= cfg.MaxAttempts:
			return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, err)
		}

		sleep := cfg.wait(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, sleep, err)
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d (last error: %v): %w",
				attempt+1, err, ctx.Err())
		case <-timer.C:
		}
	}
}

// DoWithResult is Do for functions that return a value
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}
