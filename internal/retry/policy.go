// Package retry provides delay policies and a bounded retry loop for calls to
// external services.
package retry

import (
	"context"
	"errors"
	"math"
	"time"
)

// Policy defines retry behavior for outbound calls
type Policy struct {
	MaxRetries        int           // Maximum number of retry attempts (0 = no retries)
	InitialDelay      time.Duration // Delay before the first retry
	MaxDelay          time.Duration // Maximum delay between retries
	BackoffMultiplier float64       // Multiplier for exponential backoff (1.0 = fixed delay)
}

// FixedPolicy returns a policy that waits the same delay between every attempt
func FixedPolicy(maxRetries int, delay time.Duration) Policy {
	return Policy{
		MaxRetries:        maxRetries,
		InitialDelay:      delay,
		MaxDelay:          delay,
		BackoffMultiplier: 1.0,
	}
}

// CalculateDelay calculates the delay before retry number retryCount (0-based)
func (p *Policy) CalculateDelay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return p.InitialDelay
	}

	// initialDelay * (multiplier ^ retryCount)
	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(retryCount))

	if time.Duration(delay) > p.MaxDelay {
		return p.MaxDelay
	}

	return time.Duration(delay)
}

// ShouldRetry determines if another attempt is allowed after retryCount retries
func (p *Policy) ShouldRetry(retryCount int) bool {
	return retryCount < p.MaxRetries
}

// Attempts returns the total number of attempts the policy allows
func (p *Policy) Attempts() int {
	return p.MaxRetries + 1
}

// Validate checks if the retry policy configuration is valid
func (p *Policy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.New("MaxRetries must be non-negative")
	}
	if p.InitialDelay < 0 {
		return errors.New("InitialDelay must be non-negative")
	}
	if p.MaxDelay < 0 {
		return errors.New("MaxDelay must be non-negative")
	}
	if p.BackoffMultiplier <= 0 {
		return errors.New("BackoffMultiplier must be positive")
	}
	if p.InitialDelay > p.MaxDelay {
		return errors.New("InitialDelay cannot be greater than MaxDelay")
	}
	return nil
}

// RetryFunc is called after a failed attempt that will be retried
type RetryFunc func(attempt int, err error, delay time.Duration)

// Do runs fn until it succeeds or the policy is exhausted, waiting between
// attempts. attempt is 0-based. The last error is returned when every attempt
// fails; ctx cancellation during a wait returns ctx.Err().
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error, onRetry RetryFunc) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if !p.ShouldRetry(attempt) {
			return lastErr
		}

		delay := p.CalculateDelay(attempt)
		if onRetry != nil {
			onRetry(attempt, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
