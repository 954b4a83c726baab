// Package retry defines the bounded retry applied to storage backend calls.
package retry

import (
	"context"
	"math"
	"time"
)

// BackoffType identifies the backoff strategy.
type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"       // Same delay each time
	BackoffExponential BackoffType = "exponential" // Delay doubles each time
)

// Policy defines a retry strategy.
type Policy struct {
	MaxRetries      int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffStrategy BackoffType
}

// SingleRetry returns the policy used for transient storage failures.
func SingleRetry(delay time.Duration) Policy {
	return Policy{
		MaxRetries:      1,
		InitialDelay:    delay,
		MaxDelay:        delay,
		BackoffStrategy: BackoffFixed,
	}
}

// NoRetryPolicy returns a policy that never retries.
func NoRetryPolicy() Policy {
	return Policy{}
}

// CalculateDelay calculates the delay before the given retry attempt (1-based).
func (p Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	var delay time.Duration
	switch p.BackoffStrategy {
	case BackoffExponential:
		delay = p.InitialDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	default:
		delay = p.InitialDelay
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// RetryableFunc is a function that can be retried. attempt starts at 0.
type RetryableFunc func(ctx context.Context, attempt int) error

// Executor provides retry execution functionality.
type Executor struct {
	policy    Policy
	retryable func(error) bool
}

// NewExecutor creates an executor that retries only errors accepted by retryable.
func NewExecutor(policy Policy, retryable func(error) bool) *Executor {
	if retryable == nil {
		retryable = func(error) bool { return false }
	}
	return &Executor{policy: policy, retryable: retryable}
}

// Execute runs fn, retrying according to the policy. It returns the last error.
func (e *Executor) Execute(ctx context.Context, fn RetryableFunc) error {
	var lastErr error

	for attempt := 0; attempt <= e.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(e.policy.CalculateDelay(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			case <-timer.C:
			}
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !e.retryable(err) {
			return err
		}
	}

	return lastErr
}
