// Package reliability provides retry policies for operations that may fail transiently.
//
// This package implements:
//   - RetryPolicy: decides whether and when a failed attempt is retried
//   - ExponentialBackoff and FixedDelay policies
//   - Retry / RetryNotify: run an operation under a policy, honouring context cancellation
//   - RetryableError: classifies an error as retryable or permanent
//
// Errors are retryable unless they say otherwise through an IsRetryable() bool
// method, so callers mark permanent failures with Permanent(err).
//
// Example usage:
//
//	policy := NewExponentialBackoff(time.Second, time.Minute, 2.0, 6)
//	policy.Jitter = false
//
//	err := Retry(ctx, policy, func() error {
//	    return bind()
//	})
package reliability
