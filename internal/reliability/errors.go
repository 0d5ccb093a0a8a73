package reliability

import (
	"errors"
	"fmt"
)

var (
	// ErrMaxRetriesExceeded is matched by a RetryError whose last failure was still retryable
	ErrMaxRetriesExceeded = errors.New("retry: maximum attempts exceeded")
	// ErrNonRetryable is matched by a RetryError stopped by a permanent failure
	ErrNonRetryable = errors.New("retry: error is not retryable")
)

// RetryError represents a retry operation that gave up
type RetryError struct {
	Attempts  int   // Number of attempts made
	Retryable bool  // Whether the last error was retryable (budget exhausted)
	LastError error // Error of the final attempt
}

func (e *RetryError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("retry: gave up after %d attempts: %v", e.Attempts, e.LastError)
	}
	return fmt.Sprintf("retry: permanent failure on attempt %d: %v", e.Attempts, e.LastError)
}

func (e *RetryError) Unwrap() error {
	return e.LastError
}

// Is lets errors.Is match the sentinel describing why retrying stopped
func (e *RetryError) Is(target error) bool {
	switch target {
	case ErrMaxRetriesExceeded:
		return e.Retryable
	case ErrNonRetryable:
		return !e.Retryable
	}
	return false
}
