package reliability

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff(t *testing.T) {
	t.Run("creates with correct defaults", func(t *testing.T) {
		eb := NewExponentialBackoff(100*time.Millisecond, 5*time.Second, 2.0, 3)

		assert.Equal(t, 100*time.Millisecond, eb.InitialInterval)
		assert.Equal(t, 5*time.Second, eb.MaxInterval)
		assert.Equal(t, 2.0, eb.Multiplier)
		assert.Equal(t, 3, eb.MaxRetries())
		assert.True(t, eb.Jitter)
	})

	t.Run("ShouldRetry respects max retries", func(t *testing.T) {
		eb := NewExponentialBackoff(100*time.Millisecond, time.Second, 2.0, 3)

		for i := 0; i < 3; i++ {
			shouldRetry, delay := eb.ShouldRetry(i, errors.New("test"))
			assert.True(t, shouldRetry)
			assert.Greater(t, delay, time.Duration(0))
		}

		shouldRetry, delay := eb.ShouldRetry(3, errors.New("test"))
		assert.False(t, shouldRetry)
		assert.Equal(t, time.Duration(0), delay)
	})

	t.Run("ShouldRetry refuses permanent errors", func(t *testing.T) {
		eb := NewExponentialBackoff(time.Millisecond, time.Second, 2.0, 3)
		shouldRetry, _ := eb.ShouldRetry(0, Permanent(errors.New("nope")))
		assert.False(t, shouldRetry)
	})

	t.Run("NextDelay doubles from the initial interval", func(t *testing.T) {
		eb := NewExponentialBackoff(time.Second, 0, 2.0, 6)
		eb.Jitter = false

		expected := []time.Duration{
			1 * time.Second, 2 * time.Second, 4 * time.Second,
			8 * time.Second, 16 * time.Second, 32 * time.Second,
		}
		for attempt, want := range expected {
			assert.Equal(t, want, eb.NextDelay(attempt), "attempt %d", attempt)
		}
	})

	t.Run("NextDelay caps at max interval", func(t *testing.T) {
		eb := NewExponentialBackoff(100*time.Millisecond, time.Second, 2.0, 20)
		eb.Jitter = false
		assert.Equal(t, time.Second, eb.NextDelay(10))
	})

	t.Run("jitter stays within 15 percent", func(t *testing.T) {
		eb := NewExponentialBackoff(time.Second, 0, 2.0, 5)
		for i := 0; i < 50; i++ {
			d := eb.NextDelay(0)
			assert.GreaterOrEqual(t, d, 850*time.Millisecond)
			assert.LessOrEqual(t, d, 1150*time.Millisecond)
		}
	})
}

func TestFixedDelay(t *testing.T) {
	fd := NewFixedDelay(50*time.Millisecond, 2)

	shouldRetry, delay := fd.ShouldRetry(1, errors.New("x"))
	assert.True(t, shouldRetry)
	assert.Equal(t, 50*time.Millisecond, delay)

	shouldRetry, _ = fd.ShouldRetry(2, errors.New("x"))
	assert.False(t, shouldRetry)
	assert.Equal(t, 2, fd.MaxRetries())
}

func TestRetry(t *testing.T) {
	t.Run("succeeds without retry", func(t *testing.T) {
		var calls int32
		err := Retry(context.Background(), NewFixedDelay(time.Millisecond, 3), func() error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, int32(1), calls)
	})

	t.Run("retries until success", func(t *testing.T) {
		var calls int32
		err := Retry(context.Background(), NewFixedDelay(time.Millisecond, 5), func() error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return errors.New("transient")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, int32(3), calls)
	})

	t.Run("gives up after max retries plus one attempts", func(t *testing.T) {
		var calls int32
		cause := errors.New("always")
		err := Retry(context.Background(), NewFixedDelay(time.Millisecond, 6), func() error {
			atomic.AddInt32(&calls, 1)
			return cause
		})

		assert.Equal(t, int32(7), calls)
		var retryErr *RetryError
		require.ErrorAs(t, err, &retryErr)
		assert.Equal(t, 7, retryErr.Attempts)
		assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("stops immediately on permanent error", func(t *testing.T) {
		var calls int32
		err := Retry(context.Background(), NewFixedDelay(time.Millisecond, 6), func() error {
			atomic.AddInt32(&calls, 1)
			return Permanent(errors.New("fatal"))
		})

		assert.Equal(t, int32(1), calls)
		assert.ErrorIs(t, err, ErrNonRetryable)
		assert.NotErrorIs(t, err, ErrMaxRetriesExceeded)
	})

	t.Run("notify sees every retry with its delay", func(t *testing.T) {
		eb := NewExponentialBackoff(time.Millisecond, 0, 2.0, 3)
		eb.Jitter = false

		var delays []time.Duration
		_ = RetryNotify(context.Background(), eb, func() error {
			return errors.New("again")
		}, func(attempt int, err error, delay time.Duration) {
			delays = append(delays, delay)
		})

		assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}, delays)
	})

	t.Run("context cancellation aborts waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		err := Retry(ctx, NewFixedDelay(time.Hour, 3), func() error {
			return errors.New("slow")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(Permanent(errors.New("p"))))
	assert.True(t, IsRetryable(RetryableError{Err: errors.New("r"), Retryable: true}))
	assert.Nil(t, Permanent(nil))
}
