package bridge

import (
	"context"
	"errors"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/glimte/proxybridge/internal/reliability"
	"github.com/glimte/proxybridge/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addrInUseError() error {
	return &net.OpError{Op: "listen", Net: "tcp", Err: os.NewSyscallError("bind", syscall.EADDRINUSE)}
}

func fastBindPolicy() reliability.RetryPolicy {
	policy := reliability.NewExponentialBackoff(time.Millisecond, 0, 2.0, maxBindRetries)
	policy.Jitter = false
	return policy
}

func newBindTestBridge(t *testing.T, addr string, policy reliability.RetryPolicy) *Bridge {
	t.Helper()
	broker := messaging.NewMemoryBroker()
	b, err := New("bind", addr, broker.Transport(), broker.Transport(),
		WithLogger(discardLogger()),
		WithBindRetryPolicy(policy),
	)
	require.NoError(t, err)
	return b
}

func TestDefaultBindRetryPolicy(t *testing.T) {
	policy := DefaultBindRetryPolicy()
	inUse := addrInUseError()

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
	}
	for attempt, want := range expected {
		retry, delay := policy.ShouldRetry(attempt, inUse)
		assert.True(t, retry, "attempt %d", attempt)
		assert.Equal(t, want, delay, "attempt %d", attempt)
	}

	retry, _ := policy.ShouldRetry(maxBindRetries, inUse)
	assert.False(t, retry, "seventh failure is fatal")

	retry, _ = policy.ShouldRetry(0, reliability.Permanent(errors.New("permission denied")))
	assert.False(t, retry)
}

func TestBind(t *testing.T) {
	t.Run("retries while the address is in use", func(t *testing.T) {
		b := newBindTestBridge(t, "127.0.0.1:0", fastBindPolicy())
		var calls atomic.Int32
		b.listen = func(network, address string) (net.Listener, error) {
			if calls.Add(1) < 4 {
				return nil, addrInUseError()
			}
			return net.Listen(network, address)
		}

		ln, err := b.bind(context.Background())
		require.NoError(t, err)
		defer ln.Close()
		assert.Equal(t, int32(4), calls.Load())
	})

	t.Run("gives up on the seventh failure", func(t *testing.T) {
		b := newBindTestBridge(t, "127.0.0.1:9", fastBindPolicy())
		var calls atomic.Int32
		b.listen = func(network, address string) (net.Listener, error) {
			calls.Add(1)
			return nil, addrInUseError()
		}

		_, err := b.bind(context.Background())
		var bindErr *BindError
		require.ErrorAs(t, err, &bindErr)
		assert.Equal(t, 7, bindErr.Attempts)
		assert.True(t, bindErr.AddrInUse)
		assert.Equal(t, "127.0.0.1:9", bindErr.Addr)
		assert.ErrorIs(t, err, syscall.EADDRINUSE)
		assert.Equal(t, int32(7), calls.Load())
	})

	t.Run("any other listen error is fatal at once", func(t *testing.T) {
		b := newBindTestBridge(t, "127.0.0.1:80", fastBindPolicy())
		var calls atomic.Int32
		b.listen = func(network, address string) (net.Listener, error) {
			calls.Add(1)
			return nil, &net.OpError{Op: "listen", Net: "tcp", Err: os.NewSyscallError("bind", syscall.EACCES)}
		}

		_, err := b.bind(context.Background())
		var bindErr *BindError
		require.ErrorAs(t, err, &bindErr)
		assert.Equal(t, 1, bindErr.Attempts)
		assert.False(t, bindErr.AddrInUse)
		assert.ErrorIs(t, err, syscall.EACCES)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("context cancellation stops retrying", func(t *testing.T) {
		slow := reliability.NewExponentialBackoff(time.Hour, 0, 2.0, maxBindRetries)
		slow.Jitter = false
		b := newBindTestBridge(t, "127.0.0.1:9", slow)
		b.listen = func(network, address string) (net.Listener, error) {
			return nil, addrInUseError()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := b.bind(ctx)
		var bindErr *BindError
		require.ErrorAs(t, err, &bindErr)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("Start fails when a real port stays occupied", func(t *testing.T) {
		occupied, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer occupied.Close()

		b := newBindTestBridge(t, occupied.Addr().String(), fastBindPolicy())
		err = b.Start(context.Background())

		var bindErr *BindError
		require.ErrorAs(t, err, &bindErr)
		assert.True(t, bindErr.AddrInUse)
		assert.Equal(t, 7, bindErr.Attempts)
		assert.Nil(t, b.Addr())
	})

	t.Run("Stop interrupts a bind in progress", func(t *testing.T) {
		slow := reliability.NewExponentialBackoff(time.Hour, 0, 2.0, maxBindRetries)
		slow.Jitter = false
		b := newBindTestBridge(t, "127.0.0.1:9", slow)
		b.listen = func(network, address string) (net.Listener, error) {
			return nil, addrInUseError()
		}

		errCh := make(chan error, 1)
		go func() { errCh <- b.Start(context.Background()) }()

		time.Sleep(20 * time.Millisecond)
		require.NoError(t, b.Stop())

		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("Start did not return after Stop")
		}
	})
}
