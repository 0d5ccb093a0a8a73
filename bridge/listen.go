package bridge

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/glimte/proxybridge/internal/reliability"
)

const (
	// bindRetryBase is doubled once per retry: 1s, 2s, 4s, 8s, 16s, 32s
	bindRetryBase = 500 * time.Millisecond
	// maxBindRetries is the number of retries after the first failed bind
	maxBindRetries = 6
)

// DefaultBindRetryPolicy retries an in-use address six times, waiting
// 500ms × 2^n before retry n, and gives up on the seventh failure
func DefaultBindRetryPolicy() reliability.RetryPolicy {
	policy := reliability.NewExponentialBackoff(2*bindRetryBase, 0, 2.0, maxBindRetries)
	policy.Jitter = false
	return policy
}

func (b *Bridge) bind(ctx context.Context) (net.Listener, error) {
	var ln net.Listener
	err := reliability.RetryNotify(ctx, b.bindPolicy, func() error {
		l, err := b.listen("tcp", b.addr)
		if err != nil {
			if isAddrInUse(err) {
				return err
			}
			return reliability.Permanent(err)
		}
		ln = l
		return nil
	}, func(attempt int, err error, delay time.Duration) {
		b.logger.Warn("listen address in use, retrying",
			"addr", b.addr,
			"attempt", attempt+1,
			"retryIn", delay,
		)
	})
	if err == nil {
		return ln, nil
	}

	bindErr := &BindError{Addr: b.addr, Err: err}
	var retryErr *reliability.RetryError
	if errors.As(err, &retryErr) {
		bindErr.Attempts = retryErr.Attempts
		bindErr.AddrInUse = isAddrInUse(retryErr.LastError)
		bindErr.Err = retryErr.LastError
	}
	return nil, bindErr
}

func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}
