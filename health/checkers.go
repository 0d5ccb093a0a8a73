package health

import (
	"context"
	"net"
	"time"
)

// Pinger is implemented by transports that can probe their broker
type Pinger interface {
	Ping(ctx context.Context) error
}

// TransportChecker reports whether a transport's broker is reachable
type TransportChecker struct {
	name   string
	pinger Pinger
}

// NewTransportChecker creates a checker named name for the given transport
func NewTransportChecker(name string, pinger Pinger) *TransportChecker {
	return &TransportChecker{name: name, pinger: pinger}
}

func (c *TransportChecker) Name() string {
	return c.name
}

func (c *TransportChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.name,
		Timestamp: start,
	}

	if err := c.pinger.Ping(ctx); err != nil {
		result.Status = StatusUnhealthy
		result.Message = "broker unreachable"
		result.Error = err.Error()
	} else {
		result.Status = StatusHealthy
		result.Message = "broker reachable"
	}

	result.Duration = time.Since(start)
	return result
}

// Listener is the view of the bridge the listener checker needs
type Listener interface {
	Addr() net.Addr
	PendingCount() int
}

// ListenerChecker reports whether the bridge accepts HTTP requests. A
// bridge that was never started is degraded rather than unhealthy so the
// check can run before Start.
type ListenerChecker struct {
	listener Listener
}

// NewListenerChecker creates a listener checker
func NewListenerChecker(listener Listener) *ListenerChecker {
	return &ListenerChecker{listener: listener}
}

func (c *ListenerChecker) Name() string {
	return "listener"
}

func (c *ListenerChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details: map[string]interface{}{
			"pending": c.listener.PendingCount(),
		},
	}

	if addr := c.listener.Addr(); addr != nil {
		result.Status = StatusHealthy
		result.Message = "listening"
		result.Details["addr"] = addr.String()
	} else {
		result.Status = StatusDegraded
		result.Message = "not listening"
	}

	result.Duration = time.Since(start)
	return result
}
