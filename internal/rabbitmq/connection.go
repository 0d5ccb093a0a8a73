package rabbitmq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel used by the publisher and consumer
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Cancel(consumer string, noWait bool) error
	IsClosed() bool
	Close() error
}

// ChannelSource opens AMQP channels on a live connection
type ChannelSource interface {
	Channel() (Channel, error)
}

// ConnectionStateListener receives connection state change notifications
type ConnectionStateListener interface {
	OnConnected()
	OnDisconnected(err error)
	OnReconnecting(attempt int)
}

// ConnectionManager manages the RabbitMQ connection with automatic reconnection
type ConnectionManager struct {
	url               string
	name              string
	conn              *amqp.Connection
	mu                sync.RWMutex
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	maxRetries        int
	dialTimeout       time.Duration
	heartbeat         time.Duration
	logger            *slog.Logger
	isConnected       bool
	closed            bool
	done              chan struct{}
	stateListeners    []ConnectionStateListener
	listenersMu       sync.RWMutex
}

// ConnectionOption configures the ConnectionManager
type ConnectionOption func(*ConnectionManager)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.logger = logger
	}
}

// WithConnectionName sets the client-provided connection name shown by the broker
func WithConnectionName(name string) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.name = name
	}
}

// WithReconnectDelay sets the initial and maximum reconnection delay
func WithReconnectDelay(initial, max time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.reconnectDelay = initial
		cm.maxReconnectDelay = max
	}
}

// WithMaxRetries sets the maximum number of reconnection attempts. Zero or less retries forever.
func WithMaxRetries(retries int) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.maxRetries = retries
	}
}

// WithDialTimeout bounds each connection attempt
func WithDialTimeout(timeout time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.dialTimeout = timeout
	}
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(url string, options ...ConnectionOption) *ConnectionManager {
	cm := &ConnectionManager{
		url:               url,
		name:              "proxybridge",
		reconnectDelay:    time.Second,
		maxReconnectDelay: 30 * time.Second,
		maxRetries:        -1,
		dialTimeout:       30 * time.Second,
		heartbeat:         10 * time.Second,
		logger:            slog.Default(),
		done:              make(chan struct{}),
	}

	for _, opt := range options {
		opt(cm)
	}

	return cm
}

// Connect establishes the initial connection and starts watching it
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		return ErrConnectionClosed
	}
	if cm.isConnected {
		return nil
	}

	conn, err := cm.dial(ctx)
	if err != nil {
		return &ConnectionError{
			Op:        "connect",
			URL:       SanitizeURL(cm.url),
			Err:       err,
			Timestamp: time.Now(),
			Attempts:  1,
		}
	}

	cm.conn = conn
	cm.isConnected = true
	cm.logger.Info("connected to RabbitMQ", "url", SanitizeURL(cm.url))

	cm.notifyConnected()
	go cm.watch(conn)
	return nil
}

// ConnectInBackground tries to connect once and, if that fails, keeps
// reconnecting in the background. It returns the first attempt's error.
func (cm *ConnectionManager) ConnectInBackground(ctx context.Context) error {
	err := cm.Connect(ctx)
	if err != nil && !errors.Is(err, ErrConnectionClosed) {
		cm.logger.Warn("RabbitMQ unreachable, connecting in background",
			"url", SanitizeURL(cm.url),
			"error", err)
		go cm.reconnect()
	}
	return err
}

func (cm *ConnectionManager) dial(ctx context.Context) (*amqp.Connection, error) {
	type result struct {
		conn *amqp.Connection
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		conn, err := amqp.DialConfig(cm.url, amqp.Config{
			Dial:       amqp.DefaultDial(cm.dialTimeout),
			Heartbeat:  cm.heartbeat,
			Properties: amqp.Table{"connection_name": cm.name},
		})
		resultCh <- result{conn: conn, err: err}
	}()

	select {
	case res := <-resultCh:
		return res.conn, res.err
	case <-ctx.Done():
		go func() {
			// Close a connection that completes after the caller gave up.
			if res := <-resultCh; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ErrConnectionTimeout
	}
}

// GetConnection returns the current connection
func (cm *ConnectionManager) GetConnection() (*amqp.Connection, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.isConnected || cm.conn == nil {
		return nil, ErrNotConnected
	}
	if cm.conn.IsClosed() {
		return nil, ErrConnectionClosed
	}
	return cm.conn, nil
}

// Channel implements ChannelSource
func (cm *ConnectionManager) Channel() (Channel, error) {
	conn, err := cm.GetConnection()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// IsConnected returns the connection status
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.isConnected
}

// Close closes the connection and stops reconnecting
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		return nil
	}
	cm.closed = true
	cm.isConnected = false
	close(cm.done)

	if cm.conn != nil {
		err := cm.conn.Close()
		cm.conn = nil
		if err != nil && err != amqp.ErrClosed {
			return err
		}
	}
	return nil
}

// watch waits for the connection to drop and starts reconnecting
func (cm *ConnectionManager) watch(conn *amqp.Connection) {
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	var amqpErr *amqp.Error
	select {
	case amqpErr = <-closed:
	case <-cm.done:
		return
	}

	cm.mu.Lock()
	if cm.closed {
		cm.mu.Unlock()
		return
	}
	cm.isConnected = false
	cm.conn = nil
	cm.mu.Unlock()

	var err error
	if amqpErr != nil {
		err = amqpErr
		cm.logger.Error("connection closed", "error", amqpErr)
	} else {
		err = ErrConnectionClosed
		cm.logger.Warn("connection closed without error")
	}
	cm.notifyDisconnected(err)

	cm.reconnect()
}

// reconnect dials with exponential backoff until it succeeds, the retry
// budget is spent, or the manager is closed
func (cm *ConnectionManager) reconnect() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-cm.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cm.reconnectDelay
	policy.MaxInterval = cm.maxReconnectDelay

	opts := []backoff.RetryOption{
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			cm.logger.Error("reconnection failed", "error", err, "nextRetryIn", next)
		}),
	}
	if cm.maxRetries > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(cm.maxRetries)))
	}

	attempt := 0
	startTime := time.Now()
	conn, err := backoff.Retry(ctx, func() (*amqp.Connection, error) {
		attempt++
		cm.logger.Info("attempting to reconnect", "attempt", attempt, "maxRetries", cm.maxRetries)
		cm.notifyReconnecting(attempt)

		dialCtx, dialCancel := context.WithTimeout(ctx, cm.dialTimeout)
		defer dialCancel()
		return cm.dial(dialCtx)
	}, opts...)

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		cm.logger.Error("max reconnection attempts reached",
			"attempts", attempt,
			"duration", time.Since(startTime))
		cm.notifyDisconnected(&ConnectionError{
			Op:        "reconnect",
			URL:       SanitizeURL(cm.url),
			Err:       ErrMaxRetriesExceeded,
			Timestamp: time.Now(),
			Attempts:  attempt,
		})
		return
	}

	cm.mu.Lock()
	if cm.closed {
		cm.mu.Unlock()
		conn.Close()
		return
	}
	cm.conn = conn
	cm.isConnected = true
	cm.mu.Unlock()

	cm.logger.Info("successfully reconnected to RabbitMQ",
		"attempts", attempt,
		"duration", time.Since(startTime))

	cm.notifyConnected()
	go cm.watch(conn)
}

// AddStateListener adds a connection state listener
func (cm *ConnectionManager) AddStateListener(listener ConnectionStateListener) {
	cm.listenersMu.Lock()
	defer cm.listenersMu.Unlock()
	cm.stateListeners = append(cm.stateListeners, listener)
}

// RemoveStateListener removes a connection state listener
func (cm *ConnectionManager) RemoveStateListener(listener ConnectionStateListener) {
	cm.listenersMu.Lock()
	defer cm.listenersMu.Unlock()

	for i, l := range cm.stateListeners {
		if l == listener {
			cm.stateListeners = append(cm.stateListeners[:i], cm.stateListeners[i+1:]...)
			break
		}
	}
}

func (cm *ConnectionManager) notifyConnected() {
	cm.listenersMu.RLock()
	defer cm.listenersMu.RUnlock()

	for _, listener := range cm.stateListeners {
		go listener.OnConnected()
	}
}

func (cm *ConnectionManager) notifyDisconnected(err error) {
	cm.listenersMu.RLock()
	defer cm.listenersMu.RUnlock()

	for _, listener := range cm.stateListeners {
		go listener.OnDisconnected(err)
	}
}

func (cm *ConnectionManager) notifyReconnecting(attempt int) {
	cm.listenersMu.RLock()
	defer cm.listenersMu.RUnlock()

	for _, listener := range cm.stateListeners {
		go listener.OnReconnecting(attempt)
	}
}
