// Package redis implements the pub/sub transport on Redis PUBLISH and SUBSCRIBE.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/proxybridge/messaging"
	"github.com/redis/go-redis/v9"
)

// Transport implements messaging.Transport for Redis.
// Every Transport owns its own client, so publishing and subscribing
// through two transports uses two connections.
type Transport struct {
	client *redis.Client
	logger *slog.Logger
	lazy   bool

	mu     sync.Mutex
	subs   map[string]*redis.PubSub
	closed bool
	wg     sync.WaitGroup
}

// TransportConfig holds configuration for the transport
type TransportConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	Logger      *slog.Logger
	LazyConnect bool
}

// TransportOption configures the transport
type TransportOption func(*TransportConfig)

// WithAddr sets the Redis address
func WithAddr(addr string) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.Addr = addr
	}
}

// WithPassword sets the Redis password
func WithPassword(password string) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.Password = password
	}
}

// WithDB selects the Redis database
func WithDB(db int) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.DB = db
	}
}

// WithDialTimeout bounds connection attempts
func WithDialTimeout(timeout time.Duration) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.DialTimeout = timeout
	}
}

// WithLazyConnect returns a transport even when redis is unreachable; the
// client connects on first use and subscriptions are restored by go-redis
func WithLazyConnect(lazy bool) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.LazyConnect = lazy
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.Logger = logger
	}
}

// NewTransport creates a transport and verifies the server is reachable
func NewTransport(ctx context.Context, options ...TransportOption) (*Transport, error) {
	cfg := &TransportConfig{
		Addr:        "localhost:6379",
		DialTimeout: 5 * time.Second,
		Logger:      slog.Default(),
	}
	for _, opt := range options {
		opt(cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		if !cfg.LazyConnect {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
		}
		cfg.Logger.Warn("redis unreachable, connecting on first use", "addr", cfg.Addr, "error", err)
	} else {
		cfg.Logger.Debug("connected to redis", "addr", cfg.Addr, "db", cfg.DB)
	}

	t := NewTransportFromClient(client, cfg.Logger)
	t.lazy = cfg.LazyConnect
	return t, nil
}

// NewTransportFromClient wraps an existing client. The transport closes it.
func NewTransportFromClient(client *redis.Client, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		client: client,
		logger: logger,
		subs:   make(map[string]*redis.PubSub),
	}
}

// Publish implements messaging.Publisher
func (t *Transport) Publish(ctx context.Context, channel string, payload []byte) error {
	if t.isClosed() {
		return messaging.ErrTransportClosed
	}

	receivers, err := t.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	if receivers == 0 {
		t.logger.Debug("published with no subscribers", "channel", channel)
	}
	return nil
}

// Subscribe implements messaging.Subscriber. It returns once the server has
// confirmed the subscription; messages are handled on a dedicated goroutine.
func (t *Transport) Subscribe(ctx context.Context, channel string, handler messaging.MessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return messaging.ErrTransportClosed
	}
	if _, exists := t.subs[channel]; exists {
		return messaging.ErrAlreadySubscribed
	}

	pubsub := t.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		if !t.lazy {
			pubsub.Close()
			return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
		}
		// The pubsub remembers the channel and subscribes again when it reconnects.
		t.logger.Warn("subscription pending until redis is reachable", "channel", channel, "error", err)
	}
	t.subs[channel] = pubsub

	t.wg.Add(1)
	go t.receive(channel, pubsub.Channel(), handler)

	t.logger.Info("subscribed to channel", "channel", channel)
	return nil
}

func (t *Transport) receive(channel string, messages <-chan *redis.Message, handler messaging.MessageHandler) {
	defer t.wg.Done()

	ctx := context.Background()
	for msg := range messages {
		messaging.Dispatch(ctx, t.logger, handler, &messaging.Message{
			Channel:    msg.Channel,
			Payload:    []byte(msg.Payload),
			ReceivedAt: time.Now(),
		})
	}
	t.logger.Debug("subscription ended", "channel", channel)
}

// Close implements messaging.Publisher and messaging.Subscriber
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	subs := t.subs
	t.subs = make(map[string]*redis.PubSub)
	t.mu.Unlock()

	var errs []error
	for channel, pubsub := range subs {
		if err := pubsub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close subscription to %s: %w", channel, err))
		}
	}
	t.wg.Wait()

	if err := t.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Ping checks that the server answers
func (t *Transport) Ping(ctx context.Context) error {
	if t.isClosed() {
		return messaging.ErrTransportClosed
	}
	return t.client.Ping(ctx).Err()
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
