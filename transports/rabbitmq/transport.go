package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/proxybridge/internal/rabbitmq"
	"github.com/glimte/proxybridge/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Transport implements messaging.Transport over RabbitMQ fanout exchanges.
// Each pub/sub channel name is used as an exchange name.
type Transport struct {
	manager   *rabbitmq.ConnectionManager
	publisher *rabbitmq.Publisher
	consumer  *rabbitmq.Consumer
	logger    *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// TransportConfig holds configuration for the transport
type TransportConfig struct {
	Logger            *slog.Logger
	ConnectionOptions []rabbitmq.ConnectionOption
	PublisherOptions  []rabbitmq.PublisherOption
	ConsumerOptions   []rabbitmq.ConsumerOption
	LazyConnect       bool
}

// TransportOption configures the transport
type TransportOption func(*TransportConfig)

// WithLogger sets the logger used by the transport and its connection
func WithLogger(logger *slog.Logger) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.Logger = logger
	}
}

// WithLazyConnect returns a transport even when the first connection attempt
// fails; the connection is then established in the background
func WithLazyConnect(lazy bool) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.LazyConnect = lazy
	}
}

// WithConnectionOptions sets connection options
func WithConnectionOptions(opts ...rabbitmq.ConnectionOption) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.ConnectionOptions = append(cfg.ConnectionOptions, opts...)
	}
}

// WithPublisherOptions sets publisher options
func WithPublisherOptions(opts ...rabbitmq.PublisherOption) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.PublisherOptions = append(cfg.PublisherOptions, opts...)
	}
}

// WithConsumerOptions sets consumer options
func WithConsumerOptions(opts ...rabbitmq.ConsumerOption) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.ConsumerOptions = append(cfg.ConsumerOptions, opts...)
	}
}

// NewTransport connects to RabbitMQ and returns a transport. The connection is
// re-established in the background and subscriptions are restored on reconnect.
func NewTransport(ctx context.Context, connectionString string, options ...TransportOption) (*Transport, error) {
	cfg := newConfig(options)

	connOpts := append([]rabbitmq.ConnectionOption{rabbitmq.WithLogger(cfg.Logger)}, cfg.ConnectionOptions...)
	manager := rabbitmq.NewConnectionManager(connectionString, connOpts...)

	t := newTransport(manager, cfg)
	t.manager = manager

	if cfg.LazyConnect {
		// Registered first so the background connect restores subscriptions.
		manager.AddStateListener(t)
		manager.ConnectInBackground(ctx)
		return t, nil
	}

	if err := manager.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	manager.AddStateListener(t)
	return t, nil
}

func newConfig(options []TransportOption) *TransportConfig {
	cfg := &TransportConfig{Logger: slog.Default()}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

func newTransport(source rabbitmq.ChannelSource, cfg *TransportConfig) *Transport {
	pubOpts := append([]rabbitmq.PublisherOption{rabbitmq.WithPublisherLogger(cfg.Logger)}, cfg.PublisherOptions...)
	consOpts := append([]rabbitmq.ConsumerOption{rabbitmq.WithConsumerLogger(cfg.Logger)}, cfg.ConsumerOptions...)

	return &Transport{
		publisher: rabbitmq.NewPublisher(source, pubOpts...),
		consumer:  rabbitmq.NewConsumer(source, consOpts...),
		logger:    cfg.Logger,
	}
}

// Publish implements messaging.Publisher
func (t *Transport) Publish(ctx context.Context, channel string, payload []byte) error {
	err := t.publisher.Publish(ctx, channel, payload)
	if errors.Is(err, rabbitmq.ErrPublisherClosed) {
		return messaging.ErrTransportClosed
	}
	return err
}

// Subscribe implements messaging.Subscriber
func (t *Transport) Subscribe(ctx context.Context, channel string, handler messaging.MessageHandler) error {
	err := t.consumer.Subscribe(ctx, channel, func(ctx context.Context, delivery amqp.Delivery) {
		receivedAt := delivery.Timestamp
		if receivedAt.IsZero() {
			receivedAt = time.Now()
		}
		messaging.Dispatch(ctx, t.logger, handler, &messaging.Message{
			Channel:    channel,
			Payload:    delivery.Body,
			ReceivedAt: receivedAt,
		})
	})

	switch {
	case errors.Is(err, rabbitmq.ErrConsumerClosed):
		return messaging.ErrTransportClosed
	case errors.Is(err, rabbitmq.ErrAlreadyConsuming):
		return messaging.ErrAlreadySubscribed
	}
	return err
}

// Close implements messaging.Publisher and messaging.Subscriber
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		var errs []error
		if err := t.consumer.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := t.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
		if t.manager != nil {
			if err := t.manager.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		t.closeErr = errors.Join(errs...)
	})
	return t.closeErr
}

// IsConnected returns connection status
func (t *Transport) IsConnected() bool {
	if t.manager == nil {
		return true
	}
	return t.manager.IsConnected()
}

// Ping reports rabbitmq.ErrNotConnected while the connection is down
func (t *Transport) Ping(ctx context.Context) error {
	if !t.IsConnected() {
		return rabbitmq.ErrNotConnected
	}
	return nil
}

// OnConnected implements rabbitmq.ConnectionStateListener
func (t *Transport) OnConnected() {
	if err := t.consumer.Resubscribe(); err != nil {
		if errors.Is(err, rabbitmq.ErrConsumerClosed) {
			return
		}
		t.logger.Error("failed to restore subscriptions after reconnect", "error", err)
		return
	}
	t.logger.Info("subscriptions restored after reconnect", "channels", t.consumer.Subscriptions())
}

// OnDisconnected implements rabbitmq.ConnectionStateListener
func (t *Transport) OnDisconnected(err error) {
	t.logger.Warn("lost connection to RabbitMQ", "error", err)
}

// OnReconnecting implements rabbitmq.ConnectionStateListener
func (t *Transport) OnReconnecting(attempt int) {
	t.logger.Debug("reconnecting to RabbitMQ", "attempt", attempt)
}
