package rabbitmq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DeliveryHandler processes one delivery. Deliveries are auto-acknowledged.
type DeliveryHandler func(ctx context.Context, delivery amqp.Delivery)

// Consumer consumes channel exchanges, one AMQP channel per subscription
type Consumer struct {
	source    ChannelSource
	tagPrefix string
	logger    *slog.Logger

	mu     sync.Mutex
	subs   map[string]*subscription
	closed bool
}

type subscription struct {
	exchange string
	handler  DeliveryHandler
	queue    string
	tag      string
	ch       Channel
	cancel   context.CancelFunc
	done     chan struct{}
}

// ConsumerOption configures the consumer
type ConsumerOption func(*Consumer)

// WithConsumerTagPrefix sets the prefix of generated consumer tags
func WithConsumerTagPrefix(prefix string) ConsumerOption {
	return func(c *Consumer) {
		c.tagPrefix = prefix
	}
}

// WithConsumerLogger sets the logger
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// NewConsumer creates a new consumer
func NewConsumer(source ChannelSource, options ...ConsumerOption) *Consumer {
	c := &Consumer{
		source:    source,
		tagPrefix: "proxybridge",
		logger:    slog.Default(),
		subs:      make(map[string]*subscription),
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// Subscribe starts consuming the exchange. The handler runs on a single
// goroutine per subscription, in delivery order. While disconnected the
// subscription is recorded and started by the next Resubscribe.
func (c *Consumer) Subscribe(ctx context.Context, exchange string, handler DeliveryHandler) error {
	if exchange == "" {
		return ErrInvalidChannelKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConsumerClosed
	}
	if _, exists := c.subs[exchange]; exists {
		return ErrAlreadyConsuming
	}

	sub := &subscription{exchange: exchange, handler: handler}
	if err := c.start(sub); err != nil {
		if !errors.Is(err, ErrNotConnected) {
			return err
		}
		// Started by Resubscribe once the connection is up.
		c.logger.Warn("not connected, subscription deferred", "exchange", exchange)
	}
	c.subs[exchange] = sub
	return nil
}

func (c *Consumer) start(sub *subscription) error {
	tag := c.tagPrefix + "-" + uuid.NewString()

	ch, err := c.source.Channel()
	if err != nil {
		return &ConsumerError{Queue: sub.exchange, ConsumerTag: tag, Op: "open channel", Err: err, Timestamp: time.Now()}
	}

	queue, err := DeclareSubscription(ch, sub.exchange)
	if err != nil {
		ch.Close()
		return &ConsumerError{Queue: sub.exchange, ConsumerTag: tag, Op: "declare", Err: err, Timestamp: time.Now()}
	}

	deliveries, err := ch.Consume(
		queue,
		tag,
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return &ConsumerError{Queue: queue, ConsumerTag: tag, Op: "consume", Err: err, Timestamp: time.Now()}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub.queue = queue
	sub.tag = tag
	sub.ch = ch
	sub.cancel = cancel
	sub.done = make(chan struct{})

	go c.processDeliveries(ctx, sub, deliveries)

	c.logger.Info("subscribed to channel",
		"exchange", sub.exchange,
		"queue", queue,
		"consumerTag", tag,
	)
	return nil
}

func (c *Consumer) processDeliveries(ctx context.Context, sub *subscription, deliveries <-chan amqp.Delivery) {
	defer close(sub.done)

	for {
		select {
		case <-ctx.Done():
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("delivery channel closed", "exchange", sub.exchange, "queue", sub.queue)
				return
			}
			sub.handler(ctx, delivery)
		}
	}
}

func (s *subscription) stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.ch != nil && !s.ch.IsClosed() {
		s.ch.Cancel(s.tag, false)
		s.ch.Close()
	}
	s.ch = nil
}

// Resubscribe re-establishes every subscription on the current connection.
// It is called after a reconnect, when the old queues are gone.
func (c *Consumer) Resubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConsumerClosed
	}

	var errs []error
	for _, sub := range c.subs {
		sub.stop()
		if err := c.start(sub); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Unsubscribe stops consuming the exchange
func (c *Consumer) Unsubscribe(exchange string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sub, exists := c.subs[exchange]; exists {
		sub.stop()
		delete(c.subs, exchange)
	}
}

// Subscriptions returns the consumed exchanges
func (c *Consumer) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	exchanges := make([]string, 0, len(c.subs))
	for exchange := range c.subs {
		exchanges = append(exchanges, exchange)
	}
	return exchanges
}

// Close stops every subscription
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	for exchange, sub := range c.subs {
		sub.stop()
		delete(c.subs, exchange)
	}
	return nil
}
