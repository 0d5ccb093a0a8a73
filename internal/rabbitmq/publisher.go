package rabbitmq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes frames to channel exchanges over a single AMQP channel
type Publisher struct {
	source         ChannelSource
	logger         *slog.Logger
	publishTimeout time.Duration
	maxRetries     int
	retryDelay     time.Duration

	mu       sync.Mutex
	ch       Channel
	declared map[string]bool
	closed   bool
}

// PublisherOption configures the publisher
type PublisherOption func(*Publisher)

// WithPublishTimeout sets the timeout applied when the caller's context has no deadline
func WithPublishTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.publishTimeout = timeout
	}
}

// WithPublishRetries sets how many times a publish is retried on a fresh channel
func WithPublishRetries(retries int, delay time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.maxRetries = retries
		p.retryDelay = delay
	}
}

// WithPublisherLogger sets the logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a new publisher
func NewPublisher(source ChannelSource, options ...PublisherOption) *Publisher {
	p := &Publisher{
		source:         source,
		logger:         slog.Default(),
		publishTimeout: 10 * time.Second,
		maxRetries:     2,
		retryDelay:     200 * time.Millisecond,
		declared:       make(map[string]bool),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Publish sends body to every queue bound to the exchange
func (p *Publisher) Publish(ctx context.Context, exchange string, body []byte) error {
	if exchange == "" {
		return ErrInvalidChannelKey
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && p.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.publishTimeout)
		defer cancel()
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         body,
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := p.publishOnce(ctx, exchange, msg)
		// A dropped connection is restored in the background; retrying here cannot help.
		if err != nil && (errors.Is(err, ErrNotConnected) || !IsRetryable(err)) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.retryDelay)),
		backoff.WithMaxTries(uint(p.maxRetries+1)),
	)
	if err != nil {
		return &PublishError{Exchange: exchange, Err: err, Timestamp: time.Now()}
	}
	return nil
}

func (p *Publisher) publishOnce(ctx context.Context, exchange string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPublisherClosed
	}

	ch, err := p.channel()
	if err != nil {
		return err
	}

	if !p.declared[exchange] {
		if err := DeclareExchange(ch, exchange); err != nil {
			p.resetChannel()
			return err
		}
		p.declared[exchange] = true
	}

	if err := ch.PublishWithContext(ctx, exchange, "", false, false, msg); err != nil {
		p.logger.Warn("publish failed, resetting channel", "exchange", exchange, "error", err)
		p.resetChannel()
		return err
	}
	return nil
}

// channel returns the open AMQP channel, reopening it after a failure
func (p *Publisher) channel() (Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	ch, err := p.source.Channel()
	if err != nil {
		return nil, err
	}
	p.ch = ch
	p.declared = make(map[string]bool)
	return ch, nil
}

func (p *Publisher) resetChannel() {
	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
}

// Close closes the publishing channel
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.ch != nil && !p.ch.IsClosed() {
		err := p.ch.Close()
		p.ch = nil
		return err
	}
	return nil
}
