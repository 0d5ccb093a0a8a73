package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// fakeBroker is an in-memory stand-in for a RabbitMQ server with fanout exchanges
type fakeBroker struct {
	mu          sync.Mutex
	exchanges   map[string]string
	bindings    map[string][]string
	queues      map[string]chan amqp.Delivery
	nextQueue   int
	opened      int
	channels    []*fakeChannel
	openErr     error
	declareErr  error
	publishErrs []error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		exchanges: make(map[string]string),
		bindings:  make(map[string][]string),
		queues:    make(map[string]chan amqp.Delivery),
	}
}

// Channel implements ChannelSource
func (b *fakeBroker) Channel() (Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.opened++
	if b.openErr != nil {
		return nil, b.openErr
	}
	ch := &fakeChannel{broker: b, consumers: make(map[string]string)}
	b.channels = append(b.channels, ch)
	return ch, nil
}

func (b *fakeBroker) openedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened
}

// dropAll closes every channel, as a lost connection would
func (b *fakeBroker) dropAll() {
	b.mu.Lock()
	channels := b.channels
	b.channels = nil
	b.mu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}
}

func (b *fakeBroker) boundQueues(exchange string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bindings[exchange])
}

func (b *fakeBroker) deleteQueue(queue string) {
	if q, exists := b.queues[queue]; exists {
		close(q)
		delete(b.queues, queue)
	}
	for exchange, queues := range b.bindings {
		kept := queues[:0]
		for _, name := range queues {
			if name != queue {
				kept = append(kept, name)
			}
		}
		b.bindings[exchange] = kept
	}
}

type fakeChannel struct {
	broker    *fakeBroker
	mu        sync.Mutex
	closed    bool
	consumers map[string]string
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	if c.broker.declareErr != nil {
		return c.broker.declareErr
	}
	if existing, ok := c.broker.exchanges[name]; ok && existing != kind {
		return fmt.Errorf("PRECONDITION_FAILED - inequivalent arg 'type' for exchange '%s'", name)
	}
	c.broker.exchanges[name] = kind
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	if name == "" {
		c.broker.nextQueue++
		name = fmt.Sprintf("amq.gen-%d", c.broker.nextQueue)
	}
	c.broker.queues[name] = make(chan amqp.Delivery, 64)
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	if _, ok := c.broker.exchanges[exchange]; !ok {
		return fmt.Errorf("NOT_FOUND - no exchange '%s'", exchange)
	}
	c.broker.bindings[exchange] = append(c.broker.bindings[exchange], name)
	return nil
}

func (c *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	q, ok := c.broker.queues[queue]
	if !ok {
		return nil, fmt.Errorf("NOT_FOUND - no queue '%s'", queue)
	}
	c.mu.Lock()
	c.consumers[consumer] = queue
	c.mu.Unlock()
	return q, nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if c.IsClosed() {
		return amqp.ErrClosed
	}

	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	if len(c.broker.publishErrs) > 0 {
		err := c.broker.publishErrs[0]
		c.broker.publishErrs = c.broker.publishErrs[1:]
		return err
	}
	if _, ok := c.broker.exchanges[exchange]; !ok {
		return fmt.Errorf("NOT_FOUND - no exchange '%s'", exchange)
	}

	for _, queue := range c.broker.bindings[exchange] {
		select {
		case c.broker.queues[queue] <- amqp.Delivery{
			Exchange:    exchange,
			ContentType: msg.ContentType,
			MessageId:   msg.MessageId,
			Timestamp:   msg.Timestamp,
			Body:        append([]byte(nil), msg.Body...),
		}:
		default:
		}
	}
	return nil
}

func (c *fakeChannel) Cancel(consumer string, noWait bool) error {
	c.mu.Lock()
	queue, ok := c.consumers[consumer]
	delete(c.consumers, consumer)
	c.mu.Unlock()
	if !ok {
		return errors.New("unknown consumer")
	}

	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	c.broker.deleteQueue(queue)
	return nil
}

func (c *fakeChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return amqp.ErrClosed
	}
	c.closed = true
	consumers := c.consumers
	c.consumers = make(map[string]string)
	c.mu.Unlock()

	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	for _, queue := range consumers {
		c.broker.deleteQueue(queue)
	}
	return nil
}
