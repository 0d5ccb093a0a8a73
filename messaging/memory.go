package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryBroker is an in-process pub/sub broker. Every transport obtained from it
// behaves like a separate connection to the same broker.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string][]*memorySubscription
	logger *slog.Logger
}

type memorySubscription struct {
	owner   *MemoryTransport
	handler MessageHandler
}

// NewMemoryBroker creates an empty in-process broker
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs:   make(map[string][]*memorySubscription),
		logger: slog.Default(),
	}
}

// Transport returns a new connection to the broker
func (b *MemoryBroker) Transport() *MemoryTransport {
	return &MemoryTransport{broker: b}
}

// SubscriberCount returns the number of live subscriptions on channel
func (b *MemoryBroker) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

func (b *MemoryBroker) publish(ctx context.Context, channel string, payload []byte) {
	b.mu.RLock()
	subs := append([]*memorySubscription(nil), b.subs[channel]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		msg := &Message{
			Channel:    channel,
			Payload:    append([]byte(nil), payload...),
			ReceivedAt: time.Now(),
		}
		// Deliver asynchronously like a real broker; publishers never run handlers inline.
		go Dispatch(context.WithoutCancel(ctx), b.logger, sub.handler, msg)
	}
}

func (b *MemoryBroker) subscribe(channel string, sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[channel] = append(b.subs[channel], sub)
}

func (b *MemoryBroker) drop(owner *MemoryTransport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for channel, subs := range b.subs {
		kept := subs[:0]
		for _, sub := range subs {
			if sub.owner != owner {
				kept = append(kept, sub)
			}
		}
		if len(kept) == 0 {
			delete(b.subs, channel)
		} else {
			b.subs[channel] = kept
		}
	}
}

// MemoryTransport is one connection to a MemoryBroker
type MemoryTransport struct {
	broker   *MemoryBroker
	mu       sync.Mutex
	closed   bool
	channels map[string]bool
}

// Publish implements Publisher
func (t *MemoryTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}

	t.broker.publish(ctx, channel, payload)
	return nil
}

// Subscribe implements Subscriber
func (t *MemoryTransport) Subscribe(ctx context.Context, channel string, handler MessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	if t.channels == nil {
		t.channels = make(map[string]bool)
	}
	if t.channels[channel] {
		return ErrAlreadySubscribed
	}
	t.channels[channel] = true

	t.broker.subscribe(channel, &memorySubscription{owner: t, handler: handler})
	return nil
}

// Close implements Publisher and Subscriber
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.broker.drop(t)
	return nil
}

// Ping reports ErrTransportClosed after Close
func (t *MemoryTransport) Ping(ctx context.Context) error {
	if t.IsClosed() {
		return ErrTransportClosed
	}
	return nil
}

// IsClosed reports whether Close has been called
func (t *MemoryTransport) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
