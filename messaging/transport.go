package messaging

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTransportClosed is returned when using a closed transport
	ErrTransportClosed = errors.New("messaging: transport is closed")
	// ErrAlreadySubscribed is returned when subscribing twice to a channel on one transport
	ErrAlreadySubscribed = errors.New("messaging: already subscribed to channel")
)

// Message is a payload received on a channel
type Message struct {
	Channel    string
	Payload    []byte
	ReceivedAt time.Time
}

// MessageHandler processes messages delivered by a Subscriber
type MessageHandler interface {
	Handle(ctx context.Context, msg *Message)
}

// MessageHandlerFunc is a function adapter for MessageHandler
type MessageHandlerFunc func(ctx context.Context, msg *Message)

// Handle implements MessageHandler
func (f MessageHandlerFunc) Handle(ctx context.Context, msg *Message) {
	f(ctx, msg)
}

// Publisher publishes payloads to named channels
type Publisher interface {
	// Publish sends payload to every current subscriber of channel.
	// No acknowledgement from subscribers is awaited.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Close releases the underlying connection
	Close() error
}

// Subscriber delivers payloads published to named channels
type Subscriber interface {
	// Subscribe registers handler for channel. Delivery continues until Close.
	Subscribe(ctx context.Context, channel string, handler MessageHandler) error

	// Close stops all subscriptions and releases the underlying connection
	Close() error
}

// Transport provides both publisher and subscriber functionality over one connection
type Transport interface {
	Publisher
	Subscriber
}
