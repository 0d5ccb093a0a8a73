// Package messaging defines the publish/subscribe transport abstraction used by the proxy bridge.
//
// A transport moves opaque payloads over named channels:
//   - Publisher: fire-and-forget publishing to a channel
//   - Subscriber: delivery of every payload published to a channel to a MessageHandler
//   - Transport: both, owned by one broker connection
//
// The bridge holds two independent connections, one per direction, so a failure
// of one never blocks the other. Implementations live under transports/ (Redis and
// RabbitMQ); MemoryBroker is an in-process implementation for tests and embedding.
//
// Example usage:
//
//	broker := messaging.NewMemoryBroker()
//	sub := broker.Transport()
//	err := sub.Subscribe(ctx, "replies", messaging.MessageHandlerFunc(
//		func(ctx context.Context, msg *messaging.Message) {
//			fmt.Println(string(msg.Payload))
//		}))
//
//	pub := broker.Transport()
//	err = pub.Publish(ctx, "replies", []byte(`{"reqId":0}`))
package messaging
