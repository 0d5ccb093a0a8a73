// Package rabbitmq provides the RabbitMQ plumbing behind the AMQP pub/sub transport.
//
// This package includes:
//   - ConnectionManager: Manages the RabbitMQ connection with automatic reconnection
//   - Publisher: Publishes frames to the fanout exchange named after a channel
//   - Consumer: Consumes a channel through an exclusive, auto-deleted queue
//   - Topology: Declares the exchange, queue and binding behind one channel
//
// A pub/sub channel maps to one non-durable fanout exchange. Every subscriber
// binds its own server-named queue, so a frame published while nobody listens
// is dropped, exactly like a Redis PUBLISH.
package rabbitmq
