package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// DeclareExchange declares the fanout exchange carrying a pub/sub channel.
// It is transient and survives the absence of subscribers, so publishers can
// declare it before anyone listens.
func DeclareExchange(ch Channel, name string) error {
	if name == "" {
		return ErrInvalidChannelKey
	}
	if err := ch.ExchangeDeclare(
		name,
		amqp.ExchangeFanout,
		false, // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return &TopologyError{Component: "exchange", Name: name, Err: err}
	}
	return nil
}

// DeclareSubscription declares the exchange for a channel and binds a fresh
// server-named queue to it. The queue is exclusive to the connection and
// deleted with its consumer.
func DeclareSubscription(ch Channel, exchange string) (string, error) {
	if err := DeclareExchange(ch, exchange); err != nil {
		return "", err
	}

	queue, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return "", &TopologyError{Component: "queue", Name: exchange, Err: err}
	}

	if err := ch.QueueBind(queue.Name, "", exchange, false, nil); err != nil {
		return "", &TopologyError{Component: "binding", Name: queue.Name + "->" + exchange, Err: err}
	}
	return queue.Name, nil
}
