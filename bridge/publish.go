package bridge

import (
	"context"

	"github.com/glimte/proxybridge/contracts"
)

// Send publishes a {type, data} envelope on the outbound channel. It does not
// wait for the peer; the only error reported is the transport's.
func (b *Bridge) Send(ctx context.Context, messageType contracts.MessageType, data interface{}) error {
	envelope, err := contracts.NewEnvelope(messageType, data)
	if err != nil {
		return err
	}
	frame, err := envelope.Marshal()
	if err != nil {
		return err
	}

	if b.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.publishTimeout)
		defer cancel()
	}

	if err := b.out.Publish(ctx, b.channels.Outbound, frame); err != nil {
		return &PublishError{Channel: b.channels.Outbound, Type: messageType, Err: err}
	}
	return nil
}

// SendCmd publishes a "cmd" envelope
func (b *Bridge) SendCmd(ctx context.Context, data interface{}) error {
	return b.Send(ctx, contracts.MessageTypeCommand, data)
}

// SendReq publishes a "req" envelope
func (b *Bridge) SendReq(ctx context.Context, data interface{}) error {
	return b.Send(ctx, contracts.MessageTypeRequest, data)
}

// SendResult publishes a "result" envelope
func (b *Bridge) SendResult(ctx context.Context, data interface{}) error {
	return b.Send(ctx, contracts.MessageTypeResult, data)
}

// SendOutput publishes an "output" envelope
func (b *Bridge) SendOutput(ctx context.Context, data interface{}) error {
	return b.Send(ctx, contracts.MessageTypeOutput, data)
}
