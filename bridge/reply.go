package bridge

import (
	"context"

	"github.com/glimte/proxybridge/contracts"
	"github.com/glimte/proxybridge/messaging"
)

// handleReply completes the pending request named by a peer reply.
// Malformed replies and replies for unknown or already answered ids are dropped.
func (b *Bridge) handleReply(ctx context.Context, msg *messaging.Message) {
	reply, err := contracts.DecodeReply(msg.Payload)
	if err != nil {
		b.logger.Warn("dropping malformed reply",
			"channel", msg.Channel,
			"error", err,
		)
		return
	}

	entry := b.pending.take(reply.ReqID)
	if entry == nil {
		b.logger.Warn("dropping reply for unknown request",
			"reqId", reply.ReqID,
			"status", reply.StatusCode,
		)
		return
	}

	b.logger.Debug("reply received",
		"reqId", reply.ReqID,
		"status", reply.StatusCode,
		"waited", msg.ReceivedAt.Sub(entry.createdAt),
	)
	entry.replies <- reply
}
