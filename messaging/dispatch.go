package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Dispatch invokes handler for msg, recovering from panics so one bad message
// cannot stop a subscription loop. It reports whether the handler completed.
func Dispatch(ctx context.Context, logger *slog.Logger, handler MessageHandler, msg *Message) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if logger == nil {
				logger = slog.Default()
			}
			logger.Error("message handler panicked",
				"channel", msg.Channel,
				"error", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			ok = false
		}
	}()

	handler.Handle(ctx, msg)
	return true
}
