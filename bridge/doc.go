// Package bridge exposes an HTTP endpoint whose requests are answered by a peer over pub/sub.
//
// The bridge turns fire-and-forget publish/subscribe messaging into per-caller
// HTTP request/response semantics. Every inbound HTTP request is tagged with a
// monotonically increasing id, recorded in a pending table, and published as a
// "req" envelope on the outbound channel. The peer answers on the inbound channel
// with a reply carrying the same id; the bridge looks the id up, writes the
// reply to the HTTP connection that is still waiting, and forgets the entry.
//
// Key features:
//   - Correlation by id, never by arrival order: replies may come back in any order
//   - Body buffering only for form, JSON and whitelisted octet-stream uploads
//   - Per-request error isolation: a failure answers that caller with a 500
//   - Listener bind retry with exponential backoff while the address is in use
//   - Generic publish primitive for cmd, req, result and output envelopes
//
// Basic usage:
//
//	b, err := bridge.New(sessionID, "localhost:9000", inTransport, outTransport,
//	    bridge.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := b.Start(ctx); err != nil {
//	    return err // the address stayed in use or could not be bound
//	}
//	defer b.Stop()
//
//	b.SendCmd(ctx, map[string]string{"command": "done"})
//
// Requests the peer never answers stay open until the client goes away, a reply
// timeout (WithReplyTimeout) fires, or the bridge is stopped.
package bridge
