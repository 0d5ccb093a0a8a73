// Package contracts provides the wire types exchanged between the proxy bridge and its peer.
//
// This package defines:
//   - MessageType: the kind tag of every outbound envelope (cmd, req, result, output)
//   - Envelope: the {type, data} frame published on the bridge-to-peer channel
//   - ProxiedRequest: the "req" payload describing one intercepted HTTP call
//   - Reply: the frame the peer publishes back, tagged with the request id
//   - ChannelPair: the two session-scoped channel names
//
// All types serialize with encoding/json and keep the field names the peer expects,
// so a peer written in another language can consume them without an adapter.
package contracts
