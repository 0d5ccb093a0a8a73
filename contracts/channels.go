package contracts

import (
	"fmt"
	"strings"
)

const (
	// DefaultInboundPrefix names the peer-to-bridge channel
	DefaultInboundPrefix = "testem-wrap-proxy-bridge-python-js"
	// DefaultOutboundPrefix names the bridge-to-peer channel
	DefaultOutboundPrefix = "testem-wrap-proxy-bridge-js-python"
)

// ChannelPair holds the session-scoped channel names of one bridge instance
type ChannelPair struct {
	// Inbound carries peer replies to the bridge
	Inbound string
	// Outbound carries bridge envelopes to the peer
	Outbound string
}

// NewChannelPair derives the channel names for a session using the default prefixes
func NewChannelPair(sessionID string) ChannelPair {
	pair, _ := NewChannelPairWithPrefixes(DefaultInboundPrefix, DefaultOutboundPrefix, sessionID)
	return pair
}

// NewChannelPairWithPrefixes derives the channel names for a session.
// The prefixes must differ so the two directions never share a channel.
func NewChannelPairWithPrefixes(inboundPrefix, outboundPrefix, sessionID string) (ChannelPair, error) {
	if inboundPrefix == "" || outboundPrefix == "" {
		return ChannelPair{}, fmt.Errorf("%w: channel prefixes cannot be empty", ErrInvalidChannels)
	}
	if inboundPrefix == outboundPrefix {
		return ChannelPair{}, fmt.Errorf("%w: inbound and outbound prefixes are both %q", ErrInvalidChannels, inboundPrefix)
	}

	return ChannelPair{
		Inbound:  strings.Join([]string{inboundPrefix, sessionID}, "-"),
		Outbound: strings.Join([]string{outboundPrefix, sessionID}, "-"),
	}, nil
}
