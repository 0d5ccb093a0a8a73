package bridge

import (
	"log/slog"
	"regexp"
	"time"

	"github.com/glimte/proxybridge/contracts"
	"github.com/glimte/proxybridge/internal/reliability"
)

// DefaultOctetStreamWhitelist matches the in-memory document storage API, the only
// endpoint whose octet-stream uploads are small enough to buffer
var DefaultOctetStreamWhitelist = []*regexp.Regexp{
	regexp.MustCompile(`custom_api/documents/in_memory_s3/([\w\-_]+)/([\w\-_/]+)`),
}

// BridgeOption configures the bridge
type BridgeOption func(*BridgeConfig)

// BridgeConfig holds configuration for the bridge
type BridgeConfig struct {
	Logger               *slog.Logger
	InboundPrefix        string
	OutboundPrefix       string
	OctetStreamWhitelist []*regexp.Regexp
	BindRetryPolicy      reliability.RetryPolicy
	ReplyTimeout         time.Duration
	PublishTimeout       time.Duration
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) BridgeOption {
	return func(c *BridgeConfig) {
		c.Logger = logger
	}
}

// WithChannelPrefixes sets the prefixes the session id is appended to
func WithChannelPrefixes(inbound, outbound string) BridgeOption {
	return func(c *BridgeConfig) {
		c.InboundPrefix = inbound
		c.OutboundPrefix = outbound
	}
}

// WithOctetStreamWhitelist replaces the URL patterns whose octet-stream bodies are buffered
func WithOctetStreamWhitelist(patterns ...*regexp.Regexp) BridgeOption {
	return func(c *BridgeConfig) {
		c.OctetStreamWhitelist = patterns
	}
}

// WithBindRetryPolicy sets the policy used while the listen address is in use
func WithBindRetryPolicy(policy reliability.RetryPolicy) BridgeOption {
	return func(c *BridgeConfig) {
		c.BindRetryPolicy = policy
	}
}

// WithReplyTimeout answers requests with 504 when the peer has not replied in time.
// Zero waits forever.
func WithReplyTimeout(timeout time.Duration) BridgeOption {
	return func(c *BridgeConfig) {
		c.ReplyTimeout = timeout
	}
}

// WithPublishTimeout bounds each publish on the outbound channel. Zero leaves it to the transport.
func WithPublishTimeout(timeout time.Duration) BridgeOption {
	return func(c *BridgeConfig) {
		c.PublishTimeout = timeout
	}
}

func defaultConfig() *BridgeConfig {
	return &BridgeConfig{
		Logger:               slog.Default(),
		InboundPrefix:        contracts.DefaultInboundPrefix,
		OutboundPrefix:       contracts.DefaultOutboundPrefix,
		OctetStreamWhitelist: DefaultOctetStreamWhitelist,
		BindRetryPolicy:      DefaultBindRetryPolicy(),
	}
}
