// Copyright 2024 Mmate Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package proxybridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/glimte/proxybridge/bridge"
	"github.com/glimte/proxybridge/health"
	"github.com/glimte/proxybridge/internal/config"
	"github.com/glimte/proxybridge/internal/rabbitmq"
	"github.com/glimte/proxybridge/messaging"
	rabbitmqTransport "github.com/glimte/proxybridge/transports/rabbitmq"
	redisTransport "github.com/glimte/proxybridge/transports/redis"
)

// Client provides the main entry point for proxybridge: it opens the two
// transport connections described by the configuration and owns the bridge
type Client struct {
	config *config.Configuration
	bridge *bridge.Bridge
	health *health.Registry
	logger *slog.Logger
}

type clientConfig struct {
	logger        *slog.Logger
	broker        *messaging.MemoryBroker
	lazyConnect   bool
	bridgeOptions []bridge.BridgeOption
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithMemoryBroker sets the broker used by the memory transport
func WithMemoryBroker(broker *messaging.MemoryBroker) ClientOption {
	return func(c *clientConfig) {
		c.broker = broker
	}
}

// WithLazyConnect controls whether an unreachable broker is tolerated at
// construction. It is enabled by default.
func WithLazyConnect(lazy bool) ClientOption {
	return func(c *clientConfig) {
		c.lazyConnect = lazy
	}
}

// WithBridgeOptions appends options applied after the ones derived from the configuration
func WithBridgeOptions(opts ...bridge.BridgeOption) ClientOption {
	return func(c *clientConfig) {
		c.bridgeOptions = append(c.bridgeOptions, opts...)
	}
}

// NewClient validates cfg and builds the bridge with two connections to the
// configured transport. A nil cfg uses the defaults. Unless lazy connect is
// disabled an unreachable broker is not fatal: the connections are retried
// in the background.
func NewClient(ctx context.Context, cfg *config.Configuration, options ...ClientOption) (*Client, error) {
	if cfg == nil {
		cfg = config.NewConfiguration()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cc := &clientConfig{logger: slog.Default(), lazyConnect: true}
	for _, opt := range options {
		opt(cc)
	}

	whitelist, err := cfg.Whitelist()
	if err != nil {
		return nil, err
	}

	in, err := newTransport(ctx, cfg, cc, "subscriber")
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriber transport: %w", err)
	}
	out, err := newTransport(ctx, cfg, cc, "publisher")
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("failed to create publisher transport: %w", err)
	}

	bridgeOpts := []bridge.BridgeOption{
		bridge.WithLogger(cc.logger),
		bridge.WithChannelPrefixes(cfg.Channels.InboundPrefix, cfg.Channels.OutboundPrefix),
		bridge.WithOctetStreamWhitelist(whitelist...),
		bridge.WithReplyTimeout(cfg.ReplyTimeout),
		bridge.WithPublishTimeout(cfg.PublishTimeout),
	}
	bridgeOpts = append(bridgeOpts, cc.bridgeOptions...)

	b, err := bridge.New(cfg.Session, cfg.Addr(), in, out, bridgeOpts...)
	if err != nil {
		in.Close()
		out.Close()
		return nil, fmt.Errorf("failed to create bridge: %w", err)
	}

	registry := health.NewRegistry()
	registry.Register(health.NewListenerChecker(b))
	for name, transport := range map[string]messaging.Transport{"subscriber": in, "publisher": out} {
		if pinger, ok := transport.(health.Pinger); ok {
			registry.Register(health.NewTransportChecker(name, pinger))
		}
	}

	return &Client{
		config: cfg,
		bridge: b,
		health: registry,
		logger: cc.logger,
	}, nil
}

func newTransport(ctx context.Context, cfg *config.Configuration, cc *clientConfig, role string) (messaging.Transport, error) {
	kind := strings.ToLower(cfg.Transport.Kind)
	logger := cc.logger.With("transport", kind, "role", role)

	switch kind {
	case config.TransportRedis:
		return redisTransport.NewTransport(ctx,
			redisTransport.WithAddr(cfg.Transport.RedisAddr),
			redisTransport.WithPassword(cfg.Transport.RedisPassword),
			redisTransport.WithDB(cfg.Transport.RedisDB),
			redisTransport.WithLazyConnect(cc.lazyConnect),
			redisTransport.WithLogger(logger),
		)

	case config.TransportAMQP:
		return rabbitmqTransport.NewTransport(ctx, cfg.Transport.AMQPURL,
			rabbitmqTransport.WithLazyConnect(cc.lazyConnect),
			rabbitmqTransport.WithLogger(logger),
			rabbitmqTransport.WithConnectionOptions(
				rabbitmq.WithConnectionName(fmt.Sprintf("proxybridge-%s-%s", role, cfg.Session)),
			),
		)

	case config.TransportMemory:
		if cc.broker == nil {
			cc.broker = messaging.NewMemoryBroker()
		}
		return cc.broker.Transport(), nil
	}
	return nil, fmt.Errorf("unknown transport kind %q", cfg.Transport.Kind)
}

// Start binds the listener and starts forwarding requests
func (c *Client) Start(ctx context.Context) error {
	return c.bridge.Start(ctx)
}

// Stop stops the bridge and closes both transport connections
func (c *Client) Stop() error {
	return c.bridge.Stop()
}

// Bridge returns the underlying bridge
func (c *Client) Bridge() *bridge.Bridge {
	return c.bridge
}

// Health probes both transport connections and the listener
func (c *Client) Health(ctx context.Context) health.Report {
	return c.health.Check(ctx)
}

// Config returns the validated configuration
func (c *Client) Config() *config.Configuration {
	return c.config
}
